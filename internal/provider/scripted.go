package provider

import (
	"context"
	"sync"
)

// Scripted is an in-memory provider that replays canned responses in
// order. It backs tests and the offline demo command; real deployments
// plug an HTTP client in behind LLMProvider instead.
type Scripted struct {
	mu        sync.Mutex
	model     string
	responses []ScriptedResponse
	calls     []*ChatRequest
}

// ScriptedResponse is one canned turn: either content or an error.
type ScriptedResponse struct {
	Content string
	Usage   Usage
	Err     error
}

// NewScripted creates a scripted provider replaying the given responses.
// When the script runs out, the last response repeats.
func NewScripted(model string, responses ...ScriptedResponse) *Scripted {
	return &Scripted{model: model, responses: responses}
}

// DefaultModel returns the scripted model name.
func (s *Scripted) DefaultModel() string { return s.model }

// Chat replays the next scripted response.
func (s *Scripted) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	reqCopy := *req
	reqCopy.Messages = append([]Message{}, req.Messages...)
	s.calls = append(s.calls, &reqCopy)

	if len(s.responses) == 0 {
		return &ChatResponse{Content: "", Usage: Usage{}}, nil
	}
	idx := len(s.calls) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	r := s.responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	usage := r.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return &ChatResponse{Content: r.Content, Usage: usage}, nil
}

// ChatStream replays the next response one word-ish chunk at a time.
func (s *Scripted) ChatStream(ctx context.Context, req *ChatRequest, onToken func(chunk string)) (*ChatResponse, error) {
	resp, err := s.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	const chunkSize = 8
	for i := 0; i < len(resp.Content); i += chunkSize {
		end := i + chunkSize
		if end > len(resp.Content) {
			end = len(resp.Content)
		}
		onToken(resp.Content[i:end])
	}
	return resp, nil
}

// Calls returns the requests seen so far.
func (s *Scripted) Calls() []*ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ChatRequest{}, s.calls...)
}
