// Package provider defines the language-model provider interface and the
// retry/fallback machinery in front of it.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// LLMProvider is the interface for language-model clients. The HTTP
// clients themselves live outside this module; the core only depends on
// this contract.
type LLMProvider interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// Streamer is an optional interface for providers that can stream
// response tokens. Callers should use type assertion:
// if s, ok := prov.(Streamer); ok { ... }
type Streamer interface {
	// ChatStream sends a completion request and invokes onToken for each
	// emitted chunk before returning the assembled response.
	ChatStream(ctx context.Context, req *ChatRequest, onToken func(chunk string)) (*ChatResponse, error)
}

// ChatRequest contains the parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrContextTooLong marks a provider rejection caused by an oversized
// prompt. The agent loop reacts by shrinking history rather than
// retrying verbatim.
var ErrContextTooLong = errors.New("context window exceeded")

// Error is a provider failure classified as retryable (transport-level,
// rate limit) or fatal (bad request, auth).
type Error struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// IsContextTooLong reports whether the error is a context-length
// rejection.
func IsContextTooLong(err error) bool {
	return errors.Is(err, ErrContextTooLong)
}
