// Package agent runs the iterative model/tool loop behind every actor
// turn. One turn takes an instruction, lets the model call tools until
// it produces plain text, and returns that text.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CorpClaw/CorpClaw/internal/actor"
	"github.com/CorpClaw/CorpClaw/internal/contextwin"
	"github.com/CorpClaw/CorpClaw/internal/provider"
	"github.com/CorpClaw/CorpClaw/internal/toolcall"
	"github.com/CorpClaw/CorpClaw/internal/tools"
	"github.com/CorpClaw/CorpClaw/internal/usage"
)

// Loop iteration ceilings. Ordinary actors stop at MaxIterations;
// actors marked privileged get the higher finite ceiling instead of an
// unbounded loop.
const (
	DefaultMaxIterations    = 25
	PrivilegedMaxIterations = 100
)

// DefaultTokenBudget bounds the history portion of each prompt.
const DefaultTokenBudget = 8000

// CapNotice is the sentinel text returned when a turn exhausts its
// iteration ceiling without producing a plain-text answer.
const CapNotice = "I reached the tool-call limit for this request before finishing. Here is where I got to:"

// LoopOptions configures a Runner.
type LoopOptions struct {
	MaxIterations           int
	PrivilegedMaxIterations int
	TokenBudget             int
	Model                   string
	MaxTokens               int
	Temperature             float64
}

// Runner executes agent turns against a provider.
type Runner struct {
	provider provider.LLMProvider
	budgeter *contextwin.Budgeter
	usage    usage.Sink
	opts     LoopOptions
}

// NewRunner creates a runner. budgeter and sink may be nil; nil
// disables history budgeting and usage tracking respectively.
func NewRunner(p provider.LLMProvider, budgeter *contextwin.Budgeter, sink usage.Sink, opts LoopOptions) *Runner {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.PrivilegedMaxIterations <= 0 {
		opts.PrivilegedMaxIterations = PrivilegedMaxIterations
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if budgeter == nil {
		budgeter = contextwin.NewBudgeter(nil)
	}
	return &Runner{provider: p, budgeter: budgeter, usage: sink, opts: opts}
}

// TurnRequest is one actor turn.
type TurnRequest struct {
	ActorID        string
	SystemPrompt   string
	History        []provider.Message
	Instruction    string
	Call           actor.CallContext
	ConversationID string
	Privileged     bool
	// Registry provides the tools available for this turn. nil means a
	// pure-text turn with no tool schema in the prompt.
	Registry *tools.Registry
	// TokenBudget overrides the runner default when > 0.
	TokenBudget int
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	Content    string
	Iterations int
	HitCap     bool
	History    []provider.Message
}

// RunTurn executes the agentic loop for one instruction: send prompt,
// parse tool calls, execute them, feed results back, repeat until the
// model answers in plain text or the iteration ceiling is hit.
func (r *Runner) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	limit := r.opts.MaxIterations
	if req.Privileged {
		limit = r.opts.PrivilegedMaxIterations
	}
	budget := req.TokenBudget
	if budget <= 0 {
		budget = r.opts.TokenBudget
	}

	working := append([]provider.Message{}, req.History...)
	working = append(working, provider.Message{Role: "user", Content: req.Instruction})

	lastContent := ""
	for it := 0; it < limit; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := r.chat(ctx, req, working, budget, it == 0)
		if err != nil {
			return nil, fmt.Errorf("agent turn for %s: %w", req.ActorID, err)
		}
		if r.usage != nil {
			r.usage.Record(req.ActorID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}

		content := resp.Content
		working = append(working, provider.Message{Role: "assistant", Content: content})

		calls, issues := toolcall.Parse(content)
		visible := toolcall.Strip(content)
		if visible != "" {
			lastContent = visible
		}

		if len(calls) == 0 && len(issues) == 0 {
			return &TurnResult{Content: visible, Iterations: it + 1, History: working}, nil
		}

		if len(issues) > 0 {
			var reasons []string
			for _, issue := range issues {
				reasons = append(reasons, issue.Reason)
			}
			slog.Debug("Malformed tool markup in model output", "actor", req.ActorID, "issues", reasons)
			working = append(working, provider.Message{
				Role: "user",
				Content: "Your last message contained malformed tool-call markup (" +
					strings.Join(reasons, "; ") +
					"). Re-emit the tool call with correct <tool_call> syntax, or answer in plain text.",
			})
			if len(calls) == 0 {
				continue
			}
		}

		results := r.executeCalls(ctx, req, calls)
		working = append(working, provider.Message{
			Role:    "user",
			Content: results + "\n\nUse the results above to continue. Do not repeat the same call with the same arguments.",
		})
	}

	slog.Warn("Agent turn hit iteration ceiling", "actor", req.ActorID, "iterations", limit)
	content := CapNotice
	if lastContent != "" {
		content = CapNotice + "\n\n" + lastContent
	}
	return &TurnResult{Content: content, Iterations: limit, HitCap: true, History: working}, nil
}

// chat assembles the prompt and sends it, shrinking history when the
// provider rejects the context length: first the budget window, then
// half of it, then the instruction alone.
func (r *Runner) chat(ctx context.Context, req TurnRequest, working []provider.Message, budget int, firstIteration bool) (*provider.ChatResponse, error) {
	resp, err := r.chatOnce(ctx, req, working, budget, firstIteration)
	if err == nil || !provider.IsContextTooLong(err) {
		return resp, err
	}

	slog.Warn("Provider rejected context length, halving history budget", "actor", req.ActorID)
	resp, err = r.chatOnce(ctx, req, working, budget/2, firstIteration)
	if err == nil || !provider.IsContextTooLong(err) {
		return resp, err
	}

	slog.Warn("Provider rejected halved context, dropping history", "actor", req.ActorID)
	tail := working[len(working)-1:]
	return r.chatOnce(ctx, req, tail, 0, firstIteration)
}

func (r *Runner) chatOnce(ctx context.Context, req TurnRequest, working []provider.Message, budget int, firstIteration bool) (*provider.ChatResponse, error) {
	var messages []provider.Message

	system := req.SystemPrompt
	if req.Registry != nil {
		if schema := req.Registry.SchemaText(firstIteration); schema != "" {
			if system != "" {
				system += "\n\n"
			}
			system += schema
		}
	}
	if system != "" {
		messages = append(messages, provider.Message{Role: "system", Content: system})
	}

	if budget > 0 && len(working) > 1 {
		// The current instruction (or tool results) always stays; the
		// budget applies to everything before it.
		head, tail := working[:len(working)-1], working[len(working)-1]
		window := r.budgeter.Window(head, budget, req.ConversationID)
		if window.Hint != "" {
			messages = append(messages, provider.Message{Role: "system", Content: window.Hint})
		}
		messages = append(messages, window.Messages...)
		messages = append(messages, tail)
	} else {
		messages = append(messages, working...)
	}

	model := r.opts.Model
	if model == "" {
		model = r.provider.DefaultModel()
	}
	return r.provider.Chat(ctx, &provider.ChatRequest{
		Messages:    messages,
		Model:       model,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: r.opts.Temperature,
	})
}

// executeCalls runs parsed tool calls one after another and renders
// their outcomes as a synthetic results turn.
func (r *Runner) executeCalls(ctx context.Context, req TurnRequest, calls []toolcall.Call) string {
	var sb strings.Builder
	for i, call := range calls {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		var res tools.Result
		if req.Registry == nil {
			res = tools.Result{Success: false, Error: "no tools are available for this turn"}
		} else {
			res = req.Registry.Execute(ctx, call.Name, call.Args, tools.CallContext{
				ActorID:        req.ActorID,
				CallChain:      req.Call.Chain,
				Depth:          req.Call.Depth,
				ConversationID: req.ConversationID,
			})
		}
		if res.Success {
			slog.Debug("Tool executed", "actor", req.ActorID, "tool", call.Name)
			fmt.Fprintf(&sb, "Result of %s:\n%s", call.Name, res.Output)
		} else {
			slog.Debug("Tool failed", "actor", req.ActorID, "tool", call.Name, "error", res.Error)
			fmt.Fprintf(&sb, "Tool %s failed: %s", call.Name, res.Error)
		}
	}
	return sb.String()
}
