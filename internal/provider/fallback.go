package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Fallback chains an ordered list of providers. Retryable failures are
// retried with exponential backoff before falling through to the next
// provider; fatal failures fall through immediately. Context-too-long
// rejections propagate at once so the caller can shrink the prompt.
type Fallback struct {
	providers   []LLMProvider
	maxAttempts int
	baseDelay   time.Duration
}

// FallbackOption customizes a Fallback chain.
type FallbackOption func(*Fallback)

// WithMaxAttempts sets the per-provider retry attempt count.
func WithMaxAttempts(n int) FallbackOption {
	return func(f *Fallback) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first backoff delay. Each retry doubles it.
func WithBaseDelay(d time.Duration) FallbackOption {
	return func(f *Fallback) {
		if d > 0 {
			f.baseDelay = d
		}
	}
}

// NewFallback builds a chain over the given providers, tried in order.
func NewFallback(providers []LLMProvider, opts ...FallbackOption) (*Fallback, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("fallback chain needs at least one provider")
	}
	f := &Fallback{
		providers:   providers,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// DefaultModel returns the primary provider's default model.
func (f *Fallback) DefaultModel() string {
	return f.providers[0].DefaultModel()
}

// Chat tries each provider in order, honoring the retry policy.
func (f *Fallback) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for pi, p := range f.providers {
		resp, err := f.chatWithRetry(ctx, p, req)
		if err == nil {
			return resp, nil
		}
		if IsContextTooLong(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if pi < len(f.providers)-1 {
			slog.Warn("Provider failed, falling back", "provider", pi, "error", err)
		}
	}
	return nil, fmt.Errorf("all providers exhausted: %w", lastErr)
}

func (f *Fallback) chatWithRetry(ctx context.Context, p LLMProvider, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error
	delay := f.baseDelay
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		slog.Debug("Retryable provider error", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}
