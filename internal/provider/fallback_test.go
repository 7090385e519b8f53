package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyProvider struct {
	failures int
	err      error
	calls    int
	content  string
}

func (p *flakyProvider) DefaultModel() string { return "flaky-1" }

func (p *flakyProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, p.err
	}
	return &ChatResponse{Content: p.content, Usage: Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}}, nil
}

func TestFallback_RetriesTransientThenSucceeds(t *testing.T) {
	p := &flakyProvider{
		failures: 2,
		err:      &Error{Provider: "a", Retryable: true, Err: errors.New("connection reset")},
		content:  "ok",
	}
	f, err := NewFallback([]LLMProvider{p}, WithBaseDelay(time.Millisecond), WithMaxAttempts(3))
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	resp, err := f.Chat(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if resp.Content != "ok" || p.calls != 3 {
		t.Fatalf("unexpected result content=%q calls=%d", resp.Content, p.calls)
	}
}

func TestFallback_FatalSkipsToNextProvider(t *testing.T) {
	broken := &flakyProvider{
		failures: 99,
		err:      &Error{Provider: "a", Retryable: false, Err: errors.New("invalid api key")},
	}
	healthy := &flakyProvider{content: "from backup"}
	f, err := NewFallback([]LLMProvider{broken, healthy}, WithBaseDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	resp, err := f.Chat(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("expected fallback success, got: %v", err)
	}
	if resp.Content != "from backup" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}
	if broken.calls != 1 {
		t.Fatalf("fatal error must not be retried, got %d calls", broken.calls)
	}
}

func TestFallback_AllExhausted(t *testing.T) {
	transient := &Error{Provider: "a", Retryable: true, Err: errors.New("timeout")}
	a := &flakyProvider{failures: 99, err: transient}
	b := &flakyProvider{failures: 99, err: transient}
	f, err := NewFallback([]LLMProvider{a, b}, WithBaseDelay(time.Millisecond), WithMaxAttempts(2))
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	if _, err := f.Chat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("expected terminal failure when every provider is down")
	}
	if a.calls != 2 || b.calls != 2 {
		t.Fatalf("expected 2 attempts per provider, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestFallback_ContextTooLongPropagatesImmediately(t *testing.T) {
	a := &flakyProvider{failures: 99, err: &Error{Provider: "a", Retryable: false, Err: ErrContextTooLong}}
	healthy := &flakyProvider{content: "never reached"}
	f, err := NewFallback([]LLMProvider{a, healthy}, WithBaseDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("NewFallback: %v", err)
	}
	_, err = f.Chat(context.Background(), &ChatRequest{})
	if !IsContextTooLong(err) {
		t.Fatalf("expected context-too-long to propagate, got: %v", err)
	}
	if healthy.calls != 0 {
		t.Fatal("context-too-long must not trigger provider fallback")
	}
}

func TestIsRetryableClassification(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
	if !IsRetryable(&Error{Retryable: true, Err: errors.New("503")}) {
		t.Fatal("retryable provider error not detected")
	}
	wrapped := errors.Join(errors.New("outer"), &Error{Retryable: true, Err: errors.New("inner")})
	if !IsRetryable(wrapped) {
		t.Fatal("retryable classification must survive wrapping")
	}
}
