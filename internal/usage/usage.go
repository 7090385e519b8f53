// Package usage tracks per-actor token consumption.
package usage

import "sync"

// Sink receives token usage after each model call.
type Sink interface {
	Record(actorID string, promptTokens, completionTokens int)
}

// Totals is the accumulated usage for one actor.
type Totals struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	Calls            int `json:"calls"`
}

// Tracker is an in-memory, thread-safe usage sink.
type Tracker struct {
	mu     sync.Mutex
	totals map[string]Totals
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{totals: make(map[string]Totals)}
}

// Record adds one model call's usage to the actor's totals.
func (t *Tracker) Record(actorID string, promptTokens, completionTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tot := t.totals[actorID]
	tot.PromptTokens += promptTokens
	tot.CompletionTokens += completionTokens
	tot.Calls++
	t.totals[actorID] = tot
}

// TotalsFor returns the accumulated usage for one actor.
func (t *Tracker) TotalsFor(actorID string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[actorID]
}

// Snapshot returns a copy of all per-actor totals.
func (t *Tracker) Snapshot() map[string]Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Totals, len(t.totals))
	for k, v := range t.totals {
		out[k] = v
	}
	return out
}
