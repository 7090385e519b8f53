// Package contextwin trims conversation history to a token budget and
// produces hints about excluded older pages.
package contextwin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/CorpClaw/CorpClaw/internal/provider"
)

// DefaultPageSize is the number of messages per history page referenced
// by overflow hints.
const DefaultPageSize = 50

// Pager fetches older history pages from the external log subsystem.
type Pager interface {
	GetPage(ctx context.Context, conversationID string, pageIndex int) ([]provider.Message, error)
}

// Window is a budget-constrained view over history.
type Window struct {
	// Messages is a contiguous suffix of the input history.
	Messages []provider.Message
	// HasMore is true when older messages were excluded.
	HasMore bool
	// Excluded is the number of messages cut from the front.
	Excluded int
	// Hint summarizes or points at the excluded prefix. Empty when the
	// full history fits.
	Hint string
}

// EstimateTokens is the cheap token heuristic used for budgeting:
// roughly four characters per token, minimum one per non-empty string.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// MessageCost estimates the token cost of one message.
func MessageCost(m provider.Message) int {
	return EstimateTokens(m.Content) + EstimateTokens(m.Role)
}

// SummaryCache stores textual summaries of older history pages, keyed
// by conversation id and page index, with LRU + TTL eviction.
type SummaryCache struct {
	lru *expirable.LRU[string, string]
}

// NewSummaryCache creates a cache holding up to size summaries for ttl.
func NewSummaryCache(size int, ttl time.Duration) *SummaryCache {
	if size <= 0 {
		size = 128
	}
	return &SummaryCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func summaryKey(conversationID string, pageIndex int) string {
	return fmt.Sprintf("%s#%d", conversationID, pageIndex)
}

// Put stores a page summary.
func (c *SummaryCache) Put(conversationID string, pageIndex int, summary string) {
	c.lru.Add(summaryKey(conversationID, pageIndex), summary)
}

// Get returns a cached page summary if present.
func (c *SummaryCache) Get(conversationID string, pageIndex int) (string, bool) {
	return c.lru.Get(summaryKey(conversationID, pageIndex))
}

// Budgeter computes budget windows over history.
type Budgeter struct {
	cache    *SummaryCache
	pageSize int
}

// NewBudgeter creates a budgeter. cache may be nil when no summaries
// are kept.
func NewBudgeter(cache *SummaryCache) *Budgeter {
	return &Budgeter{cache: cache, pageSize: DefaultPageSize}
}

// Window returns the largest contiguous suffix of history whose
// estimated cost fits the token budget, plus an overflow hint when the
// full history does not fit. Increasing the budget never excludes a
// message a smaller budget included.
func (b *Budgeter) Window(history []provider.Message, budget int, conversationID string) Window {
	if budget <= 0 {
		return Window{HasMore: len(history) > 0, Excluded: len(history), Hint: b.overflowHint(conversationID, len(history))}
	}
	cost := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		c := MessageCost(history[i])
		if cost+c > budget {
			break
		}
		cost += c
		start = i
	}
	w := Window{
		Messages: append([]provider.Message{}, history[start:]...),
		HasMore:  start > 0,
		Excluded: start,
	}
	if w.HasMore {
		w.Hint = b.overflowHint(conversationID, start)
	}
	return w
}

// ByCount returns the last n messages of history.
func (b *Budgeter) ByCount(history []provider.Message, n int) Window {
	if n < 0 {
		n = 0
	}
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	return Window{
		Messages: append([]provider.Message{}, history[start:]...),
		HasMore:  start > 0,
		Excluded: start,
	}
}

// overflowHint prefers cached summaries of the excluded pages; when
// none exist it instructs the caller to fetch the pages explicitly
// rather than silently dropping them.
func (b *Budgeter) overflowHint(conversationID string, excluded int) string {
	pages := (excluded + b.pageSize - 1) / b.pageSize
	if pages == 0 {
		pages = 1
	}
	if b.cache != nil {
		var summaries []string
		for page := 0; page < pages; page++ {
			if s, ok := b.cache.Get(conversationID, page); ok {
				summaries = append(summaries, s)
			}
		}
		if len(summaries) > 0 {
			return "Summary of earlier conversation:\n" + strings.Join(summaries, "\n")
		}
	}
	return fmt.Sprintf(
		"%d earlier messages (%d pages) were excluded from context; fetch them through the history pager for conversation %s if needed.",
		excluded, pages, conversationID,
	)
}
