package contextwin

import (
	"strings"
	"testing"
	"time"

	"github.com/CorpClaw/CorpClaw/internal/provider"
)

func historyOf(n, contentLen int) []provider.Message {
	msgs := make([]provider.Message, n)
	for i := range msgs {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs[i] = provider.Message{Role: role, Content: strings.Repeat("a", contentLen)}
	}
	return msgs
}

func TestWindow_LastTwoOfTenUnderBudget(t *testing.T) {
	// Ten messages of ~50 tokens each with a budget of 120 keeps the
	// last two (~100 tokens).
	history := historyOf(10, 200)
	b := NewBudgeter(nil)
	w := b.Window(history, 120, "conv-1")
	if len(w.Messages) != 2 {
		t.Fatalf("expected last 2 messages, got %d", len(w.Messages))
	}
	if !w.HasMore || w.Excluded != 8 {
		t.Fatalf("expected hasMore with 8 excluded, got %+v", w)
	}
	if w.Hint == "" {
		t.Fatal("overflow must produce a hint")
	}
}

func TestWindow_IsContiguousSuffix(t *testing.T) {
	history := make([]provider.Message, 6)
	for i := range history {
		history[i] = provider.Message{Role: "user", Content: strings.Repeat("x", 40+i*10)}
	}
	b := NewBudgeter(nil)
	w := b.Window(history, 50, "conv-1")
	for i, m := range w.Messages {
		want := history[len(history)-len(w.Messages)+i]
		if m.Content != want.Content {
			t.Fatalf("window is not a contiguous suffix at %d", i)
		}
	}
}

func TestWindow_FullHistoryFits(t *testing.T) {
	history := historyOf(3, 20)
	b := NewBudgeter(nil)
	w := b.Window(history, 10_000, "conv-1")
	if len(w.Messages) != 3 || w.HasMore || w.Hint != "" {
		t.Fatalf("full history should fit with no hint, got %+v", w)
	}
}

func TestWindow_MonotoneInBudget(t *testing.T) {
	history := historyOf(20, 120)
	b := NewBudgeter(nil)
	prev := 0
	for budget := 0; budget <= 1200; budget += 37 {
		w := b.Window(history, budget, "conv-1")
		cost := 0
		for _, m := range w.Messages {
			cost += MessageCost(m)
		}
		if cost > budget {
			t.Fatalf("budget %d exceeded: cost %d", budget, cost)
		}
		if len(w.Messages) < prev {
			t.Fatalf("budget %d includes fewer messages (%d) than a smaller budget (%d)", budget, len(w.Messages), prev)
		}
		prev = len(w.Messages)
	}
}

func TestWindow_ZeroBudget(t *testing.T) {
	history := historyOf(4, 50)
	b := NewBudgeter(nil)
	w := b.Window(history, 0, "conv-1")
	if len(w.Messages) != 0 || !w.HasMore || w.Excluded != 4 {
		t.Fatalf("zero budget should exclude everything, got %+v", w)
	}
}

func TestByCount(t *testing.T) {
	history := historyOf(5, 10)
	b := NewBudgeter(nil)
	w := b.ByCount(history, 2)
	if len(w.Messages) != 2 || !w.HasMore || w.Excluded != 3 {
		t.Fatalf("unexpected by-count window: %+v", w)
	}
	w = b.ByCount(history, 10)
	if len(w.Messages) != 5 || w.HasMore {
		t.Fatalf("count above length should return everything: %+v", w)
	}
}

func TestOverflowHint_PrefersCachedSummary(t *testing.T) {
	cache := NewSummaryCache(8, time.Minute)
	cache.Put("conv-1", 0, "They agreed on the Q3 budget.")
	b := NewBudgeter(cache)
	w := b.Window(historyOf(10, 200), 120, "conv-1")
	if !strings.Contains(w.Hint, "They agreed on the Q3 budget.") {
		t.Fatalf("hint should carry the cached summary, got %q", w.Hint)
	}
}

func TestOverflowHint_PagerInstructionWithoutSummary(t *testing.T) {
	b := NewBudgeter(NewSummaryCache(8, time.Minute))
	w := b.Window(historyOf(10, 200), 120, "conv-9")
	if !strings.Contains(w.Hint, "history pager") || !strings.Contains(w.Hint, "conv-9") {
		t.Fatalf("hint should direct to the pager, got %q", w.Hint)
	}
}

func TestSummaryCache_TTLEviction(t *testing.T) {
	cache := NewSummaryCache(8, 20*time.Millisecond)
	cache.Put("conv-1", 0, "stale soon")
	if _, ok := cache.Get("conv-1", 0); !ok {
		t.Fatal("summary should be present before TTL")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := cache.Get("conv-1", 0); ok {
		t.Fatal("summary should expire after TTL")
	}
}
