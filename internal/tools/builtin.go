package tools

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CurrentTimeTool reports the current time. Read-only.
type CurrentTimeTool struct {
	now func() time.Time
}

// NewCurrentTimeTool creates the current_time tool.
func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

func (t *CurrentTimeTool) Name() string        { return "current_time" }
func (t *CurrentTimeTool) Description() string { return "Returns the current date and time." }
func (t *CurrentTimeTool) Tier() int           { return TierReadOnly }

func (t *CurrentTimeTool) Parameters() map[string]string {
	return map[string]string{}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.now().Format(time.RFC3339), nil
}

// NoteTool appends short notes to an in-memory pad shared across a run.
// Writing is a controlled internal effect.
type NoteTool struct {
	mu    sync.Mutex
	notes []string
}

// NewNoteTool creates the take_note tool.
func NewNoteTool() *NoteTool { return &NoteTool{} }

func (t *NoteTool) Name() string        { return "take_note" }
func (t *NoteTool) Description() string { return "Appends a note to the shared scratch pad." }
func (t *NoteTool) Tier() int           { return TierWrite }

func (t *NoteTool) Parameters() map[string]string {
	return map[string]string{"text": "note text to record"}
}

func (t *NoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	text := GetString(args, "text", "")
	if text == "" {
		return "", fmt.Errorf("take_note requires a text argument")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = append(t.notes, text)
	return fmt.Sprintf("noted (%d total)", len(t.notes)), nil
}

// Notes returns a copy of the recorded notes.
func (t *NoteTool) Notes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.notes...)
}
