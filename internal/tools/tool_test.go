package tools

import (
	"context"
	"strings"
	"testing"
)

func TestRegistry_UnknownToolIsNormalFailure(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "missing", nil, CallContext{ActorID: "ceo"})
	if res.Success {
		t.Fatal("unknown tool must not succeed")
	}
	if !strings.Contains(res.Error, "unknown tool: missing") {
		t.Fatalf("unexpected error text: %q", res.Error)
	}
}

func TestRegistry_ReadOnlySubset(t *testing.T) {
	r := NewRegistry()
	r.Register(NewCurrentTimeTool())
	r.Register(NewNoteTool())

	sub := r.ReadOnly()
	if _, ok := sub.Get("current_time"); !ok {
		t.Fatal("read-only view should keep tier-0 tools")
	}
	if _, ok := sub.Get("take_note"); ok {
		t.Fatal("read-only view must drop write-tier tools")
	}
	// The full registry is untouched.
	if _, ok := r.Get("take_note"); !ok {
		t.Fatal("ReadOnly must not mutate the source registry")
	}
}

func TestRegistry_SchemaText(t *testing.T) {
	r := NewRegistry()
	r.Register(NewNoteTool())

	full := r.SchemaText(true)
	if !strings.Contains(full, "<tool_call>") || !strings.Contains(full, "take_note") || !strings.Contains(full, "text:") {
		t.Fatalf("full schema missing pieces:\n%s", full)
	}
	short := r.SchemaText(false)
	if strings.Contains(short, "\n") || !strings.Contains(short, "take_note") {
		t.Fatalf("short schema should be a one-liner naming tools, got %q", short)
	}
	if len(short) >= len(full) {
		t.Fatal("reminder schema should be shorter than the full schema")
	}
}

func TestRegistry_ExecuteToolError(t *testing.T) {
	r := NewRegistry()
	r.Register(NewNoteTool())
	res := r.Execute(context.Background(), "take_note", map[string]any{}, CallContext{})
	if res.Success {
		t.Fatal("missing argument should fail")
	}
	if res.Error == "" {
		t.Fatal("failure must carry an error message")
	}
}

func TestNoteTool_RecordsNotes(t *testing.T) {
	nt := NewNoteTool()
	r := NewRegistry()
	r.Register(nt)
	res := r.Execute(context.Background(), "take_note", map[string]any{"text": "ship it"}, CallContext{})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if notes := nt.Notes(); len(notes) != 1 || notes[0] != "ship it" {
		t.Fatalf("unexpected notes: %v", notes)
	}
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]any{"s": "v", "i": int64(7), "f": 2.0, "b": true}
	if GetString(args, "s", "") != "v" || GetString(args, "missing", "d") != "d" {
		t.Fatal("GetString mismatch")
	}
	if GetInt(args, "i", 0) != 7 || GetInt(args, "f", 0) != 2 || GetInt(args, "missing", 9) != 9 {
		t.Fatal("GetInt mismatch")
	}
	if !GetBool(args, "b", false) || GetBool(args, "missing", true) != true {
		t.Fatal("GetBool mismatch")
	}
}
