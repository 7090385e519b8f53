package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

type taskRecord struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenWithInterval(filepath.Join(t.TempDir(), "records.db"), time.Hour)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestGet_ReadsPendingBeforeFlush(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put("task", "t-1", taskRecord{ID: "t-1", Status: "in_progress"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got taskRecord
	ok, err := s.Get("task", "t-1", &got)
	if err != nil || !ok {
		t.Fatalf("get before flush: ok=%v err=%v", ok, err)
	}
	if got.Status != "in_progress" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestPutSync_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.db")

	s, err := OpenWithInterval(path, time.Hour)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.PutSync("task", "t-2", taskRecord{ID: "t-2", Status: "completed"}); err != nil {
		t.Fatalf("put sync: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenWithInterval(path, time.Hour)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close(context.Background())

	var got taskRecord
	ok, err := s2.Get("task", "t-2", &got)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Status != "completed" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGet_MissingRecord(t *testing.T) {
	s := openTestStore(t)
	var got taskRecord
	ok, err := s.Get("task", "nope", &got)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("missing record must report ok=false")
	}
}

func TestPut_LatestWriteWins(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutSync("task", "t-3", taskRecord{ID: "t-3", Status: "pending"}); err != nil {
		t.Fatalf("put sync: %v", err)
	}
	if err := s.Put("task", "t-3", taskRecord{ID: "t-3", Status: "in_progress"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var got taskRecord
	if ok, err := s.Get("task", "t-3", &got); !ok || err != nil {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != "in_progress" {
		t.Fatalf("pending write must shadow the flushed one, got %+v", got)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got = taskRecord{}
	if ok, err := s.Get("task", "t-3", &got); !ok || err != nil {
		t.Fatalf("get after flush: ok=%v err=%v", ok, err)
	}
	if got.Status != "in_progress" {
		t.Fatalf("flush lost the newer write, got %+v", got)
	}
}

func TestList_MergesPendingAndFlushed(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutSync("task", "a", taskRecord{ID: "a", Status: "completed"}); err != nil {
		t.Fatalf("put sync: %v", err)
	}
	if err := s.Put("task", "b", taskRecord{ID: "b", Status: "pending"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("plan", "p", taskRecord{ID: "p"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	values, err := s.List("task")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 task records, got %d", len(values))
	}
}

func TestPut_AfterCloseFails(t *testing.T) {
	s, err := OpenWithInterval(filepath.Join(t.TempDir(), "records.db"), time.Hour)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Put("task", "x", taskRecord{ID: "x"}); err == nil {
		t.Fatal("put after close must fail")
	}
}
