package taskhistory

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentByModule(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.Append(Record{TaskID: 1, Module: "m", Phase: "Completed", CreatedAt: now, FinishedAt: now, ResultSummary: "[I32(42)]"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(Record{TaskID: 2, Module: "m", Phase: "Failed", CreatedAt: now, FinishedAt: now.Add(time.Second), ResultSummary: "executor error"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(Record{TaskID: 3, Module: "other", Phase: "Completed", CreatedAt: now, FinishedAt: now, ResultSummary: ""}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.RecentByModule("m", 10)
	if err != nil {
		t.Fatalf("RecentByModule: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].TaskID != 2 {
		t.Fatalf("expected most recent first (task 2), got task %d", got[0].TaskID)
	}
}

func TestRecentByModuleRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if err := s.Append(Record{TaskID: uint64(i), Module: "m", Phase: "Completed", CreatedAt: now, FinishedAt: now.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := s.RecentByModule("m", 2)
	if err != nil {
		t.Fatalf("RecentByModule: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
}
