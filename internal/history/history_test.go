package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rlmlab/rlmtrace/internal/trace"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func catalogTrace(runID, ts string) trace.Trace {
	return trace.Trace{
		RunID:          runID,
		Timestamp:      ts,
		Question:       "q for " + runID,
		Model:          "gpt-4o-mini",
		IterationsUsed: 3,
		LLMCallsUsed:   4,
		TotalTokens:    &trace.TokenUsage{Input: 100, Output: 50},
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	s2.Close()
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)

	tr := catalogTrace("run-1", "2026-02-01T10:00:00Z")
	if err := s.RecordTrace(tr, "api"); err != nil {
		t.Fatalf("RecordTrace: %v", err)
	}

	e, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Question != "q for run-1" || e.Model != "gpt-4o-mini" || e.Source != "api" {
		t.Errorf("entry mismatch: %+v", e)
	}
	if e.Iterations != 3 || e.LLMCalls != 4 {
		t.Errorf("counts mismatch: %+v", e)
	}
	if e.InputTokens != 100 || e.OutputTokens != 50 {
		t.Errorf("tokens mismatch: %+v", e)
	}
	if e.RecordedAt.Format(trace.TimestampFormat) != "2026-02-01T10:00:00Z" {
		t.Errorf("recorded_at = %v", e.RecordedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

// Re-recording a run replaces its catalog row rather than adding a second.
func TestRecordUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordTrace(catalogTrace("run-1", "2026-02-01T10:00:00Z"), "cli"); err != nil {
		t.Fatal(err)
	}
	tr := catalogTrace("run-1", "2026-02-02T10:00:00Z")
	tr.IterationsUsed = 7
	if err := s.RecordTrace(tr, "live"); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Iterations != 7 || entries[0].Source != "live" {
		t.Errorf("row not replaced: %+v", entries[0])
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 5; i++ {
		ts := fmt.Sprintf("2026-02-0%dT10:00:00Z", i)
		if err := s.RecordTrace(catalogTrace(fmt.Sprintf("run-%d", i), ts), "cli"); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].RunID != "run-5" || entries[2].RunID != "run-3" {
		t.Errorf("unexpected order: %s .. %s", entries[0].RunID, entries[2].RunID)
	}
}

func TestRecordNoTokens(t *testing.T) {
	s := openTestStore(t)

	tr := catalogTrace("run-1", "2026-02-01T10:00:00Z")
	tr.TotalTokens = nil
	if err := s.RecordTrace(tr, ""); err != nil {
		t.Fatalf("RecordTrace: %v", err)
	}

	e, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.InputTokens != 0 || e.OutputTokens != 0 {
		t.Errorf("tokens should be zero: %+v", e)
	}
	if e.Source != "cli" {
		t.Errorf("source default = %q, want cli", e.Source)
	}
}
