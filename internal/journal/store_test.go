package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/narratelabs/narrated/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.JournalConfig{RetentionMode: "ephemeral"}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	// All writes are no-ops without a database.
	if err := st.BeginRun(context.Background(), "run-1", "job"); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := st.RecordUnit(context.Background(), UnitOutcome{RunID: "run-1", UnitIndex: 0, Status: "synthesized"}); err != nil {
		t.Fatalf("record unit: %v", err)
	}
	outcomes, err := st.ListRunUnits(context.Background(), "run-1", 10)
	if err != nil {
		t.Fatalf("list units: %v", err)
	}
	if outcomes != nil {
		t.Fatalf("expected no outcomes in ephemeral mode, got %v", outcomes)
	}
}

func TestRecordAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "run"}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	runID := "run-123"
	if err := st.BeginRun(context.Background(), runID, "nightly-narration"); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := st.RecordUnit(context.Background(), UnitOutcome{RunID: runID, UnitIndex: 1, Status: "failed", Error: "model rejected input"}); err != nil {
		t.Fatalf("record unit: %v", err)
	}
	if err := st.RecordUnit(context.Background(), UnitOutcome{RunID: runID, UnitIndex: 0, Status: "synthesized", Artifact: "unit_0000.wav", ElapsedMS: 1200}); err != nil {
		t.Fatalf("record unit: %v", err)
	}
	if err := st.FinishRun(context.Background(), runID, "completed", "out.wav"); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	outcomes, err := st.ListRunUnits(context.Background(), runID, 10)
	if err != nil {
		t.Fatalf("list units: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].UnitIndex != 0 || outcomes[1].UnitIndex != 1 {
		t.Fatalf("expected outcomes ordered by unit index, got %v", outcomes)
	}
	if outcomes[1].Error != "model rejected input" {
		t.Fatalf("unexpected error text: %q", outcomes[1].Error)
	}
}

func TestPruneByDaysAndRuns(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRuns: 1}
	st, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	st.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := st.BeginRun(context.Background(), "old-run", "job"); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := st.RecordUnit(context.Background(), UnitOutcome{RunID: "old-run", UnitIndex: 0, Status: "synthesized"}); err != nil {
		t.Fatalf("record unit: %v", err)
	}

	st.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := st.BeginRun(context.Background(), "new-run", "job"); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := st.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	outcomes, err := st.ListRunUnits(context.Background(), "old-run", 10)
	if err != nil {
		t.Fatalf("list units: %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("expected old run pruned, got %v", outcomes)
	}
}
