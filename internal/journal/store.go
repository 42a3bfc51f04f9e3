package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/narratelabs/narrated/internal/config"
	_ "modernc.org/sqlite"
)

// UnitOutcome records one unit's synthesis attempt within a run.
type UnitOutcome struct {
	ID        int64
	RunID     string
	UnitIndex int
	Status    string // synthesized, failed
	Artifact  string
	Error     string
	ElapsedMS int64
	CreatedAt time.Time
}

// Store wraps a SQLite-backed narration run journal.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config. In ephemeral mode no
// database is opened and every write is a no-op.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    job_name TEXT,
    status TEXT,
    output_path TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS unit_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    unit_index INTEGER NOT NULL,
    status TEXT,
    artifact TEXT,
    error TEXT,
    elapsed_ms INTEGER,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_unit_outcomes_run ON unit_outcomes(run_id, unit_index);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts the run row in status running.
func (s *Store) BeginRun(ctx context.Context, runID, jobName string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, job_name, status, output_path, created_at)
		 VALUES(?, ?, 'running', '', ?)
		 ON CONFLICT(run_id) DO UPDATE SET job_name=excluded.job_name, status='running'`,
		runID, jobName, s.clock().UTC())
	return err
}

// FinishRun records the run's terminal status and, when assembled, the
// output path.
func (s *Store) FinishRun(ctx context.Context, runID, status, outputPath string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, output_path = ? WHERE run_id = ?`,
		status, outputPath, runID)
	return err
}

// RecordUnit writes one unit outcome.
func (s *Store) RecordUnit(ctx context.Context, outcome UnitOutcome) error {
	if s.db == nil {
		return nil
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unit_outcomes(run_id, unit_index, status, artifact, error, elapsed_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID, outcome.UnitIndex, outcome.Status, outcome.Artifact, outcome.Error, outcome.ElapsedMS, outcome.CreatedAt)
	return err
}

// ListRunUnits retrieves up to limit outcomes for a run ordered by unit index.
func (s *Store) ListRunUnits(ctx context.Context, runID string, limit int) ([]UnitOutcome, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, unit_index, status, artifact, error, elapsed_ms, created_at
		 FROM unit_outcomes WHERE run_id = ? ORDER BY unit_index ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []UnitOutcome
	for rows.Next() {
		var o UnitOutcome
		var created string
		if err := rows.Scan(&o.ID, &o.RunID, &o.UnitIndex, &o.Status, &o.Artifact, &o.Error, &o.ElapsedMS, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			o.CreatedAt = ts
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM unit_outcomes WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
