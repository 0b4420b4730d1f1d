// Package history persists engine run results to a local SQLite
// database so past cleanups can be reviewed and audited.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ebuckley/mailgroom/internal/engine"
)

// Store keeps a durable log of rule executions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL keeps reads cheap while a run is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	dry_run    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	rule_id      TEXT NOT NULL,
	rule_name    TEXT NOT NULL,
	query        TEXT NOT NULL DEFAULT '',
	matched      INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	errors_json  TEXT NOT NULL DEFAULT '[]',
	started_at   TEXT NOT NULL DEFAULT '',
	finished_at  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, rule_id)
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Run is one recorded engine run.
type Run struct {
	ID        string
	StartedAt time.Time
	DryRun    bool
}

// RuleResult is one persisted per-rule outcome.
type RuleResult struct {
	RunID      string
	RuleID     string
	RuleName   string
	Query      string
	Matched    int
	Processed  int
	Succeeded  int
	Failed     int
	Errors     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SaveRun persists all results of one engine run under a fresh run id
// and returns that id.
func (s *Store) SaveRun(ctx context.Context, dryRun bool, results []engine.Result) (string, error) {
	runID := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	startedAt := time.Now()
	if len(results) > 0 && !results[0].Stats.StartTime.IsZero() {
		startedAt = results[0].Stats.StartTime
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, dry_run) VALUES (?, ?, ?)",
		runID, startedAt.UTC().Format(time.RFC3339), boolToInt(dryRun),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_results
			(run_id, rule_id, rule_name, query, matched, processed, succeeded, failed, errors_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, res := range results {
		errsJSON, err := json.Marshal(errorStrings(res))
		if err != nil {
			return "", fmt.Errorf("encode errors: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, res.Rule.ID, res.Rule.Name, res.Query,
			res.Stats.TotalMessages, res.Outcome.Processed,
			res.Outcome.Succeeded, res.Outcome.Failed, string(errsJSON),
			res.Stats.StartTime.UTC().Format(time.RFC3339),
			res.Stats.EndTime.UTC().Format(time.RFC3339),
		); err != nil {
			return "", fmt.Errorf("insert result for rule %s: %w", res.Rule.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, dry_run FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started string
			dry     int
		)
		if err := rows.Scan(&r.ID, &started, &dry); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.DryRun = dry != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunResults returns the per-rule results of one run.
func (s *Store) RunResults(ctx context.Context, runID string) ([]RuleResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, rule_id, rule_name, query, matched, processed, succeeded, failed, errors_json, started_at, finished_at
		FROM run_results WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleResult
	for rows.Next() {
		var (
			r                 RuleResult
			errsJSON          string
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &r.RuleID, &r.RuleName, &r.Query,
			&r.Matched, &r.Processed, &r.Succeeded, &r.Failed,
			&errsJSON, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
			return nil, fmt.Errorf("decode errors for rule %s: %w", r.RuleID, err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

func errorStrings(res engine.Result) []string {
	errs := append([]string(nil), res.Outcome.Errors...)
	if errs == nil {
		errs = []string{}
	}
	return errs
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
