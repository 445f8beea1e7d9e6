package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/record-overlap/internal/analysis"
	"github.com/record-overlap/internal/debug"
	"github.com/record-overlap/internal/log"
)

// Schema creates the run history tables.
const Schema = `
CREATE TABLE IF NOT EXISTS overlap_run (
	run_id       TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	backend      TEXT NOT NULL,
	source_a     TEXT NOT NULL,
	source_b     TEXT NOT NULL,
	rows_a       BIGINT NOT NULL,
	rows_b       BIGINT NOT NULL,
	hash_report  JSONB
);

CREATE TABLE IF NOT EXISTS overlap_key_result (
	run_id              TEXT NOT NULL REFERENCES overlap_run(run_id) ON DELETE CASCADE,
	key_name            TEXT NOT NULL,
	fields              TEXT NOT NULL,
	status              TEXT NOT NULL,
	reason              TEXT,
	matches             BIGINT NOT NULL,
	a_only              BIGINT NOT NULL,
	b_only              BIGINT NOT NULL,
	a_total             BIGINT NOT NULL,
	b_total             BIGINT NOT NULL,
	match_rate_a        DOUBLE PRECISION NOT NULL,
	match_rate_b        DOUBLE PRECISION NOT NULL,
	jaccard             DOUBLE PRECISION NOT NULL,
	overlap_coefficient DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, key_name)
);

CREATE INDEX IF NOT EXISTS idx_overlap_key_result_key ON overlap_key_result(key_name);
`

// Tracker records finished runs so results can be compared over time
type Tracker struct {
	db     *sql.DB
	logger *log.Logger
}

// NewTracker creates a new run tracker
func NewTracker(db *sql.DB, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Discard()
	}
	return &Tracker{db: db, logger: logger}
}

// EnsureSchema creates the history tables if they do not exist
func (t *Tracker) EnsureSchema(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// RecordRun saves a run and all of its key results. Recording the same
// run twice replaces the earlier rows.
func (t *Tracker) RecordRun(ctx context.Context, r *analysis.Report) error {
	defer debug.Timing(t.logger, "recording run "+r.RunID)()

	if len(r.Sources) != 2 {
		return fmt.Errorf("run %s has %d sources, expected 2", r.RunID, len(r.Sources))
	}

	var hashJSON []byte
	if r.Hash != nil {
		var err error
		if hashJSON, err = json.Marshal(r.Hash); err != nil {
			return fmt.Errorf("failed to encode hash report: %w", err)
		}
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO overlap_run (
			run_id, started_at, finished_at, backend, source_a, source_b, rows_a, rows_b, hash_report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			backend = EXCLUDED.backend,
			source_a = EXCLUDED.source_a,
			source_b = EXCLUDED.source_b,
			rows_a = EXCLUDED.rows_a,
			rows_b = EXCLUDED.rows_b,
			hash_report = EXCLUDED.hash_report
	`, r.RunID, r.StartedAt, r.FinishedAt, r.Backend,
		r.Sources[0].Name, r.Sources[1].Name, r.Sources[0].Rows, r.Sources[1].Rows, nullJSON(hashJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM overlap_key_result WHERE run_id = $1`, r.RunID); err != nil {
		return fmt.Errorf("failed to clear key results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO overlap_key_result (
			run_id, key_name, fields, status, reason, matches, a_only, b_only, a_total, b_total,
			match_rate_a, match_rate_b, jaccard, overlap_coefficient
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, k := range r.Keys {
		fields, _ := json.Marshal(k.Fields)
		_, err := stmt.ExecContext(ctx, r.RunID, k.Name, string(fields), string(k.Status), k.Reason,
			k.Matches, k.AOnly, k.BOnly, k.ATotal, k.BTotal,
			k.MatchRateA, k.MatchRateB, k.Jaccard, k.OverlapCoefficient)
		if err != nil {
			return fmt.Errorf("failed to insert key %s: %w", k.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.logger.Info("Recorded run", log.String("run_id", r.RunID), log.Int("keys", len(r.Keys)))
	return nil
}

// RunSummary is one row of the run history
type RunSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Backend        string    `json:"backend"`
	SourceA        string    `json:"source_a"`
	SourceB        string    `json:"source_b"`
	RowsA          int64     `json:"rows_a"`
	RowsB          int64     `json:"rows_b"`
	ComputedKeys   int64     `json:"computed_keys"`
	ValidationRate *float64  `json:"validation_rate,omitempty"`
}

// ListRuns returns the most recent runs, newest first
func (t *Tracker) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT
			r.run_id, r.started_at, r.finished_at, r.backend,
			r.source_a, r.source_b, r.rows_a, r.rows_b,
			COUNT(k.key_name) FILTER (WHERE k.status = 'computed'),
			(r.hash_report->>'validation_rate')::DOUBLE PRECISION
		FROM overlap_run r
		LEFT JOIN overlap_key_result k ON k.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var rate sql.NullFloat64
		if err := rows.Scan(&s.RunID, &s.StartedAt, &s.FinishedAt, &s.Backend,
			&s.SourceA, &s.SourceB, &s.RowsA, &s.RowsB, &s.ComputedKeys, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if rate.Valid {
			s.ValidationRate = &rate.Float64
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// KeyHistoryEntry is one key's headline numbers in one run
type KeyHistoryEntry struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Status     string    `json:"status"`
	Matches    int64     `json:"matches"`
	MatchRateA float64   `json:"match_rate_a"`
	MatchRateB float64   `json:"match_rate_b"`
	Jaccard    float64   `json:"jaccard"`
}

// KeyHistory returns the results of one key across runs, newest first
func (t *Tracker) KeyHistory(ctx context.Context, key string, limit int) ([]KeyHistoryEntry, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at, k.status, k.matches, k.match_rate_a, k.match_rate_b, k.jaccard
		FROM overlap_key_result k
		JOIN overlap_run r ON r.run_id = k.run_id
		WHERE k.key_name = $1
		ORDER BY r.started_at DESC
		LIMIT $2
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query key history: %w", err)
	}
	defer rows.Close()

	var history []KeyHistoryEntry
	for rows.Next() {
		var e KeyHistoryEntry
		if err := rows.Scan(&e.RunID, &e.StartedAt, &e.Status, &e.Matches, &e.MatchRateA, &e.MatchRateB, &e.Jaccard); err != nil {
			return nil, fmt.Errorf("failed to scan key history: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
