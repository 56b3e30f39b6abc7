package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RunSummary describes one batch ingest run.
type RunSummary struct {
	ID              string         `json:"id"`
	StartedAt       int64          `json:"startedAt"`
	FinishedAt      int64          `json:"finishedAt,omitempty"`
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	BudgetExhausted bool           `json:"budgetExhausted"`
	ErrorCounts     map[string]int `json:"errorCounts"`
}

// RunRepository stores batch run summaries and the resumable ingest cursor.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun records the beginning of a batch run.
func (r *RunRepository) StartRun(id string, total int) error {
	_, err := r.db.Exec(`
		INSERT INTO runs (id, started_at, total) VALUES (?, ?, ?)`,
		id, time.Now().Unix(), total)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", id, err)
	}
	return nil
}

// FinishRun records the outcome of a batch run.
func (r *RunRepository) FinishRun(summary RunSummary) error {
	counts, err := json.Marshal(summary.ErrorCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal error counts: %w", err)
	}
	budget := 0
	if summary.BudgetExhausted {
		budget = 1
	}
	_, err = r.db.Exec(`
		UPDATE runs SET finished_at = ?, total = ?, succeeded = ?, failed = ?, budget_exhausted = ?, error_counts = ?
		WHERE id = ?`,
		time.Now().Unix(), summary.Total, summary.Succeeded, summary.Failed,
		budget, string(counts), summary.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", summary.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, started_at, COALESCE(finished_at, 0), total, succeeded, failed, budget_exhausted, error_counts
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var budget int
		var counts string
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.FinishedAt, &s.Total,
			&s.Succeeded, &s.Failed, &budget, &counts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.BudgetExhausted = budget != 0
		if err := json.Unmarshal([]byte(counts), &s.ErrorCounts); err != nil {
			s.ErrorCounts = map[string]int{}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cursor returns the saved batch position, or 0 when no cursor exists.
func (r *RunRepository) Cursor() (int, error) {
	var pos int
	err := r.db.QueryRow(`SELECT position FROM ingest_cursor WHERE id = 1`).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load ingest cursor: %w", err)
	}
	return pos, nil
}

// SaveCursor persists the batch position so an interrupted run can resume.
func (r *RunRepository) SaveCursor(position int, runID string) error {
	_, err := r.db.Exec(`
		INSERT INTO ingest_cursor (id, position, run_id, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at`,
		position, runID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save ingest cursor: %w", err)
	}
	return nil
}

// ClearCursor resets the batch position after a completed run.
func (r *RunRepository) ClearCursor() error {
	if _, err := r.db.Exec(`DELETE FROM ingest_cursor WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear ingest cursor: %w", err)
	}
	return nil
}
