// Package store provides the SQLite repositories for resolved indicator
// series, correlation results, batch run summaries, and the raw provider
// payload cache.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/macroscope/internal/database"
	"github.com/aristath/macroscope/internal/domain"
)

// IndicatorState is the persisted resolution state of one indicator: which
// source last served it, or why every source failed.
type IndicatorState struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	Frequency  string `json:"frequency"`
	Unit       string `json:"unit"`
	SourceUsed string `json:"sourceUsed,omitempty"`
	ErrorType  string `json:"errorType,omitempty"`
	Error      string `json:"error,omitempty"`
	ResolvedAt int64  `json:"resolvedAt"`
}

// SeriesRepository stores indicator series and their resolution state.
type SeriesRepository struct {
	db *sql.DB
}

// NewSeriesRepository creates a new series repository.
func NewSeriesRepository(db *sql.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// SaveResolved persists a successful resolution: the indicator row and all
// observations, in one transaction. Observations upsert by (indicator, date),
// so re-ingesting revised data replaces the old values.
func (r *SeriesRepository) SaveResolved(key, sourceUsed string, s *domain.TimeSeries) error {
	now := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO indicators (key, name, frequency, unit, source_used, error_type, error, resolved_at, updated_at)
			VALUES (?, ?, ?, ?, ?, '', '', ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				name = excluded.name,
				frequency = excluded.frequency,
				unit = excluded.unit,
				source_used = excluded.source_used,
				error_type = '',
				error = '',
				resolved_at = excluded.resolved_at,
				updated_at = excluded.updated_at`,
			key, s.Name, string(s.Frequency), s.Unit, sourceUsed, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert indicator %s: %w", key, err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO observations (indicator_key, date, value)
			VALUES (?, ?, ?)
			ON CONFLICT(indicator_key, date) DO UPDATE SET value = excluded.value`)
		if err != nil {
			return fmt.Errorf("failed to prepare observation upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range s.Points {
			var v interface{}
			if p.Value != nil {
				v = *p.Value
			}
			if _, err := stmt.Exec(key, p.Date, v); err != nil {
				return fmt.Errorf("failed to upsert observation %s/%s: %w", key, p.Date, err)
			}
		}
		return nil
	})
}

// SaveFailed records a failed resolution without touching stored
// observations; previously ingested data stays queryable.
func (r *SeriesRepository) SaveFailed(ind domain.IndicatorSpec, errorType, errMsg string) error {
	now := time.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO indicators (key, name, frequency, unit, error_type, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			error_type = excluded.error_type,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		ind.Key, ind.Name, string(ind.Frequency), ind.Unit, errorType, errMsg, now)
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", ind.Key, err)
	}
	return nil
}

// GetSeries loads the full stored series for an indicator, ordered by date.
// Returns nil when the indicator has no stored observations.
func (r *SeriesRepository) GetSeries(key string) (*domain.TimeSeries, error) {
	var state IndicatorState
	err := r.db.QueryRow(`
		SELECT key, name, frequency, unit, source_used
		FROM indicators WHERE key = ?`, key).
		Scan(&state.Key, &state.Name, &state.Frequency, &state.Unit, &state.SourceUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load indicator %s: %w", key, err)
	}

	rows, err := r.db.Query(`
		SELECT date, value FROM observations
		WHERE indicator_key = ? ORDER BY date ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations for %s: %w", key, err)
	}
	defer rows.Close()

	s := &domain.TimeSeries{
		ID:         state.Key,
		Name:       state.Name,
		Frequency:  domain.Frequency(state.Frequency),
		Unit:       state.Unit,
		SourceName: state.SourceUsed,
	}
	for rows.Next() {
		var date string
		var value sql.NullFloat64
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("failed to scan observation for %s: %w", key, err)
		}
		p := domain.Point{Date: date}
		if value.Valid {
			p.Value = domain.Float(value.Float64)
		}
		s.Points = append(s.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate observations for %s: %w", key, err)
	}
	if len(s.Points) == 0 {
		return nil, nil
	}
	return s, nil
}

// ListIndicators returns the resolution state of all known indicators.
func (r *SeriesRepository) ListIndicators() ([]IndicatorState, error) {
	rows, err := r.db.Query(`
		SELECT key, name, frequency, unit, source_used, error_type, error, resolved_at
		FROM indicators ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indicators: %w", err)
	}
	defer rows.Close()

	var states []IndicatorState
	for rows.Next() {
		var s IndicatorState
		if err := rows.Scan(&s.Key, &s.Name, &s.Frequency, &s.Unit,
			&s.SourceUsed, &s.ErrorType, &s.Error, &s.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}
