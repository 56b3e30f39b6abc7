package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/macroscope/internal/domain"
)

// StoredCorrelation is one persisted correlation cell.
type StoredCorrelation struct {
	AssetKey      string   `json:"assetKey"`
	BaseKey       string   `json:"baseKey"`
	Window        string   `json:"window"`
	Correlation   *float64 `json:"correlation"`
	NObservations int      `json:"nObservations"`
	LastAssetDate string   `json:"lastAssetDate,omitempty"`
	LastBaseDate  string   `json:"lastBaseDate,omitempty"`
	ComputedAt    int64    `json:"computedAt"`
}

// CorrelationRepository stores computed correlation results.
type CorrelationRepository struct {
	db *sql.DB
}

// NewCorrelationRepository creates a new correlation repository.
func NewCorrelationRepository(db *sql.DB) *CorrelationRepository {
	return &CorrelationRepository{db: db}
}

// Save upserts one correlation cell. Null correlations are stored too - the
// observation count and dates explain why the cell is null.
func (r *CorrelationRepository) Save(assetKey, baseKey, window string, res domain.CorrelationResult) error {
	var corr interface{}
	if res.Correlation != nil {
		corr = *res.Correlation
	}
	_, err := r.db.Exec(`
		INSERT INTO correlations (asset_key, base_key, window, correlation, n_observations, last_asset_date, last_base_date, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_key, base_key, window) DO UPDATE SET
			correlation = excluded.correlation,
			n_observations = excluded.n_observations,
			last_asset_date = excluded.last_asset_date,
			last_base_date = excluded.last_base_date,
			computed_at = excluded.computed_at`,
		assetKey, baseKey, window, corr, res.NObservations,
		res.LastAssetDate, res.LastBaseDate, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save correlation %s/%s/%s: %w", assetKey, baseKey, window, err)
	}
	return nil
}

// List returns all stored correlation cells.
func (r *CorrelationRepository) List() ([]StoredCorrelation, error) {
	rows, err := r.db.Query(`
		SELECT asset_key, base_key, window, correlation, n_observations, last_asset_date, last_base_date, computed_at
		FROM correlations ORDER BY asset_key, base_key, window`)
	if err != nil {
		return nil, fmt.Errorf("failed to list correlations: %w", err)
	}
	defer rows.Close()

	var out []StoredCorrelation
	for rows.Next() {
		var c StoredCorrelation
		var corr sql.NullFloat64
		if err := rows.Scan(&c.AssetKey, &c.BaseKey, &c.Window, &corr,
			&c.NObservations, &c.LastAssetDate, &c.LastBaseDate, &c.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		if corr.Valid {
			c.Correlation = domain.Float(corr.Float64)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
