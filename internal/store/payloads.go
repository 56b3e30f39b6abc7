package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload tables, one per provider. Kept in its own cache database so the
// synchronous(OFF) profile never risks the main datastore.
var AllPayloadTables = []string{
	"fred_payloads",
	"dbnomics_payloads",
	"tradingecon_payloads",
}

// TTLs per provider. The aggregator republishes on upstream schedules, so a
// longer TTL is safe there; the commercial API revises intraday.
const (
	TTLFredPayload        = 24 * time.Hour
	TTLDBnomicsPayload    = 48 * time.Hour
	TTLTradingEconPayload = 12 * time.Hour
)

var validPayloadTables = func() map[string]bool {
	m := make(map[string]bool, len(AllPayloadTables))
	for _, t := range AllPayloadTables {
		m[t] = true
	}
	return m
}()

// PayloadRepository caches parsed provider responses as msgpack blobs with
// expiration timestamps, for cache-first behavior and post-mortem debugging.
type PayloadRepository struct {
	db *sql.DB
}

// NewPayloadRepository creates a new payload repository.
func NewPayloadRepository(db *sql.DB) *PayloadRepository {
	return &PayloadRepository{db: db}
}

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validPayloadTables[table] {
		return fmt.Errorf("invalid payload table: %s", table)
	}
	return nil
}

// Store saves data with expiration = now + ttl. Upserts by cache key.
func (r *PayloadRepository) Store(table, key string, data interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	expiresAt := time.Now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (cache_key, payload, expires_at) VALUES (?, ?, ?)", table)
	if _, err := r.db.Exec(query, key, blob, expiresAt); err != nil {
		return fmt.Errorf("failed to store payload in %s: %w", table, err)
	}
	return nil
}

// GetIfFresh decodes a payload into out only if it has not expired. Returns
// false when the key is missing or stale; use Get to accept stale data as a
// fallback when the provider is down.
func (r *PayloadRepository) GetIfFresh(table, key string, out interface{}) (bool, error) {
	return r.get(table, key, out, true)
}

// Get decodes a payload into out regardless of expiration. Stale data is
// better than no data when every provider call has failed.
func (r *PayloadRepository) Get(table, key string, out interface{}) (bool, error) {
	return r.get(table, key, out, false)
}

func (r *PayloadRepository) get(table, key string, out interface{}, freshOnly bool) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT payload FROM %s WHERE cache_key = ?", table)
	args := []interface{}{key}
	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, time.Now().Unix())
	}

	var blob []byte
	err := r.db.QueryRow(query, args...).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get payload from %s: %w", table, err)
	}
	if err := msgpack.Unmarshal(blob, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal payload from %s: %w", table, err)
	}
	return true, nil
}

// DeleteExpired removes all stale rows from one table.
func (r *PayloadRepository) DeleteExpired(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
	result, err := r.db.Exec(query, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}
	return result.RowsAffected()
}

// DeleteAllExpired removes stale rows from every payload table and returns
// per-table deletion counts.
func (r *PayloadRepository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)
	for _, table := range AllPayloadTables {
		deleted, err := r.DeleteExpired(table)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}
	return results, nil
}
