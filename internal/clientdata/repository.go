// Package clientdata provides persistent caching for external API client responses.
// Payloads are stored msgpack-encoded with expiration timestamps for cache-first behavior.
package clientdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Repository provides cache operations on the client_cache table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store saves a value with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert.
func (r *Repository) Store(key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO client_cache (cache_key, payload, created_at, expires_at) VALUES (?, ?, ?, ?)",
		key, payload, now.Format(time.RFC3339), now.Add(ttl).Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}

	return nil
}

// GetIfFresh decodes the value into dest only if the entry has not expired.
// Returns false when the key is missing or stale. Use Get() to retrieve stale
// data as a fallback when upstream calls fail.
func (r *Repository) GetIfFresh(key string, dest interface{}) (bool, error) {
	return r.get(key, dest, true)
}

// Get decodes the value into dest regardless of expiration status.
// Stale data is better than no data when the upstream is down.
func (r *Repository) Get(key string, dest interface{}) (bool, error) {
	return r.get(key, dest, false)
}

func (r *Repository) get(key string, dest interface{}, freshOnly bool) (bool, error) {
	query := "SELECT payload FROM client_cache WHERE cache_key = ?"
	args := []interface{}{key}
	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, time.Now().UTC().Format(time.RFC3339))
	}

	var payload []byte
	err := r.db.QueryRow(query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache payload %s: %w", key, err)
	}

	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM client_cache WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all rows past their expiration.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM client_cache WHERE expires_at < ?",
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
