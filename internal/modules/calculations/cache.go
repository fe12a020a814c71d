// Package calculations caches expensive calculation results in SQLite so
// repeated requests with identical inputs skip re-estimation.
package calculations

import (
	"database/sql"
	"fmt"
	"time"
)

// Cache TTLs by category.
const (
	// TTLRiskModel is how long a fitted risk model stays valid. Daily
	// returns only change once per day.
	TTLRiskModel = 24 * time.Hour
)

// Cache is a category/key blob store with per-entry expiry.
type Cache struct {
	db *sql.DB
}

// NewCache wraps an open database.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get returns the cached value for (category, key) if present and not
// expired.
func (c *Cache) Get(category, key string) ([]byte, bool) {
	var value []byte
	err := c.db.QueryRow(
		`SELECT value FROM calc_cache WHERE category = ? AND key = ? AND expires_at > ?`,
		category, key, time.Now().Unix(),
	).Scan(&value)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a value under (category, key), replacing any previous entry.
func (c *Cache) Set(category, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.Exec(
		`INSERT INTO calc_cache (category, key, value, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (category, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		category, key, value, time.Now().Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("caching %s/%s: %w", category, key, err)
	}
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(category, key string) error {
	_, err := c.db.Exec(`DELETE FROM calc_cache WHERE category = ? AND key = ?`, category, key)
	return err
}

// PurgeExpired removes all expired entries and returns how many were
// deleted.
func (c *Cache) PurgeExpired() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM calc_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
