package places

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gt_housing/models"
)

// Cache is a local read-through cache of lookup responses, keyed by the
// normalized query string. Entries expire so stale place data does not
// outlive the provider's.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

func NewCache(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	cache := &Cache{db: db, ttl: ttl}
	if err := cache.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS place_lookups (
		query TEXT PRIMARY KEY,
		response JSON NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	_, err := c.db.Exec(schema)
	return err
}

func (c *Cache) Get(query string) ([]models.PlaceResult, bool) {
	if c == nil {
		return nil, false
	}

	var payload string
	var updatedAt time.Time
	err := c.db.QueryRow(
		`SELECT response, updated_at FROM place_lookups WHERE query = ?`,
		normalizeQuery(query),
	).Scan(&payload, &updatedAt)
	if err != nil {
		return nil, false
	}
	if c.ttl > 0 && time.Since(updatedAt) > c.ttl {
		return nil, false
	}

	var results []models.PlaceResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, false
	}
	return results, true
}

func (c *Cache) Set(query string, results []models.PlaceResult) error {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return err
	}

	_, err = c.db.Exec(`
		INSERT INTO place_lookups (query, response, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (query) DO UPDATE SET
			response = excluded.response,
			updated_at = excluded.updated_at`,
		normalizeQuery(query), string(payload), time.Now().UTC(),
	)
	return err
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
