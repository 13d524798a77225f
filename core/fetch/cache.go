package fetch

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/claudehenchoz/gensi/core/urlutil"
)

// DefaultTTL is how long articles and images stay fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Cache is a TTL-scoped response store backed by SQLite. Entries are keyed
// by normalized URL and content class and survive across runs in the
// platform cache directory. Safe for concurrent use.
type Cache struct {
	db   *sql.DB
	ttl  time.Duration
	path string
}

// CacheStats summarizes cache contents for the stats subcommand.
type CacheStats struct {
	Entries   int64
	SizeBytes int64
	Path      string
}

// DefaultCachePath returns the cache database path inside the platform
// cache directory.
func DefaultCachePath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache directory: %w", err)
	}
	return filepath.Join(base, "gensi", "http_cache.db"), nil
}

// OpenCache opens (creating if necessary) the cache database at path.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS responses (
		key        TEXT PRIMARY KEY,
		url        TEXT NOT NULL,
		final_url  TEXT NOT NULL,
		content    BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	return &Cache{db: db, ttl: ttl, path: path}, nil
}

// cacheKey hashes the normalized URL so keys have a consistent length and no
// unsafe characters. The content class suffix keeps text and binary entries
// for the same URL apart.
func cacheKey(rawURL string, binary bool) string {
	sum := sha256.Sum256([]byte(urlutil.Normalize(rawURL)))
	class := "text"
	if binary {
		class = "binary"
	}
	return hex.EncodeToString(sum[:]) + "_" + class
}

// get returns the cached entry for a URL, or (nil, false) on miss or expiry.
func (c *Cache) get(rawURL string, binary bool) ([]byte, string, bool) {
	var content []byte
	var finalURL string
	var fetchedAt int64

	row := c.db.QueryRow(
		`SELECT content, final_url, fetched_at FROM responses WHERE key = ?`,
		cacheKey(rawURL, binary),
	)
	if err := row.Scan(&content, &finalURL, &fetchedAt); err != nil {
		return nil, "", false
	}

	if time.Since(time.Unix(fetchedAt, 0)) > c.ttl {
		return nil, "", false
	}
	return content, finalURL, true
}

// put stores a response. Cache write failures are non-fatal to the fetch.
func (c *Cache) put(rawURL string, content []byte, finalURL string, binary bool) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO responses (key, url, final_url, content, fetched_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cacheKey(rawURL, binary), rawURL, finalURL, content, time.Now().Unix(),
	)
	return err
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM responses`)
	return err
}

// Stats reports entry count and total content size.
func (c *Cache) Stats() (CacheStats, error) {
	stats := CacheStats{Path: c.path}
	row := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM responses`)
	if err := row.Scan(&stats.Entries, &stats.SizeBytes); err != nil {
		return stats, fmt.Errorf("reading cache stats: %w", err)
	}
	return stats, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
