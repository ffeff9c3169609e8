// Package cache stores compiled module images in SQLite, keyed by a
// hash of the source text and the compiler version.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tliron/commonlog"

	"github.com/arx-lang/arx/arxmod"
)

// ErrMiss indicates no usable cached module for the key.
var ErrMiss = errors.New("cache: miss")

// Cache is one open cache database.
type Cache struct {
	db  *sql.DB
	mu  sync.Mutex
	log commonlog.Logger
}

// Key derives the cache key for a compilation: SHA-256 over the
// compiler version and the source text.
func Key(source, compilerVersion string) string {
	h := sha256.New()
	h.Write([]byte(compilerVersion))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Open opens or creates a cache database, creating parent directories
// as needed.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		source_hash TEXT PRIMARY KEY,
		app_name TEXT NOT NULL,
		module BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, log: commonlog.GetLogger("arx.cache")}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached module image for key. A row whose image no
// longer decodes is treated as a miss.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT module FROM modules WHERE source_hash = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("querying cache: %w", err)
	}

	if _, err := arxmod.ReadModule(data); err != nil {
		c.log.Errorf("dropping corrupt cache row %s: %v", key, err)
		return nil, ErrMiss
	}

	c.log.Debugf("cache hit %s (%d bytes)", key, len(data))
	return data, nil
}

// Put stores a module image under key, replacing any previous entry.
func (c *Cache) Put(key, appName string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO modules (source_hash, app_name, module, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		key, appName, data,
	)
	if err != nil {
		return fmt.Errorf("storing module: %w", err)
	}
	c.log.Debugf("cached %s as %s (%d bytes)", appName, key, len(data))
	return nil
}

// Delete removes one entry. Deleting an absent key is not an error.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("DELETE FROM modules WHERE source_hash = ?", key); err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return nil
}

// Count returns the number of cached modules.
func (c *Cache) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM modules").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}
