package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/muchacho/personal-manager/internal/schema"
)

const (
	// DefaultCacheFileName is the fallback cache file inside the data directory.
	DefaultCacheFileName = "cache.db"

	// AppDataKey holds a whole snapshot written by the fallback path.
	AppDataKey = "appData"

	// LegacyRetiredKey marks legacy records as already migrated.
	LegacyRetiredKey = "legacyRetired"
)

// LegacyKeys are the per-collection keys written by builds that predate the
// single document. Each holds a JSON array, except "theme" which holds a string.
var LegacyKeys = []string{"todos", "passwords", "videos", "books", "notes", "theme"}

// Cache is a sqlite-backed key-value store. It serves as the fallback store
// (AppDataKey) and holds legacy per-collection records.
//
// The database runs in WAL mode so a second window can read while one writes.
type Cache struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
	now    func() time.Time
}

// OpenCache opens or creates the cache database at path and initializes its
// schema. The caller MUST call Close() when done.
func OpenCache(path string, logger *log.Logger) (*Cache, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, unavailable("failed to create cache directory", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, unavailable("failed to open cache", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, unavailable("failed to ping cache", err)
	}

	c := &Cache{conn: conn, path: path, logger: logger, now: time.Now}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := c.initSchema(context.Background()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	if _, err := c.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close checkpoints the WAL and closes the connection.
func (c *Cache) Close() error {
	if c.conn == nil {
		return nil
	}
	if _, err := c.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		c.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	c.conn = nil
	return nil
}

// Get returns the value under key. ok is false when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = c.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("failed to read key %s", err, key)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	const query = `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := c.conn.ExecContext(ctx, query, key, value, c.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return unavailable("failed to write key %s", err, key)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if _, err := c.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return unavailable("failed to delete key %s", err, key)
	}
	return nil
}

// UpdatedAt returns when key was last written.
func (c *Cache) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var raw string
	err := c.conn.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, unavailable("failed to read timestamp of %s", err, key)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q for key %s: %w", raw, key, err)
	}
	return t, nil
}

// Keys returns all stored keys in lexical order.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.conn.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, unavailable("failed to list keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Load implements Store over AppDataKey.
func (c *Cache) Load(ctx context.Context) (*schema.Snapshot, error) {
	raw, ok, err := c.Get(ctx, AppDataKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	snap, err := schema.Decode([]byte(raw))
	if err != nil {
		// The row is left in place; nothing overwrites it until a successful save.
		return nil, &MalformedError{Location: c.path + "#" + AppDataKey, Err: err}
	}
	return snap, nil
}

// Save implements Store over AppDataKey.
func (c *Cache) Save(ctx context.Context, snap *schema.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return c.Set(ctx, AppDataKey, string(data))
}

// LastWritten implements Timestamped for AppDataKey.
func (c *Cache) LastWritten(ctx context.Context) (time.Time, error) {
	return c.UpdatedAt(ctx, AppDataKey)
}

// RetireLegacy records that the legacy keys were migrated.
func (c *Cache) RetireLegacy(ctx context.Context) error {
	return c.Set(ctx, LegacyRetiredKey, c.now().UTC().Format(time.RFC3339Nano))
}

// LegacyRetired reports whether RetireLegacy was called.
func (c *Cache) LegacyRetired(ctx context.Context) (bool, error) {
	_, ok, err := c.Get(ctx, LegacyRetiredKey)
	return ok, err
}

// LegacyRecords returns the raw values of every legacy key that is present.
func (c *Cache) LegacyRecords(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, key := range LegacyKeys {
		v, ok, err := c.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = v
		}
	}
	return out, nil
}
