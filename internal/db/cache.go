package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"
)

const (
	// DefaultLRUSize bounds the in-memory tier when no size is configured.
	DefaultLRUSize = 4096
	// SQLite caps bound parameters per statement; lookups are chunked below it.
	queryChunkSize = 500
)

// CacheEntry is a persisted perceptual hash together with the file state it
// was computed from.
type CacheEntry struct {
	AbsolutePath string    `json:"absolute_path"`
	Hash         string    `json:"hash"`
	FileSize     int64     `json:"file_size"`
	DateModified time.Time `json:"date_modified"`
	HashType     string    `json:"hash_type"`
	DateComputed time.Time `json:"date_computed"`
}

// IsValid reports whether the entry still describes a file of the given size,
// modification time and hash type. Times are compared at millisecond precision.
func (e CacheEntry) IsValid(size int64, modified time.Time, hashType string) bool {
	return e.Hash != "" &&
		e.FileSize == size &&
		e.DateModified.UnixMilli() == modified.UnixMilli() &&
		e.HashType == hashType
}

// Cache stores visual hashes in SQLite with an LRU tier in front of it.
type Cache struct {
	db    *sql.DB
	mem   *lru.Cache[string, CacheEntry]
	Debug bool
}

// DefaultPath places the cache database in the user config directory.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	return filepath.Join(configDir, "photo-library-finder-cache.db")
}

// NewCache opens (or creates) the cache database at path.
func NewCache(path string, lruSize int) (*Cache, error) {
	if path == "" {
		path = DefaultPath()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c, err := NewCacheWithDB(db, lruSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewCacheWithDB wraps an existing connection and ensures the schema exists.
func NewCacheWithDB(db *sql.DB, lruSize int) (*Cache, error) {
	if lruSize <= 0 {
		lruSize = DefaultLRUSize
	}
	mem, err := lru.New[string, CacheEntry](lruSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS visual_hashes (
			absolute_path TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			date_modified INTEGER NOT NULL,
			hash_type TEXT NOT NULL,
			date_computed INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ignored_groups (
			group_hash TEXT PRIMARY KEY,
			date_added INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &Cache{db: db, mem: mem}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// FetchCachedHashes returns the stored entries for the given paths. Paths
// with no entry are absent from the result; validity is left to the caller.
func (c *Cache) FetchCachedHashes(ctx context.Context, paths []string) ([]CacheEntry, error) {
	var entries []CacheEntry
	var misses []string

	for _, p := range paths {
		if e, ok := c.mem.Get(p); ok {
			entries = append(entries, e)
			continue
		}
		misses = append(misses, p)
	}

	for start := 0; start < len(misses); start += queryChunkSize {
		end := min(start+queryChunkSize, len(misses))
		found, err := c.fetchChunk(ctx, misses[start:end])
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			c.mem.Add(e.AbsolutePath, e)
		}
		entries = append(entries, found...)
	}

	if c.Debug {
		log.Printf("[CACHE] Fetched %d of %d hashes", len(entries), len(paths))
	}
	return entries, nil
}

func (c *Cache) fetchChunk(ctx context.Context, paths []string) ([]CacheEntry, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	query := fmt.Sprintf(`SELECT absolute_path, hash, file_size, date_modified, hash_type, date_computed
		FROM visual_hashes WHERE absolute_path IN (%s)`, placeholders)

	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashes: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var modified, computed int64
		if err := rows.Scan(&e.AbsolutePath, &e.Hash, &e.FileSize, &modified, &e.HashType, &computed); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		e.DateModified = time.UnixMilli(modified)
		e.DateComputed = time.UnixMilli(computed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveCachedHashes upserts entries keyed by absolute path in one transaction.
func (c *Cache) SaveCachedHashes(ctx context.Context, entries []CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO visual_hashes
		(absolute_path, hash, file_size, date_modified, hash_type, date_computed)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.DateComputed.IsZero() {
			e.DateComputed = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.AbsolutePath, e.Hash, e.FileSize,
			e.DateModified.UnixMilli(), e.HashType, e.DateComputed.UnixMilli()); err != nil {
			return fmt.Errorf("failed to save hash for %s: %w", e.AbsolutePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit hashes: %w", err)
	}

	for _, e := range entries {
		c.mem.Add(e.AbsolutePath, e)
	}

	if c.Debug {
		log.Printf("[CACHE] Saved %d hashes", len(entries))
	}
	return nil
}

// AddIgnoredGroup marks a similarity group as reviewed.
func (c *Cache) AddIgnoredGroup(groupHash string) error {
	_, err := c.db.Exec("INSERT OR REPLACE INTO ignored_groups (group_hash, date_added) VALUES (?, ?)",
		groupHash, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to ignore group: %w", err)
	}
	return nil
}

func (c *Cache) IsGroupIgnored(groupHash string) bool {
	var exists int
	err := c.db.QueryRow("SELECT 1 FROM ignored_groups WHERE group_hash = ?", groupHash).Scan(&exists)
	return err == nil
}

// ClearHashes drops every stored hash.
func (c *Cache) ClearHashes() error {
	if _, err := c.db.Exec("DELETE FROM visual_hashes"); err != nil {
		return fmt.Errorf("failed to clear hashes: %w", err)
	}
	c.mem.Purge()
	return nil
}
