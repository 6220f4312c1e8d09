package dune

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"morpho-risk-lab/internal/logger"
)

// FileCache is a file-based TTL cache for query results, keyed by query
// name and parameters. Expired or unreadable entries are misses, never
// errors: the worst outcome of a broken cache is a refetch.
type FileCache struct {
	dir string
	ttl time.Duration
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir, ttl: ttl}, nil
}

// path maps a cache key to its file, replacing separators that would
// escape the cache directory.
func (c *FileCache) path(key string) string {
	safe := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(key)
	return filepath.Join(c.dir, safe+".json")
}

// Get returns the cached rows and true on a valid hit.
func (c *FileCache) Get(key string) ([]Row, bool) {
	file := c.path(key)

	info, err := os.Stat(file)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.ttl {
		logger.Debug("cache expired: %s", key)
		return nil, false
	}

	data, err := os.ReadFile(file)
	if err != nil {
		logger.Warn("cache read failed for %s: %v", key, err)
		return nil, false
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		logger.Warn("cache decode failed for %s: %v", key, err)
		return nil, false
	}

	return rows, true
}

// Set writes rows for a key. Failures are logged and swallowed.
func (c *FileCache) Set(key string, rows []Row) {
	data, err := json.Marshal(rows)
	if err != nil {
		logger.Warn("cache encode failed for %s: %v", key, err)
		return
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		logger.Warn("cache write failed for %s: %v", key, err)
	}
}

// Clear removes one key, or every entry when key is empty.
func (c *FileCache) Clear(key string) error {
	if key != "" {
		err := os.Remove(c.path(key))
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	entries, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.Remove(entry); err != nil {
			return err
		}
	}
	return nil
}
