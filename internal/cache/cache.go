// Package cache implements the content-addressed on-disk store that holds
// raw tracker responses between runs.
//
// Every key is hashed with SHA-256 and the hex digest is split into a
// two-level shard: <root>/<h[0:2]>/<h[2:4]>/<h[4:]>. With 256*256 leaf
// directories even a corpus of a few hundred thousand issues keeps each
// directory in the low tens of entries.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

// DiscoveredIDsKey is the key under which the discovered ID list is stored.
const DiscoveredIDsKey = "buglist"

const lockFileName = ".lock"

var (
	// ErrNotFound is returned by Get when no entry exists for the key.
	ErrNotFound = errors.New("cache entry not found")

	// ErrCorrupt is returned by Get when an entry exists but cannot be decoded.
	ErrCorrupt = errors.New("cache entry corrupt")

	// ErrLocked is returned by Lock when another process holds the cache.
	ErrLocked = errors.New("cache is locked by another process")
)

// Cache is a directory of JSON blobs addressed by key hash.
// It is safe for concurrent use by multiple goroutines and processes.
type Cache struct {
	dir string
}

// New returns a cache rooted at dir, creating the directory if needed.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache directory not configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}
	if err := mkdirAll(abs); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{dir: abs}, nil
}

// Dir returns the absolute cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file that holds key. It is a pure function of the
// cache root and key.
func (c *Cache) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, h[:2], h[2:4], h[4:])
}

// Put serializes value and stores it under key, replacing any previous
// entry. The write goes through a temp file and rename, so readers see
// either the old entry or the new one.
func (c *Cache) Put(key string, value interface{}) error {
	if key == "" {
		return errors.New("cache put: empty key")
	}
	if value == nil {
		return fmt.Errorf("cache put %q: nil value", key)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache put %q: encode: %w", key, err)
	}

	path := c.Path(key)
	// Other workers may be creating the same shard directory right now.
	if err := mkdirAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("cache put %q: %w", key, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("cache put %q: write: %w", key, err)
	}
	return nil
}

// Get decodes the entry stored under key into out.
func (c *Cache) Get(key string, out interface{}) error {
	if key == "" {
		return errors.New("cache get: empty key")
	}
	data, err := os.ReadFile(c.Path(key)) // #nosec G304 - path derived from key hash
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cache get %q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("cache get %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cache get %q: %w: %v", key, ErrCorrupt, err)
	}
	return nil
}

// Exists reports whether an entry is stored under key. The entry is not
// decoded.
func (c *Cache) Exists(key string) bool {
	if key == "" {
		return false
	}
	info, err := os.Stat(c.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Lock takes an exclusive advisory lock on the cache root so two crawls
// cannot write the same cache. The returned function releases it.
func (c *Cache) Lock() (func() error, error) {
	lock := flock.New(filepath.Join(c.dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock cache %s: %w", c.dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, c.dir)
	}
	return lock.Unlock, nil
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}
