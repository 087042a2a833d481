// Package buildcache stores serialized classes on disk, keyed by a digest
// of the recipe contents and everything else that affects the output.
package buildcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when Entry format changes
const schemaVersion uint16 = 1

// Digest is a SHA-256 cache key.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Key hashes a recipe's bytes together with the build fingerprint.
// Parts are length-prefixed so that ("ab","c") and ("a","bc") differ.
func Key(recipe []byte, fingerprint ...string) Digest {
	h := sha256.New()
	write := func(b []byte) {
		var n [8]byte
		for i := range n {
			n[i] = byte(uint64(len(b)) >> (8 * i))
		}
		_, _ = h.Write(n[:])
		_, _ = h.Write(b)
	}
	write(recipe)
	for _, part := range fingerprint {
		write([]byte(part))
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Entry is what one recipe produced.
type Entry struct {
	Schema  uint16        `msgpack:"schema"`
	Recipe  string        `msgpack:"recipe"`
	Classes []CachedClass `msgpack:"classes"`
	Created time.Time     `msgpack:"created"`
}

// CachedClass is one serialized class.
type CachedClass struct {
	Name     string `msgpack:"name"`
	Data     []byte `msgpack:"data"`
	Rendered string `msgpack:"rendered,omitempty"`
}

// Cache is a directory of msgpack entries. A nil *Cache is valid and
// never hits. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open uses dir as the cache root, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenUser opens the per-user cache for app under XDG_CACHE_HOME (or
// ~/.cache).
func OpenUser(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, app))
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Digest) string {
	hexKey := key.String()
	// two-level fan-out keeps directories small
	return filepath.Join(c.dir, "classes", hexKey[:2], hexKey+".mp")
}

// Put writes an entry atomically.
func (c *Cache) Put(key Digest, entry *Entry) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	stored := *entry
	stored.Schema = schemaVersion
	if stored.Created.IsZero() {
		stored.Created = time.Now().UTC()
	}
	if err = msgpack.NewEncoder(f).Encode(&stored); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the entry for key. Missing entries and entries written by
// another schema are misses, not errors.
func (c *Cache) Get(key Digest) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	var entry Entry
	if err := msgpack.NewDecoder(f).Decode(&entry); err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if entry.Schema != schemaVersion {
		return nil, false, nil
	}
	return &entry, true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
