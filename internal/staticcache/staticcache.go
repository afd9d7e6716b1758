// Package staticcache implements a read-through, path-keyed cache of
// static file bytes, optional at configuration (spec.md §6 DO_CACHING).
// Grounded on _examples/original_source/server/src/file_utils.rs, with
// the mutex-protected map design notes §9 asks for instead of a process
// global.
package staticcache

import (
	"os"
	"path/filepath"
	"sync"
)

// Cache is a mutex-protected, path-keyed map of file bytes. A cache miss
// performs the disk read under the lock; entries never expire within a
// process lifetime, per spec.md §5.
type Cache struct {
	root    string
	enabled bool

	mu      sync.Mutex
	entries map[string][]byte
}

// New builds a Cache rooted at root. When enabled is false, Get always
// reads through to disk without populating entries.
func New(root string, enabled bool) *Cache {
	return &Cache{
		root:    root,
		enabled: enabled,
		entries: make(map[string][]byte),
	}
}

// Get returns the bytes of the file at name (relative to root), serving
// from cache when enabled.
func (c *Cache) Get(name string) ([]byte, error) {
	path := filepath.Join(c.root, filepath.Clean("/"+name))

	if !c.enabled {
		return os.ReadFile(path)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.entries[path]; ok {
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = data
	return data, nil
}
