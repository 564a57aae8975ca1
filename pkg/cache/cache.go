// Package cache owns everything a single store leaves to its caller:
// the cache directory with its manifest, the data file shared by every
// store, one index file per store, and the lifecycle of all of them.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flatcache/flatcache/pkg/filestore"
	"github.com/flatcache/flatcache/pkg/stats"
)

var ErrCacheClosed = errors.New("cache is closed")

// Cache is an open cache directory. Stores are opened lazily and share
// the one data file, one write lock and one stats collector, so writes
// through any store stay serialized and Stats covers the cache as a
// whole.
type Cache struct {
	dir string
	cfg *Config
	log zerolog.Logger

	mu        sync.Mutex
	fileMu    sync.RWMutex
	data      *os.File
	idxFiles  map[int]*os.File
	stores    map[int]*filestore.Store
	collector *stats.AtomicCollector
	closed    bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger routes the cache's diagnostic events to the given logger.
// Stores opened through the cache inherit it.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithConfig supplies the configuration for a cache directory that has
// no manifest yet. An existing manifest always wins over it.
func WithConfig(cfg *Config) Option {
	return func(c *Cache) { c.cfg = cfg }
}

// Open opens the cache in dir, creating the directory, the manifest and
// the data file on first use.
func Open(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{
		dir:       dir,
		log:       zerolog.Nop(),
		idxFiles:  make(map[int]*os.File),
		stores:    make(map[int]*filestore.Store),
		collector: stats.NewCollector(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cfg, err := LoadConfigFromManifest(dir)
	switch {
	case err == nil:
		c.cfg = cfg
	case errors.Is(err, ErrManifestNotFound):
		if c.cfg == nil {
			c.cfg = NewDefaultConfig()
		}
		if err := c.cfg.SaveManifest(dir); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	dataPath := filepath.Join(dir, c.cfg.DataFileName())
	data, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	c.data = data

	c.log.Debug().Str("dir", dir).Msg("cache opened")
	return c, nil
}

// Store returns the store with the given index, opening or creating its
// index file on first use. The same value is returned for repeated
// calls with the same index.
func (c *Cache) Store(index int) (*filestore.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}
	if st, ok := c.stores[index]; ok {
		return st, nil
	}

	path := filepath.Join(c.dir, c.cfg.IndexFileName(index))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	st, err := filestore.New(index,
		filestore.NewFileBackend(c.data),
		filestore.NewFileBackend(f),
		c.cfg.MaxFileSize,
		filestore.WithLogger(c.log),
		filestore.WithCollector(c.collector),
		filestore.WithLock(&c.fileMu),
	)
	if err != nil {
		f.Close()
		return nil, err
	}

	c.idxFiles[index] = f
	c.stores[index] = st
	c.log.Debug().Int("store", index).Msg("store opened")
	return st, nil
}

// Stores lists the indexes whose index files exist on disk, opened or
// not, in ascending order.
func (c *Cache) Stores() ([]int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	prefix := c.cfg.FilePrefix + ".idx"
	var out []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix))
		if err != nil || n < 0 || n > 255 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// Config returns the cache's configuration.
func (c *Cache) Config() *Config {
	return c.cfg
}

// Path returns the cache directory.
func (c *Cache) Path() string {
	return c.dir
}

// Stats returns a snapshot of the statistics collected across every
// store opened through this cache.
func (c *Cache) Stats() map[string]interface{} {
	return c.collector.GetStats()
}

// Close closes the data file and every index file opened through Store.
// The cache and its stores must not be used afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for index, f := range c.idxFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index file %d: %w", index, err)
		}
	}
	c.idxFiles = nil
	c.stores = nil

	if err := c.data.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close data file: %w", err)
	}

	c.log.Debug().Str("dir", c.dir).Msg("cache closed")
	return firstErr
}
