// Package filestore reads and writes logical files laid out as chains
// of fixed-size blocks across two companion files: a data file shared by
// every store, and one index file per store mapping file ids to chain
// heads. The on-disk format is fixed; files produced here are readable
// by any other implementation of the same layout and vice versa.
package filestore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flatcache/flatcache/pkg/filestore/block"
	"github.com/flatcache/flatcache/pkg/medium"
	"github.com/flatcache/flatcache/pkg/stats"
)

// Store is one numbered file store. It is safe for concurrent use, with
// reads running in parallel and writes exclusive. Stores over the same
// physical data file must share one lock through WithLock, or their
// writes can allocate the same block.
type Store struct {
	index   uint8
	data    Backend
	idx     indexTable
	maxSize int

	log   zerolog.Logger
	stats stats.Collector

	mu *sync.RWMutex
}

// Option configures a Store beyond its required parameters.
type Option func(*Store)

// WithLogger routes the store's diagnostic events to the given logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithCollector records the store's operation statistics through the
// given collector. Several stores can share one.
func WithCollector(c stats.Collector) Option {
	return func(s *Store) { s.stats = c }
}

// WithLock makes the store synchronize on mu instead of a lock of its
// own. Fresh allocation places blocks at the data file's live end, so
// every store writing one data file must serialize on the same lock.
func WithLock(mu *sync.RWMutex) Option {
	return func(s *Store) { s.mu = mu }
}

// New creates a store over already-open backends. index is stamped into
// every block header this store writes and must fit a byte; maxSize
// bounds the length of any stored file and must fit the index record's
// 24-bit size field.
func New(index int, data, idx Backend, maxSize int, opts ...Option) (*Store, error) {
	if index < 0 || index > 255 {
		return nil, fmt.Errorf("index %d: %w", index, ErrInvalidStoreIndex)
	}
	if maxSize <= 0 || maxSize > medium.Max {
		return nil, fmt.Errorf("max size %d: %w", maxSize, ErrInvalidMaxSize)
	}

	s := &Store{
		index:   uint8(index),
		data:    data,
		idx:     indexTable{f: idx},
		maxSize: maxSize,
		log:     zerolog.Nop(),
		stats:   stats.NewCollector(),
		mu:      new(sync.RWMutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the contents of file, or nil when the file is absent or
// its index record and chain do not validate. Corruption is deliberately
// indistinguishable from absence: the store trusts nothing it reads back
// from disk.
func (s *Store) Get(file uint32) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	s.stats.TrackOperation(stats.OpGet)

	entry, ok := s.idx.lookup(file)
	if !ok {
		s.stats.TrackMiss()
		return nil
	}

	count, err := s.blockCount()
	if err != nil {
		s.stats.TrackError(stats.ErrIOFault)
		s.stats.TrackMiss()
		return nil
	}
	if entry.size > s.maxSize || entry.first == 0 || int64(entry.first) > count {
		s.stats.TrackMiss()
		return nil
	}

	out, err := s.readChain(file, entry.first, entry.size)
	if err != nil {
		if errors.Is(err, ErrPrematureEnd) || errors.Is(err, ErrCorruptBlock) ||
			errors.Is(err, block.ErrHeaderMismatch) {
			s.stats.TrackError(stats.ErrCorruptChain)
		} else {
			s.stats.TrackError(stats.ErrIOFault)
		}
		s.stats.TrackMiss()
		s.log.Debug().Uint32("file", file).Err(err).Msg("discarding unreadable chain")
		return nil
	}

	s.stats.TrackBytes(false, uint64(len(out)))
	return out
}

// Put stores the first size bytes of data as file's contents. The
// existing chain is overwritten in place when it validates; otherwise
// one retry writes a fresh chain at the end of the data file. A failed
// in-place attempt can leave rewritten frames behind, but the retry
// always starts from the beginning of data, so the index record and the
// chain it names stay consistent.
func (s *Store) Put(file uint32, data []byte, size int) error {
	if size < 0 || size > s.maxSize || size > len(data) {
		return fmt.Errorf("file %d size %d: %w", file, size, ErrInvalidSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TrackOperation(stats.OpPut)

	err := s.writeChain(file, data, size, true)
	if err != nil {
		// A first write has no chain to reuse; only an abandoned existing
		// chain counts as a fallback.
		if !errors.Is(err, ErrNoChain) {
			s.log.Debug().Uint32("file", file).Err(err).Msg("rewriting chain from scratch")
			s.stats.TrackFallback()
		}
		err = s.writeChain(file, data, size, false)
	}
	if err != nil {
		s.stats.TrackError(stats.ErrIOFault)
		return fmt.Errorf("put file %d: %w", file, err)
	}

	s.stats.TrackBytes(true, uint64(size))
	return nil
}

// Size reports the indexed length of file without walking its chain. ok
// is false when the file has no record or only the zero record left by
// index extension.
func (s *Store) Size(file uint32) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.idx.lookup(file)
	if !ok || (entry.size == 0 && entry.first == 0) {
		return 0, false
	}
	return entry.size, true
}

// Count reports how many file ids the index file currently covers,
// including ids never written that fall below a larger written one.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idx.count()
}

// Index returns the store's number as stamped into its block headers.
func (s *Store) Index() int {
	return int(s.index)
}

// MaxSize returns the largest file length this store accepts.
func (s *Store) MaxSize() int {
	return s.maxSize
}

// Stats returns a snapshot of the store's operation statistics.
func (s *Store) Stats() map[string]interface{} {
	return s.stats.GetStats()
}
