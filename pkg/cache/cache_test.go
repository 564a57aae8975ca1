package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
)

// createTempDir creates a temporary directory for a cache under test
func createTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cache_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	return dir
}

// cachePattern returns n deterministic bytes for cache tests.
func cachePattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)*13 + seed
	}
	return out
}

func TestOpenCreatesLayout(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DefaultManifestFileName)); err != nil {
		t.Errorf("manifest not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "store.dat")); err != nil {
		t.Errorf("data file not created: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Failed to close cache: %v", err)
	}

	// Reopening picks the manifest back up
	c2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to reopen cache: %v", err)
	}
	defer c2.Close()

	if c2.Config().FilePrefix != DefaultFilePrefix {
		t.Errorf("reopened prefix: got %q, want %q", c2.Config().FilePrefix, DefaultFilePrefix)
	}
}

func TestOpenWithConfig(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	cfg := NewDefaultConfig()
	cfg.FilePrefix = "main"
	cfg.MaxFileSize = 500_000

	c, err := Open(dir, WithConfig(cfg))
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.dat")); err != nil {
		t.Errorf("data file not created under custom prefix: %v", err)
	}
	c.Close()

	// An existing manifest wins over a supplied config
	other := NewDefaultConfig()
	other.FilePrefix = "ignored"

	c2, err := Open(dir, WithConfig(other))
	if err != nil {
		t.Fatalf("Failed to reopen cache: %v", err)
	}
	defer c2.Close()

	if got := c2.Config().FilePrefix; got != "main" {
		t.Errorf("reopened prefix: got %q, want %q", got, "main")
	}
	if got := c2.Config().MaxFileSize; got != 500_000 {
		t.Errorf("reopened max file size: got %d, want 500000", got)
	}
}

func TestStoreRoundTripAcrossReopen(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}

	st, err := c.Store(0)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	again, err := c.Store(0)
	if err != nil || again != st {
		t.Errorf("repeated Store(0) returned a different value")
	}

	payload := cachePattern(600, 1)
	if err := st.Put(10, payload, 600); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Failed to close cache: %v", err)
	}

	c2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to reopen cache: %v", err)
	}
	defer c2.Close()

	st2, err := c2.Store(0)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	if got := st2.Get(10); !bytes.Equal(got, payload) {
		t.Errorf("read after reopen: got %d bytes, mismatch", len(got))
	}
	if size, ok := st2.Size(10); !ok || size != 600 {
		t.Errorf("size after reopen: got (%d, %v), want (600, true)", size, ok)
	}
}

func TestStoreSeparation(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()

	st0, err := c.Store(0)
	if err != nil {
		t.Fatalf("Failed to open store 0: %v", err)
	}
	st1, err := c.Store(1)
	if err != nil {
		t.Fatalf("Failed to open store 1: %v", err)
	}

	a := cachePattern(300, 1)
	b := cachePattern(400, 2)
	if err := st0.Put(10, a, 300); err != nil {
		t.Fatalf("Failed to put into store 0: %v", err)
	}
	if err := st1.Put(10, b, 400); err != nil {
		t.Fatalf("Failed to put into store 1: %v", err)
	}

	// Same id, distinct stores, one shared data file
	if got := st0.Get(10); !bytes.Equal(got, a) {
		t.Errorf("store 0 read: got %d bytes, mismatch", len(got))
	}
	if got := st1.Get(10); !bytes.Equal(got, b) {
		t.Errorf("store 1 read: got %d bytes, mismatch", len(got))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read cache dir: %v", err)
	}
	var datFiles int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".dat" {
			datFiles++
		}
	}
	if datFiles != 1 {
		t.Errorf("expected one data file, found %d", datFiles)
	}
}

func TestConcurrentWritesAcrossStores(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()

	// Stores opened through one cache share a write lock, so puts into
	// different stores must not collide on block allocation.
	const perStore = 20
	indexes := []int{0, 1, 2, 3}

	var wg sync.WaitGroup
	for _, index := range indexes {
		st, err := c.Store(index)
		if err != nil {
			t.Fatalf("Failed to open store %d: %v", index, err)
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			for i := 0; i < perStore; i++ {
				p := cachePattern(300+170*(i%3)+index, byte(index+1))
				if err := st.Put(uint32(i), p, len(p)); err != nil {
					t.Errorf("store %d put %d: %v", index, i, err)
				}
			}
		}(index)
	}
	wg.Wait()

	for _, index := range indexes {
		st, err := c.Store(index)
		if err != nil {
			t.Fatalf("Failed to reopen store %d: %v", index, err)
		}
		for i := 0; i < perStore; i++ {
			want := cachePattern(300+170*(i%3)+index, byte(index+1))
			if got := st.Get(uint32(i)); !bytes.Equal(got, want) {
				t.Errorf("store %d file %d: got %d bytes, mismatch", index, i, len(got))
			}
		}
	}
}

func TestStoresListing(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()

	for _, index := range []int{5, 0, 255} {
		if _, err := c.Store(index); err != nil {
			t.Fatalf("Failed to open store %d: %v", index, err)
		}
	}

	// Stray files that look similar are not store indexes
	for _, name := range []string{"store.idxfoo", "store.idx300", "store.index1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("Failed to plant stray file: %v", err)
		}
	}

	got, err := c.Stores()
	if err != nil {
		t.Fatalf("Failed to list stores: %v", err)
	}

	want := []int{0, 5, 255}
	if len(got) != len(want) {
		t.Fatalf("stores: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stores: got %v, want %v", got, want)
		}
	}
}

func TestVerify(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()

	st, err := c.Store(1)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	payloads := map[uint32][]byte{
		0: cachePattern(100, 1),
		1: cachePattern(600, 2),
		2: cachePattern(1024, 3),
	}
	for _, id := range []uint32{0, 1, 2} {
		p := payloads[id]
		if err := st.Put(id, p, len(p)); err != nil {
			t.Fatalf("Failed to put %d: %v", id, err)
		}
	}

	// Damage file 1's chain head on disk. Its first block is the second
	// frame of the data file.
	f, err := os.OpenFile(filepath.Join(dir, "store.dat"), os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("Failed to open data file: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 1040); err != nil {
		t.Fatalf("Failed to corrupt data file: %v", err)
	}
	f.Close()

	checks, err := c.Verify(1)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}

	if len(checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(checks))
	}

	byFile := make(map[uint32]Check)
	for _, ch := range checks {
		byFile[ch.File] = ch
	}

	for _, id := range []uint32{0, 2} {
		ch := byFile[id]
		if ch.Status != StatusOK {
			t.Errorf("file %d: got status %v, want ok", id, ch.Status)
		}
		if want := xxhash.Sum64(payloads[id]); ch.Digest != want {
			t.Errorf("file %d: digest %x, want %x", id, ch.Digest, want)
		}
		if ch.Size != len(payloads[id]) {
			t.Errorf("file %d: size %d, want %d", id, ch.Size, len(payloads[id]))
		}
	}

	damaged := byFile[1]
	if damaged.Status != StatusDamaged {
		t.Errorf("file 1: got status %v, want damaged", damaged.Status)
	}
	if damaged.Size != 600 {
		t.Errorf("file 1: size %d, want 600", damaged.Size)
	}
	if damaged.Digest != 0 {
		t.Errorf("file 1: damaged file carries a digest")
	}

	// The verification pass shows up in the cache-wide stats
	st2 := c.Stats()
	if ops := st2["verify_ops"].(uint64); ops != 1 {
		t.Errorf("verify_ops: got %d, want 1", ops)
	}
	if errCounts := st2["errors"].(map[string]uint64); errCounts["corrupt_chain"] == 0 {
		t.Errorf("expected corrupt_chain to be counted, got %v", errCounts)
	}
}

func TestCacheClosed(t *testing.T) {
	dir := createTempDir(t)
	defer os.RemoveAll(dir)

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Failed to close cache: %v", err)
	}

	if _, err := c.Store(0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("Store after close: got %v, want ErrCacheClosed", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("second close: got %v, want nil", err)
	}
}
