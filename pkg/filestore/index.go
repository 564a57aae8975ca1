package filestore

import (
	"fmt"

	"github.com/flatcache/flatcache/pkg/medium"
)

const (
	// RecordLen is the fixed size of one index record: a 24-bit file
	// size followed by a 24-bit head block number.
	RecordLen = 6
)

// indexEntry is the decoded form of one index record. A zero entry is
// indistinguishable from an id that was never written; the data file's
// block numbering starts at 1 so a zero head never points at real data.
type indexEntry struct {
	size  int    // logical file length in bytes
	first uint32 // block number of the chain head
}

// indexTable gives direct access into the index file, which holds one
// fixed-size record per file id at offset id*RecordLen.
type indexTable struct {
	f Backend
}

// lookup reads the record for the given file id. A record beyond the
// index file's current extent reports ok=false, as does any read fault;
// absence and unreadability are treated alike.
func (t indexTable) lookup(file uint32) (indexEntry, bool) {
	off := int64(file) * RecordLen

	size, err := t.f.Size()
	if err != nil || off+RecordLen > size {
		return indexEntry{}, false
	}

	var buf [RecordLen]byte
	if _, err := t.f.ReadAt(buf[:], off); err != nil {
		return indexEntry{}, false
	}

	return indexEntry{
		size:  int(medium.Uint24(buf[0:3])),
		first: medium.Uint24(buf[3:6]),
	}, true
}

// store writes the record for the given file id, extending the index
// file when the id lies beyond its current extent. Ids skipped over by
// the extension are left as zero records.
func (t indexTable) store(file uint32, e indexEntry) error {
	var buf [RecordLen]byte
	medium.PutUint24(buf[0:3], uint32(e.size))
	medium.PutUint24(buf[3:6], e.first)

	if _, err := t.f.WriteAt(buf[:], int64(file)*RecordLen); err != nil {
		return fmt.Errorf("write index record %d: %w", file, err)
	}
	return nil
}

// count reports how many whole records the index file currently covers.
func (t indexTable) count() int {
	size, err := t.f.Size()
	if err != nil {
		return 0
	}
	return int(size / RecordLen)
}
