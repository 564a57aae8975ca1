package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/flatcache/flatcache/pkg/stats"
)

// Status classifies one stored file during verification.
type Status int

const (
	// StatusOK means the file read back completely
	StatusOK Status = iota
	// StatusDamaged means the file has a record but its chain does not
	// read back
	StatusDamaged
)

// String returns the status's conventional name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDamaged:
		return "damaged"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Check is the verification result for one file.
type Check struct {
	File   uint32
	Size   int
	Digest uint64 // xxhash of the contents, only set for StatusOK
	Status Status
}

// Verify reads back every file recorded in the given store and
// classifies each one, digesting the readable ones. Ids the index
// covers but was never asked to hold are skipped.
func (c *Cache) Verify(index int) ([]Check, error) {
	st, err := c.Store(index)
	if err != nil {
		return nil, err
	}

	c.collector.TrackOperation(stats.OpVerify)

	var checks []Check
	count := st.Count()
	for id := 0; id < count; id++ {
		file := uint32(id)
		size, ok := st.Size(file)
		if !ok {
			continue
		}

		data := st.Get(file)
		if data == nil {
			c.log.Warn().Int("store", index).Uint32("file", file).Int("size", size).
				Msg("file failed verification")
			checks = append(checks, Check{File: file, Size: size, Status: StatusDamaged})
			continue
		}

		checks = append(checks, Check{
			File:   file,
			Size:   size,
			Digest: xxhash.Sum64(data),
			Status: StatusOK,
		})
	}

	return checks, nil
}
