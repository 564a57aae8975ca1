package filestore

import (
	"fmt"

	"github.com/flatcache/flatcache/pkg/filestore/block"
)

// blockCount reports how many whole frames the data file currently
// spans. Writes grow the file while a chain is being walked, so bound
// checks always re-query the live length instead of caching it.
func (s *Store) blockCount() (int64, error) {
	size, err := s.data.Size()
	if err != nil {
		return 0, fmt.Errorf("data file size: %w", err)
	}
	return size / block.FrameLen, nil
}

// allocate returns the block number of the first frame at or beyond the
// data file's current end. Block 0 is reserved, so an empty data file
// allocates block 1 and leaves the first frame's span unwritten.
func (s *Store) allocate() (uint32, error) {
	size, err := s.data.Size()
	if err != nil {
		return 0, fmt.Errorf("data file size: %w", err)
	}
	blk := uint32((size + block.FrameLen - 1) / block.FrameLen)
	if blk == 0 {
		blk = 1
	}
	return blk, nil
}

// readChain walks the chain starting at first and reassembles exactly
// size bytes. Every frame must name the expected file, chunk and store,
// and every next pointer must stay within the data file's current
// extent; any disagreement abandons the walk.
func (s *Store) readChain(file uint32, first uint32, size int) ([]byte, error) {
	layout := block.LayoutFor(file)
	headerLen := layout.HeaderLen()
	payloadLen := layout.PayloadLen()

	out := make([]byte, 0, size)
	var frame [block.FrameLen]byte

	blk := first
	remaining := size
	for chunk := uint16(0); remaining > 0; chunk++ {
		if blk == 0 {
			return nil, fmt.Errorf("file %d chunk %d: %w", file, chunk, ErrPrematureEnd)
		}

		n := remaining
		if n > payloadLen {
			n = payloadLen
		}

		if _, err := s.data.ReadAt(frame[:headerLen+n], int64(blk)*block.FrameLen); err != nil {
			return nil, fmt.Errorf("read block %d: %w", blk, err)
		}

		h := layout.ParseHeader(frame[:headerLen])
		if err := h.Check(file, chunk, s.index); err != nil {
			return nil, fmt.Errorf("block %d: %w", blk, err)
		}
		count, err := s.blockCount()
		if err != nil {
			return nil, err
		}
		if int64(h.Next) > count {
			return nil, fmt.Errorf("block %d: next %d beyond %d blocks: %w",
				blk, h.Next, count, ErrCorruptBlock)
		}

		out = append(out, frame[headerLen:headerLen+n]...)
		remaining -= n
		blk = h.Next
	}

	return out, nil
}

// writeChain writes the first size bytes of data as file's chain and
// records the chain head in the index, which happens before any frame is
// touched in both modes.
//
// With reuse set the existing chain is revalidated frame by frame and
// overwritten in place, following its old next pointers; the first frame
// that does not validate fails the whole write, leaving whatever was
// already rewritten behind, and the caller retries without reuse. When a
// reused chain runs out before the data does, the remainder switches to
// fresh allocation.
//
// Without reuse every frame is placed at the data file's current end.
// The end is re-queried before each frame, after the previous frame's
// write has grown the file; the candidate can therefore still equal the
// block just written, which the guard below steps over.
func (s *Store) writeChain(file uint32, data []byte, size int, reuse bool) error {
	layout := block.LayoutFor(file)
	headerLen := layout.HeaderLen()
	payloadLen := layout.PayloadLen()

	var blk uint32
	if reuse {
		entry, ok := s.idx.lookup(file)
		if !ok {
			return fmt.Errorf("file %d: %w", file, ErrNoChain)
		}
		count, err := s.blockCount()
		if err != nil {
			return err
		}
		if entry.first == 0 || int64(entry.first) > count {
			return fmt.Errorf("file %d: head %d beyond %d blocks: %w",
				file, entry.first, count, ErrNoChain)
		}
		blk = entry.first
	} else {
		var err error
		blk, err = s.allocate()
		if err != nil {
			return err
		}
	}

	if err := s.idx.store(file, indexEntry{size: size, first: blk}); err != nil {
		return err
	}

	var frame [block.FrameLen]byte
	remaining := size
	pos := 0
	for chunk := uint16(0); remaining > 0; chunk++ {
		var next uint32
		if reuse {
			if _, err := s.data.ReadAt(frame[:headerLen], int64(blk)*block.FrameLen); err != nil {
				return fmt.Errorf("read block %d: %w", blk, err)
			}
			h := layout.ParseHeader(frame[:headerLen])
			if err := h.Check(file, chunk, s.index); err != nil {
				return fmt.Errorf("block %d: %w", blk, err)
			}
			count, err := s.blockCount()
			if err != nil {
				return err
			}
			if int64(h.Next) > count {
				return fmt.Errorf("block %d: next %d beyond %d blocks: %w",
					blk, h.Next, count, ErrCorruptBlock)
			}
			next = h.Next
		}

		if next == 0 {
			reuse = false
			var err error
			next, err = s.allocate()
			if err != nil {
				return err
			}
			if next == blk {
				next++
			}
		}

		if remaining <= payloadLen {
			next = 0
		}

		n := remaining
		if n > payloadLen {
			n = payloadLen
		}

		layout.PutHeader(frame[:headerLen], block.Header{
			File:  file,
			Chunk: chunk,
			Next:  next,
			Store: s.index,
		})
		copy(frame[headerLen:headerLen+n], data[pos:pos+n])

		// The final frame is written short, never padded out to FrameLen.
		if _, err := s.data.WriteAt(frame[:headerLen+n], int64(blk)*block.FrameLen); err != nil {
			return fmt.Errorf("write block %d: %w", blk, err)
		}

		remaining -= n
		pos += n
		blk = next
	}

	return nil
}
