// Package block encodes and decodes the fixed-size frames that make up
// a store's data file. Every frame is 520 bytes: a header identifying
// the frame's place in a file's chain, followed by a slice of that
// file's contents. Two header widths exist so that file ids above the
// 16-bit range can still be addressed; the extra two id bytes are taken
// out of the payload.
package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/flatcache/flatcache/pkg/medium"
)

const (
	// FrameLen is the total size of one frame, identical for both layouts
	FrameLen = 520

	// HeaderLen is the header size for files with 16-bit ids
	HeaderLen = 8
	// PayloadLen is the payload capacity for files with 16-bit ids
	PayloadLen = 512

	// ExpandedHeaderLen is the header size for files with larger ids
	ExpandedHeaderLen = 10
	// ExpandedPayloadLen is the payload capacity for files with larger ids
	ExpandedPayloadLen = 510

	// MaxStandardID is the largest file id the standard header encodes
	MaxStandardID = 0xFFFF
)

// ErrHeaderMismatch indicates a frame whose header does not name the
// file, chunk and store the chain walk expected at that position.
var ErrHeaderMismatch = errors.New("block header mismatch")

// Layout selects between the two header widths. It is derived once from
// a file's id and applies to every frame of that file's chain.
type Layout int

const (
	// Standard is the 8-byte header used for ids up to MaxStandardID
	Standard Layout = iota
	// Expanded is the 10-byte header used for ids above MaxStandardID
	Expanded
)

// LayoutFor returns the layout used by every frame of the given file.
func LayoutFor(file uint32) Layout {
	if file > MaxStandardID {
		return Expanded
	}
	return Standard
}

// HeaderLen returns the encoded header size in bytes.
func (l Layout) HeaderLen() int {
	if l == Expanded {
		return ExpandedHeaderLen
	}
	return HeaderLen
}

// PayloadLen returns the per-frame payload capacity in bytes.
func (l Layout) PayloadLen() int {
	if l == Expanded {
		return ExpandedPayloadLen
	}
	return PayloadLen
}

// Header is the decoded form of a frame header.
type Header struct {
	// File is the id of the logical file this frame belongs to
	File uint32
	// Chunk is the frame's zero-based position within the file's chain
	Chunk uint16
	// Next is the block number of the following frame, 0 on the last one
	Next uint32
	// Store is the index of the store that wrote the frame
	Store uint8
}

// PutHeader encodes h into the first l.HeaderLen() bytes of dst.
func (l Layout) PutHeader(dst []byte, h Header) {
	if l == Expanded {
		binary.BigEndian.PutUint32(dst[0:4], h.File)
		binary.BigEndian.PutUint16(dst[4:6], h.Chunk)
		medium.PutUint24(dst[6:9], h.Next)
		dst[9] = h.Store
		return
	}
	binary.BigEndian.PutUint16(dst[0:2], uint16(h.File))
	binary.BigEndian.PutUint16(dst[2:4], h.Chunk)
	medium.PutUint24(dst[4:7], h.Next)
	dst[7] = h.Store
}

// ParseHeader decodes a header from the first l.HeaderLen() bytes of src.
func (l Layout) ParseHeader(src []byte) Header {
	if l == Expanded {
		return Header{
			File:  binary.BigEndian.Uint32(src[0:4]),
			Chunk: binary.BigEndian.Uint16(src[4:6]),
			Next:  medium.Uint24(src[6:9]),
			Store: src[9],
		}
	}
	return Header{
		File:  uint32(binary.BigEndian.Uint16(src[0:2])),
		Chunk: binary.BigEndian.Uint16(src[2:4]),
		Next:  medium.Uint24(src[4:7]),
		Store: src[7],
	}
}

// Check compares the identifying fields of h against the chain position
// being walked. The next pointer is not checked here: its upper bound is
// the data file's current block count, which only the caller knows.
func (h Header) Check(file uint32, chunk uint16, store uint8) error {
	if h.File != file || h.Chunk != chunk || h.Store != store {
		return fmt.Errorf("%w: got file %d chunk %d store %d, want file %d chunk %d store %d",
			ErrHeaderMismatch, h.File, h.Chunk, h.Store, file, chunk, store)
	}
	return nil
}
