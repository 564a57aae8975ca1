// Package container implements the envelope layered over raw store
// payloads: one codec byte, the big-endian length of the stored body,
// and for compressed bodies the plain length, followed by the body
// itself. The envelope travels inside a store file, so a blob read back
// from a store can be unwrapped without knowing how it was written.
package container

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Codec identifies the compression applied to a container's body.
type Codec byte

const (
	// None stores the body uncompressed
	None Codec = 0
	// Bzip2 bodies can be decoded but not produced
	Bzip2 Codec = 1
	// Gzip is the codec used for everything written here
	Gzip Codec = 2
)

// headerLen covers the codec byte and the stored-body length.
const headerLen = 5

var (
	// ErrUnknownCodec is returned when a codec byte is not one of the three known values
	ErrUnknownCodec = errors.New("unknown container codec")

	// ErrTruncated is returned when a container is shorter than its declared lengths
	ErrTruncated = errors.New("truncated container")

	// ErrInvalidData is returned when a compressed body cannot be decompressed
	ErrInvalidData = errors.New("invalid compressed data")

	// ErrUnsupportedCodec is returned when encoding is requested for a decode-only codec
	ErrUnsupportedCodec = errors.New("unsupported container codec")
)

// String returns the codec's conventional name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Bzip2:
		return "bzip2"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

// Encode wraps payload in a container using the given codec.
func Encode(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case None:
		out := make([]byte, headerLen+len(payload))
		out[0] = byte(None)
		binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
		copy(out[headerLen:], payload)
		return out, nil

	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("compress container: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compress container: %w", err)
		}

		out := make([]byte, headerLen+4+buf.Len())
		out[0] = byte(Gzip)
		binary.BigEndian.PutUint32(out[1:5], uint32(buf.Len()))
		binary.BigEndian.PutUint32(out[5:9], uint32(len(payload)))
		copy(out[headerLen+4:], buf.Bytes())
		return out, nil

	case Bzip2:
		return nil, fmt.Errorf("%w: bzip2 is decode-only", ErrUnsupportedCodec)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// Decode unwraps blob and returns the plain payload.
func Decode(blob []byte) ([]byte, error) {
	if len(blob) < headerLen {
		return nil, ErrTruncated
	}

	codec := Codec(blob[0])
	stored := int(binary.BigEndian.Uint32(blob[1:5]))
	body := blob[headerLen:]

	if codec == None {
		if stored > len(body) {
			return nil, fmt.Errorf("%w: %d byte body, %d declared", ErrTruncated, len(body), stored)
		}
		return append([]byte(nil), body[:stored]...), nil
	}

	if len(body) < 4 || stored > len(body)-4 {
		return nil, fmt.Errorf("%w: %d byte body, %d declared", ErrTruncated, len(body), stored)
	}
	plain := int(binary.BigEndian.Uint32(body[0:4]))
	compressed := body[4 : 4+stored]

	var r io.Reader
	switch codec {
	case Bzip2:
		r = bzip2.NewReader(bytes.NewReader(compressed))

	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		defer zr.Close()
		r = zr

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}

	out := make([]byte, plain)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return out, nil
}
