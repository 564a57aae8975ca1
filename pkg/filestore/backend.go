package filestore

import (
	"io"
	"os"
)

// Backend is the random-access surface a store requires from each of its
// two companion files. Writes past the current end must extend the file,
// zero-filling any skipped span; *os.File behaves this way on every
// platform the store targets.
type Backend interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the current length of the underlying file in bytes.
	Size() (int64, error)
}

// fileBackend adapts an *os.File to the Backend interface.
type fileBackend struct {
	f *os.File
}

// NewFileBackend wraps an already-open file. The store never closes the
// file; its lifecycle stays with the caller.
func NewFileBackend(f *os.File) Backend {
	return &fileBackend{f: f}
}

func (b *fileBackend) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

func (b *fileBackend) WriteAt(p []byte, off int64) (int, error) {
	return b.f.WriteAt(p, off)
}

func (b *fileBackend) Size() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
