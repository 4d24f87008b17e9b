package buffer

import (
	"io"

	"github.com/pkg/errors"
)

var ErrOutOfBounds = errors.New("read out of bounds")

// Buffer is any byte-addressable backing store. ReadAt returns a slice that
// borrows from the store and must not be modified.
type Buffer interface {
	Len() uint64
	ReadAt(off, size uint64) ([]byte, error)
}

// Bytes is an in-memory Buffer.
type Bytes []byte

func (b Bytes) Len() uint64 {
	return uint64(len(b))
}

func (b Bytes) ReadAt(off, size uint64) ([]byte, error) {
	if !InBounds(b.Len(), off, size) {
		return nil, errors.Wrapf(ErrOutOfBounds, "read of %#x bytes at %#x (len %#x)", size, off, len(b))
	}
	return b[off : off+size : off+size], nil
}

// InBounds reports whether [off, off+size) lies within a buffer of length n.
func InBounds(n, off, size uint64) bool {
	return off <= n && size <= n-off
}

// FromReaderAt reads size bytes from r into memory, so views can borrow from
// the cached copy for the lifetime of the returned Buffer.
func FromReaderAt(r io.ReaderAt, size int64) (Bytes, error) {
	if size < 0 {
		return nil, errors.Errorf("invalid size %d", size)
	}
	p := make([]byte, size)
	n, err := r.ReadAt(p, 0)
	if err == io.EOF && int64(n) == size {
		err = nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file contents")
	}
	return Bytes(p), nil
}

// ReadAll caches the complete contents of r. Readers without a known size are
// drained in chunks until ReadAt reports no more data.
func ReadAll(r io.ReaderAt) (Bytes, error) {
	if s, ok := r.(interface{ Size() int64 }); ok {
		return FromReaderAt(r, s.Size())
	}
	var out []byte
	chunk := make([]byte, 0x1000)
	for {
		n, err := r.ReadAt(chunk, int64(len(out)))
		out = append(out, chunk[:n]...)
		if err == io.EOF || (err == nil && n == 0) {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "failed to read file contents")
		}
	}
	return Bytes(out), nil
}
