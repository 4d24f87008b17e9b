// Package view interprets byte ranges of a buffer as fixed-layout records
// without copying them. A record type is any named byte slice; its accessors
// decode fields on every read through the descriptors in field.go.
package view

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
)

var (
	ErrOutOfBounds = buffer.ErrOutOfBounds
	ErrMisaligned  = errors.New("range is not a multiple of the record size")
)

// Record is a borrowed view of one fixed-size record.
type Record interface {
	~[]byte
}

// One returns the record of the given size at off.
func One[R Record](buf buffer.Buffer, off, size uint64) (R, error) {
	p, err := buf.ReadAt(off, size)
	if err != nil {
		return nil, err
	}
	return R(p), nil
}

// Slice splits byteLen bytes at off into records of the given size.
func Slice[R Record](buf buffer.Buffer, off, byteLen, size uint64) ([]R, error) {
	if size == 0 {
		return nil, errors.New("zero record size")
	}
	if byteLen%size != 0 {
		return nil, errors.Wrapf(ErrMisaligned, "%#x bytes at %#x with record size %#x", byteLen, off, size)
	}
	p, err := buf.ReadAt(off, byteLen)
	if err != nil {
		return nil, err
	}
	n := byteLen / size
	out := make([]R, n)
	for i := uint64(0); i < n; i++ {
		out[i] = R(p[i*size : (i+1)*size : (i+1)*size])
	}
	return out, nil
}

// Count returns n consecutive records of the given size starting at off.
func Count[R Record](buf buffer.Buffer, off, n, size uint64) ([]R, error) {
	if size != 0 && n > buf.Len()/size {
		return nil, errors.Wrapf(ErrOutOfBounds, "%d records of %#x bytes at %#x (len %#x)", n, size, off, buf.Len())
	}
	return Slice[R](buf, off, n*size, size)
}

// Sub narrows buf to [off, off+size). Offsets in the result are relative to off.
func Sub(buf buffer.Buffer, off, size uint64) (buffer.Bytes, error) {
	p, err := buf.ReadAt(off, size)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(p), nil
}

// CString returns the NUL-terminated string at off, without the terminator.
// The string may not extend past the end of buf.
func CString(buf buffer.Buffer, off uint64) ([]byte, error) {
	n := buf.Len()
	if off >= n {
		return nil, errors.Wrapf(ErrOutOfBounds, "string at %#x (len %#x)", off, n)
	}
	p, err := buf.ReadAt(off, n-off)
	if err != nil {
		return nil, err
	}
	for i, c := range p {
		if c == 0 {
			return p[:i:i], nil
		}
	}
	return nil, errors.Wrapf(ErrOutOfBounds, "unterminated string at %#x", off)
}
