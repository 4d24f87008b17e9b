package buffer

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestBytesReadAt(t *testing.T) {
	b := Bytes("Joy!peff")
	p, err := b.ReadAt(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if string(p) != "peff" {
		t.Fatalf("got %q", p)
	}
	if _, err := b.ReadAt(4, 5); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := b.ReadAt(^uint64(0), 2); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("overflowing offset not rejected: %v", err)
	}
	if p, err := b.ReadAt(8, 0); err != nil || len(p) != 0 {
		t.Fatalf("empty read at end failed: %v", err)
	}
}

func TestReadAtCapacity(t *testing.T) {
	b := Bytes("abcdef")
	p, err := b.ReadAt(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if cap(p) != 2 {
		t.Fatalf("borrowed slice can grow into the buffer: cap %d", cap(p))
	}
}

// sizeless hides bytes.Reader's Size method.
type sizeless struct{ r io.ReaderAt }

func (s sizeless) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }

func TestReadAll(t *testing.T) {
	data := bytes.Repeat([]byte{0xa5}, 0x2345)
	b, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, data) {
		t.Fatal("sized read mismatch")
	}
	b, err = ReadAll(sizeless{bytes.NewReader(data)})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, data) {
		t.Fatalf("chunked read mismatch: got %d bytes", len(b))
	}
}
