package view

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
)

type pair []byte

var (
	pairHi = U16{0, binary.BigEndian}
	pairLo = U16{2, binary.LittleEndian}
)

func TestOne(t *testing.T) {
	buf := buffer.Bytes{0xff, 0x12, 0x34, 0x56, 0x78}
	p, err := One[pair](buf, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if v := pairHi.Get(p); v != 0x1234 {
		t.Errorf("big-endian field: %#x", v)
	}
	if v := pairLo.Get(p); v != 0x7856 {
		t.Errorf("little-endian field: %#x", v)
	}
	if _, err := One[pair](buf, 2, 4); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestSlice(t *testing.T) {
	buf := buffer.Bytes{0, 1, 0, 2, 0, 3, 0, 4}
	recs, err := Slice[pair](buf, 0, 8, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || pairHi.Get(recs[1]) != 3 {
		t.Fatalf("bad slice: %v", recs)
	}
	if _, err := Slice[pair](buf, 0, 6, 4); !errors.Is(err, ErrMisaligned) {
		t.Errorf("expected ErrMisaligned, got %v", err)
	}
	if _, err := Slice[pair](buf, 4, 8, 4); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestCountOverflow(t *testing.T) {
	buf := buffer.Bytes(make([]byte, 16))
	if _, err := Count[pair](buf, 0, 1<<62, 8); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("huge count not rejected: %v", err)
	}
	recs, err := Count[pair](buf, 8, 2, 4)
	if err != nil || len(recs) != 2 {
		t.Fatalf("count failed: %v", err)
	}
}

func TestCString(t *testing.T) {
	buf := buffer.Bytes("one\x00two\x00three")
	s, err := CString(buf, 4)
	if err != nil || string(s) != "two" {
		t.Fatalf("got %q, %v", s, err)
	}
	if _, err := CString(buf, 8); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("unterminated string not rejected: %v", err)
	}
	if _, err := CString(buf, 100); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("offset past end not rejected: %v", err)
	}
}

func TestSignedFields(t *testing.T) {
	p := []byte{0xff, 0xff, 0xff, 0xfe, 0xff, 0xfd}
	if v := (I32{0, binary.BigEndian}).Get(p); v != -2 {
		t.Errorf("I32: %d", v)
	}
	if v := (I16{4, binary.BigEndian}).Get(p); v != -3 {
		t.Errorf("I16: %d", v)
	}
	if v := (U8{3}).Get(p); v != 0xfe {
		t.Errorf("U8: %#x", v)
	}
}
