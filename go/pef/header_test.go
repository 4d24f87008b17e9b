package pef_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/pef"
	"github.com/lunixbochs/pef/go/pef/peftest"
)

func TestParseHeader(t *testing.T) {
	c := &peftest.Container{
		Arch: pef.Arch68K,
		Sections: []peftest.Section{
			{Kind: pef.KindCode, Data: make([]byte, 4)},
		},
		MutateHeader: func(h *pef.ContainerHeaderData) {
			h.DateTimeStamp = 86400
			h.CurrentVersion = 0x0102
		},
	}
	hdr, err := pef.ParseHeader(buffer.Bytes(c.MustBuild()))
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Tag2() != pef.Tag2 {
		t.Errorf("tag2 %#x", hdr.Tag2())
	}
	if a := hdr.Architecture(); a != pef.Architecture68K || a.String() != "m68k" {
		t.Errorf("architecture %v", a)
	}
	if hdr.SectionCount() != 1 || hdr.InstSectionCount() != 1 {
		t.Errorf("counts %d/%d", hdr.SectionCount(), hdr.InstSectionCount())
	}
	if hdr.CurrentVersion() != 0x0102 {
		t.Errorf("current version %#x", hdr.CurrentVersion())
	}
	want := time.Date(1904, time.January, 2, 0, 0, 0, 0, time.UTC)
	if ts := hdr.Timestamp(); !ts.Equal(want) {
		t.Errorf("timestamp %v", ts)
	}
	d, err := hdr.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if d.Tag1 != pef.Tag1 || d.Architecture != pef.Arch68K || d.SectionCount != 1 {
		t.Errorf("decoded header %+v", d)
	}
}

func TestParseHeaderArchitecture(t *testing.T) {
	for raw, want := range map[uint32]string{
		pef.ArchPowerPC: "ppc",
		pef.Arch68K:     "m68k",
		0x69333836:      "unknown",
	} {
		c := &peftest.Container{Arch: raw}
		hdr, err := pef.ParseHeader(buffer.Bytes(c.MustBuild()))
		if err != nil {
			t.Fatal(err)
		}
		if got := hdr.Architecture().String(); got != want {
			t.Errorf("%#x: got %s, want %s", raw, got, want)
		}
	}
}

func TestParseHeaderInvalidMagic(t *testing.T) {
	valid := (&peftest.Container{}).MustBuild()
	inputs := [][]byte{
		make([]byte, 40),
		[]byte("\x7fELF"),
		[]byte("Joy?peff"),
		append([]byte("peffJoy!"), valid[8:]...),
	}
	flipped := append([]byte(nil), valid...)
	flipped[3] ^= 1
	inputs = append(inputs, flipped)
	for _, p := range inputs {
		if _, err := pef.ParseHeader(buffer.Bytes(p)); !errors.Is(err, pef.ErrInvalidMagic) {
			t.Errorf("%q: expected ErrInvalidMagic, got %v", p[:4], err)
		}
	}
}

func TestParseHeaderTooShort(t *testing.T) {
	valid := (&peftest.Container{}).MustBuild()
	for _, n := range []int{0, 2, 4, 39} {
		if _, err := pef.ParseHeader(buffer.Bytes(valid[:n])); !errors.Is(err, pef.ErrTooShort) {
			t.Errorf("%d bytes: expected ErrTooShort, got %v", n, err)
		}
	}
	if _, err := pef.ParseHeader(buffer.Bytes(valid[:40])); err != nil {
		t.Fatal(err)
	}
}

func TestMatch(t *testing.T) {
	if !pef.Match([]byte("Joy!peffpwpc")) {
		t.Error("failed to match PEF tags")
	}
	if pef.Match([]byte("Joy!")) || pef.Match([]byte("Joy!pefg")) {
		t.Error("matched incomplete tags")
	}
}
