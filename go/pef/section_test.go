package pef_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/pef"
	"github.com/lunixbochs/pef/go/pef/peftest"
)

func parseSections(t *testing.T, c *peftest.Container) (buffer.Bytes, *pef.SectionTable) {
	t.Helper()
	buf := buffer.Bytes(c.MustBuild())
	hdr, err := pef.ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	table, err := pef.ParseSections(buf, hdr)
	if err != nil {
		t.Fatal(err)
	}
	return buf, table
}

func TestMinimalContainer(t *testing.T) {
	code := []byte{0x4e, 0x80, 0x00, 0x20}
	buf, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Name: "code", Kind: pef.KindCode, Address: 0x1000, Data: code},
		},
	})
	if table.Len() != 1 || table.InstCount != 1 {
		t.Fatalf("got %d sections, %d instantiated", table.Len(), table.InstCount)
	}
	if len(table.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", table.Warnings)
	}
	sec, err := table.Section(0)
	if err != nil {
		t.Fatal(err)
	}
	if sec.Kind() != pef.KindCode || !sec.Instantiated || sec.Number != 0 {
		t.Fatalf("section %+v", sec.SectionHeader)
	}
	if name, ok, err := sec.Name(); err != nil || !ok || string(name) != "code" {
		t.Fatalf("name %q %v %v", name, ok, err)
	}
	data, err := sec.Data()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, code) {
		t.Fatalf("data %x", data)
	}
	if addr, size := sec.AddressRange(); addr != 0x1000 || size != 4 {
		t.Fatalf("address range %#x+%#x", addr, size)
	}
	if _, err := pef.ParseLoader(buf, table); !errors.Is(err, pef.ErrNoLoaderSection) {
		t.Fatalf("expected ErrNoLoaderSection, got %v", err)
	}
	if _, err := table.Section(1); !errors.Is(err, pef.ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
}

func TestSectionLookup(t *testing.T) {
	_, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Name: "code", Kind: pef.KindCode, Address: 0x1000, Data: make([]byte, 0x100)},
			{Name: "data", Kind: pef.KindUnpackedData, Address: 0x2000, Data: make([]byte, 0x10), TotalSize: 0x40},
			{Kind: pef.KindConstant, Address: 0x2020, Data: make([]byte, 0x10)},
			{Name: "loader", Kind: pef.KindLoader, Data: make([]byte, pef.LoaderInfoHeaderSize)},
		},
	})
	if sec, ok := table.ByName([]byte("data")); !ok || sec.Number != 1 {
		t.Fatalf("ByName(data): %v", ok)
	}
	if _, ok := table.ByName([]byte("cod")); ok {
		t.Fatal("matched a name prefix")
	}
	if _, ok := table.ByName(nil); ok {
		t.Fatal("unnamed section matched")
	}
	for addr, want := range map[uint32]int{
		0x1000: 0,
		0x10ff: 0,
		0x2000: 1,
		0x2030: 1, // overlaps the constant section, first wins
		0x2048: -1,
		0x0fff: -1,
	} {
		sec, ok := table.Containing(addr)
		switch {
		case want < 0 && ok:
			t.Errorf("%#x: unexpectedly in section %d", addr, sec.Number)
		case want >= 0 && (!ok || sec.Number != want):
			t.Errorf("%#x: expected section %d, got %v", addr, want, ok)
		}
	}
	if _, ok, err := table.Sections[2].Name(); ok || err != nil {
		t.Fatalf("unnamed section: %v %v", ok, err)
	}
	if sec, ok := table.Loader(); !ok || sec.Number != 3 || sec.Instantiated {
		t.Fatal("loader section not found")
	}
}

func TestSectionImage(t *testing.T) {
	_, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Kind: pef.KindUnpackedData, Data: []byte{1, 2, 3, 4}, TotalSize: 8},
			{Kind: pef.KindPatternInitializedData, Data: []byte{0x42, 0x01, 0xab, 0xcd}, UnpackedSize: 4, TotalSize: 6},
			{Kind: pef.KindDebug, Data: []byte{9}},
		},
	})
	img, err := table.Sections[0].Image()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img, []byte{1, 2, 3, 4, 0, 0, 0, 0}) {
		t.Fatalf("data image %x", img)
	}
	img, err = table.Sections[1].Image()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img, []byte{0xab, 0xcd, 0xab, 0xcd, 0, 0}) {
		t.Fatalf("pattern image %x", img)
	}
	if _, err := table.Sections[2].Image(); err == nil {
		t.Fatal("built an image of a non-instantiated section")
	}
	if p, err := table.Sections[2].UnpackedData(); err != nil || !bytes.Equal(p, []byte{9}) {
		t.Fatalf("debug data %x %v", p, err)
	}
}

func TestSectionImageTruncated(t *testing.T) {
	_, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Kind: pef.KindPatternInitializedData, Data: []byte{0x08}, UnpackedSize: 8, TotalSize: 4},
		},
	})
	if len(table.Warnings) != 1 || !strings.Contains(table.Warnings[0], "total size") {
		t.Fatalf("warnings: %q", table.Warnings)
	}
	if _, err := table.Sections[0].Image(); err == nil || !strings.Contains(err.Error(), "exceeds total size") {
		t.Fatalf("expected an unpacked size error, got %v", err)
	}
}

func TestSectionAddressLookups(t *testing.T) {
	buf, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Kind: pef.KindCode, Address: 0x1000, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, TotalSize: 0x10},
			{Kind: pef.KindPatternInitializedData, Address: 0x2000, Data: []byte{0x22, 'h', 'i'}, UnpackedSize: 2, TotalSize: 4},
		},
	})
	code, pattern := &table.Sections[0], &table.Sections[1]
	codeOff, _ := code.FileRange()

	if off, size, ok := code.FileRangeAt(0x1002); !ok || off != codeOff+2 || size != 6 {
		t.Fatalf("FileRangeAt(0x1002) = %#x+%d %v", off, size, ok)
	}
	if off, size, ok := table.FileRangeAt(0x1004); !ok || off != codeOff+4 || size != 4 {
		t.Fatalf("table FileRangeAt(0x1004) = %#x+%d %v", off, size, ok)
	}
	for _, addr := range []uint32{0x0fff, 0x1008, 0x1010} {
		if _, _, ok := code.FileRangeAt(addr); ok {
			t.Errorf("FileRangeAt(%#x) should fail", addr)
		}
	}
	if _, _, ok := pattern.FileRangeAt(0x2000); ok {
		t.Fatal("pattern section has no direct file mapping")
	}

	if p, ok, err := code.DataAt(0x1006); err != nil || !ok || !bytes.Equal(p, []byte{7, 8}) {
		t.Fatalf("DataAt(0x1006) = %x %v %v", p, ok, err)
	}
	if _, ok, err := code.DataAt(0x100c); ok || err != nil {
		t.Fatalf("DataAt in zero fill: %v %v", ok, err)
	}
	if p, ok, err := table.DataAt(0x2001); err != nil || !ok || string(p) != "i" {
		t.Fatalf("table DataAt(0x2001) = %q %v %v", p, ok, err)
	}

	p, base, ok, err := table.DataContaining(0x2003)
	if err != nil || !ok || base != 0x2000 || string(p) != "hi" {
		t.Fatalf("DataContaining(0x2003) = %q %#x %v %v", p, base, ok, err)
	}
	if _, _, ok, err := table.DataContaining(0x3000); ok || err != nil {
		t.Fatalf("DataContaining(0x3000): %v %v", ok, err)
	}

	for _, tt := range []struct {
		sec        *pef.Section
		addr, size uint32
		want       []byte
	}{
		{code, 0x1000, 2, []byte{1, 2}},
		{code, 0x1006, 4, []byte{7, 8, 0, 0}},
		{code, 0x1010, 0, []byte{}},
		{pattern, 0x2000, 4, []byte("hi\x00\x00")},
		{code, 0x100e, 4, nil},
		{code, 0x0fff, 2, nil},
	} {
		got, ok, err := tt.sec.DataRange(tt.addr, tt.size)
		if err != nil {
			t.Fatalf("DataRange(%#x, %d): %v", tt.addr, tt.size, err)
		}
		if ok != (tt.want != nil) || !bytes.Equal(got, tt.want) {
			t.Errorf("DataRange(%#x, %d) = %x %v, want %x", tt.addr, tt.size, got, ok, tt.want)
		}
	}

	if end := table.MaxFileOffset(); end != buf.Len() {
		t.Fatalf("MaxFileOffset %#x, file size %#x", end, buf.Len())
	}
}

func TestSectionWarnings(t *testing.T) {
	_, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Kind: pef.KindCode, Data: make([]byte, 8), TotalSize: 4},
			{Kind: pef.KindLoader, Data: make([]byte, pef.LoaderInfoHeaderSize)},
			{Kind: pef.KindUnpackedData, Data: make([]byte, 4)},
			{Kind: pef.KindLoader, Data: make([]byte, pef.LoaderInfoHeaderSize)},
		},
	})
	if table.InstCount != 1 {
		t.Fatalf("instantiated count %d", table.InstCount)
	}
	want := []string{"total size", "follows the instantiated prefix", "2 loader sections"}
	if len(table.Warnings) != len(want) {
		t.Fatalf("warnings: %q", table.Warnings)
	}
	for i, w := range want {
		if !strings.Contains(table.Warnings[i], w) {
			t.Errorf("warning %d: %q does not mention %q", i, table.Warnings[i], w)
		}
	}
	// the stored bytes past total_size are not part of the section
	if _, size := table.Sections[0].FileRange(); size != 4 {
		t.Fatalf("file range size %d", size)
	}
}

func TestSectionCountClamped(t *testing.T) {
	_, table := parseSections(t, &peftest.Container{
		Sections: []peftest.Section{
			{Kind: pef.KindCode, Data: make([]byte, 4)},
			{Kind: pef.KindUnpackedData, Data: make([]byte, 4)},
		},
		InstCount: 5,
	})
	if table.InstCount > table.Len() || table.InstCount != 2 {
		t.Fatalf("instantiated count %d of %d", table.InstCount, table.Len())
	}
	if len(table.Warnings) != 1 {
		t.Fatalf("warnings: %q", table.Warnings)
	}
	for i := 0; i < table.InstCount; i++ {
		if s := table.Sections[i]; s.TotalSize() < s.UnpackedSize() {
			t.Errorf("section %d: total %d < unpacked %d", i, s.TotalSize(), s.UnpackedSize())
		}
	}
}

func TestSectionTableOutOfBounds(t *testing.T) {
	c := &peftest.Container{
		Sections: []peftest.Section{{Kind: pef.KindCode, Data: make([]byte, 4)}},
		MutateHeader: func(h *pef.ContainerHeaderData) {
			h.SectionCount = 0xffff
		},
	}
	buf := buffer.Bytes(c.MustBuild())
	hdr, err := pef.ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pef.ParseSections(buf, hdr); !errors.Is(err, pef.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestSectionDataOutOfBounds(t *testing.T) {
	p := (&peftest.Container{
		Sections: []peftest.Section{{Kind: pef.KindCode, Data: make([]byte, 16)}},
	}).MustBuild()
	// drop the last byte of the section contents
	buf := buffer.Bytes(p[:len(p)-1])
	hdr, err := pef.ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	table, err := pef.ParseSections(buf, hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.Sections[0].Data(); !errors.Is(err, pef.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}
