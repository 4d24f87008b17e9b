package pef

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/view"
)

// MaxImageSize bounds the allocation made by Section.Image.
const MaxImageSize = 1 << 28

// Section is one entry of the section table. Number is the 0-based section
// number used by every on-disk reference.
type Section struct {
	SectionHeader
	Number       int
	Instantiated bool

	buf      buffer.Buffer
	nameBase uint64
}

// SectionTable is the section header array together with the name table that
// follows it.
type SectionTable struct {
	Sections []Section
	// InstCount is the header's instantiated section count, clamped to the
	// number of sections.
	InstCount int
	Warnings  []string

	nameBase uint64
}

// ParseSections reads the section table that immediately follows the
// container header. Layout oddities are reported as warnings, not errors.
func ParseSections(buf buffer.Buffer, hdr ContainerHeader) (*SectionTable, error) {
	count := uint64(hdr.SectionCount())
	headers, err := view.Count[SectionHeader](buf, ContainerHeaderSize, count, SectionHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "section table")
	}
	t := &SectionTable{
		InstCount: int(hdr.InstSectionCount()),
		nameBase:  ContainerHeaderSize + count*SectionHeaderSize,
	}
	if t.InstCount > len(headers) {
		t.warnf("instantiated section count %d exceeds section count %d", t.InstCount, len(headers))
		t.InstCount = len(headers)
	}
	t.Sections = make([]Section, len(headers))
	loaders := 0
	for i, h := range headers {
		s := Section{
			SectionHeader: h,
			Number:        i,
			Instantiated:  i < t.InstCount,
			buf:           buf,
			nameBase:      t.nameBase,
		}
		kind := h.Kind()
		if s.Instantiated {
			if h.TotalSize() < h.UnpackedSize() {
				t.warnf("section %d: total size %#x is smaller than unpacked size %#x", i, h.TotalSize(), h.UnpackedSize())
			}
			if !kind.Instantiated() {
				t.warnf("section %d: %s section inside the instantiated prefix", i, kind)
			}
		} else if kind.Instantiated() {
			t.warnf("section %d: %s section follows the instantiated prefix", i, kind)
		}
		if kind == KindLoader {
			loaders++
		}
		t.Sections[i] = s
	}
	if loaders > 1 {
		t.warnf("%d loader sections, using the first", loaders)
	}
	return t, nil
}

func (t *SectionTable) warnf(format string, args ...interface{}) {
	t.Warnings = append(t.Warnings, fmt.Sprintf(format, args...))
}

func (t *SectionTable) Len() int {
	return len(t.Sections)
}

// Section returns the section with the given 0-based number.
func (t *SectionTable) Section(n int) (*Section, error) {
	if n < 0 || n >= len(t.Sections) {
		return nil, errors.Wrapf(ErrInvalidIndex, "section %d of %d", n, len(t.Sections))
	}
	return &t.Sections[n], nil
}

// ByName returns the first section named name. Unnamed sections and sections
// whose names cannot be read never match.
func (t *SectionTable) ByName(name []byte) (*Section, bool) {
	for i := range t.Sections {
		if n, ok, err := t.Sections[i].Name(); err == nil && ok && bytes.Equal(n, name) {
			return &t.Sections[i], true
		}
	}
	return nil, false
}

// Containing returns the first section whose address range contains addr.
func (t *SectionTable) Containing(addr uint32) (*Section, bool) {
	for i := range t.Sections {
		if t.Sections[i].Contains(addr) {
			return &t.Sections[i], true
		}
	}
	return nil, false
}

// Loader returns the first loader section.
func (t *SectionTable) Loader() (*Section, bool) {
	for i := range t.Sections {
		if t.Sections[i].Kind() == KindLoader {
			return &t.Sections[i], true
		}
	}
	return nil, false
}

// FileRangeAt returns the file range from addr to the end of the first
// section containing it.
func (t *SectionTable) FileRangeAt(addr uint32) (off, size uint32, ok bool) {
	if sec, found := t.Containing(addr); found {
		return sec.FileRangeAt(addr)
	}
	return 0, 0, false
}

// DataAt returns the initialized contents from addr to the end of the first
// section containing it.
func (t *SectionTable) DataAt(addr uint32) ([]byte, bool, error) {
	if sec, found := t.Containing(addr); found {
		return sec.DataAt(addr)
	}
	return nil, false, nil
}

// DataContaining returns the initialized contents and address of the first
// section containing addr.
func (t *SectionTable) DataContaining(addr uint32) (data []byte, base uint32, ok bool, err error) {
	sec, found := t.Containing(addr)
	if !found {
		return nil, 0, false, nil
	}
	if data, err = sec.UnpackedData(); err != nil {
		return nil, 0, false, err
	}
	return data, sec.DefaultAddress(), true, nil
}

// MaxFileOffset is the end of the last byte described by the headers: the
// header, the section table and every section's stored contents. Anything past
// it in the file is trailing data. The section name table has no recorded
// length and is not counted.
func (t *SectionTable) MaxFileOffset() uint64 {
	end := t.nameBase
	for i := range t.Sections {
		sec := &t.Sections[i]
		if n := uint64(sec.ContainerOffset()) + uint64(sec.PackedSize()); sec.PackedSize() > 0 && n > end {
			end = n
		}
	}
	return end
}

// Name returns the section name. ok is false for unnamed sections.
func (s *Section) Name() (name []byte, ok bool, err error) {
	off := s.NameOffset()
	if off < 0 {
		return nil, false, nil
	}
	name, err = view.CString(s.buf, s.nameBase+uint64(off))
	if err != nil {
		return nil, false, errors.Wrapf(err, "section %d name", s.Number)
	}
	return name, true, nil
}

// FileRange returns the offset and size of the section contents in the file.
// Instantiated sections that are stored unpacked are clamped to the portion
// that is actually materialized.
func (s *Section) FileRange() (off, size uint32) {
	size = s.PackedSize()
	if s.Instantiated && s.Kind() != KindPatternInitializedData {
		size = min(size, s.UnpackedSize(), s.TotalSize())
	}
	return s.ContainerOffset(), size
}

// AddressRange returns the preferred address and in-memory size.
func (s *Section) AddressRange() (addr, size uint32) {
	return s.DefaultAddress(), s.TotalSize()
}

func (s *Section) Contains(addr uint32) bool {
	start, size := s.AddressRange()
	return addr >= start && addr-start < size
}

// Align returns the in-memory alignment in bytes.
func (s *Section) Align() uint64 {
	if a := s.Alignment(); a < 64 {
		return 1 << a
	}
	return 0
}

// Data returns the raw file contents of the section without copying.
func (s *Section) Data() ([]byte, error) {
	off, size := s.FileRange()
	p, err := s.buf.ReadAt(uint64(off), uint64(size))
	if err != nil {
		return nil, errors.Wrapf(err, "section %d data", s.Number)
	}
	return p, nil
}

// UnpackedData returns the explicitly initialized contents: the expanded
// pattern for pattern-initialized sections, the file contents otherwise.
func (s *Section) UnpackedData() ([]byte, error) {
	p, err := s.Data()
	if err != nil {
		return nil, err
	}
	if s.Kind() != KindPatternInitializedData {
		return p, nil
	}
	out, err := ExpandPattern(p, s.UnpackedSize())
	if err != nil {
		return nil, errors.Wrapf(err, "section %d", s.Number)
	}
	return out, nil
}

// Image returns a new buffer holding the section as instantiated in memory:
// the unpacked contents followed by zero fill up to the total size.
func (s *Section) Image() ([]byte, error) {
	if !s.Instantiated {
		return nil, errors.Errorf("section %d is not instantiated", s.Number)
	}
	total := s.TotalSize()
	if total > MaxImageSize {
		return nil, errors.Errorf("section %d: image size %#x exceeds limit", s.Number, total)
	}
	p, err := s.UnpackedData()
	if err != nil {
		return nil, err
	}
	if uint64(len(p)) > uint64(total) {
		return nil, errors.Errorf("section %d: unpacked size %#x exceeds total size %#x", s.Number, len(p), total)
	}
	img := make([]byte, total)
	copy(img, p)
	return img, nil
}

// FileRangeAt returns the file offset of addr and the number of stored bytes
// from there to the end of the section. ok is false when addr is outside the
// section, falls in its zero fill, or the section is pattern-initialized and
// has no direct address to file mapping.
func (s *Section) FileRangeAt(addr uint32) (off, size uint32, ok bool) {
	if s.Kind() == KindPatternInitializedData || !s.Contains(addr) {
		return 0, 0, false
	}
	delta := addr - s.DefaultAddress()
	off, size = s.FileRange()
	if delta >= size {
		return 0, 0, false
	}
	return off + delta, size - delta, true
}

// DataAt returns the initialized contents from addr to the end of the
// section. ok is false when addr is outside the section or in its zero fill.
func (s *Section) DataAt(addr uint32) (data []byte, ok bool, err error) {
	if !s.Contains(addr) {
		return nil, false, nil
	}
	p, err := s.UnpackedData()
	if err != nil {
		return nil, false, err
	}
	delta := addr - s.DefaultAddress()
	if uint64(delta) >= uint64(len(p)) {
		return nil, false, nil
	}
	return p[delta:], true, nil
}

// DataRange returns size bytes of the in-memory image starting at addr. The
// result borrows from the file unless the range reaches into the zero fill or
// the section is pattern-initialized. ok is false unless the whole range lies
// inside the section.
func (s *Section) DataRange(addr, size uint32) (data []byte, ok bool, err error) {
	base, total := s.AddressRange()
	if addr < base || uint64(addr-base)+uint64(size) > uint64(total) {
		return nil, false, nil
	}
	start, end := uint64(addr-base), uint64(addr-base)+uint64(size)
	p, err := s.UnpackedData()
	if err != nil {
		return nil, false, err
	}
	if end <= uint64(len(p)) {
		return p[start:end], true, nil
	}
	img, err := s.Image()
	if err != nil {
		return nil, false, err
	}
	return img[start:end], true, nil
}
