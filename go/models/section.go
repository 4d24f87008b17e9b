package models

import (
	"fmt"
)

// SectionIndex is a 1-based section index.
type SectionIndex int

type SectionKind int

const (
	SectionUnknown SectionKind = iota
	SectionText
	SectionData
	SectionReadOnlyData
	SectionMetadata
	SectionDebug
	SectionOther
)

var sectionKindNames = []string{"unknown", "text", "data", "rodata", "metadata", "debug", "other"}

func (k SectionKind) String() string {
	if k >= 0 && int(k) < len(sectionKindNames) {
		return sectionKindNames[k]
	}
	return fmt.Sprintf("section-kind(%d)", int(k))
}

// Relocation is a generic per-section fixup.
type Relocation struct {
	Offset uint64
	Symbol SymbolIndex
	Addend int64
}

type Section interface {
	Index() SectionIndex
	Name() string
	Kind() SectionKind
	Address() uint64
	Size() uint64
	Align() uint64
	// FileRange is the location of the section's bytes in the file. ok is
	// false when nothing is stored.
	FileRange() (off, size uint64, ok bool)
	// Data returns the stored bytes, borrowed from the file.
	Data() ([]byte, error)
	// UnpackedData returns the initialized contents, decompressing or
	// expanding the stored bytes if the format requires it.
	UnpackedData() ([]byte, error)
	// DataRange returns size bytes of the in-memory contents at addr. ok is
	// false unless the whole range lies inside the section.
	DataRange(addr, size uint64) (data []byte, ok bool, err error)
	Prot() int
	Relocations() []Relocation
}
