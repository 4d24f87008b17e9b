package models

import (
	"encoding/binary"
)

// Object is the format-neutral view of an executable container. Section and
// symbol indexes are 1-based; 0 means none.
type Object interface {
	Arch() string
	Bits() int
	ByteOrder() binary.ByteOrder
	OS() string
	Kind() ObjectKind
	Entry() uint64
	RelativeAddressBase() uint64
	HasDebugSymbols() bool

	Segments() ([]SegmentData, error)
	Sections() ([]Section, error)
	SectionByName(name string) (Section, bool, error)
	SectionByIndex(i SectionIndex) (Section, error)

	Symbols() ([]Symbol, error)
	SymbolByIndex(i SymbolIndex) (Symbol, error)
	SymbolByName(name string) (Symbol, bool, error)
	SymbolTable() (*SymbolTable, error)

	Imports() ([]Import, error)
	Exports() ([]Export, error)
}

type ObjectKind int

const (
	UNKNOWN ObjectKind = iota
	EXEC
	DYN
)

func (k ObjectKind) String() string {
	switch k {
	case EXEC:
		return "executable"
	case DYN:
		return "dynamic"
	}
	return "unknown"
}

type Import struct {
	Library string
	Name    string
	Kind    SymbolKind
	Weak    bool
}

// Export is a symbol made visible to other containers. Section is 0 for
// absolute and re-exported symbols.
type Export struct {
	Name    string
	Kind    SymbolKind
	Section SymbolSection
	Offset  uint64
	Address uint64
}
