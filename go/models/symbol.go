package models

import (
	"fmt"
)

// SymbolIndex is a 1-based symbol index.
type SymbolIndex int

type SymbolKind int

const (
	SymbolUnknown SymbolKind = iota
	SymbolText
	SymbolData
	SymbolLabel
)

var symbolKindNames = []string{"unknown", "text", "data", "label"}

func (k SymbolKind) String() string {
	if k >= 0 && int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return fmt.Sprintf("symbol-kind(%d)", int(k))
}

type SymbolScope int

const (
	ScopeUnknown SymbolScope = iota
	// ScopeCompilation symbols are private to their container.
	ScopeCompilation
	ScopeLinkage
	ScopeDynamic
)

func (s SymbolScope) String() string {
	switch s {
	case ScopeCompilation:
		return "compilation"
	case ScopeLinkage:
		return "linkage"
	case ScopeDynamic:
		return "dynamic"
	}
	return "unknown"
}

type SymbolSectionKind int

const (
	SymbolSectionNone SymbolSectionKind = iota
	SymbolSectionUndefined
	SymbolSectionAbsolute
	SymbolSectionIndex
)

// SymbolSection says where a symbol is defined. Index is only meaningful for
// SymbolSectionIndex.
type SymbolSection struct {
	Kind  SymbolSectionKind
	Index SectionIndex
}

func (s SymbolSection) String() string {
	switch s.Kind {
	case SymbolSectionUndefined:
		return "undefined"
	case SymbolSectionAbsolute:
		return "absolute"
	case SymbolSectionIndex:
		return fmt.Sprintf("section %d", s.Index)
	}
	return "none"
}

type Symbol struct {
	Index      SymbolIndex
	Name       string
	Start, End uint64
	Kind       SymbolKind
	Scope      SymbolScope
	Section    SymbolSection
	Dynamic    bool
	Weak       bool
}

func (s Symbol) Undefined() bool {
	return s.Section.Kind == SymbolSectionUndefined
}

// Contains reports whether addr falls inside the symbol. Symbols without a
// size extend to the next symbol.
func (s Symbol) Contains(addr uint64) bool {
	return s.Start <= addr && (s.End > addr || s.End == s.Start)
}
