package models

import (
	"fmt"
	"sort"
)

// SymbolTable indexes a symbol list by name and by address.
type SymbolTable struct {
	Symbols []Symbol

	byName map[string]int
	// defined symbols, by address then table order
	byAddr []int
}

func NewSymbolTable(syms []Symbol) *SymbolTable {
	t := &SymbolTable{
		Symbols: syms,
		byName:  make(map[string]int, len(syms)),
	}
	for i, sym := range syms {
		if _, ok := t.byName[sym.Name]; !ok {
			t.byName[sym.Name] = i
		}
		if !sym.Undefined() && sym.Section.Kind != SymbolSectionNone {
			t.byAddr = append(t.byAddr, i)
		}
	}
	sort.SliceStable(t.byAddr, func(i, j int) bool {
		return syms[t.byAddr[i]].Start < syms[t.byAddr[j]].Start
	})
	return t
}

// Lookup returns the first symbol named name.
func (t *SymbolTable) Lookup(name string) (Symbol, bool) {
	if i, ok := t.byName[name]; ok {
		return t.Symbols[i], true
	}
	return Symbol{}, false
}

// Symbolicate finds the defined symbol nearest below addr that contains it.
func (t *SymbolTable) Symbolicate(addr uint64) (sym Symbol, distance uint64, ok bool) {
	n := sort.Search(len(t.byAddr), func(i int) bool {
		return t.Symbols[t.byAddr[i]].Start > addr
	})
	if n == 0 {
		return Symbol{}, 0, false
	}
	// first of the symbols sharing the closest start
	start := t.Symbols[t.byAddr[n-1]].Start
	for n > 1 && t.Symbols[t.byAddr[n-2]].Start == start {
		n--
	}
	sym = t.Symbols[t.byAddr[n-1]]
	if !sym.Contains(addr) {
		return Symbol{}, 0, false
	}
	return sym, addr - sym.Start, true
}

// Format renders addr as symbol+offset, or as a bare address.
func (t *SymbolTable) Format(addr uint64) string {
	sym, dist, ok := t.Symbolicate(addr)
	switch {
	case !ok:
		return fmt.Sprintf("%#x", addr)
	case dist == 0:
		return sym.Name
	}
	return fmt.Sprintf("%s+%#x", sym.Name, dist)
}
