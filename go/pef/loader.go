package pef

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/view"
)

// DefaultMaxRelocations bounds the directives produced by one relocation
// stream.
const DefaultMaxRelocations = 1 << 20

// Loader is a parsed loader section. Offsets inside it are relative to the
// start of the section. The import, relocation and export tables are parsed
// on first use so a damaged table only fails its own accessors.
type Loader struct {
	Section *Section
	Info    LoaderInfoHeader

	MaxRelocations int

	data  buffer.Bytes
	table *SectionTable

	importsOnce sync.Once
	libs        []ImportedLibrary
	imports     []ImportedSymbol
	importsErr  error

	relocsOnce sync.Once
	relocs     []RelocHeader
	relocsErr  error

	exportsOnce sync.Once
	exports     *exportTable
	exportsErr  error
}

type exportTable struct {
	power   uint32
	slots   []ExportHashSlot
	keys    []ExportKey
	symbols []ExportedSymbol
}

// EntryPoint is a (section, offset) reference from the loader info header.
type EntryPoint struct {
	Section int
	Offset  uint32
	Address uint32
}

// Import is an imported symbol resolved against its library.
type Import struct {
	Index   int
	Library int
	Name    []byte
	Class   SymbolClass
	Weak    bool
}

// Export is an exported symbol. Section is a 0-based section number or one
// of AbsoluteSection and ReexportedSection; Slot is the hash slot whose
// chain holds the symbol.
type Export struct {
	Index   int
	Name    []byte
	Class   SymbolClass
	Section int16
	Value   uint32
	Slot    uint32
}

// ParseLoader locates the loader section in table and reads its info header.
func ParseLoader(buf buffer.Buffer, table *SectionTable) (*Loader, error) {
	sec, ok := table.Loader()
	if !ok {
		return nil, ErrNoLoaderSection
	}
	off, size := sec.FileRange()
	data, err := view.Sub(buf, uint64(off), uint64(size))
	if err != nil {
		return nil, errors.Wrap(err, "loader section")
	}
	info, err := view.One[LoaderInfoHeader](data, 0, LoaderInfoHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "loader info header")
	}
	return &Loader{
		Section:        sec,
		Info:           info,
		MaxRelocations: DefaultMaxRelocations,
		data:           data,
		table:          table,
	}, nil
}

// Data returns the loader section contents.
func (l *Loader) Data() []byte {
	return l.data
}

func (l *Loader) entry(section int32, offset uint32) (EntryPoint, bool, error) {
	if section == NoSection {
		return EntryPoint{}, false, nil
	}
	sec, err := l.table.Section(int(section))
	if err != nil {
		return EntryPoint{}, false, err
	}
	return EntryPoint{
		Section: int(section),
		Offset:  offset,
		Address: sec.DefaultAddress() + offset,
	}, true, nil
}

func (l *Loader) Main() (EntryPoint, bool, error) {
	return l.entry(l.Info.MainSection(), l.Info.MainOffset())
}

func (l *Loader) Init() (EntryPoint, bool, error) {
	return l.entry(l.Info.InitSection(), l.Info.InitOffset())
}

func (l *Loader) Term() (EntryPoint, bool, error) {
	return l.entry(l.Info.TermSection(), l.Info.TermOffset())
}

// String returns the NUL-terminated loader string at off.
func (l *Loader) String(off uint32) ([]byte, error) {
	s, err := view.CString(l.data, uint64(l.Info.LoaderStringsOffset())+uint64(off))
	if err != nil {
		return nil, errors.Wrapf(err, "loader string %#x", off)
	}
	return s, nil
}

func (l *Loader) parseImports() {
	libCount := uint64(l.Info.ImportedLibraryCount())
	symCount := uint64(l.Info.TotalImportedSymbolCount())
	l.libs, l.importsErr = view.Count[ImportedLibrary](l.data, LoaderInfoHeaderSize, libCount, ImportedLibrarySize)
	if l.importsErr != nil {
		l.importsErr = errors.Wrap(l.importsErr, "imported library table")
		return
	}
	symOff := LoaderInfoHeaderSize + libCount*ImportedLibrarySize
	l.imports, l.importsErr = view.Count[ImportedSymbol](l.data, symOff, symCount, ImportedSymbolSize)
	if l.importsErr != nil {
		l.importsErr = errors.Wrap(l.importsErr, "imported symbol table")
		return
	}
	var next uint64
	for i, lib := range l.libs {
		first, n := uint64(lib.FirstImportedSymbol()), uint64(lib.ImportedSymbolCount())
		if first != next {
			l.importsErr = errors.Wrapf(ErrInconsistentImportTable, "library %d starts at symbol %d, expected %d", i, first, next)
			return
		}
		next += n
	}
	if next != symCount {
		l.importsErr = errors.Wrapf(ErrInconsistentImportTable, "libraries cover %d of %d symbols", next, symCount)
	}
}

// Libraries returns the imported library table.
func (l *Loader) Libraries() ([]ImportedLibrary, error) {
	l.importsOnce.Do(l.parseImports)
	return l.libs, l.importsErr
}

// ImportedSymbols returns the imported symbol table.
func (l *Loader) ImportedSymbols() ([]ImportedSymbol, error) {
	l.importsOnce.Do(l.parseImports)
	return l.imports, l.importsErr
}

// LibraryImports returns the imported symbols owned by library i.
func (l *Loader) LibraryImports(i int) ([]ImportedSymbol, error) {
	libs, err := l.Libraries()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(libs) {
		return nil, errors.Wrapf(ErrInvalidIndex, "library %d of %d", i, len(libs))
	}
	first := libs[i].FirstImportedSymbol()
	return l.imports[first : first+libs[i].ImportedSymbolCount()], nil
}

func (l *Loader) LibraryName(lib ImportedLibrary) ([]byte, error) {
	return l.String(lib.NameOffset())
}

// Imports resolves every imported symbol name and its owning library.
func (l *Loader) Imports() ([]Import, error) {
	libs, err := l.Libraries()
	if err != nil {
		return nil, err
	}
	out := make([]Import, 0, len(l.imports))
	for li, lib := range libs {
		first := int(lib.FirstImportedSymbol())
		for j, sym := range l.imports[first : first+int(lib.ImportedSymbolCount())] {
			name, err := l.String(sym.NameOffset())
			if err != nil {
				return nil, errors.Wrapf(err, "imported symbol %d", first+j)
			}
			out = append(out, Import{
				Index:   first + j,
				Library: li,
				Name:    name,
				Class:   sym.Class(),
				Weak:    sym.Weak() || lib.Weak(),
			})
		}
	}
	return out, nil
}

func (l *Loader) parseRelocHeaders() {
	off := LoaderInfoHeaderSize +
		uint64(l.Info.ImportedLibraryCount())*ImportedLibrarySize +
		uint64(l.Info.TotalImportedSymbolCount())*ImportedSymbolSize
	l.relocs, l.relocsErr = view.Count[RelocHeader](l.data, off, uint64(l.Info.RelocSectionCount()), RelocHeaderSize)
	if l.relocsErr != nil {
		l.relocsErr = errors.Wrap(l.relocsErr, "relocation headers")
	}
}

// RelocationHeaders returns one header per section with load-time
// relocations. The headers follow the imported symbol table.
func (l *Loader) RelocationHeaders() ([]RelocHeader, error) {
	l.relocsOnce.Do(l.parseRelocHeaders)
	return l.relocs, l.relocsErr
}

// RelocationStream returns the raw instruction chunks for header i.
func (l *Loader) RelocationStream(i int) ([]byte, error) {
	hdrs, err := l.RelocationHeaders()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(hdrs) {
		return nil, errors.Wrapf(ErrInvalidIndex, "relocation header %d of %d", i, len(hdrs))
	}
	h := hdrs[i]
	off := uint64(l.Info.RelocInstrOffset()) + uint64(h.FirstRelocOffset())
	p, err := l.data.ReadAt(off, uint64(h.RelocCount())*2)
	if err != nil {
		return nil, errors.Wrapf(err, "relocations for section %d", h.SectionIndex())
	}
	return p, nil
}

// Relocations interprets the relocation stream of header i.
func (l *Loader) Relocations(i int) ([]Relocation, error) {
	p, err := l.RelocationStream(i)
	if err != nil {
		return nil, err
	}
	relocs, err := InterpretRelocations(p, l.MaxRelocations)
	if err != nil {
		return nil, errors.Wrapf(err, "relocations for section %d", l.relocs[i].SectionIndex())
	}
	return relocs, nil
}

// SectionRelocations interprets the relocations of the section with the
// given 0-based number. ok is false if the section has none.
func (l *Loader) SectionRelocations(number int) (relocs []Relocation, ok bool, err error) {
	hdrs, err := l.RelocationHeaders()
	if err != nil {
		return nil, false, err
	}
	for i, h := range hdrs {
		if int(h.SectionIndex()) == number {
			relocs, err = l.Relocations(i)
			return relocs, err == nil, err
		}
	}
	return nil, false, nil
}

func (l *Loader) parseExports() {
	power := l.Info.ExportHashTablePower()
	if power > MaxHashTablePower {
		l.exportsErr = errors.Wrapf(ErrInconsistentExportTable, "hash table power %d", power)
		return
	}
	count := uint64(l.Info.ExportedSymbolCount())
	slotCount := uint64(1) << power
	off := uint64(l.Info.ExportHashOffset())
	t := &exportTable{power: power}
	var err error
	if t.slots, err = view.Count[ExportHashSlot](l.data, off, slotCount, HashSlotSize); err != nil {
		l.exportsErr = errors.Wrap(err, "export hash table")
		return
	}
	off += slotCount * HashSlotSize
	if t.keys, err = view.Count[ExportKey](l.data, off, count, ExportKeySize); err != nil {
		l.exportsErr = errors.Wrap(err, "export key table")
		return
	}
	off += count * ExportKeySize
	if t.symbols, err = view.Count[ExportedSymbol](l.data, off, count, ExportedSymbolSize); err != nil {
		l.exportsErr = errors.Wrap(err, "exported symbol table")
		return
	}
	for i, slot := range t.slots {
		if n := uint64(slot.ChainCount()); n > 0 && uint64(slot.FirstIndex())+n > count {
			l.exportsErr = errors.Wrapf(ErrInconsistentExportTable, "slot %d chain [%d, +%d) exceeds %d exports", i, slot.FirstIndex(), n, count)
			return
		}
	}
	l.exports = t
}

func (l *Loader) exportTable() (*exportTable, error) {
	l.exportsOnce.Do(l.parseExports)
	return l.exports, l.exportsErr
}

// ExportCount returns the number of exported symbols.
func (l *Loader) ExportCount() (int, error) {
	t, err := l.exportTable()
	if err != nil {
		return 0, err
	}
	return len(t.symbols), nil
}

// Export returns exported symbol i. Export names are not NUL-terminated; the
// length comes from the symbol's export key.
func (l *Loader) Export(i int) (Export, error) {
	t, err := l.exportTable()
	if err != nil {
		return Export{}, err
	}
	if i < 0 || i >= len(t.symbols) {
		return Export{}, errors.Wrapf(ErrInvalidIndex, "export %d of %d", i, len(t.symbols))
	}
	sym, key := t.symbols[i], t.keys[i]
	off := uint64(l.Info.LoaderStringsOffset()) + uint64(sym.NameOffset())
	name, err := l.data.ReadAt(off, uint64(key.NameLength()))
	if err != nil {
		return Export{}, errors.Wrapf(err, "export %d name", i)
	}
	return Export{
		Index:   i,
		Name:    name,
		Class:   sym.Class(),
		Section: sym.SectionIndex(),
		Value:   sym.Value(),
		Slot:    HashSlot(key.Word(), t.power),
	}, nil
}

// Exports returns every exported symbol in table order.
func (l *Loader) Exports() ([]Export, error) {
	n, err := l.ExportCount()
	if err != nil {
		return nil, err
	}
	out := make([]Export, n)
	for i := range out {
		if out[i], err = l.Export(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LookupExport finds an exported symbol by name through the export hash
// table. A missing name is not an error.
func (l *Loader) LookupExport(name []byte) (Export, bool, error) {
	t, err := l.exportTable()
	if err != nil {
		return Export{}, false, err
	}
	word := HashWord(name)
	slot := t.slots[HashSlot(word, t.power)]
	first, n := int(slot.FirstIndex()), int(slot.ChainCount())
	for i := first; i < first+n; i++ {
		// the key holds the name length, so most misses never touch the
		// string table
		if t.keys[i].Word() != word {
			continue
		}
		e, err := l.Export(i)
		if err != nil {
			return Export{}, false, err
		}
		if bytes.Equal(e.Name, name) {
			return e, true, nil
		}
	}
	return Export{}, false, nil
}
