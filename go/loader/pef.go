package loader

import (
	"encoding/binary"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/apex/log"
	"github.com/elastic/go-freelru"
	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/buffer"
	"github.com/lunixbochs/pef/go/models"
	"github.com/lunixbochs/pef/go/pef"
)

// PefLoader exposes a PEF container through models.Object. The header is
// parsed up front; sections, the loader section and symbols are parsed on
// first use and kept. A damaged loader section only fails the accessors that
// need it.
type PefLoader struct {
	LoaderHeader
	buf    buffer.Buffer
	header pef.ContainerHeader
	log    log.Interface
	opts   options

	sectionsOnce sync.Once
	table        *pef.SectionTable
	sections     []models.Section
	warnings     []string
	sectionsErr  error

	loaderOnce sync.Once
	ldr        *pef.Loader
	loaderErr  error

	symbolsOnce sync.Once
	symbols     []models.Symbol
	symtab      *models.SymbolTable
	symbolsErr  error

	exports *freelru.SyncedLRU[string, exportResult]
}

var _ models.Object = (*PefLoader)(nil)

type exportResult struct {
	export models.Export
	found  bool
}

func MatchPef(r io.ReaderAt) bool {
	return pef.Match(getMagic(r, 8))
}

// NewPefLoader reads r into memory and parses the container header.
func NewPefLoader(r io.ReaderAt, opts ...Option) (*PefLoader, error) {
	buf, err := buffer.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewPefLoaderBuffer(buf, opts...)
}

func NewPefLoaderBuffer(buf buffer.Buffer, opts ...Option) (*PefLoader, error) {
	o := newOptions(opts)
	hdr, err := pef.ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	exports, err := freelru.NewSynced[string, exportResult](o.symbolCacheSize, hashName)
	if err != nil {
		return nil, errors.Wrap(err, "export cache")
	}
	return &PefLoader{
		LoaderHeader: LoaderHeader{
			arch:      hdr.Architecture().String(),
			bits:      32,
			byteOrder: binary.BigEndian,
			os:        "macos",
		},
		buf:     buf,
		header:  hdr,
		log:     o.log,
		opts:    o,
		exports: exports,
	}, nil
}

func hashName(name string) uint32 {
	return pef.HashWord([]byte(name))
}

// Size is the length of the container in bytes.
func (p *PefLoader) Size() uint64 {
	return p.buf.Len()
}

func (p *PefLoader) Header() pef.ContainerHeader {
	return p.header
}

func (p *PefLoader) parseSections() {
	table, err := pef.ParseSections(p.buf, p.header)
	if err != nil {
		p.sectionsErr = err
		return
	}
	p.table = table
	p.warnings = append(p.warnings, table.Warnings...)
	p.sections = make([]models.Section, len(table.Sections))
	for i := range table.Sections {
		sec := &table.Sections[i]
		s := &pefSection{sec: sec}
		name, ok, err := sec.Name()
		switch {
		case err != nil:
			p.warnings = append(p.warnings, err.Error())
		case ok && !utf8.Valid(name):
			p.warnings = append(p.warnings, errors.Wrapf(pef.ErrNonUTF8Name, "section %d", i).Error())
		case ok:
			s.name = string(name)
		}
		p.sections[i] = s
	}
	for _, w := range p.warnings {
		p.log.Warn(w)
	}
	p.log.WithFields(log.Fields{
		"sections":     len(table.Sections),
		"instantiated": table.InstCount,
	}).Debug("parsed section table")
}

// SectionTable returns the parsed section table.
func (p *PefLoader) SectionTable() (*pef.SectionTable, error) {
	p.sectionsOnce.Do(p.parseSections)
	return p.table, p.sectionsErr
}

// Warnings lists layout oddities found while parsing the section table.
func (p *PefLoader) Warnings() []string {
	p.sectionsOnce.Do(p.parseSections)
	return p.warnings
}

func (p *PefLoader) parseLoader() {
	table, err := p.SectionTable()
	if err != nil {
		p.loaderErr = err
		return
	}
	ldr, err := pef.ParseLoader(p.buf, table)
	if err != nil {
		p.loaderErr = err
		return
	}
	ldr.MaxRelocations = p.opts.maxRelocations
	p.ldr = ldr
	p.log.WithFields(log.Fields{
		"section":   ldr.Section.Number,
		"libraries": ldr.Info.ImportedLibraryCount(),
		"imports":   ldr.Info.TotalImportedSymbolCount(),
		"exports":   ldr.Info.ExportedSymbolCount(),
	}).Debug("parsed loader section")
}

// Loader returns the parsed loader section, or an error wrapping
// pef.ErrNoLoaderSection if the container has none.
func (p *PefLoader) Loader() (*pef.Loader, error) {
	p.loaderOnce.Do(p.parseLoader)
	return p.ldr, p.loaderErr
}

// optionalLoader treats a missing loader section as empty.
func (p *PefLoader) optionalLoader() (*pef.Loader, error) {
	ldr, err := p.Loader()
	if errors.Is(err, pef.ErrNoLoaderSection) {
		return nil, nil
	}
	return ldr, err
}

func (p *PefLoader) entry(get func(*pef.Loader) (pef.EntryPoint, bool, error)) (pef.EntryPoint, bool, error) {
	ldr, err := p.optionalLoader()
	if ldr == nil || err != nil {
		return pef.EntryPoint{}, false, err
	}
	return get(ldr)
}

func (p *PefLoader) Main() (pef.EntryPoint, bool, error) { return p.entry((*pef.Loader).Main) }
func (p *PefLoader) Init() (pef.EntryPoint, bool, error) { return p.entry((*pef.Loader).Init) }
func (p *PefLoader) Term() (pef.EntryPoint, bool, error) { return p.entry((*pef.Loader).Term) }

// Entry returns the address of the main symbol, or 0.
func (p *PefLoader) Entry() uint64 {
	if ep, ok, err := p.Main(); ok && err == nil {
		return uint64(ep.Address)
	}
	return 0
}

func (p *PefLoader) Kind() models.ObjectKind {
	ldr, err := p.Loader()
	if err != nil {
		return models.UNKNOWN
	}
	if _, ok, _ := ldr.Main(); ok {
		return models.EXEC
	}
	return models.DYN
}

func (p *PefLoader) RelativeAddressBase() uint64 {
	return 0
}

func (p *PefLoader) HasDebugSymbols() bool {
	table, err := p.SectionTable()
	if err != nil {
		return false
	}
	for i := range table.Sections {
		switch table.Sections[i].Kind() {
		case pef.KindDebug, pef.KindTraceback:
			return true
		}
	}
	return false
}

func (p *PefLoader) Sections() ([]models.Section, error) {
	p.sectionsOnce.Do(p.parseSections)
	return p.sections, p.sectionsErr
}

func (p *PefLoader) SectionByIndex(i models.SectionIndex) (models.Section, error) {
	sections, err := p.Sections()
	if err != nil {
		return nil, err
	}
	if i < 1 || int(i) > len(sections) {
		return nil, errors.Wrapf(pef.ErrInvalidIndex, "section %d of %d", i, len(sections))
	}
	return sections[i-1], nil
}

func (p *PefLoader) SectionByName(name string) (models.Section, bool, error) {
	table, err := p.SectionTable()
	if err != nil {
		return nil, false, err
	}
	sec, ok := table.ByName([]byte(name))
	if !ok {
		return nil, false, nil
	}
	return p.sections[sec.Number], true, nil
}

// Segments returns one segment per instantiated section.
func (p *PefLoader) Segments() ([]models.SegmentData, error) {
	table, err := p.SectionTable()
	if err != nil {
		return nil, err
	}
	var ret []models.SegmentData
	for i := range table.Sections {
		sec := &table.Sections[i]
		if !sec.Instantiated {
			continue
		}
		off, size := sec.FileRange()
		ret = append(ret, models.SegmentData{
			Name:     p.sections[i].Name(),
			Section:  models.SectionIndex(sec.Number + 1),
			Off:      uint64(off),
			FileSize: uint64(size),
			Addr:     uint64(sec.DefaultAddress()),
			Size:     uint64(sec.TotalSize()),
			Align:    sec.Align(),
			Prot:     sectionProt(sec.Kind()),
			DataFunc: sec.Image,
		})
	}
	return ret, nil
}

// SectionRelocations interprets the relocation stream of section i. Sections
// without relocations return an empty list.
func (p *PefLoader) SectionRelocations(i models.SectionIndex) ([]pef.Relocation, error) {
	if _, err := p.SectionByIndex(i); err != nil {
		return nil, err
	}
	ldr, err := p.optionalLoader()
	if ldr == nil || err != nil {
		return nil, err
	}
	relocs, _, err := ldr.SectionRelocations(int(i) - 1)
	return relocs, err
}

func symbolKind(c pef.SymbolClass) models.SymbolKind {
	switch c {
	case pef.ClassCode, pef.ClassGlue:
		return models.SymbolText
	case pef.ClassData, pef.ClassTVector, pef.ClassTOC:
		return models.SymbolData
	}
	return models.SymbolUnknown
}

func symbolName(raw []byte, what string, i int) (string, error) {
	if !utf8.Valid(raw) {
		return "", errors.Wrapf(pef.ErrNonUTF8Name, "%s %d", what, i)
	}
	return string(raw), nil
}

func (p *PefLoader) export(e pef.Export) (models.Export, error) {
	name, err := symbolName(e.Name, "export", e.Index)
	if err != nil {
		return models.Export{}, err
	}
	out := models.Export{
		Name:   name,
		Kind:   symbolKind(e.Class),
		Offset: uint64(e.Value),
	}
	switch e.Section {
	case pef.AbsoluteSection:
		out.Section.Kind = models.SymbolSectionAbsolute
		out.Address = uint64(e.Value)
	case pef.ReexportedSection:
		out.Section.Kind = models.SymbolSectionUndefined
	default:
		sec, err := p.table.Section(int(e.Section))
		if err != nil {
			return models.Export{}, errors.Wrapf(err, "export %q", name)
		}
		out.Section = models.SymbolSection{Kind: models.SymbolSectionIndex, Index: models.SectionIndex(sec.Number + 1)}
		out.Address = uint64(sec.DefaultAddress()) + uint64(e.Value)
	}
	return out, nil
}

func (p *PefLoader) Exports() ([]models.Export, error) {
	ldr, err := p.optionalLoader()
	if ldr == nil || err != nil {
		return nil, err
	}
	exports, err := ldr.Exports()
	if err != nil {
		return nil, err
	}
	ret := make([]models.Export, 0, len(exports))
	for _, e := range exports {
		out, err := p.export(e)
		if err != nil {
			return nil, err
		}
		ret = append(ret, out)
	}
	return ret, nil
}

// LookupExport finds an exported symbol through the container's export hash
// table. Results, including misses, are cached.
func (p *PefLoader) LookupExport(name string) (models.Export, bool, error) {
	if r, ok := p.exports.Get(name); ok {
		return r.export, r.found, nil
	}
	ldr, err := p.optionalLoader()
	if ldr == nil || err != nil {
		return models.Export{}, false, err
	}
	e, found, err := ldr.LookupExport([]byte(name))
	if err != nil {
		return models.Export{}, false, err
	}
	var r exportResult
	if found {
		if r.export, err = p.export(e); err != nil {
			return models.Export{}, false, err
		}
		r.found = true
	}
	p.exports.Add(name, r)
	return r.export, r.found, nil
}

func (p *PefLoader) Imports() ([]models.Import, error) {
	ldr, err := p.optionalLoader()
	if ldr == nil || err != nil {
		return nil, err
	}
	imports, err := ldr.Imports()
	if err != nil {
		return nil, err
	}
	libs, err := ldr.Libraries()
	if err != nil {
		return nil, err
	}
	libNames := make([]string, len(libs))
	for i, lib := range libs {
		raw, err := ldr.LibraryName(lib)
		if err != nil {
			return nil, errors.Wrapf(err, "library %d", i)
		}
		if libNames[i], err = symbolName(raw, "library", i); err != nil {
			return nil, err
		}
	}
	ret := make([]models.Import, len(imports))
	for i, imp := range imports {
		name, err := symbolName(imp.Name, "import", imp.Index)
		if err != nil {
			return nil, err
		}
		ret[i] = models.Import{
			Library: libNames[imp.Library],
			Name:    name,
			Kind:    symbolKind(imp.Class),
			Weak:    imp.Weak,
		}
	}
	return ret, nil
}

func (p *PefLoader) buildSymbols() {
	ldr, err := p.optionalLoader()
	if err != nil || ldr == nil {
		p.symbolsErr = err
		p.symtab = models.NewSymbolTable(nil)
		return
	}
	var syms []models.Symbol
	add := func(sym models.Symbol) {
		sym.Index = models.SymbolIndex(len(syms) + 1)
		syms = append(syms, sym)
	}
	exports, err := p.Exports()
	if err != nil {
		p.symbolsErr = err
		return
	}
	for _, e := range exports {
		add(models.Symbol{
			Name:    e.Name,
			Start:   e.Address,
			End:     e.Address,
			Kind:    e.Kind,
			Scope:   models.ScopeDynamic,
			Section: e.Section,
			Dynamic: true,
		})
	}
	imports, err := p.Imports()
	if err != nil {
		p.symbolsErr = err
		return
	}
	for _, imp := range imports {
		add(models.Symbol{
			Name:    imp.Name,
			Kind:    imp.Kind,
			Scope:   models.ScopeDynamic,
			Section: models.SymbolSection{Kind: models.SymbolSectionUndefined},
			Dynamic: true,
			Weak:    imp.Weak,
		})
	}
	for _, ep := range []struct {
		name string
		get  func(*pef.Loader) (pef.EntryPoint, bool, error)
	}{
		{"__main", (*pef.Loader).Main},
		{"__init", (*pef.Loader).Init},
		{"__term", (*pef.Loader).Term},
	} {
		e, ok, err := ep.get(ldr)
		if err != nil {
			p.symbolsErr = errors.Wrap(err, ep.name)
			return
		}
		if !ok {
			continue
		}
		kind := models.SymbolData
		if p.table.Sections[e.Section].Kind() == pef.KindCode {
			kind = models.SymbolText
		}
		add(models.Symbol{
			Name:    ep.name,
			Start:   uint64(e.Address),
			End:     uint64(e.Address),
			Kind:    kind,
			Scope:   models.ScopeCompilation,
			Section: models.SymbolSection{Kind: models.SymbolSectionIndex, Index: models.SectionIndex(e.Section + 1)},
		})
	}
	p.symbols = syms
	p.symtab = models.NewSymbolTable(syms)
}

// Symbols lists exports in table order, then imports, then the main, init
// and term entry points that are present.
func (p *PefLoader) Symbols() ([]models.Symbol, error) {
	p.symbolsOnce.Do(p.buildSymbols)
	return p.symbols, p.symbolsErr
}

func (p *PefLoader) SymbolTable() (*models.SymbolTable, error) {
	p.symbolsOnce.Do(p.buildSymbols)
	return p.symtab, p.symbolsErr
}

func (p *PefLoader) SymbolByIndex(i models.SymbolIndex) (models.Symbol, error) {
	syms, err := p.Symbols()
	if err != nil {
		return models.Symbol{}, err
	}
	if i < 1 || int(i) > len(syms) {
		return models.Symbol{}, errors.Wrapf(pef.ErrInvalidIndex, "symbol %d of %d", i, len(syms))
	}
	return syms[i-1], nil
}

func (p *PefLoader) SymbolByName(name string) (models.Symbol, bool, error) {
	tab, err := p.SymbolTable()
	if err != nil {
		return models.Symbol{}, false, err
	}
	sym, ok := tab.Lookup(name)
	return sym, ok, nil
}
