// Package peftest assembles synthetic PEF containers for tests.
package peftest

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/pef"
)

type Section struct {
	// Name is stored in the section name table; empty means unnamed.
	Name      string
	Kind      pef.SectionKind
	Share     pef.ShareKind
	Address   uint32
	Alignment uint8
	// TotalSize and UnpackedSize default to len(Data).
	TotalSize    uint32
	UnpackedSize uint32
	// Data is the on-disk contents. Sections of kind Loader are generated
	// from Loader when it is set.
	Data   []byte
	Loader *Loader
}

type Entry struct {
	Section int32
	Offset  uint32
}

type Import struct {
	Name  string
	Class pef.SymbolClass
	Weak  bool
}

type Library struct {
	Name    string
	Weak    bool
	Symbols []Import
}

type Export struct {
	Name    string
	Class   pef.SymbolClass
	Section int16
	Value   uint32
}

type Relocs struct {
	Section uint16
	Chunks  []uint16
}

type Loader struct {
	// nil entries are written as absent (section -1)
	Main, Init, Term *Entry
	Libraries        []Library
	Exports          []Export
	// HashPower < 0 picks the smallest table with at least one slot per
	// export.
	HashPower int
	Relocs    []Relocs

	MutateInfo func(*pef.LoaderInfoHeaderData)
	MutateLibs func([]pef.ImportedLibraryData)
}

type Container struct {
	Arch     uint32
	Sections []Section
	// InstCount defaults to the number of leading instantiated-kind
	// sections.
	InstCount int

	MutateHeader func(*pef.ContainerHeaderData)
}

// stream packs big-endian records with struc.
type stream struct {
	bytes.Buffer
}

func (s *stream) pack(v interface{}) error {
	return struc.PackWithOrder(&s.Buffer, v, binary.BigEndian)
}

func (s *stream) align(n int) {
	for s.Len()%n != 0 {
		s.WriteByte(0)
	}
}

func (c *Container) Build() ([]byte, error) {
	arch := c.Arch
	if arch == 0 {
		arch = pef.ArchPowerPC
	}
	inst := c.InstCount
	if inst == 0 {
		for _, s := range c.Sections {
			if !s.Kind.Instantiated() {
				break
			}
			inst++
		}
	}
	contents := make([][]byte, len(c.Sections))
	for i, s := range c.Sections {
		contents[i] = s.Data
		if s.Kind == pef.KindLoader && s.Loader != nil {
			p, err := s.Loader.Build()
			if err != nil {
				return nil, errors.Wrapf(err, "section %d", i)
			}
			contents[i] = p
		}
	}

	var names stream
	nameOffsets := make([]int32, len(c.Sections))
	for i, s := range c.Sections {
		nameOffsets[i] = pef.NoSection
		if s.Name != "" {
			nameOffsets[i] = int32(names.Len())
			names.WriteString(s.Name)
			names.WriteByte(0)
		}
	}

	dataStart := pef.ContainerHeaderSize + len(c.Sections)*pef.SectionHeaderSize + names.Len()
	dataStart = (dataStart + 15) &^ 15
	offsets := make([]uint32, len(c.Sections))
	off := dataStart
	for i := range c.Sections {
		off = (off + 15) &^ 15
		offsets[i] = uint32(off)
		off += len(contents[i])
	}

	hdr := pef.ContainerHeaderData{
		Tag1:             pef.Tag1,
		Tag2:             pef.Tag2,
		Architecture:     arch,
		FormatVersion:    1,
		SectionCount:     uint16(len(c.Sections)),
		InstSectionCount: uint16(inst),
	}
	if c.MutateHeader != nil {
		c.MutateHeader(&hdr)
	}
	var out stream
	if err := out.pack(&hdr); err != nil {
		return nil, err
	}
	for i, s := range c.Sections {
		unpacked, total := s.UnpackedSize, s.TotalSize
		if unpacked == 0 {
			unpacked = uint32(len(contents[i]))
		}
		if total == 0 && s.Kind.Instantiated() {
			total = unpacked
		}
		share := s.Share
		if share == 0 {
			share = pef.ShareProcess
		}
		sh := pef.SectionHeaderData{
			NameOffset:      nameOffsets[i],
			DefaultAddress:  s.Address,
			TotalSize:       total,
			UnpackedSize:    unpacked,
			PackedSize:      uint32(len(contents[i])),
			ContainerOffset: offsets[i],
			SectionKind:     uint8(s.Kind),
			ShareKind:       uint8(share),
			Alignment:       s.Alignment,
		}
		if err := out.pack(&sh); err != nil {
			return nil, err
		}
	}
	out.Write(names.Bytes())
	for i := range c.Sections {
		out.align(16)
		out.Write(contents[i])
	}
	return out.Bytes(), nil
}

func (c *Container) MustBuild() []byte {
	p, err := c.Build()
	if err != nil {
		panic(err)
	}
	return p
}

func entry(e *Entry) (int32, uint32) {
	if e == nil {
		return pef.NoSection, 0
	}
	return e.Section, e.Offset
}

// Build lays out a loader section: info header, libraries, imported symbols,
// relocation headers, relocation instructions, strings, and the export hash,
// key and symbol tables.
func (l *Loader) Build() ([]byte, error) {
	var strs stream
	str := func(s string, terminate bool) uint32 {
		off := uint32(strs.Len())
		strs.WriteString(s)
		if terminate {
			strs.WriteByte(0)
		}
		return off
	}

	var libs []pef.ImportedLibraryData
	var syms []uint32
	for _, lib := range l.Libraries {
		d := pef.ImportedLibraryData{
			NameOffset:          str(lib.Name, true),
			ImportedSymbolCount: uint32(len(lib.Symbols)),
			FirstImportedSymbol: uint32(len(syms)),
		}
		if lib.Weak {
			d.Options |= pef.LibWeak
		}
		for _, sym := range lib.Symbols {
			class := uint32(sym.Class)
			if sym.Weak {
				class |= 0x80
			}
			syms = append(syms, class<<24|str(sym.Name, true))
		}
		libs = append(libs, d)
	}
	if l.MutateLibs != nil {
		l.MutateLibs(libs)
	}

	var relocArea stream
	var relocHdrs []pef.RelocHeaderData
	for _, r := range l.Relocs {
		relocHdrs = append(relocHdrs, pef.RelocHeaderData{
			SectionIndex:     r.Section,
			RelocCount:       uint32(len(r.Chunks)),
			FirstRelocOffset: uint32(relocArea.Len()),
		})
		for _, c := range r.Chunks {
			if err := relocArea.pack(&c); err != nil {
				return nil, err
			}
		}
	}

	power := l.HashPower
	if power < 0 {
		power = 0
		for 1<<power < len(l.Exports) {
			power++
		}
	}
	type keyed struct {
		Export
		word, slot uint32
	}
	exports := make([]keyed, len(l.Exports))
	for i, e := range l.Exports {
		w := pef.HashWord([]byte(e.Name))
		exports[i] = keyed{e, w, pef.HashSlot(w, uint32(power))}
	}
	sort.SliceStable(exports, func(i, j int) bool { return exports[i].slot < exports[j].slot })
	slots := make([]uint32, 1<<power)
	for i, e := range exports {
		if slots[e.slot] == 0 {
			slots[e.slot] = uint32(i)
		}
		slots[e.slot] += 1 << 18
	}
	expSyms := make([]pef.ExportedSymbolData, len(exports))
	for i, e := range exports {
		expSyms[i] = pef.ExportedSymbolData{
			ClassAndName: uint32(e.Class)<<24 | str(e.Name, false),
			SymbolValue:  e.Value,
			SectionIndex: e.Section,
		}
	}

	info := pef.LoaderInfoHeaderData{
		ImportedLibraryCount:     uint32(len(libs)),
		TotalImportedSymbolCount: uint32(len(syms)),
		RelocSectionCount:        uint32(len(relocHdrs)),
		ExportHashTablePower:     uint32(power),
		ExportedSymbolCount:      uint32(len(exports)),
	}
	info.MainSection, info.MainOffset = entry(l.Main)
	info.InitSection, info.InitOffset = entry(l.Init)
	info.TermSection, info.TermOffset = entry(l.Term)
	off := pef.LoaderInfoHeaderSize + len(libs)*pef.ImportedLibrarySize +
		len(syms)*pef.ImportedSymbolSize + len(relocHdrs)*pef.RelocHeaderSize
	info.RelocInstrOffset = uint32(off)
	off += relocArea.Len()
	info.LoaderStringsOffset = uint32(off)
	off += strs.Len()
	off = (off + 3) &^ 3
	info.ExportHashOffset = uint32(off)
	if l.MutateInfo != nil {
		l.MutateInfo(&info)
	}

	var out stream
	if err := out.pack(&info); err != nil {
		return nil, err
	}
	for i := range libs {
		if err := out.pack(&libs[i]); err != nil {
			return nil, err
		}
	}
	for i := range syms {
		if err := out.pack(&syms[i]); err != nil {
			return nil, err
		}
	}
	for i := range relocHdrs {
		if err := out.pack(&relocHdrs[i]); err != nil {
			return nil, err
		}
	}
	out.Write(relocArea.Bytes())
	out.Write(strs.Bytes())
	out.align(4)
	for i := range slots {
		if err := out.pack(&slots[i]); err != nil {
			return nil, err
		}
	}
	for _, e := range exports {
		if err := out.pack(&e.word); err != nil {
			return nil, err
		}
	}
	for i := range expSyms {
		if err := out.pack(&expSyms[i]); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
