package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/lunixbochs/pef/go/loader"
	"github.com/lunixbochs/pef/go/models"
	"github.com/lunixbochs/pef/go/pef"
)

// printableName renders a raw name for display; invalid UTF-8 is escaped.
func printableName(raw []byte) string {
	if !utf8.Valid(raw) {
		return models.Repr(raw, 32)
	}
	return string(raw)
}

func buildHeader(p *loader.PefLoader) (*headerReport, error) {
	h := p.Header()
	d, err := h.Decode()
	if err != nil {
		return nil, errors.Wrap(err, "container header")
	}
	st, err := p.SectionTable()
	if err != nil {
		return nil, err
	}
	r := &headerReport{
		Architecture:     h.Architecture().String(),
		FormatVersion:    d.FormatVersion,
		Timestamp:        h.Timestamp(),
		OldDefVersion:    d.OldDefVersion,
		OldImpVersion:    d.OldImpVersion,
		CurrentVersion:   d.CurrentVersion,
		SectionCount:     d.SectionCount,
		InstSectionCount: d.InstSectionCount,
		Kind:             p.Kind().String(),
		Entry:            p.Entry(),
		FileSize:         p.Size(),
		Warnings:         append([]string(nil), p.Warnings()...),
	}
	if end := st.MaxFileOffset(); end < r.FileSize {
		r.TrailingBytes = r.FileSize - end
	}
	if tab, err := p.SymbolTable(); err == nil && r.Entry != 0 {
		r.EntrySymbol = tab.Format(r.Entry)
	}
	ldr, err := p.Loader()
	switch {
	case errors.Is(err, pef.ErrNoLoaderSection):
	case err != nil:
		r.Warnings = append(r.Warnings, err.Error())
	default:
		info, err := ldr.Info.Decode()
		if err != nil {
			return nil, errors.Wrap(err, "loader info header")
		}
		r.Loader = &loaderInfoReport{
			ImportedLibraries: info.ImportedLibraryCount,
			ImportedSymbols:   info.TotalImportedSymbolCount,
			RelocatedSections: info.RelocSectionCount,
			RelocInstrOffset:  info.RelocInstrOffset,
			StringsOffset:     info.LoaderStringsOffset,
			ExportHashOffset:  info.ExportHashOffset,
			ExportHashPower:   info.ExportHashTablePower,
			ExportedSymbols:   info.ExportedSymbolCount,
		}
	}
	return r, nil
}

func buildSections(p *loader.PefLoader) (sectionList, error) {
	st, err := p.SectionTable()
	if err != nil {
		return nil, err
	}
	out := make(sectionList, 0, len(st.Sections))
	for i := range st.Sections {
		sec := &st.Sections[i]
		d, err := sec.Decode()
		if err != nil {
			return nil, errors.Wrapf(err, "section %d", sec.Number)
		}
		// unreadable names are already reported as warnings
		raw, _, _ := sec.Name()
		out = append(out, sectionReport{
			Index:        sec.Number + 1,
			Name:         printableName(raw),
			Kind:         pef.SectionKind(d.SectionKind).String(),
			Share:        pef.ShareKind(d.ShareKind).String(),
			Address:      d.DefaultAddress,
			TotalSize:    d.TotalSize,
			UnpackedSize: d.UnpackedSize,
			PackedSize:   d.PackedSize,
			FileOffset:   d.ContainerOffset,
			Alignment:    sec.Align(),
			Instantiated: sec.Instantiated,
		})
	}
	return out, nil
}

func buildSegments(p *loader.PefLoader) (segmentList, error) {
	segs, err := p.Segments()
	if err != nil {
		return nil, err
	}
	out := make(segmentList, len(segs))
	for i := range segs {
		s := &segs[i]
		out[i] = segmentReport{
			Section:  int(s.Section),
			Name:     s.Name,
			Address:  s.Addr,
			Size:     s.Size,
			Offset:   s.Off,
			FileSize: s.FileSize,
			Prot:     protString(s.Prot),
		}
		for j := range segs {
			if j != i && s.Size > 0 && segs[j].Size > 0 && s.Overlaps(&segs[j]) {
				out[i].Overlaps = append(out[i].Overlaps, int(segs[j].Section))
			}
		}
	}
	return out, nil
}

func protString(prot int) string {
	b := []byte("---")
	if prot&models.PROT_READ != 0 {
		b[0] = 'r'
	}
	if prot&models.PROT_WRITE != 0 {
		b[1] = 'w'
	}
	if prot&models.PROT_EXEC != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// optionalLoader returns nil without error for containers with no loader
// section.
func optionalLoader(p *loader.PefLoader) (*pef.Loader, error) {
	ldr, err := p.Loader()
	if errors.Is(err, pef.ErrNoLoaderSection) {
		return nil, nil
	}
	return ldr, err
}

func buildLibraries(p *loader.PefLoader) (libraryList, error) {
	ldr, err := optionalLoader(p)
	if ldr == nil || err != nil {
		return libraryList{}, err
	}
	libs, err := ldr.Libraries()
	if err != nil {
		return nil, err
	}
	out := make(libraryList, len(libs))
	for i, lib := range libs {
		d, err := lib.Decode()
		if err != nil {
			return nil, errors.Wrapf(err, "library %d", i)
		}
		name, err := ldr.LibraryName(lib)
		if err != nil {
			return nil, errors.Wrapf(err, "library %d name", i)
		}
		out[i] = libraryReport{
			Index:          i,
			Name:           printableName(name),
			OldImpVersion:  d.OldImpVersion,
			CurrentVersion: d.CurrentVersion,
			FirstImport:    d.FirstImportedSymbol,
			ImportCount:    d.ImportedSymbolCount,
			InitBefore:     d.Options&pef.LibInitBefore != 0,
			Weak:           d.Options&pef.LibWeak != 0,
		}
	}
	return out, nil
}

// buildRelocations interprets every relocation stream, or only the one for
// section when it is nonzero. chunks adds the raw instruction words.
func buildRelocations(p *loader.PefLoader, section models.SectionIndex, chunks bool) (relocList, error) {
	var want models.Section
	if section != 0 {
		sec, err := p.SectionByIndex(section)
		if err != nil {
			return nil, err
		}
		want = sec
	}
	ldr, err := optionalLoader(p)
	if ldr == nil || err != nil {
		return relocList{}, err
	}
	hdrs, err := ldr.RelocationHeaders()
	if err != nil {
		return nil, err
	}
	out := relocList{}
	for i, h := range hdrs {
		d, err := h.Decode()
		if err != nil {
			return nil, errors.Wrapf(err, "relocation header %d", i)
		}
		index := models.SectionIndex(d.SectionIndex) + 1
		if want != nil && want.Index() != index {
			continue
		}
		relocs, err := ldr.Relocations(i)
		if err != nil {
			return nil, err
		}
		r := sectionRelocs{
			Section:     int(index),
			ChunkCount:  d.RelocCount,
			FirstOffset: d.FirstRelocOffset,
			Relocations: relocReports(relocs),
		}
		if sec, err := p.SectionByIndex(index); err == nil {
			r.Name = sec.Name()
		}
		if chunks {
			stream, err := ldr.RelocationStream(i)
			if err != nil {
				return nil, err
			}
			for j := 0; j+1 < len(stream); j += 2 {
				r.Chunks = append(r.Chunks, fmt.Sprintf("%02x%02x", stream[j], stream[j+1]))
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func relocReports(relocs []pef.Relocation) []relocReport {
	out := make([]relocReport, len(relocs))
	for i, r := range relocs {
		index := r.Index
		if r.Target == pef.TargetSection {
			index++
		}
		out[i] = relocReport{
			Offset: r.Offset,
			Target: r.Target.String(),
			Index:  index,
			Opcode: r.Opcode.String(),
		}
	}
	return out
}
