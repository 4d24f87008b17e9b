package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mgutz/ansi"
	"gopkg.in/yaml.v3"
)

// report is anything a subcommand prints. JSON and YAML output use the struct
// tags; text output is hand formatted.
type report interface {
	text(w io.Writer)
}

// colorize is set when text output goes to a terminal.
var colorize bool

func paint(s, style string) string {
	if !colorize {
		return s
	}
	return ansi.Color(s, style)
}

var renderers = map[string]func(io.Writer, report) error{
	"text": func(w io.Writer, r report) error {
		r.text(w)
		return nil
	},
	"json": func(w io.Writer, r report) error {
		p, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", p)
		return err
	},
	"yaml": func(w io.Writer, r report) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	},
}

func (s *session) render(w io.Writer, r report) error {
	return renderers[s.format](w, r)
}

func table(w io.Writer, rows func(tw *tabwriter.Writer)) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	rows(tw)
	tw.Flush()
}

type headerReport struct {
	Architecture     string            `json:"architecture" yaml:"architecture"`
	FormatVersion    uint32            `json:"format_version" yaml:"format_version"`
	Timestamp        time.Time         `json:"timestamp" yaml:"timestamp"`
	OldDefVersion    uint32            `json:"old_def_version" yaml:"old_def_version"`
	OldImpVersion    uint32            `json:"old_imp_version" yaml:"old_imp_version"`
	CurrentVersion   uint32            `json:"current_version" yaml:"current_version"`
	SectionCount     uint16            `json:"section_count" yaml:"section_count"`
	InstSectionCount uint16            `json:"inst_section_count" yaml:"inst_section_count"`
	Kind             string            `json:"kind" yaml:"kind"`
	Entry            uint64            `json:"entry" yaml:"entry"`
	EntrySymbol      string            `json:"entry_symbol,omitempty" yaml:"entry_symbol,omitempty"`
	FileSize         uint64            `json:"file_size" yaml:"file_size"`
	TrailingBytes    uint64            `json:"trailing_bytes,omitempty" yaml:"trailing_bytes,omitempty"`
	Loader           *loaderInfoReport `json:"loader,omitempty" yaml:"loader,omitempty"`
	Warnings         []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type loaderInfoReport struct {
	ImportedLibraries uint32 `json:"imported_libraries" yaml:"imported_libraries"`
	ImportedSymbols   uint32 `json:"imported_symbols" yaml:"imported_symbols"`
	RelocatedSections uint32 `json:"relocated_sections" yaml:"relocated_sections"`
	RelocInstrOffset  uint32 `json:"reloc_instr_offset" yaml:"reloc_instr_offset"`
	StringsOffset     uint32 `json:"strings_offset" yaml:"strings_offset"`
	ExportHashOffset  uint32 `json:"export_hash_offset" yaml:"export_hash_offset"`
	ExportHashPower   uint32 `json:"export_hash_power" yaml:"export_hash_power"`
	ExportedSymbols   uint32 `json:"exported_symbols" yaml:"exported_symbols"`
}

func (h *headerReport) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "architecture:\t%s\n", h.Architecture)
		fmt.Fprintf(tw, "format version:\t%d\n", h.FormatVersion)
		fmt.Fprintf(tw, "timestamp:\t%s\n", h.Timestamp.Format(time.RFC3339))
		fmt.Fprintf(tw, "versions:\told def %#x, old imp %#x, current %#x\n", h.OldDefVersion, h.OldImpVersion, h.CurrentVersion)
		fmt.Fprintf(tw, "sections:\t%d (%d instantiated)\n", h.SectionCount, h.InstSectionCount)
		fmt.Fprintf(tw, "file size:\t%#x (%d trailing bytes)\n", h.FileSize, h.TrailingBytes)
		fmt.Fprintf(tw, "kind:\t%s\n", h.Kind)
		if h.EntrySymbol != "" {
			fmt.Fprintf(tw, "entry:\t%#x (%s)\n", h.Entry, h.EntrySymbol)
		} else {
			fmt.Fprintf(tw, "entry:\t%#x\n", h.Entry)
		}
	})
	if l := h.Loader; l != nil {
		table(w, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "loader:\t%d libraries, %d imports, %d exports (hash power %d)\n",
				l.ImportedLibraries, l.ImportedSymbols, l.ExportedSymbols, l.ExportHashPower)
			fmt.Fprintf(tw, "relocations:\t%d sections, instructions at %#x\n", l.RelocatedSections, l.RelocInstrOffset)
		})
	}
	for _, warn := range h.Warnings {
		fmt.Fprintf(w, "%s %s\n", paint("warning:", "yellow+b"), warn)
	}
}

type sectionReport struct {
	Index        int    `json:"index" yaml:"index"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind         string `json:"kind" yaml:"kind"`
	Share        string `json:"share" yaml:"share"`
	Address      uint32 `json:"address" yaml:"address"`
	TotalSize    uint32 `json:"total_size" yaml:"total_size"`
	UnpackedSize uint32 `json:"unpacked_size" yaml:"unpacked_size"`
	PackedSize   uint32 `json:"packed_size" yaml:"packed_size"`
	FileOffset   uint32 `json:"file_offset" yaml:"file_offset"`
	Alignment    uint64 `json:"alignment" yaml:"alignment"`
	Instantiated bool   `json:"instantiated" yaml:"instantiated"`
}

type sectionList []sectionReport

func (l sectionList) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "idx\tname\tkind\tshare\taddress\ttotal\tunpacked\tpacked\toffset\talign\tinst")
		for _, s := range l {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%#08x\t%#x\t%#x\t%#x\t%#x\t%d\t%v\n",
				s.Index, s.Name, s.Kind, s.Share, s.Address, s.TotalSize, s.UnpackedSize,
				s.PackedSize, s.FileOffset, s.Alignment, s.Instantiated)
		}
	})
}

type importReport struct {
	Index   int    `json:"index" yaml:"index"`
	Library string `json:"library" yaml:"library"`
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	Weak    bool   `json:"weak" yaml:"weak"`
}

type importList []importReport

func (l importList) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "idx\tlibrary\tname\tkind\tweak")
		for _, imp := range l {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\n", imp.Index, imp.Library, imp.Name, imp.Kind, imp.Weak)
		}
	})
}

type libraryReport struct {
	Index          int    `json:"index" yaml:"index"`
	Name           string `json:"name" yaml:"name"`
	OldImpVersion  uint32 `json:"old_imp_version" yaml:"old_imp_version"`
	CurrentVersion uint32 `json:"current_version" yaml:"current_version"`
	FirstImport    uint32 `json:"first_import" yaml:"first_import"`
	ImportCount    uint32 `json:"import_count" yaml:"import_count"`
	InitBefore     bool   `json:"init_before" yaml:"init_before"`
	Weak           bool   `json:"weak" yaml:"weak"`
}

type libraryList []libraryReport

func (l libraryList) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "idx\tname\tcurrent\told imp\timports\tflags")
		for _, lib := range l {
			var flags []string
			if lib.InitBefore {
				flags = append(flags, "init-before")
			}
			if lib.Weak {
				flags = append(flags, "weak")
			}
			fmt.Fprintf(tw, "%d\t%s\t%#x\t%#x\t%d..%d\t%s\n", lib.Index, lib.Name, lib.CurrentVersion,
				lib.OldImpVersion, lib.FirstImport, lib.FirstImport+lib.ImportCount, strings.Join(flags, ","))
		}
	})
}

type segmentReport struct {
	Section  int    `json:"section" yaml:"section"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Address  uint64 `json:"address" yaml:"address"`
	Size     uint64 `json:"size" yaml:"size"`
	Offset   uint64 `json:"offset" yaml:"offset"`
	FileSize uint64 `json:"file_size" yaml:"file_size"`
	Prot     string `json:"prot" yaml:"prot"`
	Overlaps []int  `json:"overlaps,omitempty" yaml:"overlaps,omitempty"`
}

type segmentList []segmentReport

func (l segmentList) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "sect\tname\taddress\tsize\toffset\tfilesz\tprot")
		for _, s := range l {
			fmt.Fprintf(tw, "%d\t%s\t%#08x\t%#x\t%#x\t%#x\t%s\n", s.Section, s.Name, s.Address, s.Size, s.Offset, s.FileSize, s.Prot)
		}
	})
	for _, s := range l {
		for _, o := range s.Overlaps {
			if o > s.Section {
				fmt.Fprintf(w, "%s section %d overlaps section %d\n", paint("warning:", "yellow+b"), s.Section, o)
			}
		}
	}
}

type exportReport struct {
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	Section string `json:"section" yaml:"section"`
	Offset  uint64 `json:"offset" yaml:"offset"`
	Address uint64 `json:"address" yaml:"address"`
}

type exportList []exportReport

func (l exportList) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "name\tkind\tsection\toffset\taddress")
		for _, e := range l {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%#x\t%#08x\n", e.Name, e.Kind, e.Section, e.Offset, e.Address)
		}
	})
}

type lookupReport struct {
	Name   string        `json:"name" yaml:"name"`
	Found  bool          `json:"found" yaml:"found"`
	Export *exportReport `json:"export,omitempty" yaml:"export,omitempty"`
}

func (r *lookupReport) text(w io.Writer) {
	if !r.Found {
		fmt.Fprintf(w, "%s: %s\n", r.Name, paint("not exported", "red"))
		return
	}
	exportList{*r.Export}.text(w)
}

type symbolReport struct {
	Index   int    `json:"index" yaml:"index"`
	Name    string `json:"name" yaml:"name"`
	Address uint64 `json:"address" yaml:"address"`
	Kind    string `json:"kind" yaml:"kind"`
	Scope   string `json:"scope" yaml:"scope"`
	Section string `json:"section" yaml:"section"`
	Weak    bool   `json:"weak,omitempty" yaml:"weak,omitempty"`
}

type symbolList []symbolReport

func (l symbolList) text(w io.Writer) {
	table(w, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "idx\taddress\tkind\tscope\tsection\tname")
		for _, s := range l {
			name := s.Name
			if s.Weak {
				name += " (weak)"
			}
			fmt.Fprintf(tw, "%d\t%#08x\t%s\t%s\t%s\t%s\n", s.Index, s.Address, s.Kind, s.Scope, s.Section, name)
		}
	})
}

type relocReport struct {
	Offset uint32 `json:"offset" yaml:"offset"`
	Target string `json:"target" yaml:"target"`
	Index  uint32 `json:"index" yaml:"index"`
	Opcode string `json:"opcode" yaml:"opcode"`
}

type sectionRelocs struct {
	Section     int           `json:"section" yaml:"section"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty"`
	ChunkCount  uint32        `json:"chunk_count" yaml:"chunk_count"`
	FirstOffset uint32        `json:"first_offset" yaml:"first_offset"`
	Chunks      []string      `json:"chunks,omitempty" yaml:"chunks,omitempty"`
	Relocations []relocReport `json:"relocations" yaml:"relocations"`
}

type relocList []sectionRelocs

func (l relocList) text(w io.Writer) {
	for _, s := range l {
		fmt.Fprintf(w, "section %d %s: %d chunks, %d relocations\n", s.Section, s.Name, s.ChunkCount, len(s.Relocations))
		if len(s.Chunks) > 0 {
			fmt.Fprintf(w, "  chunks: %s\n", strings.Join(s.Chunks, " "))
		}
		table(w, func(tw *tabwriter.Writer) {
			for _, r := range s.Relocations {
				fmt.Fprintf(tw, "  %#08x\t%s\t%d\t%s\n", r.Offset, r.Target, r.Index, r.Opcode)
			}
		})
	}
}
