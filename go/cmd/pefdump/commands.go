package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/lunixbochs/pef/go/models"
)

func headerCmd() *cli.Command {
	return &cli.Command{
		Name:      "header",
		Usage:     "Print the container header",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			r, err := buildHeader(s.pef)
			if err != nil {
				return err
			}
			return s.render(os.Stdout, r)
		},
	}
}

func sectionsCmd() *cli.Command {
	return &cli.Command{
		Name:      "sections",
		Usage:     "List the section table",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			out, err := buildSections(s.pef)
			if err != nil {
				return err
			}
			return s.render(os.Stdout, out)
		},
	}
}

func segmentsCmd() *cli.Command {
	return &cli.Command{
		Name:      "segments",
		Usage:     "List the memory image of instantiated sections",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			out, err := buildSegments(s.pef)
			if err != nil {
				return err
			}
			return s.render(os.Stdout, out)
		},
	}
}

func librariesCmd() *cli.Command {
	return &cli.Command{
		Name:      "libraries",
		Usage:     "List imported libraries",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			out, err := buildLibraries(s.pef)
			if err != nil {
				return err
			}
			return s.render(os.Stdout, out)
		},
	}
}

func importsCmd() *cli.Command {
	return &cli.Command{
		Name:      "imports",
		Usage:     "List imported libraries and symbols",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			imports, err := s.pef.Imports()
			if err != nil {
				return err
			}
			out := make(importList, len(imports))
			for i, imp := range imports {
				out[i] = importReport{
					Index:   i,
					Library: imp.Library,
					Name:    imp.Name,
					Kind:    imp.Kind.String(),
					Weak:    imp.Weak,
				}
			}
			return s.render(os.Stdout, out)
		},
	}
}

func exportReportOf(e models.Export) exportReport {
	return exportReport{
		Name:    e.Name,
		Kind:    e.Kind.String(),
		Section: e.Section.String(),
		Offset:  e.Offset,
		Address: e.Address,
	}
}

func exportsCmd() *cli.Command {
	return &cli.Command{
		Name:      "exports",
		Usage:     "List exported symbols in table order",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			exports, err := s.pef.Exports()
			if err != nil {
				return err
			}
			out := make(exportList, len(exports))
			for i, e := range exports {
				out[i] = exportReportOf(e)
			}
			return s.render(os.Stdout, out)
		},
	}
}

func lookupCmd() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Usage:     "Find an exported symbol through the export hash table",
		ArgsUsage: "<file> <name>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return cli.Exit("error: lookup needs a file and a symbol name", 1)
			}
			s, err := open(cmd)
			if err != nil {
				return err
			}
			name := cmd.Args().Get(1)
			e, ok, err := s.pef.LookupExport(name)
			if err != nil {
				return err
			}
			r := &lookupReport{Name: name, Found: ok}
			if ok {
				er := exportReportOf(e)
				r.Export = &er
			}
			if err := s.render(os.Stdout, r); err != nil {
				return err
			}
			if !ok {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func symbolsCmd() *cli.Command {
	return &cli.Command{
		Name:      "symbols",
		Usage:     "List the combined symbol table",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "defined", Usage: "omit undefined (imported) symbols"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			syms, err := s.pef.Symbols()
			if err != nil {
				return err
			}
			var out symbolList
			for _, sym := range syms {
				if cmd.Bool("defined") && sym.Undefined() {
					continue
				}
				out = append(out, symbolReport{
					Index:   int(sym.Index),
					Name:    sym.Name,
					Address: sym.Start,
					Kind:    sym.Kind.String(),
					Scope:   sym.Scope.String(),
					Section: sym.Section.String(),
					Weak:    sym.Weak,
				})
			}
			return s.render(os.Stdout, out)
		},
	}
}

func relocsCmd() *cli.Command {
	return &cli.Command{
		Name:      "relocs",
		Usage:     "Interpret relocation instructions",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "section", Aliases: []string{"s"}, Usage: "only this section (1-based index)"},
			&cli.BoolFlag{Name: "chunks", Usage: "include the raw instruction words"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			var only models.SectionIndex
			if cmd.IsSet("section") {
				only = models.SectionIndex(cmd.Int("section"))
				if _, err := s.pef.SectionByIndex(only); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}
			out, err := buildRelocations(s.pef, only, cmd.Bool("chunks"))
			if err != nil {
				return err
			}
			return s.render(os.Stdout, out)
		},
	}
}

func expandCmd() *cli.Command {
	return &cli.Command{
		Name:      "expand",
		Usage:     "Write the unpacked contents of a section",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "section", Aliases: []string{"s"}, Usage: "section to expand (1-based index)", Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write raw bytes to this file instead of a hex dump"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			sec, err := s.pef.SectionByIndex(models.SectionIndex(cmd.Int("section")))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			data, err := sec.UnpackedData()
			if err != nil {
				return err
			}
			if out := cmd.String("out"); out != "" {
				return os.WriteFile(out, data, 0644)
			}
			for _, line := range models.HexDump(sec.Address(), data, 32) {
				fmt.Println(line)
			}
			return nil
		},
	}
}
