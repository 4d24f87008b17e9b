package main

import (
	"context"
	"fmt"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/lunixbochs/pef/go/loader"
)

func main() {
	app := &cli.Command{
		Name:      "pefdump",
		Usage:     "Inspect Preferred Executable Format containers",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "output format: text, json or yaml", Value: "text"},
			&cli.StringFlag{Name: "config", Usage: "path to a YAML defaults file", Value: configPath()},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log parse progress"},
			&cli.IntFlag{Name: "max-relocations", Usage: "limit on relocations per section", Value: 0},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			headerCmd(),
			sectionsCmd(),
			segmentsCmd(),
			librariesCmd(),
			importsCmd(),
			exportsCmd(),
			symbolsCmd(),
			relocsCmd(),
			lookupCmd(),
			expandCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is the state shared by every subcommand: resolved settings and
// the opened container.
type session struct {
	format string
	pef    *loader.PefLoader
}

func open(cmd *cli.Command) (*session, error) {
	cfg, err := LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	format, maxRelocs, verbose := cmd.String("format"), int(cmd.Int("max-relocations")), cmd.Bool("verbose")
	applyConfig(cmd, cfg, &format, &maxRelocs, &verbose)
	if _, ok := renderers[format]; !ok {
		return nil, cli.Exit(fmt.Sprintf("error: unknown format %q", format), 1)
	}
	colorize = format == "text" && isatty.IsTerminal(os.Stdout.Fd())

	logger := &log.Logger{Handler: clihandler.New(os.Stderr), Level: log.WarnLevel}
	if verbose {
		logger.Level = log.DebugLevel
	}
	if cmd.NArg() < 1 {
		return nil, cli.Exit("error: missing input file", 1)
	}
	path := cmd.Args().First()
	opts := []loader.Option{loader.WithLogger(logger.WithField("file", path))}
	if maxRelocs > 0 {
		opts = append(opts, loader.WithMaxRelocations(maxRelocs))
	}
	obj, err := loader.LoadFile(path, opts...)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("error: %s: %v", path, err), 1)
	}
	p, ok := obj.(*loader.PefLoader)
	if !ok {
		return nil, cli.Exit(fmt.Sprintf("error: %s: not a PEF container", path), 1)
	}
	return &session{format: format, pef: p}, nil
}
