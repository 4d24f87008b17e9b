package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config holds defaults read from pefdump's config.yaml. Flags set on the
// command line win.
type Config struct {
	Format         string `yaml:"format"`
	MaxRelocations *int   `yaml:"max_relocations"`
	Verbose        *bool  `yaml:"verbose"`
}

const configFile = "config.yaml"

// configPath finds the first config.yaml in the user or system config
// folders. An empty path means no config.
func configPath() string {
	dirs := configdir.New("lunixbochs", "pefdump")
	if c := dirs.QueryFolderContainsFile(configFile); c != nil {
		return filepath.Join(c.Path, configFile)
	}
	return ""
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	} else if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

func applyConfig(c *cli.Command, cfg Config, format *string, maxRelocs *int, verbose *bool) {
	if cfg.Format != "" && !c.IsSet("format") {
		*format = cfg.Format
	}
	if cfg.MaxRelocations != nil && !c.IsSet("max-relocations") {
		*maxRelocs = *cfg.MaxRelocations
	}
	if cfg.Verbose != nil && !c.IsSet("verbose") {
		*verbose = *cfg.Verbose
	}
}
