// Package config reads the store's settings from the environment.
//
// Variables carry the PTREE_ prefix (PTREE_DISK_PATH, PTREE_LOG_SECTORS, ...).
// An optional .env file is loaded first; variables already set in the
// environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/logger"
)

const Prefix = "ptree"

type Backend string

const (
	BackendFile  Backend = "file"
	BackendAfero Backend = "afero"
	BackendGoose Backend = "goose"
	BackendMem   Backend = "mem"
)

type Config struct {
	DiskPath   string  `envconfig:"DISK_PATH" default:"ptree.img"`
	Backend    Backend `envconfig:"BACKEND" default:"file"`
	NumSectors uint64  `envconfig:"NUM_SECTORS" default:"65536"`
	LogSectors uint64  `envconfig:"LOG_SECTORS" default:"1024"`
	MaxTrees   uint64  `envconfig:"MAX_TREES" default:"512"`
	Workers    int     `envconfig:"WORKERS" default:"8"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	LogOutput string `envconfig:"LOG_OUTPUT"`
}

// Load reads envFiles (default ".env") if present and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendAfero, BackendGoose, BackendMem:
	default:
		return fmt.Errorf("%w: unknown backend %q", common.ErrInvalidArgument, c.Backend)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", common.ErrInvalidArgument)
	}
	_, err := common.MkLayout(c.NumSectors, c.LogSectors, c.MaxTrees)
	return err
}

func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.LogLevel, Format: c.LogFormat, OutputFile: c.LogOutput}
}
