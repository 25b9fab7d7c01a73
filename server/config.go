// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/molecula/rdfsail"
	"github.com/molecula/rdfsail/storage"
	"github.com/molecula/rdfsail/toml"
	"github.com/pkg/errors"
)

const (
	// DefaultDataDir is the default data directory.
	DefaultDataDir = "~/.rdfsail"

	// DefaultMaxExecutionTime is the default limit on how long a statement
	// iteration may stay open.
	DefaultMaxExecutionTime = 10 * time.Minute
)

// Config represents the configuration for the command.
type Config struct {
	// DataDir is the directory where the store keeps its files. An empty
	// value keeps everything in memory.
	DataDir string `toml:"data-dir"`

	// LogPath configures where logs are written. Stderr if empty.
	LogPath string `toml:"log-path"`

	// Verbose toggles verbose logging which can be useful for debugging.
	Verbose bool `toml:"verbose"`

	// MaxExecutionTime limits how long statement iterations opened by the
	// command's connections may stay open. Zero disables the limit.
	MaxExecutionTime toml.Duration `toml:"max-execution-time"`

	// Storage selects and tunes the storage backend.
	Storage storage.Config `toml:"storage"`

	Metric struct {
		// Bind is the address on which Prometheus metrics are served.
		// Metrics are not served if empty.
		Bind string `toml:"bind"`
	} `toml:"metric"`
}

// NewConfig returns an instance of Config with default options.
func NewConfig() *Config {
	c := &Config{
		DataDir:          DefaultDataDir,
		MaxExecutionTime: toml.Duration(DefaultMaxExecutionTime),
		Storage:          *storage.NewDefaultConfig(),
	}
	return c
}

// Validate checks the configuration for values the store would reject.
func (c *Config) Validate() error {
	if _, err := rdfsail.ParseIsolationLevel(c.Storage.MaxIsolationLevel); err != nil {
		return errors.Wrap(err, "storage.max-isolation-level")
	}
	found := false
	for _, name := range rdfsail.Backends() {
		if name == c.Storage.Backend {
			found = true
		}
	}
	switch {
	case !found:
		return fmt.Errorf("unknown storage backend %q, want one of %v", c.Storage.Backend, rdfsail.Backends())
	case c.Storage.Backend != storage.MemoryBackend && c.Storage.Backend != storage.CassandraBackend && c.DataDir == "":
		return fmt.Errorf("storage backend %q requires a data directory", c.Storage.Backend)
	case c.Storage.MaxPredicateTables < 0:
		return errors.New("storage.max-predicate-tables must not be negative")
	case c.Storage.BatchSize <= 0:
		return errors.New("storage.batch-size must be positive")
	case c.Storage.QueueCapacity <= 0:
		return errors.New("storage.queue-capacity must be positive")
	case c.Storage.Workers <= 0:
		return errors.New("storage.workers must be positive")
	case c.MaxExecutionTime < 0:
		return errors.New("max-execution-time must not be negative")
	}
	return nil
}

// expandDataDir replaces a leading "~/" in the data directory with the
// home directory.
func (c *Config) expandDataDir() error {
	prefix := "~" + string(filepath.Separator)
	if strings.HasPrefix(c.DataDir, prefix) {
		home := os.Getenv("HOME")
		if home == "" {
			return errors.New("data directory not specified and no home dir available")
		}
		c.DataDir = filepath.Join(home, strings.TrimPrefix(c.DataDir, prefix))
	}
	return nil
}
