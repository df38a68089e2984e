// Package config loads the YAML-backed configuration for the accounts
// engine, the way cmd/warren's apply command loads its own YAML resources
// via gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"github.com/magicblock-labs/go-accountsdb/internal/accountsdb"
	"github.com/magicblock-labs/go-accountsdb/internal/storage"
	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables an operator sets to run the engine.
type Config struct {
	DataDir string `yaml:"dataDir"`

	DBSize    uint64 `yaml:"dbSize"`
	BlockSize uint32 `yaml:"blockSize"`

	// IndexMapSize is retained as a documented but currently unused knob:
	// bbolt grows its own backing mmap automatically as the database
	// grows, unlike LMDB's fixed mapsize that the original configures
	// up front. Kept so operators migrating a config from the original
	// engine have a recognized field rather than a silent parse error.
	IndexMapSize uint64 `yaml:"indexMapSize"`

	SnapshotFrequency        uint64 `yaml:"snapshotFrequency"`
	MaxSnapshots             int    `yaml:"maxSnapshots"`
	PreemptiveFlushThreshold uint64 `yaml:"preemptiveFlushThreshold"`

	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		DataDir:                  "./data",
		DBSize:                   storage.MinDBSize,
		BlockSize:                uint32(storage.Block256),
		SnapshotFrequency:        432000,
		MaxSnapshots:             4,
		PreemptiveFlushThreshold: 5,
		LogLevel:                 "info",
		MetricsAddr:              ":9090",
	}
}

// Load reads and parses a YAML configuration file, filling in defaults for
// any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every field is within the allowed range, matching
// the original's startup-time abort on a zero snapshot_frequency and on an
// invalid block size.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: dataDir must not be empty")
	}
	if !storage.BlockSize(c.BlockSize).Valid() {
		return fmt.Errorf("config: blockSize %d invalid (must be 128, 256, or 512)", c.BlockSize)
	}
	if c.SnapshotFrequency == 0 {
		return fmt.Errorf("config: snapshotFrequency must be > 0")
	}
	if c.MaxSnapshots <= 0 {
		return fmt.Errorf("config: maxSnapshots must be > 0")
	}
	return nil
}

// Params converts the validated config into the internal parameters
// accountsdb.Open expects.
func (c *Config) Params() accountsdb.Params {
	return accountsdb.Params{
		DBSize:                   c.DBSize,
		BlockSize:                storage.BlockSize(c.BlockSize),
		SnapshotFrequency:        c.SnapshotFrequency,
		MaxSnapshots:             c.MaxSnapshots,
		PreemptiveFlushThreshold: c.PreemptiveFlushThreshold,
	}
}
