// Package engine assembles execution blocks from declarative plans and
// runs them to completion, handling suspension, parallel runs, result
// formatting and metrics.
package engine

import (
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/wbrown/janus-aql/aql/executor"
	"sigs.k8s.io/yaml"
)

// Config holds the engine settings. The zero value of a field selects
// its default.
type Config struct {
	// BatchSize caps the rows of every block.
	BatchSize int `json:"batchSize,omitempty"`
	// MemoryLimit is the per-query memory limit in bytes; 0 is unlimited.
	MemoryLimit uint64 `json:"memoryLimit,omitempty"`
	// Workers bounds concurrent queries of RunParallel.
	Workers int `json:"workers,omitempty"`
	// Verbose enables execution annotations.
	Verbose bool `json:"verbose,omitempty"`
	// LogLevel is a logrus level name.
	LogLevel string `json:"logLevel,omitempty"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		BatchSize: executor.DefaultBatchSize,
		Workers:   runtime.NumCPU(),
		LogLevel:  "warning",
	}
}

// ParseConfig reads a YAML (or JSON) configuration and fills in
// defaults.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.Validate()
}

// LoadConfig reads the configuration file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	return ParseConfig(data)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	return c
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return errors.Newf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Workers <= 0 {
		return errors.Newf("workers must be positive, got %d", c.Workers)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// NewLogger returns a logrus logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(c.withDefaults().LogLevel); err == nil {
		l.SetLevel(level)
	}
	return l
}
