package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql/executor"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("batchSize: 10\nlogLevel: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, uint64(0), cfg.MemoryLimit)
	assert.Equal(t, logrus.DebugLevel, cfg.NewLogger().GetLevel())

	cfg, err = ParseConfig([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, executor.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, logrus.WarnLevel, cfg.NewLogger().GetLevel())
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unknown field", "batches: 3\n", "parsing config"},
		{"negative batch", "batchSize: -1\n", "batch size must be positive"},
		{"negative workers", "workers: -2\n", "workers must be positive"},
		{"bad level", "logLevel: loud\n", "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memoryLimit: 4096\nverbose: true\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), cfg.MemoryLimit)
	assert.True(t, cfg.Verbose)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}
