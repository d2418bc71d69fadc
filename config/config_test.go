package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/INLOpen/obsbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	yamlContent := `
engine:
  storage_path: "/tmp/test_data"
  stream_id_strategy: "uidHash"
  database_id: 7
  memtable:
    size_threshold_bytes: 8388608 # 8 MiB
  wal:
    purge_keep_segments: 8 # Override default of 4
`
	reader := strings.NewReader(yamlContent)
	cfg, err := Load(reader)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Check overridden values
	assert.Equal(t, "/tmp/test_data", cfg.Engine.StoragePath)
	assert.Equal(t, "uidHash", cfg.Engine.StreamIDStrategy)
	assert.Equal(t, core.StreamIDUidHash, cfg.Engine.ResolvedStreamIDStrategy())
	assert.Equal(t, 7, cfg.Engine.DatabaseID)
	assert.Equal(t, int64(8388608), cfg.Engine.Memtable.SizeThresholdBytes)
	assert.Equal(t, 8, cfg.Engine.WAL.PurgeKeepSegments)

	// Check a default value that was not overridden
	assert.True(t, cfg.Engine.UseCompression)
}

func TestLoad_PartialConfig(t *testing.T) {
	yamlContent := `
engine:
  wal:
    batch_size: 16
`
	reader := strings.NewReader(yamlContent)
	cfg, err := Load(reader)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Check overridden value
	assert.Equal(t, 16, cfg.Engine.WAL.BatchSize)
	// Check default values are still there
	assert.Equal(t, "./data", cfg.Engine.StoragePath)
	assert.Equal(t, "sequential", cfg.Engine.StreamIDStrategy)
	assert.Equal(t, core.StreamIDSequential, cfg.Engine.ResolvedStreamIDStrategy())
	assert.Equal(t, int64(4194304), cfg.Engine.Memtable.SizeThresholdBytes) // Check another default
}

func TestLoad_EmptyReader(t *testing.T) {
	// Test with nil reader
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "./data", cfg.Engine.StoragePath) // Check a default value

	// Test with empty string reader
	reader := strings.NewReader("")
	cfg, err = Load(reader)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "./data", cfg.Engine.StoragePath) // Check a default value
}

func TestLoad_InvalidYAML(t *testing.T) {
	yamlContent := `
engine:
  storage_path: "/tmp/test_data"
  this: is: invalid: yaml
`
	reader := strings.NewReader(yamlContent)
	_, err := Load(reader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config yaml")
}

// TestLoadConfig_FileIntegration is a small integration test to ensure
// the original LoadConfig function still works correctly with the filesystem.
func TestLoadConfig_FileIntegration(t *testing.T) {
	t.Run("FileExists", func(t *testing.T) {
		yamlContent := `
engine:
  database_id: 12345
`
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "config.yaml")
		err := os.WriteFile(configPath, []byte(yamlContent), 0644)
		require.NoError(t, err)

		cfg, err := LoadConfig(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, 12345, cfg.Engine.DatabaseID)
	})

	t.Run("FileDoesNotExist", func(t *testing.T) {
		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, "non_existent_config.yaml")

		cfg, err := LoadConfig(configPath)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		// Should return default value
		assert.Equal(t, 1, cfg.Engine.DatabaseID)
	})
}

func TestParseDuration(t *testing.T) {
	// Use a logger that discards output for this test
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultDuration := 10 * time.Second

	testCases := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{"ValidSeconds", "5s", 5 * time.Second},
		{"ValidMilliseconds", "500ms", 500 * time.Millisecond},
		{"ValidMinutes", "2m", 2 * time.Minute},
		{"EmptyString", "", defaultDuration},
		{"ZeroString", "0", defaultDuration},
		{"InvalidString", "5x", defaultDuration},
		{"JustNumber", "10", defaultDuration},
		{"NilLogger", "5x", defaultDuration}, // Should not panic with nil logger
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var testLogger *slog.Logger
			if tc.name != "NilLogger" {
				testLogger = logger
			}
			result := ParseDuration(tc.input, defaultDuration, testLogger)
			assert.Equal(t, tc.expected, result)
		})
	}
}
