package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/INLOpen/obsbase/core"
	"gopkg.in/yaml.v3"
)

// MemtableConfig holds memtable-specific configurations.
type MemtableConfig struct {
	SizeThresholdBytes int64  `yaml:"size_threshold_bytes"`
	FlushInterval      string `yaml:"flush_interval"`
}

// SSTableConfig holds sstable-specific configurations.
type SSTableConfig struct {
	BlockSizeBytes    int64   `yaml:"block_size_bytes"`
	Compression       string  `yaml:"compression"`
	BloomFilterFPRate float64 `yaml:"bloom_filter_fp_rate"`
}

// CacheConfig holds cache-specific configurations.
type CacheConfig struct {
	BlockCacheCapacity int `yaml:"block_cache_capacity"`
}

// WALConfig holds Write-Ahead Log specific configurations.
type WALConfig struct {
	SyncMode            string `yaml:"sync_mode"`
	BatchSize           int    `yaml:"batch_size"`
	FlushInterval       string `yaml:"flush_interval"`
	MaxSegmentSizeBytes int64  `yaml:"max_segment_size_bytes"`
	PurgeKeepSegments   int    `yaml:"purge_keep_segments"`
}

// CompactionConfig is loaded from the `compaction` block. No component reads
// CheckInterval: there is no background pass, and the series-GC pass
// (obsstore.Compact) runs only when called; there is no leveled merge.
type CompactionConfig struct {
	CheckInterval string `yaml:"check_interval"`
}

// EngineConfig holds the `start(config)` options named in spec.md §6.
type EngineConfig struct {
	// StoragePath is checked before the engine opens it: an empty path or
	// one containing a ".." segment is rejected. It is not checked against
	// any root directory.
	StoragePath string `yaml:"storage_path"`

	// MemoryCacheKB is passed to engine.Options, which defaults 0 to 1024.
	// No sub-store reads it, so it does not size any cache.
	MemoryCacheKB int `yaml:"memory_cache_kb"`

	// AutoCommitBufferBytes is the batch size before an implicit commit;
	// 0 means engine default.
	AutoCommitBufferBytes int64 `yaml:"auto_commit_buffer_bytes"`

	// UseCompression enables page-level compression. Immutable after the
	// store is created.
	UseCompression bool `yaml:"use_compression"`

	// StreamIDStrategy selects how registry.Store.GetOrCreateStream assigns ids:
	// "sequential" or "uidHash".
	StreamIDStrategy string `yaml:"stream_id_strategy"`

	// DatabaseID tags this store instance uniquely across every store
	// mounted on the host. Not a singleton: carried per Engine, never global.
	DatabaseID int `yaml:"database_id"`

	// IndexObsLocation opts into a spatial index on per-observation
	// sampling geometry. Out of scope for this module; the flag is
	// accepted and recorded but never acted on.
	IndexObsLocation bool `yaml:"index_obs_location"`

	RetentionPeriod      string `yaml:"retention_period"`
	MetadataSyncInterval string `yaml:"metadata_sync_interval"`
	CheckpointInterval   string `yaml:"checkpoint_interval"`

	Memtable   MemtableConfig   `yaml:"memtable"`
	SSTable    SSTableConfig    `yaml:"sstable"`
	Cache      CacheConfig      `yaml:"cache"`
	Compaction CompactionConfig `yaml:"compaction"`
	WAL        WALConfig        `yaml:"wal"`
}

// ResolvedStreamIDStrategy resolves the configured string to the core enum,
// defaulting to sequential for anything it does not recognize.
func (e EngineConfig) ResolvedStreamIDStrategy() core.StreamIDStrategy {
	if e.StreamIDStrategy == "uidHash" {
		return core.StreamIDUidHash
	}
	return core.StreamIDSequential
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for the optional OTel tracer threaded
// through the write/query path. Defaults to disabled (noop tracer).
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// FederationConfig lists the peer stores a federation.Federation fans a filter
// out to (§4.7).
type FederationConfig struct {
	Peers []string `yaml:"peers"`
}

// Config is the top-level configuration struct.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Federation FederationConfig `yaml:"federation"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Engine: EngineConfig{
			StoragePath:            "./data",
			MemoryCacheKB:          0,
			AutoCommitBufferBytes:  0,
			UseCompression:         true,
			StreamIDStrategy:       "sequential",
			DatabaseID:             1,
			IndexObsLocation:       false,
			RetentionPeriod:        "",
			MetadataSyncInterval:   "60s",
			CheckpointInterval:     "300s",
			Memtable: MemtableConfig{
				SizeThresholdBytes: 4 * 1024 * 1024, // 4 MiB
				FlushInterval:      "1s",
			},
			SSTable: SSTableConfig{
				BlockSizeBytes:    8 * 1024, // 8 KiB
				Compression:       "snappy",
				BloomFilterFPRate: 0.01,
			},
			Cache: CacheConfig{
				BlockCacheCapacity: 1024,
			},
			Compaction: CompactionConfig{
				CheckInterval: "120s",
			},
			WAL: WALConfig{
				SyncMode:            "interval",
				BatchSize:           1,
				FlushInterval:       "1000ms",
				MaxSegmentSizeBytes: 32 * 1024 * 1024, // 32 MiB
				PurgeKeepSegments:   4,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "obsbase.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Federation: FederationConfig{
			Peers: nil,
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	// Read all data from the reader
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	// If data is empty, return defaults.
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
