// Package config loads and validates the broker's YAML configuration
// surface, plus fsnotify-driven hot reload of the fields that are safe
// to change without a restart.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowforge/streambroker/internal/brokerr"
	"github.com/flowforge/streambroker/internal/sysinfo"
)

// MaxSegmentSizeBytes is the implementation-defined upper bound a
// segment's configured size may not exceed: it must fit the 32-bit
// current_size_bytes field with headroom for one more batch.
const MaxSegmentSizeBytes = 1 << 30 // 1 GiB

// CacheMemoryWarningRatio is the fraction of total physical memory above
// which a configured cache size is logged as a warning rather than
// rejected.
const CacheMemoryWarningRatio = 0.75

// Config is the broker's full configuration surface.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Segment         SegmentConfig         `yaml:"segment"`
	Cache           CacheConfig           `yaml:"cache"`
	RetentionPolicy RetentionPolicyConfig `yaml:"retention_policy"`
	MessageSaver    MessageSaverConfig    `yaml:"message_saver"`
	MessageCleaner  MessageCleanerConfig  `yaml:"message_cleaner"`
	Compression     CompressionConfig     `yaml:"compression"`
	Backpressure    BackpressureConfig    `yaml:"backpressure"`
}

// ServerConfig controls the process-level surface: data directory, log
// level, and the monitoring HTTP port.
type ServerConfig struct {
	DataPath       string `yaml:"data_path" default:"/var/lib/streambroker"`
	LogLevel       string `yaml:"log_level" default:"info"`
	TCPAddr        string `yaml:"tcp_addr" default:":8090"`
	MonitoringAddr string `yaml:"monitoring_addr" default:":9090"`
}

// SegmentConfig controls segment rollover thresholds.
type SegmentConfig struct {
	SizeBytes          uint32 `yaml:"size_bytes" default:"1073741824"`
	IndexesEnabled     bool   `yaml:"indexes_enabled" default:"true"`
	TimeIndexesEnabled bool   `yaml:"time_indexes_enabled" default:"true"`
}

// CacheConfig controls the in-memory recently-loaded-batch cache.
type CacheConfig struct {
	SizeBytes int64 `yaml:"size_bytes" default:"268435456"`
}

// RetentionPolicyConfig controls how long messages are kept.
type RetentionPolicyConfig struct {
	MessageExpiry time.Duration `yaml:"message_expiry" default:"0"`
	MaxTopicSize  uint64        `yaml:"max_topic_size" default:"0"`
}

// MessageSaverConfig controls the periodic unsaved-buffer flush.
type MessageSaverConfig struct {
	Enabled  bool          `yaml:"enabled" default:"true"`
	Interval time.Duration `yaml:"interval" default:"1s"`
}

// MessageCleanerConfig controls the periodic expired-segment sweep.
type MessageCleanerConfig struct {
	Enabled  bool          `yaml:"enabled" default:"false"`
	Interval time.Duration `yaml:"interval" default:"1m"`
}

// CompressionAlgorithm names the configured default compression for new
// batches. The dispatch table in internal/batching understands these
// values; actual compression remains unapplied on the append hot path
// (see DESIGN.md).
type CompressionAlgorithm string

const (
	CompressionNone   CompressionAlgorithm = "none"
	CompressionZstd   CompressionAlgorithm = "zstd"
	CompressionSnappy CompressionAlgorithm = "snappy"
)

// CompressionConfig names the server's default compression algorithm.
type CompressionConfig struct {
	DefaultAlgorithm CompressionAlgorithm `yaml:"default_algorithm" default:"none"`
}

// BackpressureConfig controls the watermark and token rate AppendMessages
// enforces against each partition's unsaved buffer.
type BackpressureConfig struct {
	WatermarkBytes uint64  `yaml:"watermark_bytes" default:"8388608"`
	RatePerSecond  float64 `yaml:"rate_per_second" default:"1000"`
	Burst          int     `yaml:"burst" default:"100"`
}

// Default returns a Config filled with every field's documented default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			DataPath:       "/var/lib/streambroker",
			LogLevel:       "info",
			TCPAddr:        ":8090",
			MonitoringAddr: ":9090",
		},
		Segment: SegmentConfig{
			SizeBytes:          1 << 30,
			IndexesEnabled:     true,
			TimeIndexesEnabled: true,
		},
		Cache: CacheConfig{
			SizeBytes: 256 << 20,
		},
		MessageSaver: MessageSaverConfig{
			Enabled:  true,
			Interval: time.Second,
		},
		MessageCleaner: MessageCleanerConfig{
			Enabled:  false,
			Interval: time.Minute,
		},
		Compression: CompressionConfig{
			DefaultAlgorithm: CompressionNone,
		},
		Backpressure: BackpressureConfig{
			WatermarkBytes: 8 << 20,
			RatePerSecond:  1000,
			Burst:          100,
		},
	}
}

// Load reads and parses a YAML config file, filling any YAML-absent
// fields with Default()'s values rather than Go's zero values.
func Load(path string) (Config, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, brokerr.ErrIo(err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, brokerr.ErrInvalidConfiguration(err.Error())
	}
	return cfg, nil
}

// MemoryProbe reports physical memory, isolated behind an interface so
// Validate is testable without depending on the real platform probe.
type MemoryProbe func() (sysinfo.Memory, error)

// Validate checks every field the streaming core depends on, mirroring
// the original's validator set: segment size against the implementation
// ceiling, cache size against physical memory, and the saver/cleaner
// intervals when enabled. probe is normally sysinfo.ReadMemory; pass a
// stub in tests. warnf receives human-readable warnings (logged by the
// caller, never causing Validate to fail).
func (c Config) Validate(probe MemoryProbe, warnf func(string, ...any)) error {
	if c.Segment.SizeBytes > MaxSegmentSizeBytes {
		return brokerr.ErrInvalidConfiguration("segment.size_bytes exceeds the maximum segment size")
	}

	if c.MessageSaver.Enabled && c.MessageSaver.Interval <= 0 {
		return brokerr.ErrInvalidConfiguration("message_saver.interval must be greater than zero when enabled")
	}
	if c.MessageCleaner.Enabled && c.MessageCleaner.Interval <= 0 {
		return brokerr.ErrInvalidConfiguration("message_cleaner.interval must be greater than zero when enabled")
	}

	if c.Compression.DefaultAlgorithm != CompressionNone && warnf != nil {
		warnf("server-side compression configured with algorithm %q; this is not applied on the append path yet", c.Compression.DefaultAlgorithm)
	}
	if c.RetentionPolicy.MaxTopicSize > 0 && warnf != nil {
		warnf("retention_policy.max_topic_size is not implemented yet")
	}

	if probe == nil {
		return nil
	}
	mem, err := probe()
	if err != nil {
		// Physical memory probing is unavailable (e.g. non-Linux): skip
		// the check rather than fail a configuration that may be fine.
		return nil
	}

	limitBytes := uint64(c.Cache.SizeBytes)
	if limitBytes > mem.TotalBytes {
		return brokerr.ErrCacheConfigValidationFailure("requested cache size exceeds total physical memory")
	}
	if warnf != nil && float64(limitBytes) > float64(mem.TotalBytes)*CacheMemoryWarningRatio {
		warnf("cache.size_bytes exceeds %.0f%% of total memory (%d of %d bytes)", CacheMemoryWarningRatio*100, limitBytes, mem.TotalBytes)
	}

	return nil
}
