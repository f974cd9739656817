package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/downfa11-org/partq/util"
)

// Config carries the queue engine settings shared by writers, consumers
// and the command line tools.
type Config struct {
	BaseDir        string        `yaml:"base_dir" json:"base.dir"`
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`

	// Write path
	SyncPolicy      string `yaml:"sync_policy" json:"sync.policy"`
	WriteBufferSize int    `yaml:"write_buffer_size" json:"write.buffer.size"`
	MaxMessageBytes int64  `yaml:"max_message_bytes" json:"max.message.bytes"`

	// Consumer behavior
	StartFrom string `yaml:"start_from" json:"start.from"`

	// Retention sweep
	CleanupPolicy  string `yaml:"cleanup_policy" json:"cleanup.policy"`
	ArchiveCodec   string `yaml:"archive_codec" json:"archive.codec"`
	RetentionHours int    `yaml:"retention_hours" json:"retention.hours"`
}

// Recognized option values.
const (
	SyncPolicyAlways = "always"
	SyncPolicyManual = "manual"

	StartFromCurrent = "current"
	StartFromOldest  = "oldest"

	CleanupNone    = "none"
	CleanupDelete  = "delete"
	CleanupArchive = "archive"
)

func DefaultConfig() *Config {
	return &Config{
		BaseDir:         "partq-data",
		LogLevel:        util.LogLevelInfo,
		EnableExporter:  false,
		ExporterPort:    9100,
		SyncPolicy:      SyncPolicyAlways,
		WriteBufferSize: 64 * 1024,
		MaxMessageBytes: 0,
		StartFrom:       StartFromCurrent,
		CleanupPolicy:   CleanupNone,
		ArchiveCodec:    util.CodecZstd,
		RetentionHours:  0,
	}
}

// Load builds the effective configuration: defaults, then the YAML or
// JSON file at path (or $PARTQ_CONFIG when path is empty), then
// PARTQ_* environment overrides, normalized last. The resulting log
// level is applied globally.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("PARTQ_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if strings.HasSuffix(path, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	overrideEnvString(&cfg.BaseDir, "PARTQ_BASE_DIR")
	overrideEnvLogLevel(&cfg.LogLevel, "PARTQ_LOG_LEVEL")
	overrideEnvBool(&cfg.EnableExporter, "PARTQ_ENABLE_EXPORTER")
	overrideEnvInt(&cfg.ExporterPort, "PARTQ_EXPORTER_PORT")
	overrideEnvString(&cfg.SyncPolicy, "PARTQ_SYNC_POLICY")
	overrideEnvInt(&cfg.WriteBufferSize, "PARTQ_WRITE_BUFFER_SIZE")
	overrideEnvInt64(&cfg.MaxMessageBytes, "PARTQ_MAX_MESSAGE_BYTES")
	overrideEnvString(&cfg.StartFrom, "PARTQ_START_FROM")
	overrideEnvString(&cfg.CleanupPolicy, "PARTQ_CLEANUP_POLICY")
	overrideEnvString(&cfg.ArchiveCodec, "PARTQ_ARCHIVE_CODEC")
	overrideEnvInt(&cfg.RetentionHours, "PARTQ_RETENTION_HOURS")
}
