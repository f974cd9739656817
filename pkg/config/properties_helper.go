package config

import (
	"os"
	"strings"

	"github.com/downfa11-org/partq/util"
)

// Normalize clamps out-of-range settings back to working defaults,
// warning about values it had to replace.
func (cfg *Config) Normalize() {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		cfg.BaseDir = "partq-data"
	}
	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}

	cfg.SyncPolicy = strings.ToLower(strings.TrimSpace(cfg.SyncPolicy))
	switch cfg.SyncPolicy {
	case SyncPolicyAlways, SyncPolicyManual:
	default:
		util.Warn("Invalid sync_policy '%s', defaulting to '%s'", cfg.SyncPolicy, SyncPolicyAlways)
		cfg.SyncPolicy = SyncPolicyAlways
	}

	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 64 * 1024
	}
	if cfg.MaxMessageBytes < 0 {
		cfg.MaxMessageBytes = 0
	}

	cfg.StartFrom = strings.ToLower(strings.TrimSpace(cfg.StartFrom))
	switch cfg.StartFrom {
	case StartFromCurrent, StartFromOldest:
	case "":
		cfg.StartFrom = StartFromCurrent
	default:
		util.Warn("Invalid start_from '%s', defaulting to '%s'", cfg.StartFrom, StartFromCurrent)
		cfg.StartFrom = StartFromCurrent
	}

	cfg.CleanupPolicy = strings.ToLower(strings.TrimSpace(cfg.CleanupPolicy))
	switch cfg.CleanupPolicy {
	case CleanupNone, CleanupDelete, CleanupArchive:
	case "":
		cfg.CleanupPolicy = CleanupNone
	default:
		util.Warn("Invalid cleanup_policy '%s', defaulting to '%s'", cfg.CleanupPolicy, CleanupNone)
		cfg.CleanupPolicy = CleanupNone
	}

	cfg.ArchiveCodec = strings.ToLower(strings.TrimSpace(cfg.ArchiveCodec))
	switch {
	case util.KnownCodec(cfg.ArchiveCodec):
	case cfg.ArchiveCodec == "":
		cfg.ArchiveCodec = util.CodecZstd
	default:
		util.Warn("Invalid archive_codec '%s', defaulting to '%s'", cfg.ArchiveCodec, util.CodecZstd)
		cfg.ArchiveCodec = util.CodecZstd
	}

	if cfg.RetentionHours < 0 {
		cfg.RetentionHours = 0
	}
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvInt64(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt64(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideEnvLogLevel(target *util.LogLevel, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseLogLevel(v)
	}
}
