package queue

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/cursor"
	"github.com/downfa11-org/partq/pkg/metrics"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/util"
)

// SweepResult summarizes one retention pass over a queue.
type SweepResult struct {
	Policy   string
	Examined int
	Swept    []uint64
}

// Sweep applies the configured cleanup policy to sealed parts that
// every consumer has fully passed. The newest part is never touched,
// and a queue with no consumers is never swept: a part no cursor has
// reached is unread, not consumed. With retention_hours set, parts
// additionally have to be older than that before they go.
//
// Sweep needs no lock. It only handles parts strictly below the
// slowest cursor while the writer only appends to the newest, and the
// rename-based policies keep racing readers' open handles valid.
func Sweep(cfg *config.Config, name string) (*SweepResult, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if !util.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}

	res := &SweepResult{Policy: cfg.CleanupPolicy}
	if cfg.CleanupPolicy == config.CleanupNone {
		return res, nil
	}

	dir := dirOf(cfg, name)
	parts, err := part.Discover(dir)
	if err != nil {
		return nil, err
	}
	if len(parts) <= 1 {
		return res, nil
	}

	cursors, err := cursor.NewStore(dir).All()
	if err != nil {
		return nil, err
	}
	if len(cursors) == 0 {
		util.Debug("queue %s: sweep skipped, no consumers", name)
		return res, nil
	}

	minPart := uint64(math.MaxUint64)
	for _, c := range cursors {
		if c.Part < minPart {
			minPart = c.Part
		}
	}

	now := time.Now()
	maxAge := time.Duration(cfg.RetentionHours) * time.Hour

	for _, info := range parts[:len(parts)-1] {
		if info.Number >= minPart {
			break
		}
		res.Examined++

		meta, err := part.ReadMeta(info.MetaPath)
		if err != nil {
			util.Warn("queue %s: sweep skipping part %d, unreadable sidecar: %v", name, info.Number, err)
			break
		}
		if meta == nil || !meta.Sealed {
			break
		}
		if cfg.RetentionHours > 0 {
			fi, err := os.Stat(info.Path)
			if err != nil || now.Sub(fi.ModTime()) <= maxAge {
				break
			}
		}

		switch cfg.CleanupPolicy {
		case config.CleanupDelete:
			err = markAsDeleted(info)
		case config.CleanupArchive:
			err = archivePart(info, cfg.ArchiveCodec)
		}
		if err != nil {
			return res, err
		}

		metrics.PartsSwept.WithLabelValues(name, cfg.CleanupPolicy).Inc()
		util.Info("queue %s: swept part %d (%s)", name, info.Number, cfg.CleanupPolicy)
		res.Swept = append(res.Swept, info.Number)
	}
	return res, nil
}

// markAsDeleted renames the part files out of the discovery namespace
// instead of unlinking them, so racing readers keep their open handles
// and an operator can still inspect the data.
func markAsDeleted(info *part.Info) error {
	if err := os.Rename(info.Path, info.Path+".deleted"); err != nil {
		return err
	}
	if _, err := os.Stat(info.MetaPath); err == nil {
		if err := os.Rename(info.MetaPath, info.MetaPath+".deleted"); err != nil {
			return fmt.Errorf("rename meta failed: %w", err)
		}
	}
	return nil
}

// archivePart compresses the data file next to itself and removes the
// original. The sidecar stays so the archive keeps its record counts.
func archivePart(info *part.Info, codec string) error {
	if !util.KnownCodec(codec) {
		codec = util.CodecZstd
	}

	src, err := os.Open(info.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := info.Path + util.ArchiveExt(codec)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	enc, err := util.NewCompressor(dst, codec)
	if err != nil {
		_ = dst.Close()
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return fmt.Errorf("archive %s: %w", info.Path, err)
	}
	if err := enc.Close(); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return err
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(info.Path)
}
