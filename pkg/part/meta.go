package part

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/downfa11-org/partq/util"
)

// MetaVersion is the current sidecar format version.
const MetaVersion = 1

// Meta is the per-part sidecar: the durably flushed record count and
// byte length, and whether the part is sealed. Counts for the active
// part may lag the data file after a crash; readers trust them only for
// sealed parts and otherwise count frames directly.
type Meta struct {
	Version   uint16 `json:"version"`
	Records   uint64 `json:"records"`
	Bytes     int64  `json:"bytes"`
	Sealed    bool   `json:"sealed"`
	UpdatedAt int64  `json:"updated_at"`
}

func (m *Meta) validate() error {
	if m.Version == 0 || m.Version > MetaVersion {
		return fmt.Errorf("unsupported part meta version %d", m.Version)
	}
	if m.Bytes < 0 {
		return fmt.Errorf("negative part byte length %d", m.Bytes)
	}
	return nil
}

// ReadMeta loads a sidecar. A missing file is returned as (nil, nil):
// the part predates its sidecar or the sidecar write never happened
// before a crash, both of which callers handle by scanning the data.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read part meta %s: %w", path, err)
	}

	meta := &Meta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("decode part meta %s: %w", path, err)
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("part meta %s: %w", path, err)
	}
	return meta, nil
}

// WriteMeta persists a sidecar atomically: temp file, fsync, rename,
// directory sync. A crash leaves either the old sidecar or the new one,
// never a torn mix.
func WriteMeta(path string, meta *Meta) error {
	meta.Version = MetaVersion
	meta.UpdatedAt = time.Now().UnixNano()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(path, data, 0o644)
}
