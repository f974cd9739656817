package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/downfa11-org/partq/util"
)

// InfoFileName is the queue-level state file written by the writer on
// every part transition.
const InfoFileName = "queue.info"

// Info records which part is active and which writer session produced
// it. Purely informational: readers discover parts by scanning, never
// by trusting this file.
type Info struct {
	Name      string `json:"name"`
	Part      uint64 `json:"part"`
	Session   string `json:"session"`
	UpdatedAt int64  `json:"updated_at"`
}

// ReadInfo loads the queue state file, or (nil, nil) when none exists.
func ReadInfo(dir string) (*Info, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue info: %w", err)
	}

	info := &Info{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("decode queue info: %w", err)
	}
	return info, nil
}

func writeInfoFile(dir string, info *Info) error {
	info.UpdatedAt = time.Now().UnixNano()
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(filepath.Join(dir, InfoFileName), data, 0o644)
}
