// Package cursor persists per-consumer read positions. Every consumer
// of a queue owns one small JSON state file; committing a pop rewrites
// it atomically, so a crash between pop and commit merely re-delivers
// the staged record. Cursor files are the only coupling between
// consumers: none exists, so each consumer sees the full queue.
package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/downfa11-org/partq/util"
)

const (
	// Extension is the suffix of cursor state files.
	Extension = ".cursor"
	// DirName is the queue subdirectory holding cursor files.
	DirName = "cursors"

	// Version is the current cursor file format version.
	Version = 1
)

var ErrBadName = errors.New("cursor: invalid consumer name")

// Cursor is one consumer's durable position: the part and byte offset
// of the next uncommitted record, and how many records were committed
// so far.
type Cursor struct {
	Version   uint16 `json:"version"`
	Part      uint64 `json:"part"`
	Offset    int64  `json:"offset"`
	Popped    uint64 `json:"popped"`
	UpdatedAt int64  `json:"updated_at"`
}

func (c *Cursor) validate() error {
	if c.Version == 0 || c.Version > Version {
		return fmt.Errorf("unsupported cursor version %d", c.Version)
	}
	if c.Offset < 0 {
		return fmt.Errorf("negative cursor offset %d", c.Offset)
	}
	return nil
}

// Store reads and writes the cursor files of one queue.
type Store struct {
	dir string
}

// NewStore returns the cursor store rooted under a queue directory.
func NewStore(queueDir string) *Store {
	return &Store{dir: filepath.Join(queueDir, DirName)}
}

// Path returns the state file path for a consumer.
func (st *Store) Path(consumer string) string {
	return filepath.Join(st.dir, consumer+Extension)
}

// Load reads a consumer's cursor. The second result reports whether the
// consumer has committed before; a fresh consumer gets (zero, false).
func (st *Store) Load(consumer string) (Cursor, bool, error) {
	if !util.ValidName(consumer) {
		return Cursor{}, false, fmt.Errorf("%w: %q", ErrBadName, consumer)
	}

	data, err := os.ReadFile(st.Path(consumer))
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, false, nil
		}
		return Cursor{}, false, fmt.Errorf("read cursor %s: %w", consumer, err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, false, fmt.Errorf("decode cursor %s: %w", consumer, err)
	}
	if err := c.validate(); err != nil {
		return Cursor{}, false, fmt.Errorf("cursor %s: %w", consumer, err)
	}
	return c, true, nil
}

// Save durably replaces a consumer's cursor.
func (st *Store) Save(consumer string, c Cursor) error {
	if !util.ValidName(consumer) {
		return fmt.Errorf("%w: %q", ErrBadName, consumer)
	}
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("create cursor directory %s: %w", st.dir, err)
	}

	c.Version = Version
	c.UpdatedAt = time.Now().UnixNano()
	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(st.Path(consumer), data, 0o644)
}

// All loads every cursor of the queue, keyed by consumer name. The
// retention sweeper uses this to find the slowest consumer. A queue
// without a cursor directory has no consumers.
func (st *Store) All() (map[string]Cursor, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cursor directory %s: %w", st.dir, err)
	}

	cursors := make(map[string]Cursor)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), Extension)
		c, ok, err := st.Load(name)
		if err != nil {
			return nil, err
		}
		if ok {
			cursors[name] = c
		}
	}
	return cursors, nil
}

// Consumers lists the known consumer names sorted alphabetically.
func (st *Store) Consumers() ([]string, error) {
	cursors, err := st.All()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cursors))
	for name := range cursors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
