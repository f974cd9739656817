package part

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/downfa11-org/partq/pkg/record"
	"github.com/downfa11-org/partq/util"
)

// SyncPolicy controls when appended frames are forced to stable storage.
type SyncPolicy int

const (
	// SyncAlways flushes and fsyncs every append before reporting
	// success; an acknowledged push survives a crash.
	SyncAlways SyncPolicy = iota
	// SyncManual leaves flushing to explicit Sync and Close calls.
	// Throughput mode: acknowledged appends may be lost on crash, and
	// Len/RecordCount include frames not yet on stable storage.
	SyncManual
)

const DefaultWriteBufferSize = 64 * 1024

var (
	// ErrTruncated reports a tail fragment shorter than a full frame:
	// an in-flight or crash-interrupted append. Readers treat it the
	// same way as io.EOF.
	ErrTruncated = errors.New("part: truncated frame at tail")
	// ErrClosed reports use of a closed store or reader.
	ErrClosed = errors.New("part: closed")
)

// Store is the write side of one part. A part has exactly one Store for
// its lifetime as the active part; concurrent readers use Reader and
// never synchronize with the Store.
type Store struct {
	dir      string
	num      uint64
	path     string
	metaPath string
	policy   SyncPolicy

	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	size    int64
	records uint64

	closeOnce sync.Once
	closeErr  error
}

// Create starts a brand-new part. The data file must not already exist.
func Create(dir string, num uint64, bufSize int, policy SyncPolicy) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create part directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, FormatDataName(num))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create part %d: %w", num, err)
	}
	advise(f)

	s := newStore(dir, num, f, bufSize, policy)
	if err := WriteMeta(s.metaPath, &Meta{}); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Attach opens an existing part for appending, recovering the durable
// end first: frames are validated from the last sidecar position and a
// torn or corrupt tail is truncated away so new appends continue from a
// clean frame boundary.
func Attach(dir string, num uint64, bufSize int, policy SyncPolicy) (*Store, error) {
	path := filepath.Join(dir, FormatDataName(num))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("attach part %d: %w", num, err)
	}
	advise(f)

	s := newStore(dir, num, f, bufSize, policy)
	if err := s.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func newStore(dir string, num uint64, f *os.File, bufSize int, policy SyncPolicy) *Store {
	if bufSize <= 0 {
		bufSize = DefaultWriteBufferSize
	}
	return &Store{
		dir:      dir,
		num:      num,
		path:     f.Name(),
		metaPath: filepath.Join(dir, FormatMetaName(num)),
		policy:   policy,
		file:     f,
		w:        bufio.NewWriterSize(f, bufSize),
	}
}

func (s *Store) recover() error {
	fi, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("stat part %d: %w", s.num, err)
	}

	var start int64
	var base uint64
	meta, err := ReadMeta(s.metaPath)
	if err != nil {
		util.Warn("part %d: unreadable sidecar, rescanning from start: %v", s.num, err)
	} else if meta != nil && meta.Bytes <= fi.Size() {
		start = meta.Bytes
		base = meta.Records
	}

	end, n, err := ScanUsable(s.file, start)
	if err != nil {
		return fmt.Errorf("recover part %d: %w", s.num, err)
	}
	if end < fi.Size() {
		util.Debug("part %d: dropping %d trailing bytes past last full frame", s.num, fi.Size()-end)
		if err := s.file.Truncate(end); err != nil {
			return fmt.Errorf("truncate part %d to %d: %w", s.num, end, err)
		}
	}

	s.size = end
	s.records = base + n
	return nil
}

// Append writes one framed record and returns its zero-based index
// within the part. Under SyncAlways the frame is on stable storage when
// Append returns. On failure the logical record count is unchanged and
// the file end is restored to the last durable frame boundary.
func (s *Store) Append(t record.MsgType, body []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, ErrClosed
	}

	idx := s.records
	n, err := record.WriteFrame(s.w, t, body)
	if err != nil {
		s.discardTail()
		return 0, fmt.Errorf("append to part %d: %w", s.num, err)
	}
	if s.policy == SyncAlways {
		if err := s.w.Flush(); err != nil {
			s.discardTail()
			return 0, fmt.Errorf("flush part %d: %w", s.num, err)
		}
		if err := s.file.Sync(); err != nil {
			s.discardTail()
			return 0, fmt.Errorf("sync part %d: %w", s.num, err)
		}
	}

	s.size += n
	s.records++
	return idx, nil
}

// discardTail drops buffered bytes and re-establishes the durable frame
// boundary, so a failed append cannot leave garbage in front of future
// frames. A partial flush may have persisted less than was acknowledged,
// which is why this re-scans instead of truncating to the old size.
func (s *Store) discardTail() {
	s.w.Reset(s.file)
	if err := s.recover(); err != nil {
		util.Error("part %d: recovery after failed append: %v", s.num, err)
	}
}

// Sync flushes buffered frames and forces them to stable storage. Only
// meaningful under SyncManual; SyncAlways appends are already durable.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush part %d: %w", s.num, err)
	}
	return s.file.Sync()
}

// Len returns the byte length of acknowledged appends.
func (s *Store) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// RecordCount returns the number of acknowledged records.
func (s *Store) RecordCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

func (s *Store) Number() uint64 { return s.num }
func (s *Store) Path() string   { return s.path }

// Close flushes, syncs, refreshes the sidecar and releases the file.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.w.Flush(); err != nil {
			s.closeErr = fmt.Errorf("flush part %d: %w", s.num, err)
		} else if err := s.file.Sync(); err != nil {
			s.closeErr = fmt.Errorf("sync part %d: %w", s.num, err)
		} else if err := WriteMeta(s.metaPath, &Meta{Records: s.records, Bytes: s.size}); err != nil {
			s.closeErr = err
		}

		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("close part %d: %w", s.num, err)
		}
		s.file = nil
	})
	return s.closeErr
}

// Seal finalizes a part that is being superseded by rotation: the
// durable end is established (from the sidecar plus a forward scan) and
// the sidecar is rewritten with the sealed flag. The data file itself is
// not modified; readers skip any torn tail on their own.
func Seal(dir string, num uint64) (*Meta, error) {
	path := filepath.Join(dir, FormatDataName(num))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seal part %d: %w", num, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("seal part %d: %w", num, err)
	}

	metaPath := filepath.Join(dir, FormatMetaName(num))
	var start int64
	var base uint64
	meta, err := ReadMeta(metaPath)
	if err != nil {
		util.Warn("part %d: unreadable sidecar at seal, rescanning: %v", num, err)
	} else if meta != nil && meta.Bytes <= fi.Size() {
		start = meta.Bytes
		base = meta.Records
	}

	end, n, err := ScanUsable(f, start)
	if err != nil {
		return nil, fmt.Errorf("seal part %d: %w", num, err)
	}

	sealed := &Meta{Records: base + n, Bytes: end, Sealed: true}
	if err := WriteMeta(metaPath, sealed); err != nil {
		return nil, err
	}
	return sealed, nil
}
