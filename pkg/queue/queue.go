// Package queue implements the writer side of a named queue: part
// discovery, caller-driven rotation, exclusive writer locking and
// framed appends. Opening a write-capable handle over a queue whose
// newest part already has content seals that part and starts a fresh
// one; that is the only rotation trigger.
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/metrics"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/record"
	"github.com/downfa11-org/partq/util"
)

var (
	// ErrLocked reports that another write-capable handle owns the
	// queue.
	ErrLocked = errors.New("queue: writer lock held by another handle")
	// ErrReadOnly reports a write operation on a read-only handle.
	ErrReadOnly = errors.New("queue: handle is read-only")
	// ErrBadName reports a queue name unsafe for the filesystem.
	ErrBadName = errors.New("queue: invalid queue name")
	// ErrMessageTooLarge reports a body over the configured cap.
	ErrMessageTooLarge = errors.New("queue: body exceeds max_message_bytes")
)

// Queue is one handle on a named queue. A write-capable handle owns
// the active part exclusively for its lifetime; read-only handles just
// observe the newest part.
type Queue struct {
	cfg     *config.Config
	name    string
	dir     string
	mode    record.Mode
	session string

	mu    sync.Mutex
	lk    *flock
	store *part.Store
	ready bool
}

// Open binds a handle to the queue under cfg.BaseDir. ModeReadWrite
// takes the writer lock and fails with ErrLocked when another writer
// holds it; ModeDefault degrades to ModeRead in that case instead.
// Read-only opens never create directories or parts.
func Open(cfg *config.Config, name string, mode record.Mode) (*Queue, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if !util.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}

	q := &Queue{
		cfg:     cfg,
		name:    name,
		dir:     dirOf(cfg, name),
		session: uuid.NewString(),
	}

	switch mode {
	case record.ModeRead:
		q.mode = record.ModeRead
	case record.ModeReadWrite:
		if err := q.lock(); err != nil {
			return nil, err
		}
		q.mode = record.ModeReadWrite
	case record.ModeDefault:
		switch err := q.lock(); {
		case err == nil:
			q.mode = record.ModeReadWrite
		case errors.Is(err, ErrLocked):
			util.Debug("queue %s: writer lock held, degrading to read-only", name)
			q.mode = record.ModeRead
		default:
			return nil, err
		}
	default:
		return nil, fmt.Errorf("queue: unknown access mode %d", mode)
	}

	if q.mode == record.ModeReadWrite {
		if err := q.openActivePart(); err != nil {
			_ = q.lk.release()
			return nil, err
		}
	}

	q.ready = true
	return q, nil
}

// dirOf maps (base dir, queue name) to the queue's directory.
func dirOf(cfg *config.Config, name string) string {
	return filepath.Join(cfg.BaseDir, name)
}

func (q *Queue) lock() error {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return fmt.Errorf("create queue directory %s: %w", q.dir, err)
	}
	lk, err := acquireLock(q.dir, q.session)
	if err != nil {
		return err
	}
	q.lk = lk
	return nil
}

func (q *Queue) syncPolicy() part.SyncPolicy {
	if q.cfg.SyncPolicy == config.SyncPolicyManual {
		return part.SyncManual
	}
	return part.SyncAlways
}

// openActivePart decides between creating part zero, adopting an empty
// newest part and rotating past one that already has content. The
// superseded part is sealed before the new one exists, so a reader
// never sees two unsealed parts.
func (q *Queue) openActivePart() error {
	parts, err := part.Discover(q.dir)
	if err != nil {
		return err
	}

	if len(parts) == 0 {
		store, err := part.Create(q.dir, 0, q.cfg.WriteBufferSize, q.syncPolicy())
		if err != nil {
			return err
		}
		q.store = store
		util.Info("queue %s: created part 0", q.name)
		return q.writeInfo()
	}

	newest := parts[len(parts)-1]
	meta, err := part.ReadMeta(newest.MetaPath)
	if err != nil {
		return err
	}
	sealed := meta != nil && meta.Sealed

	if sealed || newest.Size > 0 {
		if !sealed {
			if _, err := part.Seal(q.dir, newest.Number); err != nil {
				return err
			}
		}
		store, err := part.Create(q.dir, newest.Number+1, q.cfg.WriteBufferSize, q.syncPolicy())
		if err != nil {
			return err
		}
		q.store = store
		metrics.PartRotations.WithLabelValues(q.name).Inc()
		util.Info("queue %s: rotated to part %d", q.name, newest.Number+1)
		return q.writeInfo()
	}

	store, err := part.Attach(q.dir, newest.Number, q.cfg.WriteBufferSize, q.syncPolicy())
	if err != nil {
		return err
	}
	q.store = store
	return q.writeInfo()
}

func (q *Queue) writeInfo() error {
	return writeInfoFile(q.dir, &Info{
		Name:    q.name,
		Part:    q.store.Number(),
		Session: q.session,
	})
}

// Push appends one framed message to the active part and returns its
// record index within that part. On failure nothing is appended and no
// counter moves, so a retry is safe.
func (q *Queue) Push(t record.MsgType, body []byte) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.mode != record.ModeReadWrite || q.store == nil {
		return 0, ErrReadOnly
	}
	if limit := q.cfg.MaxMessageBytes; limit > 0 && int64(len(body)) > limit {
		return 0, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(body), limit)
	}

	start := time.Now()
	idx, err := q.store.Append(t, body)
	if err != nil {
		metrics.PushErrors.WithLabelValues(q.name).Inc()
		return 0, err
	}

	metrics.ObservePush(q.name, len(body), time.Since(start).Seconds())
	metrics.ActivePartRecords.WithLabelValues(q.name).Set(float64(q.store.RecordCount()))
	return idx, nil
}

// PushString appends a string-tagged message.
func (q *Queue) PushString(body string) (uint64, error) {
	return q.Push(record.MsgTypeString, []byte(body))
}

// PushObject appends an object-tagged message of opaque serialized
// bytes.
func (q *Queue) PushObject(body []byte) (uint64, error) {
	return q.Push(record.MsgTypeObject, body)
}

// CountPushed returns the record count of the active part: pushes since
// the part was opened for a write handle, or the durable record count
// of the newest part for a read-only one. It resets to zero at every
// rotation.
func (q *Queue) CountPushed() (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store != nil {
		return q.store.RecordCount(), nil
	}

	newest, err := part.Latest(q.dir)
	if err != nil || newest == nil {
		return 0, err
	}
	meta, err := part.ReadMeta(newest.MetaPath)
	if err == nil && meta != nil && meta.Sealed {
		return meta.Records, nil
	}

	r, err := part.OpenReader(q.dir, newest.Number, false)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.CountFrom(0)
}

// Sync forces buffered appends to stable storage. Only useful under the
// manual sync policy.
func (q *Queue) Sync() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store == nil {
		return ErrReadOnly
	}
	return q.store.Sync()
}

func (q *Queue) Name() string           { return q.name }
func (q *Queue) Dir() string            { return q.dir }
func (q *Queue) Mode() record.Mode      { return q.mode }
func (q *Queue) Session() string        { return q.session }
func (q *Queue) Config() *config.Config { return q.cfg }

// ActivePart returns the number of the part this handle appends to,
// or false for a read-only handle.
func (q *Queue) ActivePart() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store == nil {
		return 0, false
	}
	return q.store.Number(), true
}

// IsReady reports whether the handle is open and, for write modes,
// holds the lock.
func (q *Queue) IsReady() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// Close seals nothing: the part stays appendable for a future writer.
// It flushes the active part, refreshes its sidecar and releases the
// writer lock.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.ready {
		return nil
	}
	q.ready = false

	var firstErr error
	if q.store != nil {
		if err := q.store.Close(); err != nil {
			firstErr = err
		}
	}
	if q.lk != nil {
		if err := q.lk.release(); err != nil && firstErr == nil {
			firstErr = err
		}
		q.lk = nil
	}
	return firstErr
}
