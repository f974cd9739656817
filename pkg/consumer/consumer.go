// Package consumer implements the read side of a queue: a named cursor
// over the part sequence with a two-phase pop protocol. PopHeader
// stages the next unread record, PopBody exposes its payload, and
// Commit durably advances the cursor past it. Until Commit runs, every
// PopHeader re-presents the same staged record, which is what makes
// delivery at-least-once across crashes.
//
// Consumers fan out: each name owns an independent cursor, and every
// name sees every record. Readers never take the writer lock and never
// block the writer; they only ever observe durably flushed bytes.
package consumer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/downfa11-org/partq/pkg/config"
	"github.com/downfa11-org/partq/pkg/cursor"
	"github.com/downfa11-org/partq/pkg/metrics"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
	"github.com/downfa11-org/partq/util"
)

// Consumer is one named reader of a queue. A handle is safe for
// concurrent use; two live handles sharing one consumer name are not,
// since each would overwrite the other's cursor commits.
type Consumer struct {
	q     *queue.Queue
	name  string
	store *cursor.Store

	mu        sync.Mutex
	committed cursor.Cursor

	stagedRec  *part.Record
	stagedPart uint64
	stagedNext int64

	r    *part.Reader
	meta *part.Meta

	filter  func(record.MsgType) bool
	lastErr error
}

// Open creates the consumer named consumerName over a queue, loading
// its cursor or, on first appearance of the name, pinning the start
// position dictated by cfg.StartFrom: the newest part by default, the
// oldest for full-history replay. mode is passed through to the queue
// handle and is typically record.ModeRead; a write-capable mode makes
// this handle the queue's writer of record as well.
func Open(cfg *config.Config, queueName, consumerName string, mode record.Mode) (*Consumer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if !util.ValidName(consumerName) {
		return nil, fmt.Errorf("%w: %q", cursor.ErrBadName, consumerName)
	}

	q, err := queue.Open(cfg, queueName, mode)
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		q:     q,
		name:  consumerName,
		store: cursor.NewStore(q.Dir()),
	}

	cur, found, err := c.store.Load(consumerName)
	if err != nil {
		_ = q.Close()
		return nil, err
	}
	if found {
		c.committed = cur
		return c, nil
	}

	c.committed, err = startCursor(cfg, q.Dir())
	if err != nil {
		_ = q.Close()
		return nil, err
	}
	// Pin the start position so later rotations cannot move it, and so
	// retention sees this consumer. Skipped while the queue has no
	// directory yet.
	if _, statErr := os.Stat(q.Dir()); statErr == nil {
		if err := c.store.Save(consumerName, c.committed); err != nil {
			_ = q.Close()
			return nil, err
		}
	}
	util.Debug("consumer %s/%s: starting at part %d", queueName, consumerName, c.committed.Part)
	return c, nil
}

// startCursor picks the initial position for a consumer name that has
// never committed.
func startCursor(cfg *config.Config, dir string) (cursor.Cursor, error) {
	parts, err := part.Discover(dir)
	if err != nil {
		return cursor.Cursor{}, err
	}
	if len(parts) == 0 {
		return cursor.Cursor{}, nil
	}
	if cfg.StartFrom == config.StartFromOldest {
		return cursor.Cursor{Part: parts[0].Number}, nil
	}
	return cursor.Cursor{Part: parts[len(parts)-1].Number}, nil
}

// PopHeader stages the next unread record and reports whether one
// exists. It always positions from the last committed cursor: until
// Commit runs, repeated calls re-present the same record. False means
// no durable data remains anywhere, or a failure recorded in Err.
func (c *Consumer) PopHeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = nil
	if c.stagedRec != nil {
		return true
	}

	rec, num, next, err := c.scan()
	if err != nil {
		c.lastErr = err
		util.Warn("consumer %s/%s: pop failed: %v", c.q.Name(), c.name, err)
		return false
	}
	if rec == nil {
		return false
	}

	c.stagedRec = rec
	c.stagedPart = num
	c.stagedNext = next
	return true
}

// Header returns the staged record's header. ok is false when nothing
// is staged.
func (c *Consumer) Header() (record.Header, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stagedRec == nil {
		return record.Header{}, false
	}
	return c.stagedRec.Header, true
}

// PopBody returns the staged record's payload, or nil when nothing is
// staged or the type filter declines the staged type. It advances no
// state; bodies of uncommitted records can be re-read freely.
func (c *Consumer) PopBody() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stagedRec == nil {
		return nil
	}
	if c.filter != nil && !c.filter(c.stagedRec.Type) {
		return nil
	}
	return c.stagedRec.Body
}

// SetTypeFilter installs the policy hook deciding which record types
// PopBody materializes. A nil filter accepts everything. Filtered
// records still have to be committed to advance past them.
func (c *Consumer) SetTypeFilter(fn func(record.MsgType) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = fn
}

// Commit durably advances the cursor past the staged record, bumps the
// popped counter and clears the staging state. This is the only
// operation that writes cursor state. False means nothing was staged,
// or the cursor write failed (see Err) and the record stays staged.
func (c *Consumer) Commit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = nil
	if c.stagedRec == nil {
		return false
	}

	cur := cursor.Cursor{
		Part:   c.stagedPart,
		Offset: c.stagedNext,
		Popped: c.committed.Popped + 1,
	}
	if err := c.store.Save(c.name, cur); err != nil {
		c.lastErr = err
		util.Error("consumer %s/%s: commit failed: %v", c.q.Name(), c.name, err)
		return false
	}

	c.committed = cur
	c.stagedRec = nil
	metrics.ObservePop(c.q.Name(), c.name)
	return true
}

// BatchSize reports how many durable records sit between the committed
// cursor and the end of the queue, across all parts, without moving
// anything. Callers use it to size drain loops.
func (c *Consumer) BatchSize() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts, err := part.Discover(c.q.Dir())
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, info := range parts {
		if info.Number < c.committed.Part {
			continue
		}
		start := int64(0)
		if info.Number == c.committed.Part {
			start = c.committed.Offset
		}
		n, err := c.countIn(info, start)
		if err != nil {
			return 0, err
		}
		total += n
	}

	metrics.ConsumerBacklog.WithLabelValues(c.q.Name(), c.name).Set(float64(total))
	return total, nil
}

// CountPopped returns the number of records this consumer has ever
// committed. The count survives restarts through the cursor file.
func (c *Consumer) CountPopped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed.Popped
}

// Cursor returns the last committed position.
func (c *Consumer) Cursor() cursor.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Err returns the failure behind the most recent false PopHeader or
// Commit, distinguishing real errors from a drained queue.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Consumer) Name() string        { return c.name }
func (c *Consumer) Queue() *queue.Queue { return c.q }

// Close releases the part reader and the underlying queue handle. A
// staged, uncommitted record is left for redelivery on the next open.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.r != nil {
		if err := c.r.Close(); err != nil {
			firstErr = err
		}
		c.r = nil
		c.meta = nil
	}
	if err := c.q.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// scan locates the next unread record starting from the committed
// cursor, crossing sealed part boundaries as needed. A nil record with
// a nil error means no durable data remains anywhere.
func (c *Consumer) scan() (*part.Record, uint64, int64, error) {
	num := c.committed.Part
	off := c.committed.Offset

	for {
		r, err := c.readerFor(num)
		if err != nil {
			return nil, 0, 0, err
		}
		if r == nil {
			// The cursor points past every existing part: an empty or
			// not-yet-created queue.
			return nil, 0, 0, nil
		}

		// Sealed parts end at the byte length their seal recorded, not
		// at the file size; a crashed writer may have left a torn
		// fragment behind it.
		if c.meta != nil && c.meta.Sealed && off >= c.meta.Bytes {
			next, ok, err := c.partAfter(num)
			if err != nil || !ok {
				return nil, 0, 0, err
			}
			num, off = next, 0
			continue
		}

		rec, next, err := r.ReadRecordAt(off)
		if err == nil {
			return rec, num, next, nil
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, part.ErrTruncated) {
			return nil, 0, 0, err
		}

		if c.meta != nil && c.meta.Sealed {
			return nil, 0, 0, fmt.Errorf("part %d ends before its sealed length %d", num, c.meta.Bytes)
		}
		// The part may have been sealed behind this handle; re-check
		// before declaring the queue drained.
		if err := c.refreshMeta(num); err != nil {
			return nil, 0, 0, err
		}
		if c.meta == nil || !c.meta.Sealed {
			return nil, 0, 0, nil
		}
	}
}

// readerFor positions the cached part reader on num, opening it on
// first use. A missing part file yields a nil reader.
func (c *Consumer) readerFor(num uint64) (*part.Reader, error) {
	if c.r != nil && c.r.Number() == num {
		return c.r, nil
	}
	if c.r != nil {
		_ = c.r.Close()
		c.r, c.meta = nil, nil
	}

	meta, err := part.ReadMeta(filepath.Join(c.q.Dir(), part.FormatMetaName(num)))
	if err != nil {
		return nil, err
	}
	sealed := meta != nil && meta.Sealed

	r, err := part.OpenReader(c.q.Dir(), num, sealed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	c.r, c.meta = r, meta
	return r, nil
}

func (c *Consumer) refreshMeta(num uint64) error {
	meta, err := part.ReadMeta(filepath.Join(c.q.Dir(), part.FormatMetaName(num)))
	if err != nil {
		return err
	}
	c.meta = meta
	return nil
}

// partAfter returns the lowest part number above num.
func (c *Consumer) partAfter(num uint64) (uint64, bool, error) {
	parts, err := part.Discover(c.q.Dir())
	if err != nil {
		return 0, false, err
	}
	for _, info := range parts {
		if info.Number > num {
			return info.Number, true, nil
		}
	}
	return 0, false, nil
}

// countIn counts the records of one part from a frame boundary.
// Sidecar counts are trusted only for whole sealed parts; anything
// else is counted by walking frame headers. Sealed parts are walked
// only up to their sealed length, never into a fenced torn tail.
func (c *Consumer) countIn(info *part.Info, start int64) (uint64, error) {
	meta, err := part.ReadMeta(info.MetaPath)
	if err != nil {
		return 0, err
	}
	sealed := meta != nil && meta.Sealed
	if sealed && start == 0 {
		return meta.Records, nil
	}

	r := c.r
	if r == nil || r.Number() != info.Number {
		r, err = part.OpenReader(c.q.Dir(), info.Number, sealed)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return 0, nil
			}
			return 0, err
		}
		defer r.Close()
	}
	if sealed {
		return r.CountRange(start, meta.Bytes)
	}
	return r.CountFrom(start)
}
