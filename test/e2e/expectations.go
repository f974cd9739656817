package e2e

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/queue"
)

// DrainedInOrder verifies a consumer saw exactly the given bodies, in order.
func DrainedInOrder(name string, want ...string) Expectation {
	return func(ctx *Context) error {
		got := ctx.drained[name]
		if !stringsEqual(got, want) {
			return fmt.Errorf("consumer %q drained %v, want %v", name, got, want)
		}
		return nil
	}
}

// DrainedEverythingPushed verifies a consumer saw every pushed body in push order.
func DrainedEverythingPushed(name string) Expectation {
	return func(ctx *Context) error {
		got := ctx.drained[name]
		if !stringsEqual(got, ctx.pushed) {
			return fmt.Errorf("consumer %q drained %v, want all pushed %v", name, got, ctx.pushed)
		}
		return nil
	}
}

// DrainedCount verifies how many records a consumer has drained.
func DrainedCount(name string, n int) Expectation {
	return func(ctx *Context) error {
		if got := len(ctx.drained[name]); got != n {
			return fmt.Errorf("consumer %q drained %d record(s), want %d", name, got, n)
		}
		return nil
	}
}

// NoMoreData verifies the next pop reports a clean end, not an error.
func NoMoreData(name string) Expectation {
	return func(ctx *Context) error {
		r := ctx.reader(name)
		if r.PopHeader() {
			return fmt.Errorf("consumer %q still has data: %q", name, r.PopBody())
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("consumer %q hit an error instead of end-of-data: %w", name, err)
		}
		return nil
	}
}

// RedeliveredFirst verifies the record popped without a commit came back
// first after the consumer restarted.
func RedeliveredFirst(name string) Expectation {
	return func(ctx *Context) error {
		peeked, ok := ctx.peeked[name]
		if !ok {
			return fmt.Errorf("consumer %q never popped without commit", name)
		}
		got := ctx.drained[name]
		if len(got) == 0 {
			return fmt.Errorf("consumer %q drained nothing after restart", name)
		}
		if got[0] != peeked {
			return fmt.Errorf("consumer %q redelivered %q first, want %q", name, got[0], peeked)
		}
		return nil
	}
}

// PoppedCounterIs verifies a consumer's lifetime committed count.
func PoppedCounterIs(name string, n uint64) Expectation {
	return func(ctx *Context) error {
		if got := ctx.reader(name).CountPopped(); got != n {
			return fmt.Errorf("consumer %q popped counter is %d, want %d", name, got, n)
		}
		return nil
	}
}

// BacklogIs verifies the records still ahead of a consumer's cursor.
func BacklogIs(name string, n uint64) Expectation {
	return func(ctx *Context) error {
		got, err := ctx.reader(name).BatchSize()
		if err != nil {
			return fmt.Errorf("batch size for %q: %w", name, err)
		}
		if got != n {
			return fmt.Errorf("consumer %q backlog is %d, want %d", name, got, n)
		}
		return nil
	}
}

// WriterRejected verifies the second exclusive open failed with the lock error.
func WriterRejected() Expectation {
	return func(ctx *Context) error {
		if ctx.writerErr == nil {
			return fmt.Errorf("second writer was not rejected")
		}
		if !errors.Is(ctx.writerErr, queue.ErrLocked) {
			return fmt.Errorf("second writer failed with %v, want lock error", ctx.writerErr)
		}
		return nil
	}
}

// WriterAccepted verifies the second exclusive open succeeded.
func WriterAccepted() Expectation {
	return func(ctx *Context) error {
		if ctx.writerErr != nil {
			return fmt.Errorf("writer open failed: %w", ctx.writerErr)
		}
		return nil
	}
}

// ActivePartIs verifies which part the live writer appends to.
func ActivePartIs(num uint64) Expectation {
	return func(ctx *Context) error {
		if ctx.writer == nil {
			return fmt.Errorf("no writer open")
		}
		got, ok := ctx.writer.ActivePart()
		if !ok {
			return fmt.Errorf("writer has no active part")
		}
		if got != num {
			return fmt.Errorf("active part is %d, want %d", got, num)
		}
		return nil
	}
}

// CountPushedIs verifies the writer's per-part pushed counter.
func CountPushedIs(n uint64) Expectation {
	return func(ctx *Context) error {
		if ctx.writer == nil {
			return fmt.Errorf("no writer open")
		}
		got, err := ctx.writer.CountPushed()
		if err != nil {
			return fmt.Errorf("count pushed: %w", err)
		}
		if got != n {
			return fmt.Errorf("count pushed is %d, want %d", got, n)
		}
		return nil
	}
}

// PartsOnDisk verifies how many live part files the queue directory holds.
func PartsOnDisk(n int) Expectation {
	return func(ctx *Context) error {
		parts, err := part.Discover(filepath.Join(ctx.cfg.BaseDir, ctx.queueName))
		if err != nil {
			return err
		}
		if len(parts) != n {
			return fmt.Errorf("found %d part(s) on disk, want %d", len(parts), n)
		}
		return nil
	}
}

// SweptExactly verifies which parts the last sweep removed.
func SweptExactly(nums ...uint64) Expectation {
	return func(ctx *Context) error {
		if ctx.sweep == nil {
			return fmt.Errorf("no sweep was run")
		}
		got := ctx.sweep.Swept
		if len(got) != len(nums) {
			return fmt.Errorf("sweep removed parts %v, want %v", got, nums)
		}
		for i := range nums {
			if got[i] != nums[i] {
				return fmt.Errorf("sweep removed parts %v, want %v", got, nums)
			}
		}
		return nil
	}
}

// SweptNothing verifies the last sweep removed no parts.
func SweptNothing() Expectation {
	return func(ctx *Context) error {
		if ctx.sweep == nil {
			return fmt.Errorf("no sweep was run")
		}
		if len(ctx.sweep.Swept) != 0 {
			return fmt.Errorf("sweep removed parts %v, want none", ctx.sweep.Swept)
		}
		return nil
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
