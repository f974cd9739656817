package e2e

import (
	"os"
	"path/filepath"

	"github.com/downfa11-org/partq/pkg/consumer"
	"github.com/downfa11-org/partq/pkg/part"
	"github.com/downfa11-org/partq/pkg/queue"
	"github.com/downfa11-org/partq/pkg/record"
)

// StartWriter opens the queue's exclusive write handle.
func (a *Actions) StartWriter() *Actions {
	q, err := queue.Open(a.ctx.cfg, a.ctx.queueName, record.ModeReadWrite)
	if err != nil {
		a.ctx.t.Fatalf("Failed to open writer: %v", err)
	}
	a.ctx.writer = q
	return a
}

// StopWriter closes the write handle, releasing the writer lock.
func (a *Actions) StopWriter() *Actions {
	if a.ctx.writer == nil {
		a.ctx.t.Fatal("no writer to stop")
	}
	if err := a.ctx.writer.Close(); err != nil {
		a.ctx.t.Fatalf("Failed to close writer: %v", err)
	}
	a.ctx.writer = nil
	return a
}

// RestartWriter cycles the write handle. Because the active part holds
// content, the fresh handle rotates onto a new part.
func (a *Actions) RestartWriter() *Actions {
	return a.StopWriter().StartWriter()
}

// TryStartSecondWriter attempts a second exclusive open and records the
// outcome instead of failing the test.
func (a *Actions) TryStartSecondWriter() *Actions {
	q, err := queue.Open(a.ctx.cfg, a.ctx.queueName, record.ModeReadWrite)
	a.ctx.writerErr = err
	if err == nil {
		_ = q.Close()
	}
	return a
}

// PushMessages pushes the scenario's numMessages sequenced bodies.
func (a *Actions) PushMessages() *Actions {
	bodies := make([]string, 0, a.ctx.numMessages)
	for i := 0; i < a.ctx.numMessages; i++ {
		bodies = append(bodies, bodyFor(len(a.ctx.pushed)+len(bodies)))
	}
	return a.PushBodies(bodies...)
}

// PushBodies pushes the given bodies through the live writer.
func (a *Actions) PushBodies(bodies ...string) *Actions {
	if a.ctx.writer == nil {
		a.ctx.t.Fatal("no writer open for push")
	}
	for _, body := range bodies {
		if _, err := a.ctx.writer.PushString(body); err != nil {
			a.ctx.t.Fatalf("Failed to push %q: %v", body, err)
		}
		a.ctx.pushed = append(a.ctx.pushed, body)
	}
	a.ctx.t.Logf("Pushed %d message(s), %d total", len(bodies), len(a.ctx.pushed))
	return a
}

// OpenConsumer opens a named consumer over the queue.
func (a *Actions) OpenConsumer(name string) *Actions {
	c, err := consumer.Open(a.ctx.cfg, a.ctx.queueName, name, record.ModeRead)
	if err != nil {
		a.ctx.t.Fatalf("Failed to open consumer %q: %v", name, err)
	}
	a.ctx.readers[name] = c
	return a
}

// ReopenConsumer closes and reopens a consumer, simulating a process
// restart. The cursor file carries its position across.
func (a *Actions) ReopenConsumer(name string) *Actions {
	if err := a.ctx.reader(name).Close(); err != nil {
		a.ctx.t.Fatalf("Failed to close consumer %q: %v", name, err)
	}
	delete(a.ctx.readers, name)
	return a.OpenConsumer(name)
}

// DrainConsumer pops and commits until the consumer reports no more
// data, recording every body it saw.
func (a *Actions) DrainConsumer(name string) *Actions {
	r := a.ctx.reader(name)
	for r.PopHeader() {
		a.ctx.drained[name] = append(a.ctx.drained[name], string(r.PopBody()))
		if !r.Commit() {
			a.ctx.t.Fatalf("Commit failed for %q: %v", name, r.Err())
		}
	}
	if err := r.Err(); err != nil {
		a.ctx.t.Fatalf("Drain failed for %q: %v", name, err)
	}
	a.ctx.t.Logf("Consumer %q drained %d message(s)", name, len(a.ctx.drained[name]))
	return a
}

// DrainN pops and commits at most n records.
func (a *Actions) DrainN(name string, n int) *Actions {
	r := a.ctx.reader(name)
	for i := 0; i < n && r.PopHeader(); i++ {
		a.ctx.drained[name] = append(a.ctx.drained[name], string(r.PopBody()))
		if !r.Commit() {
			a.ctx.t.Fatalf("Commit failed for %q: %v", name, r.Err())
		}
	}
	if err := r.Err(); err != nil {
		a.ctx.t.Fatalf("Drain failed for %q: %v", name, err)
	}
	return a
}

// PopWithoutCommit stages the next record and deliberately skips the
// commit, the way a consumer that crashed mid-processing would.
func (a *Actions) PopWithoutCommit(name string) *Actions {
	r := a.ctx.reader(name)
	if !r.PopHeader() {
		a.ctx.t.Fatalf("Expected a record for %q, got none (err: %v)", name, r.Err())
	}
	a.ctx.peeked[name] = string(r.PopBody())
	return a
}

// AppendGarbageTail writes a partial frame to the end of the newest
// part file, reproducing a writer crash mid-append.
func (a *Actions) AppendGarbageTail() *Actions {
	dir := filepath.Join(a.ctx.cfg.BaseDir, a.ctx.queueName)
	newest, err := part.Latest(dir)
	if err != nil || newest == nil {
		a.ctx.t.Fatalf("No part to damage: %v", err)
	}

	frame, err := record.EncodeFrame(record.MsgTypeString, []byte("torn-mid-append"))
	if err != nil {
		a.ctx.t.Fatalf("Failed to encode frame: %v", err)
	}
	f, err := os.OpenFile(newest.Path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		a.ctx.t.Fatalf("Failed to open part for damage: %v", err)
	}
	if _, err := f.Write(frame[:len(frame)-5]); err != nil {
		a.ctx.t.Fatalf("Failed to write torn tail: %v", err)
	}
	if err := f.Close(); err != nil {
		a.ctx.t.Fatalf("Failed to close damaged part: %v", err)
	}
	a.ctx.t.Logf("Appended %d-byte torn tail to part %d", len(frame)-5, newest.Number)
	return a
}

// SweepQueue runs one retention pass and records its result.
func (a *Actions) SweepQueue() *Actions {
	res, err := queue.Sweep(a.ctx.cfg, a.ctx.queueName)
	if err != nil {
		a.ctx.t.Fatalf("Sweep failed: %v", err)
	}
	a.ctx.sweep = res
	return a
}
