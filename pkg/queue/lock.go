package queue

import (
	"fmt"
	"os"
	"path/filepath"
)

// LockFileName is the per-queue sentinel carrying the advisory writer
// lock. Readers never touch it.
const LockFileName = "queue.lock"

type flock struct {
	f *os.File
}

// acquireLock opens the queue's lock sentinel and takes the exclusive
// writer lock without blocking. The session id is written into the
// sentinel for diagnostics only; the kernel lock is what arbitrates.
func acquireLock(dir, session string) (*flock, error) {
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(session+"\n"), 0)
	}
	return &flock{f: f}, nil
}

func (l *flock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
