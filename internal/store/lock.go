package store

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	nserr "github.com/nsearch/ns/internal/errors"
)

// BuildLock serializes index writers across processes using a file lock
// under the data directory. Readers never take it.
type BuildLock struct {
	flock  *flock.Flock
	locked bool
}

// NewBuildLock creates the lock for a data directory.
func NewBuildLock(dataDir string) *BuildLock {
	return &BuildLock{flock: flock.New(filepath.Join(dataDir, LockFileName))}
}

// Acquire takes the lock without blocking. If another build holds it, a
// concurrency error is returned so the caller can fail fast.
func (l *BuildLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return nserr.Store("create data directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return nserr.Store("acquire build lock", err)
	}
	if !acquired {
		return nserr.Lock("another index build is running")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *BuildLock) Release() {
	if !l.locked {
		return
	}
	_ = l.flock.Unlock()
	l.locked = false
}
