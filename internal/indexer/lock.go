package indexer

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrBuildInProgress is returned when a build or update is already running
	ErrBuildInProgress = errors.New("indexing already in progress")

	// ErrCancelled is returned by a run stopped through Cancel or its context
	ErrCancelled = errors.New("indexing cancelled")
)

// IndexLock is a non-blocking mutex. Builds and incremental updates share one
// lock so a second caller fails fast instead of queueing behind a long run.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire takes the lock if it is free
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Acquire is TryAcquire with ErrBuildInProgress on failure
func (l *IndexLock) Acquire() error {
	if !l.TryAcquire() {
		return ErrBuildInProgress
	}
	return nil
}

// Held reports whether the lock is currently taken
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}

// Release frees the lock. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}
