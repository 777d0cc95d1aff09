package world

import "sync/atomic"

// ReadToken is a held read lock. Release is idempotent, so
// `defer tok.Release()` is safe next to an explicit early release.
type ReadToken struct {
	w        *World
	released atomic.Bool
}

func (t *ReadToken) Release() {
	if t.released.CompareAndSwap(false, true) {
		t.w.lock.RUnlock()
	}
}

// WriteToken is a held write lock. Release is idempotent.
type WriteToken struct {
	w        *World
	released atomic.Bool
}

func (t *WriteToken) Release() {
	if t.released.CompareAndSwap(false, true) {
		t.w.lock.Unlock()
	}
}

// ReadLock blocks until no writer holds the world and returns a token.
// Any number of readers may hold the world at once. Update holds the write
// lock for a whole frame, so readers never observe a phase in flight.
func (w *World) ReadLock() *ReadToken {
	w.lock.RLock()
	return &ReadToken{w: w}
}

// WriteLock blocks until the world is free and returns a token that excludes
// every reader and writer. Must not be called by the goroutine running
// Update or from update functions.
func (w *World) WriteLock() *WriteToken {
	w.lock.Lock()
	return &WriteToken{w: w}
}

// WithRead runs fn under a read lock.
func (w *World) WithRead(fn func(w *World) error) error {
	tok := w.ReadLock()
	defer tok.Release()
	return fn(w)
}

// WithWrite runs fn under the write lock. The lock is released even when fn
// panics.
func (w *World) WithWrite(fn func(w *World) error) error {
	tok := w.WriteLock()
	defer tok.Release()
	return fn(w)
}
