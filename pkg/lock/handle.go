package lock

import (
	"context"
	"sync"
	"time"
)

// Lock is the handle returned by a successful acquisition. It owns the
// knowledge of what was acquired and how to release it.
//
// A Lock is exclusively owned by the caller that acquired it and is never
// shared. Release is idempotent: the second and later calls are no-ops.
type Lock struct {
	resource   string
	opts       Options
	engine     string
	acquiredAt time.Time

	mu       sync.Mutex
	released bool
	release  func(context.Context) error
}

// NewLock builds a handle for an acquired lock. Engine lockers call this;
// application code receives the handle from Locker.Acquire.
//
// release carries the engine-native release call bound to the acquiring
// connection. A nil release marks a lock whose engine already releases it at
// scope teardown (e.g. transaction end), making Release a verified no-op.
func NewLock(resource string, opts Options, engine string, release func(context.Context) error) *Lock {
	return &Lock{
		resource:   resource,
		opts:       opts,
		engine:     engine,
		acquiredAt: time.Now(),
		release:    release,
	}
}

// Resource returns the rendered resource key this lock holds.
func (l *Lock) Resource() string { return l.resource }

// Type returns the lock type that was acquired.
func (l *Lock) Type() Type { return l.opts.Type }

// Scope returns the scope the lock was acquired with.
func (l *Lock) Scope() Scope { return l.opts.Scope }

// Released reports whether Release has already run.
func (l *Lock) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.released
}

// Release releases the lock.
//
// The first call issues the engine-native release (or nothing, when the
// engine releases at scope teardown) and records the hold duration. Every
// later call returns nil without touching the engine, so callers may release
// both explicitly and via defer without double-release hazards.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()

	if l.released {
		l.mu.Unlock()

		return nil
	}

	l.released = true
	release := l.release
	l.mu.Unlock()

	RecordHoldDuration(ctx, l.engine, l.opts.Type, time.Since(l.acquiredAt).Seconds())

	if release == nil {
		return nil
	}

	return release(ctx)
}
