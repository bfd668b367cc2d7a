// Package local implements the locking contract with in-process, per-key
// read-write mutexes.
//
// It exists for two callers: tests that exercise the Lock handle and
// Locking wrapper machinery without a database server, and single-instance
// deployments that want lock boundaries without a backing engine. It
// provides no cross-process exclusion.
//
// There are no transactions in-process, so both scopes behave as Session:
// every lock is held until explicitly released. Shared locks map to read
// locks. The connection argument is ignored and may be nil.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sqlbits/dblock/pkg/lock"
)

const engine = "local"

// Config holds the configuration for the local locker.
type Config struct {
	// Retry shapes the poll interval of blocking acquires. Zero-valued
	// fields fall back to lock.DefaultRetryConfig.
	Retry lock.RetryConfig
}

// Locker implements lock.Locker with per-key mutexes. Keys are
// reference-counted so the map does not grow with the universe of resource
// names ever locked.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	retry lock.RetryConfig
}

type keyLock struct {
	sync.RWMutex

	refs int
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a local in-process locker.
func NewLocker(cfg Config) *Locker {
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = lock.DefaultRetryConfig()
	}

	return &Locker{
		locks: make(map[string]*keyLock),
		retry: cfg.Retry,
	}
}

// pin returns the lock for the given key, creating it if needed, and takes
// a reference.
func (l *Locker) pin(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}

	kl.refs++

	return kl
}

// unpin drops a reference and removes the lock from the map when unused.
func (l *Locker) unpin(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl := l.locks[key]

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Acquire takes the named resource according to opts.
func (l *Locker) Acquire(
	ctx context.Context,
	_ lock.Conn,
	resource string,
	opts lock.Options,
) (*lock.Lock, error) {
	opts, err := opts.Normalize()
	if err != nil {
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureOptions)

		return nil, err
	}

	kl := l.pin(resource)

	try := func(context.Context) (bool, error) {
		if opts.Type == lock.Shared {
			return kl.TryRLock(), nil
		}

		return kl.TryLock(), nil
	}

	switch {
	case opts.NoWait:
		ok, _ := try(ctx)
		if !ok {
			l.unpin(resource)

			lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultContention)

			return nil, fmt.Errorf("%w: resource %q", lock.ErrNotAvailable, resource)
		}

	case opts.Timeout > 0:
		if err := lock.WaitUntil(ctx, engine, opts.Timeout, l.retry, try); err != nil {
			l.unpin(resource)

			if ctx.Err() != nil {
				lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

				return nil, err
			}

			lock.RecordFailure(ctx, engine, opts.Type, lock.FailureTimeout)

			return nil, fmt.Errorf("%w: resource %q", err, resource)
		}

	default:
		if err := l.wait(ctx, kl, opts.Type); err != nil {
			l.unpin(resource)

			lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

			return nil, err
		}
	}

	lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultSuccess)

	release := func(context.Context) error {
		if opts.Type == lock.Shared {
			kl.RUnlock()
		} else {
			kl.Unlock()
		}

		l.unpin(resource)

		return nil
	}

	return lock.NewLock(resource, opts, engine, release), nil
}

// wait polls for the lock with backoff until it is granted or ctx is
// canceled.
func (l *Locker) wait(ctx context.Context, kl *keyLock, typ lock.Type) error {
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			lock.RecordRetryAttempt(ctx, engine)
		}

		var ok bool
		if typ == lock.Shared {
			ok = kl.TryRLock()
		} else {
			ok = kl.TryLock()
		}

		if ok {
			return nil
		}

		timer := time.NewTimer(lock.CalculateBackoff(l.retry, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}
