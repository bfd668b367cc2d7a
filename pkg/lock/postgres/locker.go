// Package postgres implements advisory locking on PostgreSQL.
//
// PostgreSQL exposes every combination of the contract as a distinct native
// function: pg[_try]_advisory[_xact]_lock[_shared], keyed by a signed
// bigint. Transaction-scoped (xact) locks are released by the engine at
// commit or rollback and have no unlock function; session-scoped locks are
// released with pg_advisory_unlock[_shared] on the acquiring session.
//
// Re-acquiring the same resource on one session is reentrant in PostgreSQL:
// the engine counts acquisitions and requires a matching number of releases.
// This package adds no reentrancy tracking of its own; the engine's native
// behavior is the effective contract.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sqlbits/dblock/pkg/lock"
)

const engine = "postgres"

// Config holds the configuration for the PostgreSQL locker.
type Config struct {
	// KeyPrefix is prepended to every resource key before hashing, to
	// namespace deployments sharing one database. Defaults to "dblock:".
	KeyPrefix string

	// Retry shapes the poll interval of a bounded blocking acquire.
	// Zero-valued fields fall back to lock.DefaultRetryConfig.
	Retry lock.RetryConfig
}

// Locker implements lock.Locker using PostgreSQL advisory locks.
type Locker struct {
	keyPrefix string
	retry     lock.RetryConfig
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a PostgreSQL advisory-lock locker.
func NewLocker(cfg Config) *Locker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dblock:"
	}

	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = lock.DefaultRetryConfig()
	}

	return &Locker{
		keyPrefix: cfg.KeyPrefix,
		retry:     cfg.Retry,
	}
}

// lockFunc selects the native acquire function for the requested policy.
// A bounded blocking acquire polls the try variant, because canceling an
// engine-blocking call mid-grant leaves the lock state ambiguous.
func lockFunc(opts lock.Options) string {
	fn := "pg_"

	if opts.NoWait || opts.Timeout > 0 {
		fn += "try_"
	}

	fn += "advisory_"

	if opts.Scope == lock.Transaction {
		fn += "xact_"
	}

	fn += "lock"

	if opts.Type == lock.Shared {
		fn += "_shared"
	}

	return fn
}

// unlockFunc selects the native release function, or "" when the engine
// releases the lock itself at transaction end.
func unlockFunc(opts lock.Options) string {
	if opts.Scope == lock.Transaction {
		return ""
	}

	if opts.Type == lock.Shared {
		return "pg_advisory_unlock_shared"
	}

	return "pg_advisory_unlock"
}

// Acquire takes the named resource according to opts.
//
// Transaction-scoped locks require conn to have an open transaction; a
// transaction-scoped lock taken outside one is released by the engine
// immediately. Session-scoped locks require conn to be pinned to a single
// session (*sql.Conn or *sql.Tx).
func (l *Locker) Acquire(
	ctx context.Context,
	conn lock.Conn,
	resource string,
	opts lock.Options,
) (*lock.Lock, error) {
	opts, err := opts.Normalize()
	if err != nil {
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureOptions)

		return nil, err
	}

	if conn == nil {
		return nil, fmt.Errorf("%w: resource %q", lock.ErrNoConnection, resource)
	}

	id := lock.ResourceID(l.keyPrefix + resource)
	fn := lockFunc(opts)

	switch {
	case opts.NoWait:
		ok, err := tryOnce(ctx, conn, fn, id)
		if err != nil {
			lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

			return nil, err
		}

		if !ok {
			lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultContention)

			return nil, fmt.Errorf("%w: resource %q", lock.ErrNotAvailable, resource)
		}

	case opts.Timeout > 0:
		err := lock.WaitUntil(ctx, engine, opts.Timeout, l.retry, func(ctx context.Context) (bool, error) {
			return tryOnce(ctx, conn, fn, id)
		})
		if err != nil {
			switch {
			case errors.Is(err, lock.ErrTimeout):
				lock.RecordFailure(ctx, engine, opts.Type, lock.FailureTimeout)

				return nil, fmt.Errorf("%w: resource %q", err, resource)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

				return nil, err
			default:
				lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

				return nil, err
			}
		}

	default:
		// Unbounded wait: let the engine block. The query is canceled
		// through ctx if the caller gives up.
		if _, err := conn.ExecContext(ctx, "SELECT "+fn+"($1)", id); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

				return nil, err
			}

			lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

			return nil, fmt.Errorf("%w: %s: %w", lock.ErrBackend, fn, err)
		}
	}

	lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("resource", resource).
		Int64("lock_id", id).
		Str("lock_fn", fn).
		Msg("acquired PostgreSQL advisory lock")

	return lock.NewLock(resource, opts, engine, l.releaseFunc(conn, resource, id, opts)), nil
}

// tryOnce issues a single non-waiting attempt and reports whether the lock
// was granted.
func tryOnce(ctx context.Context, conn lock.Conn, fn string, id int64) (bool, error) {
	var ok bool

	if err := conn.QueryRowContext(ctx, "SELECT "+fn+"($1)", id).Scan(&ok); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}

		return false, fmt.Errorf("%w: %s: %w", lock.ErrBackend, fn, err)
	}

	return ok, nil
}

// releaseFunc builds the release half of the handle. Transaction-scoped
// locks return nil: the engine releases them at transaction end, and
// attempting an explicit unlock there would release nothing and warn on the
// server.
func (l *Locker) releaseFunc(conn lock.Conn, resource string, id int64, opts lock.Options) func(context.Context) error {
	if opts.Scope == lock.Transaction {
		return nil
	}

	fn := unlockFunc(opts)

	return func(ctx context.Context) error {
		var ok bool

		if err := conn.QueryRowContext(ctx, "SELECT "+fn+"($1)", id).Scan(&ok); err != nil {
			return fmt.Errorf("%w: %s: %w", lock.ErrBackend, fn, err)
		}

		if !ok {
			// Not fatal: the session no longer held the lock, e.g.
			// the connection was recycled underneath the caller.
			zerolog.Ctx(ctx).Warn().
				Str("resource", resource).
				Int64("lock_id", id).
				Msg("advisory lock was not held during unlock")

			return nil
		}

		zerolog.Ctx(ctx).Debug().
			Str("resource", resource).
			Int64("lock_id", id).
			Msg("released PostgreSQL advisory lock")

		return nil
	}
}
