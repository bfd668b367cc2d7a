// Package mysql implements advisory locking on MySQL and MariaDB through
// GET_LOCK and RELEASE_LOCK.
//
// MySQL's named-lock primitive is narrower than the other engines': locks
// are always exclusive and always session-scoped, and the server enforces
// the wait bound itself through GET_LOCK's timeout argument. Requests for
// Shared or Transaction-scoped locks fail with ErrOptions rather than being
// silently downgraded, because a downgrade would weaken mutual exclusion
// without telling the caller.
//
// Since MySQL 5.7 a session can hold multiple named locks, and re-acquiring
// a held name on the same session is reentrant (counted). This package adds
// no reentrancy tracking of its own.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/sqlbits/dblock/pkg/lock"
)

const engine = "mysql"

// Config holds the configuration for the MySQL locker.
type Config struct {
	// KeyPrefix is prepended to every resource key before hashing, to
	// namespace deployments sharing one server. Defaults to "dblock:".
	KeyPrefix string
}

// Locker implements lock.Locker using MySQL/MariaDB named locks.
type Locker struct {
	keyPrefix string
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a MySQL named-lock locker.
func NewLocker(cfg Config) *Locker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dblock:"
	}

	return &Locker{keyPrefix: cfg.KeyPrefix}
}

// lockTimeoutSeconds maps the waiting policy to GET_LOCK's timeout
// argument: 0 returns immediately, -1 waits indefinitely, positive values
// wait that many seconds (fractions round up so a bound is never shortened
// to an immediate return).
func lockTimeoutSeconds(opts lock.Options) int64 {
	if opts.NoWait {
		return 0
	}

	if opts.Timeout > 0 {
		return int64(math.Ceil(opts.Timeout.Seconds()))
	}

	return -1
}

// lockName returns the engine-side lock name. GET_LOCK names are limited to
// 64 characters, so the prefixed key is always hashed to a fixed-width name.
func (l *Locker) lockName(resource string) string {
	return lock.ResourceName(l.keyPrefix + resource)
}

// Acquire takes the named resource according to opts. Only exclusive,
// session-scoped locks are supported; conn must be pinned to a single
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

	if opts.Type == lock.Shared {
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureOptions)

		return nil, fmt.Errorf("%w: MySQL named locks have no shared mode", lock.ErrOptions)
	}

	if opts.Scope == lock.Transaction {
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureOptions)

		return nil, fmt.Errorf("%w: MySQL named locks are session-scoped only", lock.ErrOptions)
	}

	if conn == nil {
		return nil, fmt.Errorf("%w: resource %q", lock.ErrNoConnection, resource)
	}

	name := l.lockName(resource)

	// GET_LOCK returns 1 on success, 0 on timeout, NULL on error.
	var result sql.NullInt64

	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, lockTimeoutSeconds(opts)).Scan(&result)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

			return nil, err
		}

		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

		return nil, fmt.Errorf("%w: GET_LOCK: %w", lock.ErrBackend, err)
	}

	if !result.Valid {
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

		return nil, fmt.Errorf("%w: GET_LOCK returned NULL", lock.ErrBackend)
	}

	if result.Int64 != 1 {
		if opts.NoWait {
			lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultContention)

			return nil, fmt.Errorf("%w: resource %q", lock.ErrNotAvailable, resource)
		}

		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureTimeout)

		return nil, fmt.Errorf("%w: resource %q after %s", lock.ErrTimeout, resource, opts.Timeout)
	}

	lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("resource", resource).
		Str("lock_name", name).
		Msg("acquired MySQL named lock")

	return lock.NewLock(resource, opts, engine, l.releaseFunc(conn, resource, name)), nil
}

// releaseFunc builds the release half of the handle. Every MySQL named lock
// is session-scoped, so release is always an explicit RELEASE_LOCK.
func (l *Locker) releaseFunc(conn lock.Conn, resource, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		// RELEASE_LOCK returns 1 when released, 0 when held by another
		// session, NULL when the name does not exist.
		var result sql.NullInt64

		if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", name).Scan(&result); err != nil {
			return fmt.Errorf("%w: RELEASE_LOCK: %w", lock.ErrBackend, err)
		}

		if !result.Valid || result.Int64 != 1 {
			zerolog.Ctx(ctx).Warn().
				Str("resource", resource).
				Str("lock_name", name).
				Msg("named lock was not held during unlock")

			return nil
		}

		zerolog.Ctx(ctx).Debug().
			Str("resource", resource).
			Str("lock_name", name).
			Msg("released MySQL named lock")

		return nil
	}
}
