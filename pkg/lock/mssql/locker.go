// Package mssql implements advisory locking on SQL Server through the
// application-lock procedures sp_getapplock and sp_releaseapplock.
//
// Unlike PostgreSQL, SQL Server keys application locks by a string name and
// folds every policy into parameters of one procedure: @LockMode selects
// the degree of sharing, @LockOwner selects the scope, and @LockTimeout
// selects the waiting policy. Shared locks are emulated with the "Update"
// mode, which is weaker than true shared-read concurrency: an Update holder
// excludes Exclusive requests, but Update holders also exclude each other,
// so at most one Shared holder exists per resource at a time.
//
// Application locks are reentrant per owner: the engine counts acquisitions
// and requires matching releases. This package adds no reentrancy tracking
// of its own.
package mssql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sqlbits/dblock/pkg/lock"
)

const engine = "mssql"

// sp_getapplock resource names are limited to 255 characters; longer
// rendered keys fall back to the fixed-width hashed name.
const maxResourceLen = 255

const acquireQuery = `DECLARE @result int;
EXEC @result = sp_getapplock
  @Resource = @p1,
  @LockMode = @p2,
  @LockOwner = @p3,
  @LockTimeout = @p4,
  @DbPrincipal = @p5;
SELECT @result;`

const releaseQuery = `EXEC sp_releaseapplock
  @Resource = @p1,
  @LockOwner = @p2,
  @DbPrincipal = @p3;`

// sp_getapplock return codes.
const (
	retGranted          = 0  // granted synchronously
	retGrantedAfterWait = 1  // granted after waiting
	retTimeout          = -1 // wait timed out
	retCanceled         = -2 // request canceled
	retDeadlock         = -3 // chosen as deadlock victim
	retParameterError   = -999
)

// Config holds the configuration for the SQL Server locker.
type Config struct {
	// KeyPrefix is prepended to every resource key, to namespace
	// deployments sharing one database. Defaults to "dblock:".
	KeyPrefix string

	// Principal is the @DbPrincipal argument of the lock procedures.
	// Defaults to "public".
	Principal string
}

// Locker implements lock.Locker using SQL Server application locks.
type Locker struct {
	keyPrefix string
	principal string
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a SQL Server application-lock locker.
func NewLocker(cfg Config) *Locker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dblock:"
	}

	if cfg.Principal == "" {
		cfg.Principal = "public"
	}

	return &Locker{
		keyPrefix: cfg.KeyPrefix,
		principal: cfg.Principal,
	}
}

// lockMode maps the lock type to an sp_getapplock mode. Shared maps to
// "Update", which excludes Exclusive holders but, unlike a true shared
// mode, also excludes other Update holders.
func lockMode(typ lock.Type) string {
	if typ == lock.Shared {
		return "Update"
	}

	return "Exclusive"
}

// lockOwner maps the scope to an sp_getapplock owner.
func lockOwner(scope lock.Scope) string {
	if scope == lock.Session {
		return "Session"
	}

	return "Transaction"
}

// lockTimeoutMillis maps the waiting policy to the @LockTimeout argument:
// 0 returns immediately, -1 waits indefinitely, positive values wait that
// many milliseconds.
func lockTimeoutMillis(opts lock.Options) int64 {
	if opts.NoWait {
		return 0
	}

	if opts.Timeout > 0 {
		return int64(opts.Timeout / time.Millisecond)
	}

	return -1
}

// lockName returns the engine-side resource name: the prefixed rendered key
// when it fits, the hashed fixed-width name otherwise.
func (l *Locker) lockName(resource string) string {
	name := l.keyPrefix + resource
	if len(name) <= maxResourceLen {
		return name
	}

	return lock.ResourceName(name)
}

// Acquire takes the named resource according to opts.
//
// Transaction-scoped locks require conn to have an open transaction;
// sp_getapplock rejects the Transaction owner outside one. Session-scoped
// locks require conn to be pinned to a single session.
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

	name := l.lockName(resource)
	owner := lockOwner(opts.Scope)

	var code int64

	err = conn.QueryRowContext(ctx, acquireQuery,
		name,
		lockMode(opts.Type),
		owner,
		lockTimeoutMillis(opts),
		l.principal,
	).Scan(&code)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

			return nil, err
		}

		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

		return nil, fmt.Errorf("%w: sp_getapplock: %w", lock.ErrBackend, err)
	}

	switch {
	case code == retGranted || code == retGrantedAfterWait:
	case code == retTimeout && opts.NoWait:
		lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultContention)

		return nil, fmt.Errorf("%w: resource %q", lock.ErrNotAvailable, resource)
	case code == retTimeout:
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureTimeout)

		return nil, fmt.Errorf("%w: resource %q after %s", lock.ErrTimeout, resource, opts.Timeout)
	case code == retCanceled:
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureCanceled)

		return nil, fmt.Errorf("%w: sp_getapplock: request canceled", lock.ErrBackend)
	case code == retDeadlock:
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

		return nil, fmt.Errorf("%w: sp_getapplock: chosen as deadlock victim", lock.ErrBackend)
	case code == retParameterError:
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

		return nil, fmt.Errorf("%w: sp_getapplock: parameter validation error", lock.ErrBackend)
	default:
		lock.RecordFailure(ctx, engine, opts.Type, lock.FailureBackend)

		return nil, fmt.Errorf("%w: sp_getapplock: unexpected return code %d", lock.ErrBackend, code)
	}

	lock.RecordAcquisition(ctx, engine, opts.Type, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("resource", resource).
		Str("lock_name", name).
		Str("owner", owner).
		Msg("acquired SQL Server application lock")

	return lock.NewLock(resource, opts, engine, l.releaseFunc(conn, resource, name, opts)), nil
}

// releaseFunc builds the release half of the handle. Transaction-owned
// locks return nil: the engine releases them at commit or rollback, and
// sp_releaseapplock errors when asked to release a lock that is already
// gone with the transaction.
func (l *Locker) releaseFunc(conn lock.Conn, resource, name string, opts lock.Options) func(context.Context) error {
	if opts.Scope == lock.Transaction {
		return nil
	}

	return func(ctx context.Context) error {
		if _, err := conn.ExecContext(ctx, releaseQuery, name, lockOwner(opts.Scope), l.principal); err != nil {
			return fmt.Errorf("%w: sp_releaseapplock: %w", lock.ErrBackend, err)
		}

		zerolog.Ctx(ctx).Debug().
			Str("resource", resource).
			Str("lock_name", name).
			Msg("released SQL Server application lock")

		return nil
	}
}
