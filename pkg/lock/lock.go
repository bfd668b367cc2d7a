// Package lock provides advisory (cooperative) locking backed by relational
// database engines.
//
// An advisory lock is a named, server-managed mutual-exclusion token that is
// not tied to any table row. Cooperating processes that agree to check the
// same lock name are serialized; processes that ignore it are not blocked by
// the database. This package defines one uniform acquire/release contract and
// leaves the translation into engine-native primitives to the engine
// subpackages (postgres, mssql, mysql, local).
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Type selects how many holders a lock admits.
type Type string

const (
	// Exclusive admits at most one holder.
	Exclusive Type = "EXCLUSIVE"

	// Shared admits multiple concurrent holders, all of them mutually
	// exclusive with any Exclusive holder of the same resource. Engines
	// without a native shared mode document their degree of emulation.
	Shared Type = "SHARED"
)

// Scope selects the lifetime of an acquired lock.
type Scope string

const (
	// Transaction ties the lock to the enclosing transaction: the engine
	// releases it at commit or rollback regardless of explicit release
	// calls. An explicit release under this scope is a verified no-op and
	// must never be relied upon to release early.
	Transaction Scope = "TRANSACTION"

	// Session ties the lock to the database connection: it persists across
	// transaction boundaries until explicitly released or the connection
	// closes.
	Session Scope = "SESSION"
)

// Options describes a single acquisition attempt.
//
// The zero value requests an exclusive, transaction-scoped, blocking lock
// with unbounded wait (subject to engine and driver defaults).
type Options struct {
	// Type is the lock type. Empty normalizes to Exclusive.
	Type Type

	// Scope is the lock lifetime. Empty normalizes to Transaction.
	Scope Scope

	// NoWait makes the acquire a single non-waiting attempt that fails
	// with ErrNotAvailable when the resource is held incompatibly.
	NoWait bool

	// Timeout bounds a blocking acquire. Zero means wait indefinitely.
	// Setting Timeout together with NoWait is a configuration error.
	Timeout time.Duration
}

// Normalize fills in defaults and validates the option combination.
func (o Options) Normalize() (Options, error) {
	if o.Type == "" {
		o.Type = Exclusive
	}

	if o.Scope == "" {
		o.Scope = Transaction
	}

	switch o.Type {
	case Exclusive, Shared:
	default:
		return o, fmt.Errorf("%w: unknown lock type %q", ErrOptions, o.Type)
	}

	switch o.Scope {
	case Transaction, Session:
	default:
		return o, fmt.Errorf("%w: unknown lock scope %q", ErrOptions, o.Scope)
	}

	if o.Timeout < 0 {
		return o, fmt.Errorf("%w: negative timeout %s", ErrOptions, o.Timeout)
	}

	if o.NoWait && o.Timeout > 0 {
		return o, fmt.Errorf("%w: timeout has no effect on a non-waiting acquire", ErrOptions)
	}

	return o, nil
}

// Conn is the database handle an acquisition runs on. It is satisfied by
// *sql.DB, *sql.Conn and *sql.Tx.
//
// Session-scoped locks are owned by the database session that acquired them,
// so they must be given a handle pinned to a single session (*sql.Conn or
// *sql.Tx). Passing *sql.DB routes acquire and release through arbitrary
// pooled connections and breaks session-lock ownership.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Locker acquires advisory locks on one engine dialect.
//
// A Locker is stateless with respect to individual locks: everything needed
// to release is carried by the returned Lock. Instances are safe for
// concurrent use and are typically long-lived, constructor-injected
// dependencies of the objects that lock.
type Locker interface {
	// Acquire attempts to take the named resource according to opts.
	//
	// A blocking acquire waits up to opts.Timeout (or indefinitely) and
	// fails with ErrTimeout when the bound elapses. A non-waiting acquire
	// fails with ErrNotAvailable when the resource is held incompatibly.
	// Engine and driver failures outside those two outcomes surface as
	// ErrBackend with the original diagnostic preserved.
	Acquire(ctx context.Context, conn Conn, resource string, opts Options) (*Lock, error)
}
