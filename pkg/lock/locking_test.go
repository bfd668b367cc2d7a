package lock_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbits/dblock/pkg/lock"
)

// stubConn satisfies lock.Conn for wrappers under test whose fake locker
// never touches the database.
type stubConn struct{}

func (stubConn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}

func (stubConn) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

// fakeLocker records acquisitions and hands out handles whose release is
// observable.
type fakeLocker struct {
	acquired   []string
	opts       lock.Options
	acquireErr error
	releaseErr error
	released   int
}

func (f *fakeLocker) Acquire(
	_ context.Context,
	_ lock.Conn,
	resource string,
	opts lock.Options,
) (*lock.Lock, error) {
	f.acquired = append(f.acquired, resource)
	f.opts = opts

	if f.acquireErr != nil {
		return nil, f.acquireErr
	}

	return lock.NewLock(resource, opts, "fake", func(context.Context) error {
		f.released++

		return f.releaseErr
	}), nil
}

func TestLocking_RendersAndLocks(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	guard := lock.Locking{
		Locker:   locker,
		Resource: "user-{user_id}",
		Options:  lock.Options{Scope: lock.Session},
	}

	invoked := false

	err := guard.Do(context.Background(), stubConn{}, map[string]any{"user_id": 42},
		func(context.Context) error {
			invoked = true

			return nil
		})
	require.NoError(t, err)

	assert.True(t, invoked)
	assert.Equal(t, []string{"user-42"}, locker.acquired)
	assert.Equal(t, lock.Session, locker.opts.Scope)
	assert.Equal(t, 1, locker.released, "exactly one release per invocation")
}

func TestLocking_FormatErrorShortCircuits(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	guard := lock.Locking{Locker: locker, Resource: "user-{user_id}"}

	err := guard.Do(context.Background(), stubConn{}, map[string]any{"id": 42},
		func(context.Context) error {
			t.Fatal("callable must not run")

			return nil
		})
	require.ErrorIs(t, err, lock.ErrFormat)

	assert.Empty(t, locker.acquired, "locker must not be consulted")
}

func TestLocking_MissingConnection(t *testing.T) {
	t.Parallel()

	guard := lock.Locking{Locker: &fakeLocker{}, Resource: "user-{user_id}"}

	err := guard.Do(context.Background(), nil, map[string]any{"user_id": 42},
		func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNoConnection)
}

func TestLocking_MissingLocker(t *testing.T) {
	t.Parallel()

	guard := lock.Locking{Resource: "user-{user_id}"}

	err := guard.Do(context.Background(), stubConn{}, map[string]any{"user_id": 42},
		func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNoLocker)
}

func TestLocking_AcquireFailureSkipsCallable(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{acquireErr: lock.ErrNotAvailable}
	guard := lock.Locking{
		Locker:   locker,
		Resource: "user-{user_id}",
		Options:  lock.Options{NoWait: true},
	}

	err := guard.Do(context.Background(), stubConn{}, map[string]any{"user_id": 42},
		func(context.Context) error {
			t.Fatal("callable must not run when the lock is unavailable")

			return nil
		})
	require.ErrorIs(t, err, lock.ErrNotAvailable)

	assert.Zero(t, locker.released, "nothing to release after a failed acquire")
}

func TestLocking_CallableErrorWinsOverRelease(t *testing.T) {
	t.Parallel()

	domainErr := errors.New("insufficient funds")

	locker := &fakeLocker{releaseErr: errors.New("connection reset")}
	guard := lock.Locking{Locker: locker, Resource: "account-{id}"}

	err := guard.Do(context.Background(), stubConn{}, map[string]any{"id": 7},
		func(context.Context) error { return domainErr })

	// The caller observes the domain error, not the release failure.
	require.ErrorIs(t, err, domainErr)
	assert.Equal(t, 1, locker.released, "release must still run")
}

func TestLocking_ReleaseErrorSurfacesAlone(t *testing.T) {
	t.Parallel()

	releaseErr := errors.New("connection reset")

	locker := &fakeLocker{releaseErr: releaseErr}
	guard := lock.Locking{Locker: locker, Resource: "account-{id}"}

	err := guard.Do(context.Background(), stubConn{}, map[string]any{"id": 7},
		func(context.Context) error { return nil })
	require.ErrorIs(t, err, releaseErr)
}

func TestLocking_ReleasesOnPanic(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	guard := lock.Locking{Locker: locker, Resource: "account-{id}"}

	require.PanicsWithValue(t, "boom", func() {
		_ = guard.Do(context.Background(), stubConn{}, map[string]any{"id": 7},
			func(context.Context) error { panic("boom") })
	})

	assert.Equal(t, 1, locker.released, "release must run even when the callable panics")
}

func TestLocking_Wrap(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	guard := lock.Locking{Locker: locker, Resource: "user-{user_id}"}

	invoked := 0

	wrapped := guard.Wrap(func(context.Context, lock.Conn, map[string]any) error {
		invoked++

		return nil
	})

	require.NoError(t, wrapped(context.Background(), stubConn{}, map[string]any{"user_id": 1}))
	require.NoError(t, wrapped(context.Background(), stubConn{}, map[string]any{"user_id": 2}))

	assert.Equal(t, 2, invoked)
	assert.Equal(t, []string{"user-1", "user-2"}, locker.acquired)
	assert.Equal(t, 2, locker.released)
}

func TestWith_NilCollaborators(t *testing.T) {
	t.Parallel()

	err := lock.With(context.Background(), nil, stubConn{}, "r", lock.Options{},
		func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNoLocker)

	err = lock.With(context.Background(), &fakeLocker{}, nil, "r", lock.Options{},
		func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNoConnection)
}
