package lock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbits/dblock/pkg/lock"
)

func TestLock_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	released := 0

	held := lock.NewLock("user-42", lock.Options{Scope: lock.Session}, "test",
		func(context.Context) error {
			released++

			return nil
		})

	require.False(t, held.Released())

	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, held.Release(context.Background()))
	require.NoError(t, held.Release(context.Background()))

	assert.Equal(t, 1, released, "release must reach the engine exactly once")
	assert.True(t, held.Released())
}

func TestLock_ReleaseNoOpForEngineManagedScope(t *testing.T) {
	t.Parallel()

	// A nil release function marks a lock the engine releases at scope
	// teardown; explicit release must succeed without touching anything.
	held := lock.NewLock("user-42", lock.Options{Scope: lock.Transaction}, "test", nil)

	require.NoError(t, held.Release(context.Background()))
	assert.True(t, held.Released())
}

func TestLock_ReleaseErrorSurfacesOnce(t *testing.T) {
	t.Parallel()

	backend := errors.New("connection reset")

	held := lock.NewLock("user-42", lock.Options{}, "test",
		func(context.Context) error { return backend })

	require.ErrorIs(t, held.Release(context.Background()), backend)

	// The handle is spent after the first attempt.
	require.NoError(t, held.Release(context.Background()))
}

func TestLock_Accessors(t *testing.T) {
	t.Parallel()

	held := lock.NewLock("user-42", lock.Options{Type: lock.Shared, Scope: lock.Session}, "test", nil)

	assert.Equal(t, "user-42", held.Resource())
	assert.Equal(t, lock.Shared, held.Type())
	assert.Equal(t, lock.Session, held.Scope())
}
