package lock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sqlbits/dblock/pkg/lock"
)

func TestResourceID_Stable(t *testing.T) {
	t.Parallel()

	// Equal keys must map to equal identities across calls (and, because
	// the hash carries no per-process state, across processes).
	assert.Equal(t, lock.ResourceID("user-42"), lock.ResourceID("user-42"))
}

func TestResourceID_DistinctKeys(t *testing.T) {
	t.Parallel()

	keys := []string{"user-1", "user-2", "invoice-1", "", "a", "A"}

	seen := make(map[int64]string, len(keys))

	for _, key := range keys {
		id := lock.ResourceID(key)

		prev, collided := seen[id]
		assert.False(t, collided, "keys %q and %q mapped to the same identity", prev, key)

		seen[id] = key
	}
}

func TestResourceName_Stable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lock.ResourceName("user-42"), lock.ResourceName("user-42"))
}

func TestResourceName_Shape(t *testing.T) {
	t.Parallel()

	name := lock.ResourceName("some-rather-long-resource-name-that-would-not-fit-engine-limits")

	assert.Len(t, name, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", name)
}

func TestResourceName_DistinctKeys(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, lock.ResourceName("user-1"), lock.ResourceName("user-2"))
}
