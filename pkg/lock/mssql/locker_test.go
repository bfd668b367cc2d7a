package mssql

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sqlbits/dblock/pkg/lock"
)

func TestLockMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Exclusive", lockMode(lock.Exclusive))
	assert.Equal(t, "Update", lockMode(lock.Shared))
}

func TestLockOwner(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Transaction", lockOwner(lock.Transaction))
	assert.Equal(t, "Session", lockOwner(lock.Session))
}

func TestLockTimeoutMillis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts lock.Options
		want int64
	}{
		{
			name: "nowait returns immediately",
			opts: lock.Options{NoWait: true},
			want: 0,
		},
		{
			name: "bounded wait in milliseconds",
			opts: lock.Options{Timeout: 1500 * time.Millisecond},
			want: 1500,
		},
		{
			name: "sub-millisecond timeout truncates to zero",
			opts: lock.Options{Timeout: 500 * time.Microsecond},
			want: 0,
		},
		{
			name: "unbounded wait",
			opts: lock.Options{},
			want: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, lockTimeoutMillis(tt.opts))
		})
	}
}

func TestLockName(t *testing.T) {
	t.Parallel()

	l := NewLocker(Config{})

	// Short keys are passed through prefixed, keeping the engine-side name
	// readable in sys.dm_tran_locks.
	assert.Equal(t, "dblock:user-42", l.lockName("user-42"))

	// Keys beyond the sp_getapplock limit collapse to the hashed name.
	long := strings.Repeat("x", maxResourceLen)
	hashed := l.lockName(long)

	assert.Len(t, hashed, 16)
	assert.NotContains(t, hashed, "x")
	assert.Equal(t, lock.ResourceName("dblock:"+long), hashed)
}

func TestNewLocker_Defaults(t *testing.T) {
	t.Parallel()

	l := NewLocker(Config{})

	assert.Equal(t, "dblock:", l.keyPrefix)
	assert.Equal(t, "public", l.principal)
}
