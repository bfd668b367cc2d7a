package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlbits/dblock/pkg/database"

	mssqllock "github.com/sqlbits/dblock/pkg/lock/mssql"
	mysqllock "github.com/sqlbits/dblock/pkg/lock/mysql"
	pglock "github.com/sqlbits/dblock/pkg/lock/postgres"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cmd := New()

	assert.Equal(t, "dblock", cmd.Name)

	names := make([]string, 0, len(cmd.Commands))
	for _, sub := range cmd.Commands {
		names = append(names, sub.Name)
	}

	assert.ElementsMatch(t, []string{"try", "hold"}, names)
}

func TestNewLocker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dbURL string
		want  any
	}{
		{dbURL: "postgres://localhost:5432/db", want: (*pglock.Locker)(nil)},
		{dbURL: "postgresql://localhost:5432/db", want: (*pglock.Locker)(nil)},
		{dbURL: "mysql://localhost:3306/db", want: (*mysqllock.Locker)(nil)},
		{dbURL: "sqlserver://localhost:1433", want: (*mssqllock.Locker)(nil)},
		{dbURL: "mssql://localhost:1433", want: (*mssqllock.Locker)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.dbURL, func(t *testing.T) {
			t.Parallel()

			locker, err := newLocker(tt.dbURL, "dblock:")
			require.NoError(t, err)

			assert.IsType(t, tt.want, locker)
		})
	}
}

func TestNewLocker_UnsupportedScheme(t *testing.T) {
	t.Parallel()

	_, err := newLocker("sqlite:///tmp/db.sqlite", "dblock:")
	require.ErrorIs(t, err, database.ErrUnsupportedDriver)
}
