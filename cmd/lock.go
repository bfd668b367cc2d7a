package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/sqlbits/dblock/pkg/database"
	"github.com/sqlbits/dblock/pkg/lock"

	mssqllock "github.com/sqlbits/dblock/pkg/lock/mssql"
	mysqllock "github.com/sqlbits/dblock/pkg/lock/mysql"
	pglock "github.com/sqlbits/dblock/pkg/lock/postgres"
)

func lockFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db-url",
			Usage:    "Database URL (postgres://, mysql:// or sqlserver://)",
			Sources:  cli.EnvVars("DBLOCK_DB_URL"),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "resource",
			Usage:    "Name of the resource to lock",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "shared",
			Usage: "Acquire a shared lock instead of an exclusive one",
		},
		&cli.StringFlag{
			Name:  "key-prefix",
			Usage: "Prefix namespacing the lock keys",
			Value: "dblock:",
		},
	}
}

func tryCommand() *cli.Command {
	return &cli.Command{
		Name:  "try",
		Usage: "Probe a resource with one non-waiting acquire; exit 1 if it is held",
		Flags: lockFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, func(ctx context.Context, conn *sql.Conn, locker lock.Locker) error {
				opts := lockOptions(cmd)
				opts.NoWait = true

				held, err := locker.Acquire(ctx, conn, cmd.String("resource"), opts)
				if errors.Is(err, lock.ErrNotAvailable) {
					return cli.Exit("resource is locked", 1)
				}

				if err != nil {
					return err
				}

				if err := held.Release(ctx); err != nil {
					return err
				}

				fmt.Fprintln(cmd.Writer, "resource is free")

				return nil
			})
		},
	}
}

func holdCommand() *cli.Command {
	return &cli.Command{
		Name:  "hold",
		Usage: "Acquire a lock and hold it until interrupted",
		Flags: append(lockFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Give up after waiting this long, wait indefinitely when 0",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withSession(ctx, cmd, func(ctx context.Context, conn *sql.Conn, locker lock.Locker) error {
				opts := lockOptions(cmd)
				opts.Timeout = cmd.Duration("timeout")

				resource := cmd.String("resource")

				held, err := locker.Acquire(ctx, conn, resource, opts)
				if err != nil {
					return err
				}

				zerolog.Ctx(ctx).Info().
					Str("resource", resource).
					Msg("lock held; interrupt to release")

				sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				<-sctx.Done()

				return held.Release(ctx)
			})
		},
	}
}

// lockOptions builds the acquisition policy common to the lock commands.
// The CLI always uses session scope: it runs no transaction, and a
// transaction-scoped lock outside one is gone before the command returns.
func lockOptions(cmd *cli.Command) lock.Options {
	opts := lock.Options{Scope: lock.Session}

	if cmd.Bool("shared") {
		opts.Type = lock.Shared
	}

	return opts
}

// withSession opens the database, pins a single session for the lock to
// live on, picks the engine locker from the URL scheme, and runs fn.
func withSession(
	ctx context.Context,
	cmd *cli.Command,
	fn func(ctx context.Context, conn *sql.Conn, locker lock.Locker) error,
) error {
	dbURL := cmd.String("db-url")

	locker, err := newLocker(dbURL, cmd.String("key-prefix"))
	if err != nil {
		return err
	}

	db, err := database.Open(dbURL, &database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("error pinning a database session: %w", err)
	}
	defer conn.Close()

	return fn(ctx, conn, locker)
}

func newLocker(dbURL, keyPrefix string) (lock.Locker, error) {
	dbType, err := database.DetectFromDatabaseURL(dbURL)
	if err != nil {
		return nil, err
	}

	switch dbType {
	case database.TypePostgreSQL:
		return pglock.NewLocker(pglock.Config{KeyPrefix: keyPrefix}), nil
	case database.TypeMySQL:
		return mysqllock.NewLocker(mysqllock.Config{KeyPrefix: keyPrefix}), nil
	case database.TypeMSSQL:
		return mssqllock.NewLocker(mssqllock.Config{KeyPrefix: keyPrefix}), nil
	case database.TypeUnknown:
		fallthrough
	default:
		return nil, database.ErrUnsupportedDriver
	}
}
