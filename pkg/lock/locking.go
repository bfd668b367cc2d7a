package lock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// With acquires resource via locker, runs fn, and releases on every exit
// path, including a panic out of fn.
//
// An acquisition failure short-circuits: fn never runs and nothing is
// released. An error from fn takes precedence over a release failure; the
// release failure is then logged, never discarded. A release failure with no
// other error in flight is returned.
func With(
	ctx context.Context,
	locker Locker,
	conn Conn,
	resource string,
	opts Options,
	fn func(context.Context) error,
) (err error) {
	if locker == nil {
		return fmt.Errorf("%w: resource %q", ErrNoLocker, resource)
	}

	if conn == nil {
		return fmt.Errorf("%w: resource %q", ErrNoConnection, resource)
	}

	held, err := locker.Acquire(ctx, conn, resource, opts)
	if err != nil {
		return err
	}

	defer func() {
		rerr := held.Release(ctx)
		if rerr == nil {
			return
		}

		zerolog.Ctx(ctx).Warn().
			Err(rerr).
			Str("resource", resource).
			Msg("failed to release lock")

		if err == nil {
			err = rerr
		}
	}()

	return fn(ctx)
}

// Func is the shape of a callable the Locking wrapper decorates: the bound
// connection plus the call's named arguments, which also feed the resource
// template.
type Func func(ctx context.Context, conn Conn, args map[string]any) error

// Locking wraps callables with lock acquisition around a rendered resource
// key. It is configured once and reused across calls; the Locker is a
// constructor-injected dependency of the owning object.
//
//	guard := lock.Locking{
//		Locker:   locker,
//		Resource: "user-{user_id}",
//	}
//	err := guard.Do(ctx, conn, map[string]any{"user_id": 42}, updateUser)
type Locking struct {
	// Locker acquires the lock. Calls fail with ErrNoLocker when nil.
	Locker Locker

	// Resource is the lock-name template, rendered per call from the
	// call's arguments.
	Resource string

	// Options is the acquisition policy applied to every call.
	Options Options
}

// Do renders the resource key from args, acquires the lock on conn, invokes
// fn, and releases deterministically: exactly one acquire and one release
// per invocation, unless the acquire fails, which short-circuits before fn.
func (g Locking) Do(ctx context.Context, conn Conn, args map[string]any, fn func(context.Context) error) error {
	resource, err := Resource(g.Resource, args)
	if err != nil {
		return err
	}

	if conn == nil {
		return fmt.Errorf("%w: resource %q", ErrNoConnection, resource)
	}

	if g.Locker == nil {
		return fmt.Errorf("%w: resource %q", ErrNoLocker, resource)
	}

	return With(ctx, g.Locker, conn, resource, g.Options, fn)
}

// Wrap returns fn decorated with the Locking policy, for call sites that
// pass the callable around as a value.
func (g Locking) Wrap(fn Func) Func {
	return func(ctx context.Context, conn Conn, args map[string]any) error {
		return g.Do(ctx, conn, args, func(ctx context.Context) error {
			return fn(ctx, conn, args)
		})
	}
}
