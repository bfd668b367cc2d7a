package lock

import "errors"

var (
	// ErrFormat is returned when a resource template references an argument
	// that is not present in the call, or the template itself is malformed.
	ErrFormat = errors.New("lock: bad resource template")

	// ErrNoConnection is returned when no database connection is bound to
	// the call. This indicates a wiring error, not a transient condition.
	ErrNoConnection = errors.New("lock: no database connection bound")

	// ErrNoLocker is returned when no Locker is configured for the call.
	// This indicates a wiring error, not a transient condition.
	ErrNoLocker = errors.New("lock: no locker configured")

	// ErrOptions is returned when the requested option combination is
	// invalid or unsupported by the engine.
	ErrOptions = errors.New("lock: invalid lock options")

	// ErrTimeout is returned when a blocking acquire exceeds its timeout.
	ErrTimeout = errors.New("lock: acquisition timed out")

	// ErrNotAvailable is returned when a non-waiting acquire finds the
	// resource already held incompatibly.
	ErrNotAvailable = errors.New("lock: resource is already locked")

	// ErrBackend wraps any engine or driver failure during acquire or
	// release that does not map to ErrTimeout or ErrNotAvailable.
	ErrBackend = errors.New("lock: backend failure")
)
