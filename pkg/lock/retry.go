package lock

import (
	"context"
	"fmt"
	"math"
	"time"

	mathrand "math/rand"
)

// DefaultJitterFactor is the default proportion of delay to add as random jitter.
const DefaultJitterFactor = 0.5

// RetryConfig shapes the delay between attempts of a waiting acquisition on
// engines whose native primitive cannot wait with a bound, so the engine
// locker polls a non-waiting attempt instead.
type RetryConfig struct {
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Jitter enables random jitter in retry delays to prevent thundering herd.
	Jitter bool

	// JitterFactor is the maximum proportion of delay to add as random jitter.
	// Only used if Jitter is true. Defaults to DefaultJitterFactor if not set.
	JitterFactor float64
}

// GetJitterFactor returns the JitterFactor if it's set and valid (> 0),
// otherwise it returns DefaultJitterFactor.
func (c RetryConfig) GetJitterFactor() float64 {
	if c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}

	return c.JitterFactor
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Jitter:       true,
		JitterFactor: DefaultJitterFactor,
	}
}

// CalculateBackoff calculates the backoff duration for a given attempt.
// The attempt number is 0-indexed (first attempt is 0, first retry is 1).
func CalculateBackoff(cfg RetryConfig, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	// Formula: InitialDelay * 2^(attempt-1)
	delay := cfg.InitialDelay * time.Duration(math.Pow(2, float64(attempt-1)))

	// Cap at MaxDelay
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if cfg.Jitter {
		factor := cfg.GetJitterFactor()

		// The global math/rand is safe for concurrent use and avoids
		// creating a new source on every call.
		//nolint:gosec // G404: jitter doesn't need crypto-grade randomness
		jitter := mathrand.Float64() * float64(delay) * factor
		delay += time.Duration(jitter)
	}

	return delay
}

// WaitUntil repeatedly invokes try until it reports success, the timeout
// elapses, or ctx is canceled. Retries are spaced by CalculateBackoff and
// never sleep past the deadline; one final attempt runs after the last
// sleep. Deadline expiry returns ErrTimeout; an error from try aborts the
// wait and is returned unchanged.
func WaitUntil(
	ctx context.Context,
	engine string,
	timeout time.Duration,
	cfg RetryConfig,
	try func(context.Context) (bool, error),
) error {
	deadline := time.Now().Add(timeout)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			RecordRetryAttempt(ctx, engine)
		}

		ok, err := try(ctx)
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: after %s", ErrTimeout, timeout)
		}

		delay := CalculateBackoff(cfg, attempt+1)
		if delay > remaining {
			delay = remaining
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}
