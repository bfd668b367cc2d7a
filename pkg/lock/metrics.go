package lock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const otelPackageName = "github.com/sqlbits/dblock/pkg/lock"

// Acquisition results and failure reasons used as metric attributes.
const (
	ResultSuccess    = "success"
	ResultContention = "contention"

	FailureTimeout  = "timeout"
	FailureCanceled = "context_canceled"
	FailureBackend  = "backend_error"
	FailureOptions  = "invalid_options"
)

var (
	//nolint:gochecknoglobals
	meter metric.Meter

	// lockAcquisitionsTotal tracks total lock acquisition attempts.
	//nolint:gochecknoglobals
	lockAcquisitionsTotal metric.Int64Counter

	// lockHoldDuration tracks how long locks are held.
	//nolint:gochecknoglobals
	lockHoldDuration metric.Float64Histogram

	// lockFailuresTotal tracks total lock failures.
	//nolint:gochecknoglobals
	lockFailuresTotal metric.Int64Counter

	// lockRetryAttemptsTotal tracks total retry attempts.
	//nolint:gochecknoglobals
	lockRetryAttemptsTotal metric.Int64Counter
)

//nolint:gochecknoinits
func init() {
	meter = otel.Meter(otelPackageName)

	var err error

	lockAcquisitionsTotal, err = meter.Int64Counter(
		"dblock_lock_acquisitions_total",
		metric.WithDescription("Total number of lock acquisition attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(err)
	}

	lockHoldDuration, err = meter.Float64Histogram(
		"dblock_lock_hold_duration_seconds",
		metric.WithDescription("Duration that locks are held"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}

	lockFailuresTotal, err = meter.Int64Counter(
		"dblock_lock_failures_total",
		metric.WithDescription("Total number of lock failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		panic(err)
	}

	lockRetryAttemptsTotal, err = meter.Int64Counter(
		"dblock_lock_retry_attempts_total",
		metric.WithDescription("Total number of lock retry attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(err)
	}
}

// RecordAcquisition records a lock acquisition attempt.
// engine identifies the engine dialect (e.g. "postgres", "mssql").
// result should be ResultSuccess or ResultContention.
func RecordAcquisition(ctx context.Context, engine string, typ Type, result string) {
	if lockAcquisitionsTotal == nil {
		return
	}

	lockAcquisitionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("type", string(typ)),
			attribute.String("result", result),
		),
	)
}

// RecordHoldDuration records how long a lock was held, in seconds.
func RecordHoldDuration(ctx context.Context, engine string, typ Type, seconds float64) {
	if lockHoldDuration == nil {
		return
	}

	lockHoldDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("type", string(typ)),
		),
	)
}

// RecordFailure records a lock failure.
// reason describes why the lock failed (e.g. FailureTimeout, FailureBackend).
func RecordFailure(ctx context.Context, engine string, typ Type, reason string) {
	if lockFailuresTotal == nil {
		return
	}

	lockFailuresTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("type", string(typ)),
			attribute.String("reason", reason),
		),
	)
}

// RecordRetryAttempt records one retry of a waiting acquisition.
func RecordRetryAttempt(ctx context.Context, engine string) {
	if lockRetryAttemptsTotal == nil {
		return
	}

	lockRetryAttemptsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("engine", engine)),
	)
}
