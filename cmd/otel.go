package cmd

import (
	"context"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/resource"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// setupOTelSDK bootstraps the OpenTelemetry metric pipeline. The lock
// packages record their metrics against the global meter provider, so this
// is all the CLI needs; logs go through zerolog and there are no spans to
// export. If it does not return an error, make sure to call shutdown for
// proper cleanup.
func setupOTelSDK(ctx context.Context, cmd *cli.Command) (func(context.Context) error, error) {
	colURL := cmd.String("otel-grpc-endpoint")
	if colURL == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(colURL))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cmd.Root().Name),
		semconv.ServiceVersion(Version),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)

	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}
