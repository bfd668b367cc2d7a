// Package cmd wires the dblock command-line interface: a small operational
// tool for taking and probing advisory locks from the shell, e.g. to
// serialize cron jobs or ad-hoc maintenance against a running application.
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// Version defines the version of the binary, and is meant to be set with ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

func New() *cli.Command {
	var otelShutdown func(context.Context) error

	return &cli.Command{
		Name:    "dblock",
		Usage:   "Advisory locks on relational databases",
		Version: Version,
		After: func(ctx context.Context, _ *cli.Command) error {
			if otelShutdown == nil {
				return nil
			}

			return otelShutdown(ctx)
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			var err error

			otelShutdown, err = setupOTelSDK(ctx, cmd)
			if err != nil {
				return ctx, err
			}

			logLvl := cmd.String("log-level")

			lvl, err := zerolog.ParseLevel(logLvl)
			if err != nil {
				return ctx, fmt.Errorf("error parsing the log-level %q: %w", logLvl, err)
			}

			var output io.Writer = os.Stderr

			if term.IsTerminal(int(os.Stderr.Fd())) {
				output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
			}

			ctx = zerolog.New(output).Level(lvl).With().Timestamp().Logger().WithContext(ctx)

			return ctx, nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Set the log level",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "info",
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.StringFlag{
				Name:    "otel-grpc-endpoint",
				Usage:   "Configure OpenTelemetry gRPC endpoint for metric export, omit to disable",
				Sources: cli.EnvVars("OTEL_GRPC_ENDPOINT"),
				Value:   "",
				Validator: func(colURL string) error {
					if colURL == "" {
						return nil
					}

					_, err := url.Parse(colURL)

					return err
				},
			},
		},
		Commands: []*cli.Command{
			tryCommand(),
			holdCommand(),
		},
	}
}
