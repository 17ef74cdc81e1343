package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/ent0n29/intakedesk/internal/logging"
)

func main() {
	_ = godotenv.Load()
	if err := run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var logCfg loggerConfig
	app := &cli.Command{
		Name:  "intakechat",
		Usage: "terminal client and local backend for the symptom intake assistant",
		Flags: logCfg.Flags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := logCfg.Configure()
			if err != nil {
				return ctx, err
			}
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			cmdChat(),
			cmdDevBackend(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run intakechat", logging.ErrAttr(err))
		return err
	}
	return nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
