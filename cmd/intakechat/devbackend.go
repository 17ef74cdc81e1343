package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/ent0n29/intakedesk/internal/devbackend"
	"github.com/ent0n29/intakedesk/internal/logging"
)

func cmdDevBackend() *cli.Command {
	var (
		addr        string
		idleTimeout time.Duration
	)
	return &cli.Command{
		Name:  "devbackend",
		Usage: "Serve a local stand-in for the conversational backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "Listen address",
				Value:       "127.0.0.1:5000",
				Sources:     cli.EnvVars("DEVBACKEND_ADDR"),
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "session-timeout",
				Usage:       "Idle time after which a thread answers 440",
				Value:       devbackend.SessionTimeout,
				Destination: &idleTimeout,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.From(ctx)
			srv := &http.Server{
				Addr:              addr,
				Handler:           devbackend.New(logger, devbackend.WithSessionTimeout(idleTimeout)).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("dev backend listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			runCtx, cancel := signalContext(ctx)
			defer cancel()
			select {
			case <-runCtx.Done():
			case err := <-errCh:
				if err != nil {
					return goerr.Wrap(err, "dev backend listen failed", goerr.V("addr", addr))
				}
			}

			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
