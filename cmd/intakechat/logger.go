package main

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/ent0n29/intakedesk/internal/logging"
)

type loggerConfig struct {
	level      string
	format     string
	quiet      bool
	stacktrace bool
}

func (x *loggerConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "logging",
			Aliases:     []string{"l"},
			Sources:     cli.EnvVars("APP_LOG_LEVEL"),
			Usage:       "Set log level [debug|info|warn|error]",
			Value:       "info",
			Destination: &x.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Category:    "logging",
			Sources:     cli.EnvVars("APP_LOG_FORMAT"),
			Usage:       "Set log format [console|json]",
			Value:       "console",
			Destination: &x.format,
		},
		&cli.BoolFlag{
			Name:        "log-quiet",
			Category:    "logging",
			Aliases:     []string{"q"},
			Usage:       "Quiet mode (no log output)",
			Destination: &x.quiet,
		},
		&cli.BoolFlag{
			Name:        "log-stacktrace",
			Category:    "logging",
			Usage:       "Show stacktrace (only for console format)",
			Destination: &x.stacktrace,
		},
	}
}

// Configure installs the default logger and returns it.
func (x *loggerConfig) Configure() (*slog.Logger, error) {
	if x.quiet {
		logging.Quiet()
		return logging.Default(), nil
	}
	level, err := logging.ParseLevel(x.level)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid log level", goerr.V("level", x.level))
	}
	format, err := logging.ParseFormat(x.format)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid log format", goerr.V("format", x.format))
	}
	logger := logging.New(os.Stderr, level, format, x.stacktrace)
	logging.SetDefault(logger)
	return logger, nil
}
