package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/intakedesk/internal/app"
	"github.com/ent0n29/intakedesk/internal/config"
	"github.com/ent0n29/intakedesk/internal/logging"
)

func main() {
	// A missing .env file is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config error", logging.ErrAttr(err))
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logging.Default().Error("config error", logging.ErrAttr(err))
		os.Exit(1)
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		logging.Default().Error("config error", logging.ErrAttr(err))
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, level, format, false)
	logging.SetDefault(logger)

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	built, err := app.Build(buildCtx, cfg, logger)
	buildCancel()
	if err != nil {
		logger.Error("startup failed", logging.ErrAttr(err))
		os.Exit(1)
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn("cleanup failed", logging.ErrAttr(err))
		}
	}()

	logger.Info("backend configured",
		"mode", built.BackendMode,
		"url", cfg.BackendURL,
		"timeout", cfg.BackendTimeout,
		"audit_redact_pii", cfg.AuditRedactPII,
	)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer runCancel()
	built.Consultations.StartJanitor(runCtx, 5*time.Second)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("listen error", logging.ErrAttr(err))
		}
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", logging.ErrAttr(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
