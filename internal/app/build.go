package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/intakedesk/internal/audit"
	"github.com/ent0n29/intakedesk/internal/config"
	"github.com/ent0n29/intakedesk/internal/httpapi"
	"github.com/ent0n29/intakedesk/internal/observability"
	"github.com/ent0n29/intakedesk/internal/session"
	"github.com/ent0n29/intakedesk/internal/transport"
)

type BuildResult struct {
	Config        config.Config
	API           *httpapi.Server
	Consultations *session.Manager
	Audit         *audit.Recorder
	Metrics       *observability.Metrics
	BackendMode   string

	// Cleanup should be called on shutdown to release external resources (DB, audit writer).
	Cleanup func() error
}

// NewTransport builds the backend client for cfg. observe may be nil.
func NewTransport(cfg config.Config, observe transport.ObserveFunc) (transport.Client, error) {
	client, err := transport.NewClient(TransportConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("backend client init failed: %w", err)
	}
	if observe != nil {
		client = transport.Observe(client, observe)
	}
	return client, nil
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	client, err := NewTransport(cfg, metrics.ObserveBackendCall)
	if err != nil {
		return nil, err
	}

	store, err := audit.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit store init failed: %w", err)
	}
	recorder := audit.NewRecorder(store, cfg.AuditRedactPII, logger)

	consultations := session.NewManager(client, session.Options{
		InactivityTimeout: cfg.ConsultationInactivityTimeout,
		NoticeQueueSize:   cfg.NotificationQueueSize,
		Logger:            logger,
		Hooks: session.Hooks{
			OnStarted: recorder.Started,
			OnMessage: recorder.Message,
		},
	})
	consultations.SetExpireHook(func(c *session.Consultation) {
		logger.Info("consultation expired", "consultation_id", c.ID)
		metrics.ConsultationEvents.WithLabelValues("expired").Inc()
		metrics.ActiveConsultations.Set(float64(consultations.ActiveCount()))
	})

	api := httpapi.New(cfg, consultations, metrics, recorder, logger)

	cleanup := func() error {
		var errs []string
		consultations.CloseAll()
		recorder.Close()
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:        cfg,
		API:           api,
		Consultations: consultations,
		Audit:         recorder,
		Metrics:       metrics,
		BackendMode:   TransportConfig(cfg).ResolvedMode(),
		Cleanup:       cleanup,
	}, nil
}

// TransportConfig extracts the backend client settings from cfg.
func TransportConfig(cfg config.Config) transport.Config {
	return transport.Config{
		Mode:    cfg.BackendMode,
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}
}
