package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/intakedesk/internal/audit"
	"github.com/ent0n29/intakedesk/internal/config"
	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/observability"
	"github.com/ent0n29/intakedesk/internal/session"
	"github.com/ent0n29/intakedesk/internal/transcript"
	"github.com/ent0n29/intakedesk/internal/transport"
)

// AuditLog reads back the audit trail of a backend thread.
type AuditLog interface {
	Events(ctx context.Context, threadID string, limit int) ([]audit.Event, error)
}

type Server struct {
	cfg           config.Config
	consultations *session.Manager
	auditLog      AuditLog
	metrics       *observability.Metrics
	logger        *slog.Logger
	render        transcript.Options
	upgrader      websocket.Upgrader
	static        http.Handler
}

func New(cfg config.Config, consultations *session.Manager, metrics *observability.Metrics, auditLog AuditLog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:           cfg,
		consultations: consultations,
		auditLog:      auditLog,
		metrics:       metrics,
		logger:        logger,
		render:        transcript.Options{Locale: cfg.TimeLocale},
		static:        newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser pages may drive a consultation.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/intake/form", s.handleIntakeForm)
	r.Post("/v1/consultations", s.handleCreateConsultation)
	r.Get("/v1/consultations/ws", s.handleConsultationWS)
	r.Get("/v1/consultations/{id}", s.handleGetConsultation)
	r.Delete("/v1/consultations/{id}", s.handleDeleteConsultation)
	r.Post("/v1/consultations/{id}/start", s.handleStartConsultation)
	r.Post("/v1/consultations/{id}/messages", s.handleSendMessage)
	r.Get("/v1/audit/{threadID}", s.handleAuditEvents)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"active_consultations": s.consultations.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"backend_mode":     s.backendMode(),
		"audit_store_mode": s.auditStoreMode(),
	})
}

type intakeFormResponse struct {
	Defaults intake.Params  `json:"defaults"`
	Options  intake.Options `json:"options"`
	Required []string       `json:"required"`
}

func (s *Server) handleIntakeForm(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, intakeFormResponse{
		Defaults: intake.Defaults(),
		Options:  intake.DefaultOptions(),
		Required: intake.Fields(),
	})
}

type consultationResponse struct {
	Consultation  session.Info    `json:"consultation"`
	View          transcript.View `json:"view"`
	Notifications []notify.Notice `json:"notifications"`
	Accepted      *bool           `json:"accepted,omitempty"`
	Input         string          `json:"input"`
}

type invalidIntakeResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Missing []string `json:"missing"`
}

func (s *Server) handleCreateConsultation(w http.ResponseWriter, r *http.Request) {
	var draft intake.Params
	if err := decodeJSON(r, &draft); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	params, err := intake.NewFormFrom(draft).Submit(false)
	if err != nil {
		s.respondIntakeError(w, err)
		return
	}

	c := s.consultations.Create(params)
	s.observeEvent("created")
	s.startConsultation(r.Context(), c, params)

	respondJSON(w, http.StatusCreated, s.consultationState(c, nil))
}

func (s *Server) handleStartConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	draft := c.Draft()
	var override intake.Params
	if err := decodeJSON(r, &override); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	} else if err == nil {
		draft = override
	}

	starting := c.Conversation.Status() == conversation.StatusStarting
	params, err := intake.NewFormFrom(draft).Submit(starting)
	if err != nil {
		s.respondIntakeError(w, err)
		return
	}
	c.SetDraft(params)
	s.startConsultation(r.Context(), c, params)

	respondJSON(w, http.StatusOK, s.consultationState(c, nil))
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	accepted := s.sendMessage(r.Context(), c, req.Text)
	respondJSON(w, http.StatusOK, s.consultationState(c, &accepted))
}

func (s *Server) handleGetConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.consultationState(c, nil))
}

func (s *Server) handleDeleteConsultation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	c, err := s.consultations.Remove(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "consultation_not_found", err.Error())
		return
	}
	s.observeEvent("closed")
	respondJSON(w, http.StatusOK, s.consultations.Describe(c))
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "audit log not configured")
		return
	}
	threadID := strings.TrimSpace(chi.URLParam(r, "threadID"))
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := s.auditLog.Events(r.Context(), threadID, limit)
	if err != nil {
		s.logger.Error("audit read failed", "thread_id", threadID, "error", err)
		respondError(w, http.StatusInternalServerError, "audit_unavailable", "could not read audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"events":    events,
	})
}

// startConsultation runs a start on a context detached from the request, so
// a browser that navigates away does not turn into a failed start.
func (s *Server) startConsultation(ctx context.Context, c *session.Consultation, params intake.Params) conversation.StartResult {
	_ = s.consultations.Touch(c.ID)
	res := c.Conversation.Start(context.WithoutCancel(ctx), params)
	switch {
	case res.Skipped:
	case res.Started:
		s.observeEvent("started")
		s.logger.Info("consultation started", "consultation_id", c.ID, "thread_id", res.SessionID)
	default:
		s.observeEvent("start_failed")
		s.logger.Warn("consultation start failed", "consultation_id", c.ID, "error", res.Err)
	}
	return res
}

func (s *Server) sendMessage(ctx context.Context, c *session.Consultation, text string) bool {
	_ = s.consultations.Touch(c.ID)
	outcome := c.Conversation.Send(context.WithoutCancel(ctx), text)
	_ = s.consultations.Touch(c.ID)
	if s.metrics != nil {
		s.metrics.Exchanges.WithLabelValues(string(outcome)).Inc()
	}
	return outcome.Accepted()
}

func (s *Server) consultationState(c *session.Consultation, accepted *bool) consultationResponse {
	notices := c.Notices.Drain()
	if notices == nil {
		notices = []notify.Notice{}
	}
	return consultationResponse{
		Consultation:  s.consultations.Describe(c),
		View:          transcript.Render(c.Conversation.Snapshot(), s.render),
		Notifications: notices,
		Accepted:      accepted,
		Input:         c.Input.Value(),
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Consultation, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_consultation_id", "missing consultation id")
		return nil, false
	}
	c, err := s.consultations.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "consultation_not_found", err.Error())
		return nil, false
	}
	return c, true
}

func (s *Server) respondIntakeError(w http.ResponseWriter, err error) {
	var verr *intake.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, invalidIntakeResponse{
			Error:   verr.Error(),
			Code:    "invalid_intake",
			Missing: verr.Missing,
		})
	case errors.Is(err, intake.ErrSubmitDisabled):
		respondError(w, http.StatusConflict, "start_pending", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "invalid_intake", err.Error())
	}
}

func (s *Server) observeEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ConsultationEvents.WithLabelValues(event).Inc()
	s.metrics.ActiveConsultations.Set(float64(s.consultations.ActiveCount()))
}

func (s *Server) backendMode() string {
	return transport.Config{Mode: s.cfg.BackendMode, BaseURL: s.cfg.BackendURL}.ResolvedMode()
}

func (s *Server) auditStoreMode() string {
	if s.auditLog == nil {
		return "disabled"
	}
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
