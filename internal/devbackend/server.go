// Package devbackend is a local stand-in for the conversational backend. It
// follows the backend's HTTP contract and status codes but answers with
// canned intake questions instead of a language model.
package devbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ent0n29/intakedesk/internal/reliability"
)

// SessionTimeout is how long a thread may stay idle before /message answers 440.
const SessionTimeout = 15 * time.Minute

type thread struct {
	doctorName   string
	specialty    string
	clinicName   string
	lastActivity time.Time
	turns        int
}

type Server struct {
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu      sync.Mutex
	threads map[string]*thread
}

type Option func(*Server)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithSessionTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:  logger,
		now:     time.Now,
		timeout: SessionTimeout,
		threads: make(map[string]*thread),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/start_conversation", s.handleStart)
	r.Post("/message", s.handleMessage)
	return r
}

type startRequest struct {
	ThreadID   string `json:"thread_id"`
	DoctorName string `json:"doctor_name"`
	ClinicName string `json:"clinic_name"`
	Specialty  string `json:"specialty"`
}

type messageRequest struct {
	ThreadID  string `json:"thread_id"`
	Message   string `json:"message"`
	Specialty string `json:"specialty"`
	AgeGroup  string `json:"age_group"`
	Gender    string `json:"gender"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	req.DoctorName = strings.TrimSpace(req.DoctorName)
	if req.ThreadID == "" || req.DoctorName == "" {
		respondError(w, http.StatusBadRequest, "thread_id and doctor_name are required")
		return
	}
	specialty := strings.TrimSpace(req.Specialty)
	if specialty == "" {
		specialty = "paediatrics"
	}

	s.mu.Lock()
	s.threads[req.ThreadID] = &thread{
		doctorName:   req.DoctorName,
		specialty:    specialty,
		clinicName:   req.ClinicName,
		lastActivity: s.now().UTC(),
	}
	s.mu.Unlock()

	s.logger.Info("conversation started", "thread_id", req.ThreadID, "specialty", specialty)
	respondJSON(w, http.StatusOK, map[string]string{
		"message":   fmt.Sprintf("Conversation %s started with doctor: %s and specialty: %s.", req.ThreadID, req.DoctorName, specialty),
		"thread_id": req.ThreadID,
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if strings.TrimSpace(req.ThreadID) == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "thread_id and message are required")
		return
	}

	now := s.now().UTC()
	s.mu.Lock()
	t, ok := s.threads[req.ThreadID]
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "Conversation not found. Call /start_conversation first.")
		return
	}
	if now.Sub(t.lastActivity) > s.timeout {
		delete(s.threads, req.ThreadID)
		s.mu.Unlock()
		respondError(w, reliability.StatusSessionExpired, "Session expired after 15 minutes of inactivity.")
		return
	}
	t.lastActivity = now
	turn := t.turns
	t.turns++
	specialty := t.specialty
	if sp := strings.TrimSpace(req.Specialty); sp != "" {
		specialty = sp
	}
	s.mu.Unlock()

	res := map[string]string{"reply": Reply(turn, specialty, req.AgeGroup)}
	if turn == 0 {
		res["bot_selection"] = Route(req.Message)
	}
	respondJSON(w, http.StatusOK, res)
}

// Route picks which assistant handles a thread, from its first message.
func Route(message string) string {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "appointment") || strings.Contains(m, "schedule"):
		return "Get Info Bot selected."
	case strings.Contains(m, "follow"):
		return "Follow-up Bot selected."
	case strings.Contains(m, "again") || strings.Contains(m, "same"):
		return "Same Episode Check initiated."
	default:
		return "Symptom Bot selected."
	}
}

var questions = []string{
	"Thank you. When did these symptoms start?",
	"Have you noticed anything that makes it better or worse?",
	"Is there any history of allergies in the family?",
	"Are any medications being taken at the moment?",
	"Thank you, I have noted everything for the %s team. Is there anything else you would like to add?",
}

// Reply returns the canned answer for the given zero-based turn.
func Reply(turn int, specialty, ageGroup string) string {
	if turn < 0 {
		turn = 0
	}
	if turn >= len(questions) {
		turn = len(questions) - 1
	}
	q := questions[turn]
	if strings.Contains(q, "%s") {
		return fmt.Sprintf(q, specialty)
	}
	if turn == 0 && strings.EqualFold(ageGroup, "child") {
		return "Thank you. When did your child's symptoms start?"
	}
	return q
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
