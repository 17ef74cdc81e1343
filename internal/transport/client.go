package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/intakedesk/internal/intake"
)

// Operation names, used in errors and metrics labels.
const (
	OpStartConversation = "start_conversation"
	OpMessage           = "message"
)

// Context carries the intake parameters the backend needs on every exchange.
type Context struct {
	AgeGroup  string
	Gender    string
	Specialty string
}

// Reply is the assistant's answer to one user message.
type Reply struct {
	Text string
	// Route is the backend's optional note about which assistant handled the turn.
	Route string
}

// Client issues the two backend calls. Both are single-attempt.
type Client interface {
	BeginSession(ctx context.Context, seed string, params intake.Params) (string, error)
	ExchangeMessage(ctx context.Context, sessionID, text string, c Context) (Reply, error)
}

// Error is the uniform failure shape for anything that goes wrong at the
// network or HTTP boundary. Callers only look at Summary.
type Error struct {
	Op        string
	Status    int
	Summary   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Summary)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts the transport error from err, if any.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Config controls client construction.
type Config struct {
	Mode    string
	BaseURL string
	Timeout time.Duration
}

// ResolvedMode is the implementation NewClient picks: auto becomes http when
// a base URL is configured and mock otherwise.
func (c Config) ResolvedMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.Mode))
	if mode == "" || mode == "auto" {
		if strings.TrimSpace(c.BaseURL) != "" {
			return "http"
		}
		return "mock"
	}
	return mode
}

// NewClient picks an implementation by mode: auto, http or mock.
func NewClient(cfg Config) (Client, error) {
	switch cfg.ResolvedMode() {
	case "http":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("backend base url is required for http mode")
		}
		return NewHTTPClient(cfg.BaseURL, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported backend mode %q", cfg.Mode)
	}
}

// ObserveFunc receives the outcome of every backend call.
type ObserveFunc func(op string, elapsed time.Duration, err error)

type observed struct {
	next    Client
	observe ObserveFunc
}

// Observe wraps next so that fn sees the duration and error of every call.
func Observe(next Client, fn ObserveFunc) Client {
	if fn == nil {
		return next
	}
	return &observed{next: next, observe: fn}
}

func (o *observed) BeginSession(ctx context.Context, seed string, params intake.Params) (string, error) {
	start := time.Now()
	id, err := o.next.BeginSession(ctx, seed, params)
	o.observe(OpStartConversation, time.Since(start), err)
	return id, err
}

func (o *observed) ExchangeMessage(ctx context.Context, sessionID, text string, c Context) (Reply, error) {
	start := time.Now()
	reply, err := o.next.ExchangeMessage(ctx, sessionID, text, c)
	o.observe(OpMessage, time.Since(start), err)
	return reply, err
}
