package audit

import (
	"context"
	"time"
)

type Kind string

const (
	KindStarted Kind = "started"
	KindMessage Kind = "message"
)

// Event is one audit entry for a backend thread.
type Event struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Kind        Kind      `json:"kind"`
	Role        string    `json:"role,omitempty"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists audit events. Events returns the most recent entries of a
// thread in chronological order.
type Store interface {
	Save(ctx context.Context, event Event) error
	Events(ctx context.Context, threadID string, limit int) ([]Event, error)
	Close() error
}
