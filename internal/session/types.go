package session

import (
	"time"

	"github.com/ent0n29/intakedesk/internal/conversation"
)

// Info is the registry-level description of a consultation.
type Info struct {
	ConsultationID  string              `json:"consultation_id"`
	Status          conversation.Status `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	LastActivityAt  time.Time           `json:"last_activity_at"`
	InactivityTTLMS int64               `json:"inactivity_ttl_ms"`
}

func (m *Manager) Describe(c *Consultation) Info {
	return Info{
		ConsultationID:  c.ID,
		Status:          c.Conversation.Status(),
		CreatedAt:       c.CreatedAt,
		LastActivityAt:  c.LastActivityAt(),
		InactivityTTLMS: m.opts.InactivityTimeout.Milliseconds(),
	}
}
