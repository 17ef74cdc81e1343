package conversation

import (
	"time"

	"github.com/ent0n29/intakedesk/internal/intake"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusStarting   Status = "starting"
	StatusActive     Status = "active"
	StatusErrored    Status = "errored"
)

type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Fixed user-visible strings.
const (
	WelcomeText     = "Hello! I'm your medical assistant. I'll help you with symptom assessment. How can I assist you today?"
	ApologyText     = "Sorry, I encountered an error. Please try again."
	StartedNotice   = "Conversation started successfully!"
	StartFailNotice = "Failed to start conversation. Please try again."
	SendFailNotice  = "Failed to send message. Please try again."
)

// Message is one transcript entry.
type Message struct {
	ID        uint64    `json:"id"`
	Origin    Origin    `json:"origin"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	// Route is the backend's note on which assistant answered, if any.
	Route string `json:"route,omitempty"`
	// Provisional marks a user message whose reply has not arrived yet.
	Provisional bool `json:"provisional,omitempty"`
	// Failed marks the placeholder appended when an exchange failed.
	Failed bool `json:"failed,omitempty"`
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Status    Status        `json:"status"`
	SessionID string        `json:"session_id,omitempty"`
	Intake    intake.Params `json:"intake"`
	Messages  []Message     `json:"messages"`
	Pending   bool          `json:"pending"`
}

// StartResult reports how a Start call ended.
type StartResult struct {
	Started   bool
	SessionID string
	// Skipped is set when the preconditions did not hold and nothing happened.
	Skipped bool
	Err     error
}

// SendOutcome reports how a Send call ended.
type SendOutcome string

const (
	// SendRejected means a precondition failed and nothing happened.
	SendRejected SendOutcome = "rejected"
	SendReplied  SendOutcome = "ok"
	// SendFailed means the apology placeholder was appended.
	SendFailed SendOutcome = "failed"
	// SendDropped means the session was closed before the result arrived.
	SendDropped SendOutcome = "dropped"
)

// Accepted reports whether the message was admitted and appended.
func (o SendOutcome) Accepted() bool { return o != SendRejected && o != "" }

// InputBuffer is the text input owned by the UI. The controller clears it
// once a submission has been accepted.
type InputBuffer interface {
	Clear()
	SetValue(value string)
}
