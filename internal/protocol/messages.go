package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/transcript"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientSubmit     MessageType = "submit"
	TypeClientStart      MessageType = "start"
	TypeClientInput      MessageType = "input"
	TypeTranscriptUpdate MessageType = "transcript_update"
	TypeNotification     MessageType = "notification"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientSubmit asks the consultation to send the text as the next user message.
type ClientSubmit struct {
	Type           MessageType `json:"type"`
	ConsultationID string      `json:"consultation_id"`
	Text           string      `json:"text"`
}

// ClientStart retries starting the conversation with the stored intake.
type ClientStart struct {
	Type           MessageType `json:"type"`
	ConsultationID string      `json:"consultation_id"`
}

// ClientInput mirrors the text box so the server-side buffer stays current.
type ClientInput struct {
	Type           MessageType `json:"type"`
	ConsultationID string      `json:"consultation_id"`
	Text           string      `json:"text"`
}

type TranscriptUpdate struct {
	Type           MessageType     `json:"type"`
	ConsultationID string          `json:"consultation_id"`
	View           transcript.View `json:"view"`
	Input          string          `json:"input"`
}

type Notification struct {
	Type           MessageType     `json:"type"`
	ConsultationID string          `json:"consultation_id"`
	Severity       notify.Severity `json:"severity"`
	Text           string          `json:"text"`
}

type ErrorEvent struct {
	Type           MessageType `json:"type"`
	ConsultationID string      `json:"consultation_id"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientSubmit:
		var msg ClientSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ConsultationID) == "" {
			return nil, errors.New("invalid submit")
		}
		return msg, nil
	case TypeClientStart:
		var msg ClientStart
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ConsultationID) == "" {
			return nil, errors.New("invalid start")
		}
		return msg, nil
	case TypeClientInput:
		var msg ClientInput
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ConsultationID) == "" {
			return nil, errors.New("invalid input")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
