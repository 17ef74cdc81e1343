package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/protocol"
	"github.com/ent0n29/intakedesk/internal/session"
	"github.com/ent0n29/intakedesk/internal/transcript"
)

// handleConsultationWS pushes a transcript_update after every change of the
// consultation and relays notifications. Client intents are applied to the
// same controller the REST endpoints use.
func (s *Server) handleConsultationWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("consultation_id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing_consultation_id", "query parameter consultation_id is required")
		return
	}
	c, err := s.consultations.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "consultation_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.observeEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changes, unsubscribe := c.Conversation.Subscribe()
	defer unsubscribe()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, c, changes, outbound)
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConsultationID: id,
				Code:           "invalid_client_message",
				Detail:         err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.applyIntent(ctx, c, parsed, outbound)
	}

	cancel()
	<-writerDone
	s.observeEvent("ws_disconnected")
}

// applyIntent never blocks the read loop: exchanges run on their own
// goroutine and report back through the change subscription.
func (s *Server) applyIntent(ctx context.Context, c *session.Consultation, msg any, outbound chan<- any) {
	switch m := msg.(type) {
	case protocol.ClientSubmit:
		if m.ConsultationID != c.ID {
			s.enqueue(outbound, mismatchEvent(c.ID))
			return
		}
		go s.sendMessage(ctx, c, m.Text)
	case protocol.ClientStart:
		if m.ConsultationID != c.ID {
			s.enqueue(outbound, mismatchEvent(c.ID))
			return
		}
		params, err := intake.NewFormFrom(c.Draft()).Submit(c.Conversation.Status() == conversation.StatusStarting)
		if err != nil {
			s.enqueue(outbound, protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				ConsultationID: c.ID,
				Code:           "start_rejected",
				Detail:         err.Error(),
			})
			return
		}
		go s.startConsultation(ctx, c, params)
	case protocol.ClientInput:
		if m.ConsultationID != c.ID {
			s.enqueue(outbound, mismatchEvent(c.ID))
			return
		}
		c.Input.SetValue(m.Text)
		_ = s.consultations.Touch(c.ID)
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *session.Consultation, changes <-chan struct{}, outbound <-chan any) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			cancel()
			return false
		}
		if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
		return true
	}
	update := func() bool {
		if !write(protocol.TranscriptUpdate{
			Type:           protocol.TypeTranscriptUpdate,
			ConsultationID: c.ID,
			View:           transcript.Render(c.Conversation.Snapshot(), s.render),
			Input:          c.Input.Value(),
		}) {
			return false
		}
		return s.flushNotices(write, c)
	}

	if !update() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// Conversation closed: the consultation was removed or expired.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "consultation closed"),
					time.Now().Add(time.Second))
				cancel()
				// Unblocks the read loop.
				_ = conn.Close()
				return
			}
			if !update() {
				return
			}
		case <-c.Notices.Ready():
			if !s.flushNotices(write, c) {
				return
			}
		case msg := <-outbound:
			if !write(msg) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) flushNotices(write func(any) bool, c *session.Consultation) bool {
	for _, n := range c.Notices.Drain() {
		if !write(protocol.Notification{
			Type:           protocol.TypeNotification,
			ConsultationID: c.ID,
			Severity:       n.Severity,
			Text:           n.Text,
		}) {
			return false
		}
	}
	return true
}

func (s *Server) enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
		// Keep websocket writes single-threaded; drop if the queue is saturated.
		if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
		}
	}
}

func mismatchEvent(id string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:           protocol.TypeErrorEvent,
		ConsultationID: id,
		Code:           "consultation_mismatch",
		Detail:         "consultation_id does not match this connection",
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientSubmit:
		return m.Type, true
	case protocol.ClientStart:
		return m.Type, true
	case protocol.ClientInput:
		return m.Type, true
	case protocol.TranscriptUpdate:
		return m.Type, true
	case protocol.Notification:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
