package transcript

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
)

const Title = "Medical Assistant"

// Options controls how time labels are formatted.
type Options struct {
	// Locale selects the clock style, e.g. "en-US" (12-hour) or "en-GB" (24-hour).
	Locale   string
	Location *time.Location
}

type Header struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Thread   string `json:"thread,omitempty"`
}

// Bubble is one rendered transcript entry.
type Bubble struct {
	ID          uint64 `json:"id"`
	Origin      string `json:"origin"`
	Side        string `json:"side"`
	Class       string `json:"class"`
	Body        string `json:"body"`
	TimeLabel   string `json:"time_label"`
	Caption     string `json:"caption,omitempty"`
	Provisional bool   `json:"provisional,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
}

// View is everything the page needs to draw the conversation.
type View struct {
	Status        string   `json:"status"`
	Header        Header   `json:"header"`
	Bubbles       []Bubble `json:"bubbles"`
	Composing     bool     `json:"composing"`
	CanSend       bool     `json:"can_send"`
	CanStart      bool     `json:"can_start"`
	SubmitEnabled bool     `json:"submit_enabled"`
}

// Render turns a snapshot into a view. It has no state of its own.
func Render(snap conversation.Snapshot, opts Options) View {
	v := View{
		Status:        string(snap.Status),
		Header:        renderHeader(snap),
		Bubbles:       make([]Bubble, 0, len(snap.Messages)),
		Composing:     snap.Pending,
		CanSend:       snap.Status == conversation.StatusActive && !snap.Pending,
		CanStart:      snap.Status == conversation.StatusNotStarted || snap.Status == conversation.StatusErrored,
		SubmitEnabled: intake.SubmitEnabled(snap.Status == conversation.StatusStarting),
	}
	for _, m := range snap.Messages {
		b := Bubble{
			ID:          m.ID,
			Origin:      string(m.Origin),
			Body:        m.Body,
			TimeLabel:   TimeLabel(m.CreatedAt, opts),
			Caption:     m.Route,
			Provisional: m.Provisional,
			Failed:      m.Failed,
		}
		if m.Origin == conversation.OriginUser {
			b.Side, b.Class = "right", "message-user"
		} else {
			b.Side, b.Class = "left", "message-bot"
		}
		v.Bubbles = append(v.Bubbles, b)
	}
	return v
}

func renderHeader(snap conversation.Snapshot) Header {
	opts := intake.DefaultOptions()
	var parts []string
	for _, p := range []string{
		intake.Label(opts.Specialties, snap.Intake.Specialty),
		snap.Intake.AgeGroup,
		snap.Intake.Gender,
	} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	h := Header{Title: Title, Subtitle: strings.Join(parts, " • ")}
	if id := snap.SessionID; id != "" {
		if len(id) > 8 {
			id = id[len(id)-8:]
		}
		h.Thread = "Thread: " + id
	}
	return h
}

// TimeLabel formats the hour and minute of t for the given locale.
func TimeLabel(t time.Time, opts Options) string {
	if t.IsZero() {
		return ""
	}
	if opts.Location != nil {
		t = t.In(opts.Location)
	}
	if uses12HourClock(opts.Locale) {
		return t.Format("03:04 PM")
	}
	return t.Format("15:04")
}

func uses12HourClock(locale string) bool {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")) {
	case "en-us", "en-ca", "en-au", "en-in", "en-ph", "es-us", "hi-in":
		return true
	default:
		return false
	}
}

// WriteText renders v for a terminal.
func WriteText(w io.Writer, v View) error {
	if _, err := fmt.Fprintf(w, "%s\n", v.Header.Title); err != nil {
		return err
	}
	if v.Header.Subtitle != "" || v.Header.Thread != "" {
		if _, err := fmt.Fprintf(w, "%s  %s\n", v.Header.Subtitle, v.Header.Thread); err != nil {
			return err
		}
	}
	for _, b := range v.Bubbles {
		if err := WriteBubble(w, b); err != nil {
			return err
		}
	}
	if v.Composing {
		if _, err := fmt.Fprintln(w, "assistant is typing..."); err != nil {
			return err
		}
	}
	return nil
}

func WriteBubble(w io.Writer, b Bubble) error {
	who := "assistant"
	if b.Origin == string(conversation.OriginUser) {
		who = "you"
	}
	if _, err := fmt.Fprintf(w, "[%s] %s: %s\n", b.TimeLabel, who, b.Body); err != nil {
		return err
	}
	if b.Caption != "" {
		if _, err := fmt.Fprintf(w, "        (%s)\n", b.Caption); err != nil {
			return err
		}
	}
	return nil
}
