package notify

import (
	"log/slog"
	"sync"
	"time"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Sink accepts user-facing notifications. Notify must not block.
type Sink interface {
	Notify(severity Severity, text string)
}

// Notice is one queued notification.
type Notice struct {
	Severity  Severity  `json:"severity"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue buffers notices until the UI drains them. Older notices are dropped
// once the queue holds max entries.
type Queue struct {
	mu      sync.Mutex
	notices []Notice
	max     int
	signal  chan struct{}
}

func NewQueue(max int) *Queue {
	if max <= 0 {
		max = 16
	}
	return &Queue{max: max, signal: make(chan struct{}, 1)}
}

func (q *Queue) Notify(severity Severity, text string) {
	q.mu.Lock()
	q.notices = append(q.notices, Notice{Severity: severity, Text: text, CreatedAt: time.Now().UTC()})
	if over := len(q.notices) - q.max; over > 0 {
		q.notices = append([]Notice(nil), q.notices[over:]...)
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Drain returns and clears every queued notice.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.notices
	q.notices = nil
	return out
}

// Ready fires after at least one Notify since the last receive.
func (q *Queue) Ready() <-chan struct{} {
	return q.signal
}

// LogSink writes notices to a structured logger.
type LogSink struct {
	logger *slog.Logger
	attrs  []any
}

func NewLogSink(logger *slog.Logger, attrs ...any) *LogSink {
	return &LogSink{logger: logger, attrs: attrs}
}

func (s *LogSink) Notify(severity Severity, text string) {
	args := append([]any{"severity", string(severity)}, s.attrs...)
	if severity == SeverityError {
		s.logger.Warn(text, args...)
		return
	}
	s.logger.Info(text, args...)
}

// Multi fans a notice out to every sink.
type Multi []Sink

func (m Multi) Notify(severity Severity, text string) {
	for _, s := range m {
		if s != nil {
			s.Notify(severity, text)
		}
	}
}
