package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/policy"
)

const saveTimeout = 2 * time.Second

// Recorder turns conversation hooks into audit events. Writes happen on a
// single background goroutine so they never hold up an exchange and keep
// their submission order.
type Recorder struct {
	store  Store
	redact bool
	logger *slog.Logger

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewRecorder(store Store, redact bool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		redact: redact,
		logger: logger,
		queue:  make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Started matches conversation.Options.OnStarted.
func (r *Recorder) Started(threadID string, params intake.Params) {
	raw, err := json.Marshal(params)
	if err != nil {
		r.logger.Warn("audit: encode intake", "error", err)
		return
	}
	r.enqueue(Event{ThreadID: threadID, Kind: KindStarted, Content: string(raw)})
}

// Message matches conversation.Options.OnMessage.
func (r *Recorder) Message(threadID string, m conversation.Message) {
	e := Event{
		ThreadID:  threadID,
		Kind:      KindMessage,
		Role:      string(m.Origin),
		Content:   m.Body,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if r.redact {
		e.Content, e.PIIRedacted = policy.RedactPII(m.Body)
	}
	r.enqueue(e)
}

func (r *Recorder) Events(ctx context.Context, threadID string, limit int) ([]Event, error) {
	return r.store.Events(ctx, threadID, limit)
}

func (r *Recorder) enqueue(e Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.logger.Warn("audit: queue full, dropping event", "thread_id", e.ThreadID, "kind", e.Kind)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.store.Save(ctx, e); err != nil {
			r.logger.Warn("audit: save failed", "thread_id", e.ThreadID, "kind", e.Kind, "error", err)
		}
		cancel()
	}
}

// Close flushes queued events and stops the writer. The store is not closed.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}
