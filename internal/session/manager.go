package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/transport"
)

var ErrNotFound = errors.New("consultation not found")

// Consultation is one browser consultation: the conversation controller plus
// the UI-side state that lives next to it.
type Consultation struct {
	ID           string
	Conversation *conversation.Session
	Notices      *notify.Queue
	Input        *conversation.TextBuffer
	CreatedAt    time.Time

	mu             sync.Mutex
	draft          intake.Params
	lastActivityAt time.Time
}

// Draft is the last intake submitted for this consultation.
func (c *Consultation) Draft() intake.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Consultation) SetDraft(p intake.Params) {
	c.mu.Lock()
	c.draft = p
	c.mu.Unlock()
}

func (c *Consultation) LastActivityAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivityAt
}

func (c *Consultation) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivityAt = now
	c.mu.Unlock()
}

// Hooks observe every consultation's conversation.
type Hooks struct {
	OnStarted func(threadID string, params intake.Params)
	OnMessage func(threadID string, m conversation.Message)
}

type Options struct {
	InactivityTimeout time.Duration
	NoticeQueueSize   int
	Logger            *slog.Logger
	Hooks             Hooks
}

// Manager is the registry of live consultations.
type Manager struct {
	client transport.Client
	opts   Options

	mu            sync.RWMutex
	consultations map[string]*Consultation
	onExpire      func(*Consultation)
}

func NewManager(client transport.Client, opts Options) *Manager {
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = 15 * time.Minute
	}
	if opts.NoticeQueueSize <= 0 {
		opts.NoticeQueueSize = 32
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		client:        client,
		opts:          opts,
		consultations: make(map[string]*Consultation),
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.opts.InactivityTimeout }

func (m *Manager) SetExpireHook(hook func(*Consultation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a consultation with a fresh, not yet started conversation.
func (m *Manager) Create(draft intake.Params) *Consultation {
	now := time.Now().UTC()
	id := uuid.NewString()
	queue := notify.NewQueue(m.opts.NoticeQueueSize)
	input := &conversation.TextBuffer{}

	c := &Consultation{
		ID:             id,
		Notices:        queue,
		Input:          input,
		CreatedAt:      now,
		draft:          draft,
		lastActivityAt: now,
	}
	c.Conversation = conversation.New(m.client, conversation.Options{
		Notifier: notify.Multi{
			queue,
			notify.NewLogSink(m.opts.Logger, "consultation_id", id),
		},
		Input:     input,
		OnStarted: m.opts.Hooks.OnStarted,
		OnMessage: m.opts.Hooks.OnMessage,
	})

	m.mu.Lock()
	m.consultations[id] = c
	m.mu.Unlock()
	return c
}

func (m *Manager) Get(id string) (*Consultation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consultations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Manager) Touch(id string) error {
	c, err := m.Get(id)
	if err != nil {
		return err
	}
	c.touch(time.Now().UTC())
	return nil
}

// Remove unregisters the consultation and closes its conversation, so any
// reply still in flight is discarded.
func (m *Manager) Remove(id string) (*Consultation, error) {
	m.mu.Lock()
	c, ok := m.consultations[id]
	if ok {
		delete(m.consultations, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	c.Conversation.Close()
	return c, nil
}

// CloseAll tears down every consultation. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.consultations
	m.consultations = make(map[string]*Consultation)
	m.mu.Unlock()
	for _, c := range all {
		c.Conversation.Close()
	}
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.consultations)
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Consultation

	m.mu.Lock()
	for id, c := range m.consultations {
		if now.Sub(c.LastActivityAt()) < m.opts.InactivityTimeout {
			continue
		}
		// A pending exchange counts as activity.
		if c.Conversation.Pending() {
			continue
		}
		delete(m.consultations, id)
		expired = append(expired, c)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, c := range expired {
		c.Conversation.Close()
		if hook != nil {
			hook(c)
		}
	}
}
