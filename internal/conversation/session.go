package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/transport"
)

var ErrClosed = errors.New("conversation closed")

// Options wires the collaborators of a Session. Every field is optional.
type Options struct {
	Notifier notify.Sink
	Input    InputBuffer
	Now      func() time.Time
	NewSeed  func(now time.Time) string

	// OnStarted runs after a start succeeded, outside the session lock.
	OnStarted func(sessionID string, params intake.Params)
	// OnMessage runs after every transcript append, in append order per call site.
	OnMessage func(sessionID string, m Message)
}

// Session owns one conversation: its backend identity, the transcript and the
// single in-flight exchange. Start and Send may be called from any goroutine.
type Session struct {
	client transport.Client
	opts   Options

	mu        sync.Mutex
	status    Status
	sessionID string
	params    intake.Params
	messages  []Message
	seq       uint64
	closed    bool
	gate      Gate

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func New(client transport.Client, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSeed == nil {
		opts.NewSeed = NewSeed
	}
	return &Session{
		client:   client,
		opts:     opts,
		status:   StatusNotStarted,
		messages: make([]Message, 0, 16),
		subs:     make(map[int]chan struct{}),
	}
}

// NewSeed composes a thread id proposal from the current time and a random
// suffix, so rapid successive starts never collide.
func NewSeed(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("thread_%d_%s", now.UnixMilli(), suffix)
}

// Start asks the backend for a session. It is a no-op unless the session is
// NotStarted or Errored. Failures leave the transcript empty and the status
// Errored so the caller can start again.
func (s *Session) Start(ctx context.Context, params intake.Params) StartResult {
	s.mu.Lock()
	if s.closed || (s.status != StatusNotStarted && s.status != StatusErrored) {
		s.mu.Unlock()
		return StartResult{Skipped: true}
	}
	s.status = StatusStarting
	seed := s.opts.NewSeed(s.opts.Now())
	s.mu.Unlock()
	s.changed()

	id, err := s.beginSession(ctx, seed, params)
	if err == nil && strings.TrimSpace(id) == "" {
		err = &transport.Error{Op: transport.OpStartConversation, Summary: "backend returned an empty session id"}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return StartResult{Skipped: true, Err: ErrClosed}
	}
	if err != nil {
		s.status = StatusErrored
		s.mu.Unlock()
		s.changed()
		s.notify(notify.SeverityError, StartFailNotice)
		return StartResult{Err: err}
	}
	s.sessionID = id
	s.params = params
	s.status = StatusActive
	welcome := s.appendLocked(OriginAssistant, WelcomeText, "", false)
	s.mu.Unlock()

	if s.opts.OnStarted != nil {
		s.opts.OnStarted(id, params)
	}
	s.emitMessage(id, welcome)
	s.changed()
	s.notify(notify.SeveritySuccess, StartedNotice)
	return StartResult{Started: true, SessionID: id}
}

// Send submits one user message. It returns SendRejected, doing nothing, when
// the text is blank, the session is not active, or an exchange is already
// pending. Once admitted the user message is appended before the network call
// and the reply (or an apology placeholder) is appended after it.
func (s *Session) Send(ctx context.Context, text string) SendOutcome {
	if strings.TrimSpace(text) == "" {
		return SendRejected
	}

	s.mu.Lock()
	if s.closed || s.status != StatusActive || !s.gate.TryAcquire() {
		s.mu.Unlock()
		return SendRejected
	}
	sessionID := s.sessionID
	mc := transport.Context{
		AgeGroup:  s.params.AgeGroup,
		Gender:    s.params.Gender,
		Specialty: s.params.Specialty,
	}
	userMsg := s.appendLocked(OriginUser, text, "", false)
	s.mu.Unlock()

	defer func() {
		s.gate.Release()
		s.changed()
	}()

	s.emitMessage(sessionID, userMsg)
	s.changed()
	if s.opts.Input != nil {
		s.opts.Input.Clear()
	}

	reply, err := s.exchangeMessage(ctx, sessionID, text, mc)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SendDropped
	}
	outcome := SendReplied
	var m Message
	if err != nil {
		outcome = SendFailed
		m = s.appendLocked(OriginAssistant, ApologyText, "", true)
	} else {
		m = s.appendLocked(OriginAssistant, reply.Text, reply.Route, false)
	}
	s.mu.Unlock()

	s.emitMessage(sessionID, m)
	if err != nil {
		s.notify(notify.SeverityError, SendFailNotice)
	}
	return outcome
}

// beginSession and exchangeMessage turn a panicking client into a transport
// failure so it follows the same path as any other backend error.
func (s *Session) beginSession(ctx context.Context, seed string, params intake.Params) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(transport.OpStartConversation, r)
		}
	}()
	return s.client.BeginSession(ctx, seed, params)
}

func (s *Session) exchangeMessage(ctx context.Context, sessionID, text string, mc transport.Context) (reply transport.Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(transport.OpMessage, r)
		}
	}()
	return s.client.ExchangeMessage(ctx, sessionID, text, mc)
}

func panicError(op string, r any) *transport.Error {
	return &transport.Error{
		Op:      op,
		Summary: "backend client failed unexpectedly",
		Err:     goerr.New("backend client panic", goerr.V("op", op), goerr.V("panic", fmt.Sprint(r))),
	}
}

// Snapshot returns a copy of the current state. The last user message is
// reported as provisional while its exchange is in flight.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	pending := s.gate.Held()
	if pending && len(msgs) > 0 && msgs[len(msgs)-1].Origin == OriginUser {
		msgs[len(msgs)-1].Provisional = true
	}
	return Snapshot{
		Status:    s.status,
		SessionID: s.sessionID,
		Intake:    s.params,
		Messages:  msgs,
		Pending:   pending,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Pending() bool { return s.gate.Held() }

// Close tears the session down. Results of calls still in flight are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Subscribe returns a channel that receives a signal after state changes.
// Signals coalesce; the channel is closed when the session is closed.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	if s.Closed() {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	}
}

func (s *Session) appendLocked(origin Origin, body, route string, failed bool) Message {
	s.seq++
	m := Message{
		ID:        s.seq,
		Origin:    origin,
		Body:      body,
		CreatedAt: s.opts.Now(),
		Route:     route,
		Failed:    failed,
	}
	s.messages = append(s.messages, m)
	return m
}

func (s *Session) changed() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Session) emitMessage(sessionID string, m Message) {
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(sessionID, m)
	}
}

func (s *Session) notify(severity notify.Severity, text string) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(severity, text)
	}
}
