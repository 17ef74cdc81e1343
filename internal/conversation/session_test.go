package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/transport"
)

type fakeClient struct {
	mu          sync.Mutex
	startID     string
	startErr    error
	replies     []string
	exchangeErr error
	block       chan struct{}
	entered     chan struct{}
	panicOn     string

	startCalls    int
	exchangeCalls atomic.Int32
	lastContext   transport.Context
	lastSeed      string
}

func (f *fakeClient) BeginSession(_ context.Context, seed string, _ intake.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastSeed = seed
	if f.panicOn == "start" {
		panic("boom")
	}
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.startID, nil
}

func (f *fakeClient) ExchangeMessage(_ context.Context, _ string, text string, c transport.Context) (transport.Reply, error) {
	f.exchangeCalls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastContext = c
	if f.panicOn == "exchange" {
		panic("boom")
	}
	if f.exchangeErr != nil {
		return transport.Reply{}, f.exchangeErr
	}
	if len(f.replies) == 0 {
		return transport.Reply{Text: "echo: " + text}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return transport.Reply{Text: r}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recordingSink) Notify(severity notify.Severity, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notify.Notice{Severity: severity, Text: text})
}

func (r *recordingSink) count(severity notify.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Severity == severity {
			n++
		}
	}
	return n
}

func scenarioParams() intake.Params {
	return intake.Params{
		ProviderName:     "Dr. X",
		ConsultationType: "child_allergy",
		Specialty:        "pediatrics",
		AgeGroup:         "child",
		Gender:           "both",
		ClinicName:       "Clinic Y",
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func startedSession(t *testing.T, client *fakeClient, sink notify.Sink) *Session {
	t.Helper()
	s := New(client, Options{Notifier: sink, Now: fixedClock()})
	res := s.Start(context.Background(), scenarioParams())
	require.True(t, res.Started)
	require.NoError(t, res.Err)
	return s
}

func TestStartSeedsWelcome(t *testing.T) {
	client := &fakeClient{startID: "t1"}
	sink := &recordingSink{}
	s := startedSession(t, client, sink)

	snap := s.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, "t1", snap.SessionID)
	assert.Equal(t, scenarioParams(), snap.Intake)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, OriginAssistant, snap.Messages[0].Origin)
	assert.Equal(t, WelcomeText, snap.Messages[0].Body)
	assert.Equal(t, 1, sink.count(notify.SeveritySuccess))
	assert.Regexp(t, `^thread_\d+_[0-9a-f]{8}$`, client.lastSeed)
}

func TestStartFailureLeavesTranscriptEmpty(t *testing.T) {
	client := &fakeClient{startErr: &transport.Error{Op: transport.OpStartConversation, Summary: "backend unreachable"}}
	sink := &recordingSink{}
	s := New(client, Options{Notifier: sink})

	res := s.Start(context.Background(), scenarioParams())
	assert.False(t, res.Started)
	_, ok := transport.AsError(res.Err)
	assert.True(t, ok)

	snap := s.Snapshot()
	assert.Equal(t, StatusErrored, snap.Status)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, 1, sink.count(notify.SeverityError))
	assert.False(t, s.Send(context.Background(), "hello").Accepted())
}

func TestStartRetryAfterError(t *testing.T) {
	client := &fakeClient{startErr: errors.New("down")}
	s := New(client, Options{})
	require.False(t, s.Start(context.Background(), scenarioParams()).Started)

	client.mu.Lock()
	client.startErr = nil
	client.startID = "t2"
	client.mu.Unlock()

	res := s.Start(context.Background(), scenarioParams())
	require.True(t, res.Started)
	assert.Equal(t, "t2", res.SessionID)
	assert.Len(t, s.Snapshot().Messages, 1)
}

func TestStartIsNoOpOnceActive(t *testing.T) {
	client := &fakeClient{startID: "t1"}
	s := startedSession(t, client, nil)

	res := s.Start(context.Background(), scenarioParams())
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, client.startCalls)
	assert.Equal(t, "t1", s.Snapshot().SessionID)
}

func TestStartEmptyIDIsTransportError(t *testing.T) {
	s := New(&fakeClient{startID: "  "}, Options{})
	res := s.Start(context.Background(), scenarioParams())
	_, ok := transport.AsError(res.Err)
	assert.True(t, ok)
	assert.Equal(t, StatusErrored, s.Status())
}

func TestStartPanicBecomesStartFailure(t *testing.T) {
	client := &fakeClient{panicOn: "start"}
	sink := &recordingSink{}
	s := New(client, Options{Notifier: sink})

	var res StartResult
	assert.NotPanics(t, func() { res = s.Start(context.Background(), scenarioParams()) })
	assert.False(t, res.Started)
	_, ok := transport.AsError(res.Err)
	assert.True(t, ok)
	assert.Equal(t, StatusErrored, s.Status())
	assert.Empty(t, s.Snapshot().Messages)
	assert.Equal(t, 1, sink.count(notify.SeverityError))
}

func TestSendScenarioB(t *testing.T) {
	client := &fakeClient{startID: "t1", replies: []string{"How long has the rash been present?"}}
	s := startedSession(t, client, nil)

	require.True(t, s.Send(context.Background(), "I have a rash").Accepted())

	msgs := s.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, WelcomeText, msgs[0].Body)
	assert.Equal(t, OriginUser, msgs[1].Origin)
	assert.Equal(t, "I have a rash", msgs[1].Body)
	assert.False(t, msgs[1].Provisional)
	assert.Equal(t, OriginAssistant, msgs[2].Origin)
	assert.Equal(t, "How long has the rash been present?", msgs[2].Body)
	assert.Equal(t, transport.Context{AgeGroup: "child", Gender: "both", Specialty: "pediatrics"}, client.lastContext)
}

func TestSendScenarioCFailure(t *testing.T) {
	client := &fakeClient{startID: "t1", exchangeErr: &transport.Error{Op: transport.OpMessage, Summary: "backend unreachable"}}
	sink := &recordingSink{}
	s := startedSession(t, client, sink)

	require.True(t, s.Send(context.Background(), "I have a rash").Accepted())

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "I have a rash", snap.Messages[1].Body)
	assert.Equal(t, OriginAssistant, snap.Messages[2].Origin)
	assert.Equal(t, ApologyText, snap.Messages[2].Body)
	assert.True(t, snap.Messages[2].Failed)
	assert.Equal(t, 1, sink.count(notify.SeverityError))
	assert.False(t, snap.Pending)

	client.mu.Lock()
	client.exchangeErr = nil
	client.mu.Unlock()
	require.True(t, s.Send(context.Background(), "still itchy").Accepted())
	assert.Len(t, s.Snapshot().Messages, 5)
}

func TestSendAlternatesAndGrows(t *testing.T) {
	s := startedSession(t, &fakeClient{startID: "t1"}, nil)

	const sends = 6
	for i := 0; i < sends; i++ {
		require.True(t, s.Send(context.Background(), "symptom").Accepted())
	}

	msgs := s.Snapshot().Messages
	require.Len(t, msgs, 1+2*sends)
	for i, m := range msgs[1:] {
		want := OriginUser
		if i%2 == 1 {
			want = OriginAssistant
		}
		assert.Equal(t, want, m.Origin, "message %d", i+1)
	}
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].ID, msgs[i-1].ID, "ids must increase even when timestamps tie")
		assert.Equal(t, msgs[0].CreatedAt, msgs[i].CreatedAt)
	}
}

func TestSendRejectsBlankAndInactive(t *testing.T) {
	client := &fakeClient{startID: "t1"}
	s := New(client, Options{})
	assert.False(t, s.Send(context.Background(), "hello").Accepted(), "not started")

	require.True(t, s.Start(context.Background(), scenarioParams()).Started)
	assert.False(t, s.Send(context.Background(), "   \n\t").Accepted())
	assert.Len(t, s.Snapshot().Messages, 1)
	assert.EqualValues(t, 0, client.exchangeCalls.Load())
}

func TestSendScenarioDConcurrent(t *testing.T) {
	client := &fakeClient{startID: "t1", block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := startedSession(t, client, nil)

	done := make(chan bool)
	go func() { done <- s.Send(context.Background(), "first").Accepted() }()
	<-client.entered

	snap := s.Snapshot()
	assert.True(t, snap.Pending)
	require.Len(t, snap.Messages, 2)
	assert.True(t, snap.Messages[1].Provisional)

	assert.False(t, s.Send(context.Background(), "second").Accepted())
	assert.Len(t, s.Snapshot().Messages, 2)

	close(client.block)
	assert.True(t, <-done)
	assert.EqualValues(t, 1, client.exchangeCalls.Load())
	assert.Len(t, s.Snapshot().Messages, 3)
	assert.False(t, s.Pending())
}

func TestSendRacingCallersAdmitOne(t *testing.T) {
	client := &fakeClient{startID: "t1", block: make(chan struct{})}
	s := startedSession(t, client, nil)

	const callers = 8
	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if s.Send(context.Background(), "hi").Accepted() {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	require.Eventually(t, func() bool { return client.exchangeCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(client.block)
	wg.Wait()

	assert.EqualValues(t, 1, admitted.Load())
	assert.EqualValues(t, 1, client.exchangeCalls.Load())
	assert.Len(t, s.Snapshot().Messages, 3)
}

func TestSendPanicAppendsApology(t *testing.T) {
	client := &fakeClient{startID: "t1", panicOn: "exchange"}
	sink := &recordingSink{}
	s := startedSession(t, client, sink)

	var outcome SendOutcome
	assert.NotPanics(t, func() { outcome = s.Send(context.Background(), "hi") })
	assert.Equal(t, SendFailed, outcome)
	assert.False(t, s.Pending())

	msgs := s.Snapshot().Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, OriginUser, msgs[1].Origin)
	assert.False(t, msgs[1].Provisional)
	assert.Equal(t, OriginAssistant, msgs[2].Origin)
	assert.Equal(t, ApologyText, msgs[2].Body)
	assert.True(t, msgs[2].Failed)
	assert.Equal(t, 1, sink.count(notify.SeverityError))

	client.mu.Lock()
	client.panicOn = ""
	client.mu.Unlock()
	assert.Equal(t, SendReplied, s.Send(context.Background(), "again"))
}

func TestSendClearsInputBuffer(t *testing.T) {
	buf := &TextBuffer{}
	buf.SetValue("I have a rash")
	client := &fakeClient{startID: "t1"}
	s := New(client, Options{Input: buf})
	require.True(t, s.Start(context.Background(), scenarioParams()).Started)

	require.True(t, s.Send(context.Background(), buf.Value()).Accepted())
	assert.Equal(t, "", buf.Value())
}

func TestCloseDropsLateReply(t *testing.T) {
	client := &fakeClient{startID: "t1", block: make(chan struct{}), entered: make(chan struct{}, 1), exchangeErr: errors.New("late")}
	sink := &recordingSink{}
	s := startedSession(t, client, sink)

	done := make(chan SendOutcome)
	go func() { done <- s.Send(context.Background(), "hello") }()
	<-client.entered
	s.Close()
	close(client.block)
	assert.Equal(t, SendDropped, <-done)

	assert.Len(t, s.Snapshot().Messages, 2)
	assert.Equal(t, 0, sink.count(notify.SeverityError))
	assert.False(t, s.Pending())
	assert.False(t, s.Send(context.Background(), "after close").Accepted())
}

func TestSubscribeSignalsChanges(t *testing.T) {
	s := New(&fakeClient{startID: "t1"}, Options{})
	ch, cancel := s.Subscribe()
	defer cancel()

	require.True(t, s.Start(context.Background(), scenarioParams()).Started)
	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal after Start")
	}

	s.Close()
	_, open := <-ch
	assert.False(t, open)
}

func TestHooksSeeEveryAppend(t *testing.T) {
	var (
		mu      sync.Mutex
		started []string
		bodies  []string
	)
	client := &fakeClient{startID: "t1", replies: []string{"ok"}}
	s := New(client, Options{
		OnStarted: func(id string, _ intake.Params) {
			mu.Lock()
			started = append(started, id)
			mu.Unlock()
		},
		OnMessage: func(_ string, m Message) {
			mu.Lock()
			bodies = append(bodies, m.Body)
			mu.Unlock()
		},
	})
	require.True(t, s.Start(context.Background(), scenarioParams()).Started)
	require.True(t, s.Send(context.Background(), "hi").Accepted())

	assert.Equal(t, []string{"t1"}, started)
	assert.Equal(t, []string{WelcomeText, "hi", "ok"}, bodies)
}
