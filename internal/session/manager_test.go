package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/intakedesk/internal/conversation"
	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/notify"
	"github.com/ent0n29/intakedesk/internal/transport"
)

func TestManagerCreateGetRemove(t *testing.T) {
	m := NewManager(transport.NewMockClient(), Options{InactivityTimeout: time.Minute})
	c := m.Create(intake.Defaults())
	require.NotEmpty(t, c.ID)
	assert.Equal(t, 1, m.ActiveCount())

	got, err := m.Get(c.ID)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, intake.Defaults(), got.Draft())
	assert.Equal(t, conversation.StatusNotStarted, got.Conversation.Status())

	removed, err := m.Remove(c.ID)
	require.NoError(t, err)
	assert.True(t, removed.Conversation.Closed())
	assert.Equal(t, 0, m.ActiveCount())

	_, err = m.Get(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Remove(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Touch(c.ID), ErrNotFound)
}

func TestManagerWiresNoticesAndHooks(t *testing.T) {
	var mu sync.Mutex
	var started []string
	var appended []conversation.Message

	m := NewManager(transport.NewMockClient(), Options{
		Hooks: Hooks{
			OnStarted: func(threadID string, _ intake.Params) {
				mu.Lock()
				started = append(started, threadID)
				mu.Unlock()
			},
			OnMessage: func(_ string, msg conversation.Message) {
				mu.Lock()
				appended = append(appended, msg)
				mu.Unlock()
			},
		},
	})
	c := m.Create(intake.Defaults())

	res := c.Conversation.Start(context.Background(), c.Draft())
	require.True(t, res.Started, "start error: %v", res.Err)

	notices := c.Notices.Drain()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.SeveritySuccess, notices[0].Severity)
	assert.Equal(t, conversation.StartedNotice, notices[0].Text)

	c.Input.SetValue("itchy eyes")
	assert.Equal(t, conversation.SendReplied, c.Conversation.Send(context.Background(), c.Input.Value()))
	assert.Empty(t, c.Input.Value())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{res.SessionID}, started)
	require.Len(t, appended, 3)
	assert.Equal(t, conversation.OriginAssistant, appended[0].Origin)
	assert.Equal(t, "itchy eyes", appended[1].Body)
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(transport.NewMockClient(), Options{InactivityTimeout: 30 * time.Millisecond})
	c := m.Create(intake.Defaults())

	expired := make(chan string, 1)
	m.SetExpireHook(func(c *Consultation) { expired <- c.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		assert.Equal(t, c.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("consultation was not expired")
	}
	assert.True(t, c.Conversation.Closed())
	_, err := m.Get(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerTouchKeepsConsultationAlive(t *testing.T) {
	m := NewManager(transport.NewMockClient(), Options{InactivityTimeout: time.Hour})
	c := m.Create(intake.Defaults())
	before := c.LastActivityAt()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, m.Touch(c.ID))
	assert.True(t, c.LastActivityAt().After(before))

	m.expireInactive()
	assert.Equal(t, 1, m.ActiveCount())

	info := m.Describe(c)
	assert.Equal(t, c.ID, info.ConsultationID)
	assert.Equal(t, time.Hour.Milliseconds(), info.InactivityTTLMS)
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(transport.NewMockClient(), Options{})
	a := m.Create(intake.Defaults())
	b := m.Create(intake.Defaults())
	m.CloseAll()
	assert.Equal(t, 0, m.ActiveCount())
	assert.True(t, a.Conversation.Closed())
	assert.True(t, b.Conversation.Closed())
}
