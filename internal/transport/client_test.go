package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/intakedesk/internal/intake"
)

func TestNewClientModes(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	c, err = NewClient(Config{Mode: "auto", BaseURL: "http://backend.test"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPClient{}, c)

	_, err = NewClient(Config{Mode: "http"})
	assert.Error(t, err)

	_, err = NewClient(Config{Mode: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestConfigResolvedMode(t *testing.T) {
	assert.Equal(t, "http", Config{BaseURL: "http://localhost:5000"}.ResolvedMode())
	assert.Equal(t, "mock", Config{Mode: " Auto "}.ResolvedMode())
	assert.Equal(t, "mock", Config{Mode: "MOCK", BaseURL: "http://x"}.ResolvedMode())
	assert.Equal(t, "http", Config{Mode: "http"}.ResolvedMode())
}

func TestMockClientConversation(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	id, err := c.BeginSession(ctx, "thread_1", intake.Defaults())
	require.NoError(t, err)
	assert.Equal(t, "thread_1", id)

	first, err := c.ExchangeMessage(ctx, id, "I have a rash", Context{Specialty: "pediatrics"})
	require.NoError(t, err)
	assert.Equal(t, "Noted for pediatrics: I have a rash. How long has this been going on?", first.Text)
	assert.Equal(t, "Symptom Bot selected.", first.Route)

	second, err := c.ExchangeMessage(ctx, id, "two days", Context{})
	require.NoError(t, err)
	assert.Empty(t, second.Route)

	_, err = c.ExchangeMessage(ctx, "unknown", "hi", Context{})
	_, ok := AsError(err)
	assert.True(t, ok)
}

func TestObserveReportsOutcome(t *testing.T) {
	type call struct {
		op  string
		err error
	}
	var calls []call
	c := Observe(NewMockClient(), func(op string, elapsed time.Duration, err error) {
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		calls = append(calls, call{op, err})
	})

	id, err := c.BeginSession(context.Background(), "thread_1", intake.Defaults())
	require.NoError(t, err)
	_, err = c.ExchangeMessage(context.Background(), "missing", "hi", Context{})
	require.Error(t, err)
	_, _ = c.ExchangeMessage(context.Background(), id, "hi", Context{})

	require.Len(t, calls, 3)
	assert.Equal(t, OpStartConversation, calls[0].op)
	assert.NoError(t, calls[0].err)
	assert.Equal(t, OpMessage, calls[1].op)
	assert.Error(t, calls[1].err)
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &Error{Op: OpMessage, Status: 502, Summary: "backend unavailable (status 502)", Err: cause}
	assert.Equal(t, "message: backend unavailable (status 502)", err.Error())
	assert.ErrorIs(t, err, cause)
}
