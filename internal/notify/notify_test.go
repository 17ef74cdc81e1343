package notify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDrain(t *testing.T) {
	q := NewQueue(2)
	q.Notify(SeveritySuccess, "one")
	q.Notify(SeverityError, "two")
	q.Notify(SeverityError, "three")

	select {
	case <-q.Ready():
	default:
		t.Fatal("Ready() did not fire after Notify")
	}

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Text)
	assert.Equal(t, "three", got[1].Text)
	assert.Empty(t, q.Drain())
}

func TestMultiAndLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	q := NewQueue(4)

	Multi{q, nil, NewLogSink(logger, "consultation_id", "c-1")}.Notify(SeverityError, "Failed to send message. Please try again.")

	require.Len(t, q.Drain(), 1)
	assert.Contains(t, buf.String(), "consultation_id=c-1")
	assert.Contains(t, buf.String(), "severity=error")
}
