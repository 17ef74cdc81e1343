package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/intakedesk/internal/intake"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewHTTPClient(ts.URL+"/", 0)
}

func TestBeginSessionSendsIntake(t *testing.T) {
	var got map[string]string
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/start_conversation", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"thread_id": "t1"})
	})

	id, err := c.BeginSession(context.Background(), "thread_1", intake.Params{
		ProviderName: "Dr. X", ConsultationType: "child_allergy", Specialty: "pediatrics",
		AgeGroup: "child", Gender: "both", ClinicName: "Clinic Y",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, map[string]string{
		"thread_id": "thread_1", "doctor_name": "Dr. X", "consultation_type": "child_allergy",
		"specialty": "pediatrics", "age_group": "child", "gender": "both", "clinic_name": "Clinic Y",
	}, got)
}

func TestBeginSessionMissingThreadID(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Conversation started"})
	})

	_, err := c.BeginSession(context.Background(), "thread_1", intake.Params{})
	te, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, OpStartConversation, te.Op)
	assert.Equal(t, "backend response is missing thread_id", te.Summary)
}

func TestExchangeMessage(t *testing.T) {
	var got map[string]string
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"reply":         "How long has the rash been present?",
			"bot_selection": "Symptom Bot selected.",
		})
	})

	reply, err := c.ExchangeMessage(context.Background(), "t1", "I have a rash", Context{AgeGroup: "child", Gender: "both", Specialty: "pediatrics"})
	require.NoError(t, err)
	assert.Equal(t, "How long has the rash been present?", reply.Text)
	assert.Equal(t, "Symptom Bot selected.", reply.Route)
	assert.Equal(t, map[string]string{
		"thread_id": "t1", "message": "I have a rash", "age_group": "child", "gender": "both", "specialty": "pediatrics",
	}, got)
}

func TestExchangeMessageFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		summary string
	}{
		{"expired", 440, `{"error":"Session expired after 15 minutes of inactivity."}`, "conversation expired after inactivity"},
		{"server error", 500, `oops`, "backend unavailable (status 500)"},
		{"malformed", 200, `{"reply":`, "malformed backend response"},
		{"missing reply", 200, `{"bot_selection":"x"}`, "backend response is missing reply"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.ExchangeMessage(context.Background(), "t1", "hi", Context{})
			te, ok := AsError(err)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, OpMessage, te.Op)
			assert.Equal(t, tc.summary, te.Summary)
		})
	}
}

func TestUnreachableBackend(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPClient(url, 0).BeginSession(context.Background(), "thread_1", intake.Params{})
	te, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "backend unreachable", te.Summary)
	assert.True(t, te.Retryable)
}

func TestCanceledContext(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "late"})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ExchangeMessage(ctx, "t1", "hi", Context{})
	te, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "request canceled before the backend answered", te.Summary)
}
