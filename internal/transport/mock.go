package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/intakedesk/internal/intake"
)

// MockClient answers locally with deterministic replies when no backend is configured.
type MockClient struct {
	mu      sync.Mutex
	threads map[string]int
}

func NewMockClient() *MockClient {
	return &MockClient{threads: make(map[string]int)}
}

func (c *MockClient) BeginSession(ctx context.Context, seed string, _ intake.Params) (string, error) {
	select {
	case <-ctx.Done():
		return "", &Error{Op: OpStartConversation, Summary: "request canceled before the backend answered", Err: ctx.Err()}
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads[seed] = 0
	return seed, nil
}

func (c *MockClient) ExchangeMessage(ctx context.Context, sessionID, text string, mc Context) (Reply, error) {
	select {
	case <-ctx.Done():
		return Reply{}, &Error{Op: OpMessage, Summary: "request canceled before the backend answered", Err: ctx.Err()}
	default:
	}

	c.mu.Lock()
	turns, ok := c.threads[sessionID]
	if ok {
		c.threads[sessionID] = turns + 1
	}
	c.mu.Unlock()
	if !ok {
		return Reply{}, &Error{Op: OpMessage, Status: 404, Summary: "conversation not found on the backend"}
	}

	reply := Reply{Text: buildMockReply(text, mc)}
	if turns == 0 {
		reply.Route = "Symptom Bot selected."
	}
	return reply, nil
}

func buildMockReply(text string, mc Context) string {
	base := strings.TrimSpace(text)
	if base == "" {
		return "Could you describe your symptoms?"
	}
	if mc.Specialty == "" {
		return fmt.Sprintf("Noted: %s. How long has this been going on?", base)
	}
	return fmt.Sprintf("Noted for %s: %s. How long has this been going on?", mc.Specialty, base)
}
