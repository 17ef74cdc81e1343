package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ent0n29/intakedesk/internal/intake"
	"github.com/ent0n29/intakedesk/internal/reliability"
)

type startRequest struct {
	ThreadID         string `json:"thread_id"`
	DoctorName       string `json:"doctor_name"`
	ConsultationType string `json:"consultation_type"`
	Specialty        string `json:"specialty"`
	AgeGroup         string `json:"age_group"`
	Gender           string `json:"gender"`
	ClinicName       string `json:"clinic_name"`
}

type startResponse struct {
	ThreadID string `json:"thread_id"`
}

type messageRequest struct {
	ThreadID  string `json:"thread_id"`
	Message   string `json:"message"`
	AgeGroup  string `json:"age_group"`
	Gender    string `json:"gender"`
	Specialty string `json:"specialty"`
}

type messageResponse struct {
	Reply        *string `json:"reply"`
	BotSelection string  `json:"bot_selection,omitempty"`
}

// HTTPClient talks to the conversational backend over JSON RPC-style endpoints.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client for baseURL. A zero timeout leaves requests
// bounded only by the caller's context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) BeginSession(ctx context.Context, seed string, params intake.Params) (string, error) {
	req := startRequest{
		ThreadID:         seed,
		DoctorName:       params.ProviderName,
		ConsultationType: params.ConsultationType,
		Specialty:        params.Specialty,
		AgeGroup:         params.AgeGroup,
		Gender:           params.Gender,
		ClinicName:       params.ClinicName,
	}
	var res startResponse
	if err := c.post(ctx, OpStartConversation, "/start_conversation", req, &res); err != nil {
		return "", err
	}
	id := strings.TrimSpace(res.ThreadID)
	if id == "" {
		return "", &Error{
			Op:      OpStartConversation,
			Summary: "backend response is missing thread_id",
			Err:     goerr.New("missing thread_id", goerr.V("seed", seed)),
		}
	}
	return id, nil
}

func (c *HTTPClient) ExchangeMessage(ctx context.Context, sessionID, text string, mc Context) (Reply, error) {
	req := messageRequest{
		ThreadID:  sessionID,
		Message:   text,
		AgeGroup:  mc.AgeGroup,
		Gender:    mc.Gender,
		Specialty: mc.Specialty,
	}
	var res messageResponse
	if err := c.post(ctx, OpMessage, "/message", req, &res); err != nil {
		return Reply{}, err
	}
	if res.Reply == nil || strings.TrimSpace(*res.Reply) == "" {
		return Reply{}, &Error{
			Op:      OpMessage,
			Summary: "backend response is missing reply",
			Err:     goerr.New("missing reply", goerr.V("thread_id", sessionID)),
		}
	}
	return Reply{Text: *res.Reply, Route: strings.TrimSpace(res.BotSelection)}, nil
}

func (c *HTTPClient) post(ctx context.Context, op, path string, in, out any) error {
	url := c.baseURL + path

	payload, err := json.Marshal(in)
	if err != nil {
		return &Error{Op: op, Summary: "could not encode request", Err: goerr.Wrap(err, "marshal request")}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &Error{Op: op, Summary: "could not build request", Err: goerr.Wrap(err, "create request", goerr.V("url", url))}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		summary := "backend unreachable"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			summary = "request canceled before the backend answered"
		}
		return &Error{Op: op, Summary: summary, Retryable: true, Err: goerr.Wrap(err, "send request", goerr.V("url", url))}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &Error{
			Op:        op,
			Status:    res.StatusCode,
			Summary:   reliability.DescribeHTTPStatus(res.StatusCode),
			Retryable: reliability.IsRetryableHTTPStatus(res.StatusCode),
			Err: goerr.New("backend status",
				goerr.V("url", url),
				goerr.V("status", res.StatusCode),
				goerr.V("body", strings.TrimSpace(string(body))),
			),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Status: res.StatusCode, Summary: "could not read backend response", Err: goerr.Wrap(err, "read response")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Status: res.StatusCode, Summary: "malformed backend response", Err: goerr.Wrap(err, "decode response", goerr.V("url", url))}
	}
	return nil
}
