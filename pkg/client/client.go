// Package client talks to a steplab server over HTTP. Client satisfies
// tutorial.Backend so the learner front ends can run against a remote
// server or the in-process backend interchangeably.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is a steplab HTTP client.
type Client struct {
	base *url.URL
	http *http.Client
	// ReadRetries is how many times idempotent reads are attempted.
	ReadRetries uint
}

var _ tutorial.Backend = (*Client)(nil)

// New creates a client for the server at serverURL. Per-call deadlines come
// from the caller's context; the http.Client has no timeout of its own.
func New(serverURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q: scheme must be http or https", serverURL)
	}
	return &Client{base: u, http: &http.Client{}, ReadRetries: 3}, nil
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// ListQuestions fetches the question list.
func (c *Client) ListQuestions(ctx context.Context) ([]tutorial.QuestionSummary, error) {
	var out []tutorial.QuestionSummary
	if err := c.get(ctx, "/api/questions", &out); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}

// GetQuestion fetches one question with its steps.
func (c *Client) GetQuestion(ctx context.Context, id string) (*tutorial.Question, error) {
	var out tutorial.Question
	if err := c.get(ctx, "/api/questions/"+url.PathEscape(id), &out); err != nil {
		return nil, fmt.Errorf("get question %q: %w", id, err)
	}
	return &out, nil
}

// CreateSession provisions a server-side session for questionID.
func (c *Client) CreateSession(ctx context.Context, questionID string) (*tutorial.SessionHandle, error) {
	var out tutorial.SessionHandle
	body := map[string]string{"questionId": questionID}
	if err := c.post(ctx, "/api/session/create", body, &out); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create session: server returned no session id")
	}
	return &out, nil
}

// EndSession releases a server-side session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	body := map[string]string{"sessionId": sessionID}
	if err := c.post(ctx, "/api/session/end", body, nil); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}

// Execute sends one command. A command that ran and failed is a result,
// not an error.
func (c *Client) Execute(ctx context.Context, req tutorial.CommandRequest) (*tutorial.CommandResult, error) {
	var out tutorial.CommandResult
	if err := c.post(ctx, "/api/terminal/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate asks the server to judge a step.
func (c *Client) Validate(ctx context.Context, req tutorial.CheckRequest) (*tutorial.Verdict, error) {
	var out tutorial.Verdict
	if err := c.post(ctx, "/api/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Transport ──────────────────────────────────────────────────────

// get retries transport failures and 5xx responses. 4xx answers are final.
func (c *Client) get(ctx context.Context, path string, out any) error {
	tries := c.ReadRetries
	if tries == 0 {
		tries = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a response body, falling back
// to the raw text.
func errorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
