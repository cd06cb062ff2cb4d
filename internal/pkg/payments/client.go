package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Backoff schedule for calls against the reconciliation HTTP surface:
// 3 attempts total, waiting 1s then 2s between them. Only responses in the
// 5xx class are retried; 4xx responses are permanent for a given payload.
var defaultBackoff = []time.Duration{time.Second, 2 * time.Second}

// Client wraps outbound calls from front-end and admin tooling to the
// reconciliation engine's HTTP surface with bounded retries on transient
// failures.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	backoff []time.Duration
}

// NewClient creates a retrying reconciliation API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		backoff: defaultBackoff,
	}
}

// APIError is a non-2xx response from the reconciliation surface.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reconciliation api returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the failure class is retryable.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}

// VerifyPayment asks the engine whether a checkout session completed.
func (c *Client) VerifyPayment(ctx context.Context, sessionID string) (*Result, error) {
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})

	body, err := c.do(ctx, http.MethodPost, "/api/v1/payments/verify", payload)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &result, nil
}

// do performs one logical call with the fixed retry schedule. 4xx responses
// and context cancellation end the attempt loop immediately.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= len(c.backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff[attempt-1]):
			}
		}

		body, err := c.once(ctx, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if ok && !apiErr.Transient() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("reconciliation api unavailable, please try again: %w", lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
