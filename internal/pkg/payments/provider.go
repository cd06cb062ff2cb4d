package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrSessionNotFound is returned when the provider has no record of the
// referenced checkout session.
var ErrSessionNotFound = errors.New("payment session not found")

// Session is the provider's view of one checkout session, fetched during
// client-initiated verification.
type Session struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Email      string `json:"email"`
	Credits    int64  `json:"credits"`
	PhotoCount int    `json:"photo_count"`
	Paid       bool   `json:"paid"`
	Raw        []byte `json:"-"`
}

// ProviderClient fetches payment sessions from the provider.
type ProviderClient interface {
	FetchSession(ctx context.Context, sessionID string) (*Session, error)
}

// HTTPProviderClient talks to the payment provider's session API with a
// bounded per-call timeout.
type HTTPProviderClient struct {
	BaseURL   string
	APIKey    string
	Provider  string
	Client    *http.Client
	CallLimit time.Duration
}

// NewHTTPProviderClient creates a provider client with sane timeouts.
func NewHTTPProviderClient(baseURL, apiKey, provider string) *HTTPProviderClient {
	return &HTTPProviderClient{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Provider:  provider,
		Client:    &http.Client{Timeout: 10 * time.Second},
		CallLimit: 10 * time.Second,
	}
}

// FetchSession loads one checkout session by ID.
func (c *HTTPProviderClient) FetchSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, c.CallLimit)
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.BaseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch session %s: provider returned %d", sessionID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if session.ID == "" {
		session.ID = sessionID
	}
	if session.Provider == "" {
		session.Provider = c.Provider
	}
	session.Raw = body
	return &session, nil
}
