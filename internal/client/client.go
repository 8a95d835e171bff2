// Package client provides a Go client for the calling-it-now API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callingitnow/callit/internal/rate"
)

// TokenSource supplies the bearer token for outgoing requests. ClearToken is
// called when the backend answers 401.
type TokenSource interface {
	Token() string
	ClearToken()
}

// Client is a calling-it-now API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	// OnUnauthorized runs after the token was cleared because of a 401.
	OnUnauthorized func()
	// Limiter, when set, throttles outgoing requests under LimitRule.
	Limiter   rate.Limiter
	LimitRule rate.Rule
	Logger    *slog.Logger
}

// New creates a new client holding its token in memory.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Tokens:     &MemoryToken{},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// MemoryToken is a TokenSource that lives only in process memory.
type MemoryToken struct {
	mu    sync.RWMutex
	token string
}

func (m *MemoryToken) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryToken) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *MemoryToken) ClearToken() { m.SetToken("") }

// IsAuthenticated returns true if the client has a token to send.
func (c *Client) IsAuthenticated() bool {
	return c.Tokens != nil && c.Tokens.Token() != ""
}

// do performs one request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.Limiter != nil && c.LimitRule.Limit > 0 {
		if err := rate.Wait(ctx, c.Limiter, c.BaseURL, c.LimitRule); err != nil {
			return err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	if c.Tokens != nil {
		if token := c.Tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	log := c.logger().With("method", method, "path", path, "request_id", requestID)
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Debug("request failed", "err", err)
		return fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %w", ErrNetwork, method, path, err)
	}
	log.Debug("request done", "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		if c.Tokens != nil {
			c.Tokens.ClearToken()
		}
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return newAPIError(method, path, resp.StatusCode, respBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(method, path, resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

var errEmptyID = errors.New("id must be positive")

func checkID(id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", errEmptyID, id)
	}
	return nil
}
