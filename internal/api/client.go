// Package api is the authenticated REST transport for the shuttle backend.
//
// The backend is treated as a partially-unreliable collaborator: any
// endpoint may 404 or 500 and callers interpret that as "no data". The one
// cross-cutting behavior that lives here is 401 handling: an unauthorized
// response invalidates the stored session before the error is returned.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned on any 401; by the time the caller sees
	// it the credential has already been invalidated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned on 404 responses.
	ErrNotFound = errors.New("not found")
)

// StatusError reports a non-2xx response that is neither 401 nor 404.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// IsNoData reports whether err means the endpoint had nothing usable,
// as opposed to the request never reaching the backend. Discovery chains
// treat both the same way, but some callers want the distinction.
func IsNoData(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se)
}

// TokenSource supplies the bearer token and absorbs invalidation when the
// backend rejects it. An empty token means the request goes out
// unauthenticated; it is not blocked.
type TokenSource interface {
	Token() string
	Invalidate()
}

// StaticToken is a TokenSource for tools and tests that hold a fixed token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }
func (StaticToken) Invalidate()     {}

// Client issues authenticated JSON calls against the backend.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	auth    TokenSource
	log     *zap.Logger
}

// NewClient creates a client for the given base URL. A nil logger disables
// logging; a nil auth source sends every request unauthenticated.
func NewClient(baseURL string, timeout time.Duration, auth TokenSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
		auth:    auth,
		log:     log,
	}
}

// SetAuth replaces the token source. Used by session wiring, which cannot
// exist before the client does.
func (c *Client) SetAuth(auth TokenSource) {
	c.auth = auth
}

// GetJSON issues a GET and decodes the response body into out.
// Pass a *map[string]any when the response shape is not known up front.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
// out may be nil when the response body does not matter.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != nil {
		if token := c.auth.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.log.Debug("session invalidated by backend", zap.String("path", path))
		if c.auth != nil {
			c.auth.Invalidate()
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
