// Package portalclient talks to the portal-sync HTTP API and satisfies the
// stores a viewer session needs, so a dashboard can run out of process.
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal api: %d %s", e.Status, e.Message)
}

// Unwrap exposes the matching domain sentinel, if any.
func (e *APIError) Unwrap() error { return e.kind }

// Client is safe for concurrent use once logged in.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
	user  *domain.User
}

type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithToken sets a token obtained elsewhere.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		// Streams stay open; only the caller or the server ends them.
		stream: &http.Client{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.User, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp, nil)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.user = resp.User
	c.mu.Unlock()
	return resp.User, nil
}

// User returns the account returned by the last Login.
func (c *Client) User() *domain.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// do sends one JSON request. invalid is the sentinel a 422 maps to.
func (c *Client) do(ctx context.Context, method, path string, body, out any, invalid error) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return transportErr(err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return decodeError(res, invalid)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// transportErr reports network failures as storage outages so viewers roll
// back the same way they do for a 503. Caller cancellation passes through.
func transportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

func decodeError(res *http.Response, invalid error) error {
	var env struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(&env)
	if env.Error == "" {
		env.Error = http.StatusText(res.StatusCode)
	}

	apiErr := &APIError{Status: res.StatusCode, Message: env.Error}
	switch res.StatusCode {
	case http.StatusUnauthorized:
		apiErr.kind = domain.ErrInvalidCredentials
	case http.StatusForbidden:
		apiErr.kind = domain.ErrForbidden
	case http.StatusNotFound:
		apiErr.kind = domain.ErrClientNotFound
	case http.StatusConflict:
		apiErr.kind = domain.ErrUserExists
	case http.StatusUnprocessableEntity:
		apiErr.kind = invalid
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		apiErr.kind = domain.ErrStorageUnavailable
	}
	return apiErr
}
