// Package api is the REST client for the trading backend.
//
// Every request carries the bearer token from the client's TokenStore. A 401
// on an authenticated request triggers exactly one refresh through
// /auth/refresh followed by one retry; when the refresh is impossible or
// rejected the call fails with ErrSessionExpired.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrSessionExpired is returned when a request was rejected as unauthorized
// and the session could not be refreshed.
var ErrSessionExpired = errors.New("api: session expired")

// HTTPError is a non-2xx response. Detail is the backend's "detail" message
// when the body carried one.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %s %s: %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("api: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root including the version prefix,
	// e.g. "http://localhost:8000/api/v1".
	BaseURL string

	// Timeout bounds each request. Default 10s.
	Timeout time.Duration

	// RequestsPerSecond and Burst size the outbound limiter.
	// Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Tokens holds the session tokens. A fresh store is created when nil.
	Tokens *TokenStore

	// HTTPClient overrides the default client (Timeout is then ignored).
	HTTPClient *http.Client

	// TOTPSecret, when set, makes Login send a one-time code.
	TOTPSecret string
}

// Client talks to the backend REST surface.
type Client struct {
	base       string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *TokenStore
	totpSecret string

	refreshMu sync.Mutex

	// Metrics hooks (optional, set externally)
	OnRequest        func(method, path string, status int, elapsed time.Duration)
	OnRefresh        func(ok bool)
	OnSessionExpired func()
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = &TokenStore{}
	}
	var lim *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: hc,
		limiter:    lim,
		tokens:     tokens,
		totpSecret: cfg.TOTPSecret,
	}
}

// Tokens returns the client's token store.
func (c *Client) Tokens() *TokenStore { return c.tokens }

// BaseURL returns the API root the client was configured with.
func (c *Client) BaseURL() string { return c.base }

// ---- Helpers ----

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query, auth: true}, out)
}

// do sends r, refreshing the session once on a 401, and decodes a 2xx body
// into out.
func (c *Client) do(ctx context.Context, r request, out any) error {
	token := ""
	if r.auth {
		token = c.tokens.AccessToken()
	}

	status, raw, err := c.send(ctx, r, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && token != "" {
		fresh, err := c.refreshAfter(ctx, token)
		if err != nil {
			if c.OnSessionExpired != nil {
				c.OnSessionExpired()
			}
			log.Printf("[api] %s %s: session expired: %v", r.method, r.path, err)
			return fmt.Errorf("%s %s: %w", r.method, r.path, ErrSessionExpired)
		}
		status, raw, err = c.send(ctx, r, fresh)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return &HTTPError{Method: r.method, Path: r.path, Status: status, Detail: detailOf(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, r request, token string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("api: rate limiter: %w", err)
		}
	}

	reqURL := c.base + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, fmt.Errorf("api: encode %s: %w", r.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[api] HTTP error: %s %s err=%v", r.method, r.path, err)
		return 0, nil, fmt.Errorf("api: %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if c.OnRequest != nil {
		c.OnRequest(r.method, r.path, resp.StatusCode, time.Since(start))
	}
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("api: read %s %s: %w", r.method, r.path, err)
	}
	return resp.StatusCode, raw, nil
}

func detailOf(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) != nil || len(body.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(body.Detail, &s) == nil {
		return s
	}
	// validation errors arrive as a list of objects
	return string(body.Detail)
}
