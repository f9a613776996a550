// Package stream is the server-push transport for live prices and order books.
//
// A Transport holds at most one Subscription. Connecting again stops the
// previous subscription first, and each subscription owns its delivery
// channel, so a consumer of a superseded subscription only ever observes a
// closed channel. The transport never reconnects on its own.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"tradedash/internal/model"
	"tradedash/internal/normalize"
)

var (
	// ErrNoInstruments is returned by Connect for an empty instrument set.
	ErrNoInstruments = errors.New("stream: no instruments to subscribe")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("stream: subscription already started")
)

// Kind selects the server stream and its event type.
type Kind int

const (
	PriceKind Kind = iota
	AskingPriceKind
)

func (k Kind) String() string {
	if k == AskingPriceKind {
		return "asking_price"
	}
	return "price"
}

func (k Kind) path() string {
	if k == AskingPriceKind {
		return "/price/asking-price/stream"
	}
	return "/price/stream"
}

// EventName is the SSE event type carrying payloads of this kind.
func (k Kind) EventName() string {
	if k == AskingPriceKind {
		return "asking_price_update"
	}
	return "price_update"
}

// TokenSource supplies the bearer token for stream requests.
type TokenSource interface {
	AccessToken() string
}

// Config configures a Transport.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api/v1".
	BaseURL string

	// HTTPClient must not carry an overall timeout; streams are long-lived.
	// Defaults to a plain client.
	HTTPClient *http.Client

	// Tokens is optional; when set its token is sent as a bearer header.
	Tokens TokenSource

	// Buffer is the delivery channel capacity. Defaults to 256.
	Buffer int
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Transport manages the single live subscription of one stream kind.
type Transport[T any] struct {
	cfg    Config
	kind   Kind
	decode func([]byte) (T, error)

	mu     sync.Mutex
	active *Subscription[T]

	// Metrics hooks (optional, set before Connect)
	OnMessage   func()            // payload delivered
	OnMalformed func()            // payload dropped
	OnConnError func()            // connection failed or broke
	OnActive    func(active bool) // subscription opened / ended
}

// NewPrice creates the price_update transport.
func NewPrice(cfg Config) *Transport[model.Tick] {
	return newTransport(cfg, PriceKind, normalize.DecodeTick)
}

// NewAskingPrice creates the asking_price_update transport.
func NewAskingPrice(cfg Config) *Transport[model.OrderBook] {
	return newTransport(cfg, AskingPriceKind, normalize.DecodeOrderBook)
}

func newTransport[T any](cfg Config, kind Kind, decode func([]byte) (T, error)) *Transport[T] {
	cfg.defaults()
	return &Transport[T]{cfg: cfg, kind: kind, decode: decode}
}

// Kind returns the stream kind.
func (t *Transport[T]) Kind() Kind { return t.kind }

// Connect opens one subscription scoped to codes, stopping any existing one
// first. An empty code set is rejected without touching the current
// subscription. The subscription lives until Disconnect, a later Connect,
// ctx cancellation, or a connection error.
func (t *Transport[T]) Connect(ctx context.Context, codes []string) (*Subscription[T], error) {
	codes = uniqueCodes(codes)
	if len(codes) == 0 {
		return nil, ErrNoInstruments
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.disconnectLocked()

	sub := newSubscription(t, codes)
	if err := sub.Start(ctx); err != nil {
		return nil, err
	}
	t.active = sub
	return sub, nil
}

// Disconnect stops the current subscription. Safe to call at any time.
func (t *Transport[T]) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnectLocked()
}

func (t *Transport[T]) disconnectLocked() {
	if t.active == nil {
		return
	}
	t.active.Stop()
	t.active = nil
}

// Active returns the current subscription, or nil.
func (t *Transport[T]) Active() *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Connected reports whether a subscription is currently streaming.
func (t *Transport[T]) Connected() bool {
	sub := t.Active()
	return sub != nil && sub.IsActive()
}

func (t *Transport[T]) streamURL(codes []string) string {
	q := url.Values{}
	q.Set("stock_codes", strings.Join(codes, ","))
	return t.cfg.BaseURL + t.kind.path() + "?" + q.Encode()
}

func (t *Transport[T]) open(ctx context.Context, codes []string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.streamURL(codes), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.cfg.Tokens != nil {
		if tok := t.cfg.Tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream: %s returned %s", t.kind.path(), resp.Status)
	}
	return resp, nil
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func logf(format string, args ...any) {
	log.Printf("[stream] "+format, args...)
}
