package view

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
	"tradedash/internal/stream"
)

// pushServer is an SSE endpoint whose frames are pushed by the test.
type pushServer struct {
	frames chan string

	mu      sync.Mutex
	hits    int
	active  int
	queries []string
}

func newPushServer(t *testing.T) (*pushServer, *httptest.Server) {
	t.Helper()
	ps := &pushServer{frames: make(chan string, 64)}
	srv := httptest.NewServer(ps)
	t.Cleanup(srv.Close)
	return ps, srv
}

func (s *pushServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits++
	s.active++
	s.queries = append(s.queries, r.URL.Query().Get("stock_codes"))
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fl := w.(http.Flusher)
	fl.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-s.frames:
			fmt.Fprint(w, f)
			fl.Flush()
		}
	}
}

func (s *pushServer) connections() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, append([]string(nil), s.queries...)
}

func (s *pushServer) open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *pushServer) tick(code, tradeTime string, price int64) {
	s.frames <- fmt.Sprintf("event: price_update\ndata: {\"stock_code\":%q,\"trade_time\":%q,\"current_price\":\"%d\",\"open_price\":\"72000\"}\n\n",
		code, tradeTime, price)
}

func priceFeed(srv *httptest.Server) *stream.Transport[model.Tick] {
	return stream.NewPrice(stream.Config{BaseURL: srv.URL})
}

func askingFeed(srv *httptest.Server) *stream.Transport[model.OrderBook] {
	return stream.NewAskingPrice(stream.Config{BaseURL: srv.URL})
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(year int, month time.Month, day, hour, minute int) *fakeClock {
	return &fakeClock{t: time.Date(year, month, day, hour, minute, 0, 0, markethours.KST)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects published gateway messages.
type recorder struct {
	mu   sync.Mutex
	msgs []published
}

type published struct {
	channel string
	v       any
}

func (r *recorder) Publish(channel string, v any) {
	r.mu.Lock()
	r.msgs = append(r.msgs, published{channel, v})
	r.mu.Unlock()
}

func (r *recorder) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.channel == channel {
			n++
		}
	}
	return n
}

// fakeBackend serves canned candles and market status.
type fakeBackend struct {
	mu      sync.Mutex
	open    bool
	series  map[string]model.Series
	gates   map[string]chan struct{}
	entered chan string
}

func newBackend(open bool) *fakeBackend {
	return &fakeBackend{
		open:    open,
		series:  make(map[string]model.Series),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 8),
	}
}

func (b *fakeBackend) serve(code string) (model.Series, error) {
	b.mu.Lock()
	gate := b.gates[code]
	s := b.series[code]
	b.mu.Unlock()
	select {
	case b.entered <- code:
	default:
	}
	if gate != nil {
		<-gate
	}
	return s.Clone(), nil
}

func (b *fakeBackend) HourCandlesToday(_ context.Context, code string) (model.Series, error) {
	return b.serve(code)
}

func (b *fakeBackend) HourCandles(_ context.Context, code, _, _ string) (model.Series, error) {
	return b.serve(code)
}

func (b *fakeBackend) MinuteCandlesToday(_ context.Context, code string, _ int) (model.Series, error) {
	return b.serve(code)
}

func (b *fakeBackend) MinuteCandles(_ context.Context, code, _, _ string, _ int) (model.Series, error) {
	return b.serve(code)
}

func (b *fakeBackend) MarketStatus(context.Context) (model.MarketStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return model.MarketStatus{IsOpen: b.open}, nil
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
