package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

// ─── Hub ──────────────────────────────────────────────────────────────────────

// event is one SSE frame.
type event struct {
	name string
	code string
	data []byte
}

type subscriber struct {
	kind  string
	codes map[string]bool
	ch    chan event
}

type hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*subscriber]struct{})}
}

func (h *hub) register(kind string, codes []string) *subscriber {
	s := &subscriber{kind: kind, codes: make(map[string]bool, len(codes)), ch: make(chan event, 256)}
	for _, c := range codes {
		s.codes[c] = true
	}
	h.mu.Lock()
	h.clients[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unregister(s *subscriber) {
	h.mu.Lock()
	delete(h.clients, s)
	h.mu.Unlock()
}

func (h *hub) count(kind string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.clients {
		if s.kind == kind {
			n++
		}
	}
	return n
}

func (h *hub) broadcast(kind string, ev event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.clients {
		if s.kind != kind || !s.codes[ev.code] {
			continue
		}
		select {
		case s.ch <- ev:
		default: // slow client, drop event
		}
	}
}

// ─── Server ───────────────────────────────────────────────────────────────────

const (
	kindPrice  = "price"
	kindAsking = "asking_price"
)

type credentials struct {
	nickname   string
	password   string
	totpSecret string
}

type server struct {
	mkt        *market
	hub        *hub
	creds      credentials
	alwaysOpen bool
	now        func() time.Time

	mu      sync.Mutex
	access  map[string]bool
	refresh map[string]bool
}

func newServer(mkt *market, creds credentials, alwaysOpen bool) *server {
	return &server{
		mkt:        mkt,
		hub:        newHub(),
		creds:      creds,
		alwaysOpen: alwaysOpen,
		now:        time.Now,
		access:     make(map[string]bool),
		refresh:    make(map[string]bool),
	}
}

// tick advances the market once and fans the result out to stream clients.
func (s *server) tick() {
	for _, w := range s.mkt.step(s.now()) {
		b, err := json.Marshal(w)
		if err != nil {
			continue
		}
		s.hub.broadcast(kindPrice, event{name: "price_update", code: w.StockCode, data: b})

		if book, ok := s.mkt.orderBook(w.StockCode); ok {
			b, err := json.Marshal(book)
			if err != nil {
				continue
			}
			s.hub.broadcast(kindAsking, event{name: "asking_price_update", code: w.StockCode, data: b})
		}
	}
}

func (s *server) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.marketOpen() {
				s.tick()
			}
		}
	}
}

func (s *server) marketOpen() bool {
	return s.alwaysOpen || markethours.IsMarketOpen(s.now())
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", s.login)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.refreshToken)

	mux.HandleFunc("GET /api/v1/price/stream", s.authed(s.stream(kindPrice)))
	mux.HandleFunc("GET /api/v1/price/asking-price/stream", s.authed(s.stream(kindAsking)))
	mux.HandleFunc("GET /api/v1/price/market/status", s.authed(s.marketStatus))
	mux.HandleFunc("GET /api/v1/price/sell/{code}", s.authed(s.sellPrice))
	mux.HandleFunc("GET /api/v1/price/candles/{code}/hours/today", s.authed(s.candles(true, true)))
	mux.HandleFunc("GET /api/v1/price/candles/{code}/hours", s.authed(s.candles(true, false)))
	mux.HandleFunc("GET /api/v1/price/candles/{code}/minutes/today", s.authed(s.candles(false, true)))
	mux.HandleFunc("GET /api/v1/price/candles/{code}/minutes", s.authed(s.candles(false, false)))
	mux.HandleFunc("GET /api/v1/stocks/metadata", s.authed(s.metadata))
	mux.HandleFunc("GET /api/v1/predict", s.authed(s.predict))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","service":"ticksim","price_clients":%d,"asking_clients":%d}`+"\n",
			s.hub.count(kindPrice), s.hub.count(kindAsking))
	})
	return mux
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

func (s *server) issue() map[string]string {
	at, rt := uuid.NewString(), uuid.NewString()
	s.mu.Lock()
	s.access[at] = true
	s.refresh[rt] = true
	s.mu.Unlock()
	return map[string]string{"access_token": at, "refresh_token": rt, "token_type": "bearer"}
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nickname string `json:"nickname"`
		Password string `json:"password"`
		OTPCode  string `json:"otp_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if req.Nickname != s.creds.nickname || req.Password != s.creds.password {
		writeDetail(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if s.creds.totpSecret != "" && !totp.Validate(req.OTPCode, s.creds.totpSecret) {
		writeDetail(w, http.StatusUnauthorized, "invalid one-time code")
		return
	}
	log.Printf("[ticksim] login: %s", req.Nickname)
	writeJSON(w, s.issue())
}

func (s *server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.mu.Lock()
	ok := s.refresh[req.RefreshToken]
	delete(s.refresh, req.RefreshToken)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeJSON(w, s.issue())
}

// expire revokes every access token; refresh tokens stay valid.
func (s *server) expire() {
	s.mu.Lock()
	s.access = make(map[string]bool)
	s.mu.Unlock()
}

func (s *server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.access[tok]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next(w, r)
	}
}

// ─── Streams ──────────────────────────────────────────────────────────────────

func (s *server) stream(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		var codes []string
		for _, c := range strings.Split(r.URL.Query().Get("stock_codes"), ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
		if len(codes) == 0 {
			writeDetail(w, http.StatusBadRequest, "stock_codes is required")
			return
		}

		sub := s.hub.register(kind, codes)
		defer s.hub.unregister(sub)
		log.Printf("[ticksim] %s stream opened: %s %v", kind, r.RemoteAddr, codes)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		flusher.Flush()

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()
		for {
			select {
			case <-r.Context().Done():
				log.Printf("[ticksim] %s stream closed: %s", kind, r.RemoteAddr)
				return
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
			case ev := <-sub.ch:
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			}
			flusher.Flush()
		}
	}
}

// ─── REST ─────────────────────────────────────────────────────────────────────

func (s *server) marketStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, model.MarketStatus{IsOpen: s.marketOpen()})
}

func (s *server) sellPrice(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	open, price, ok := s.mkt.quote(code)
	if !ok {
		writeDetail(w, http.StatusNotFound, "unknown stock code")
		return
	}
	writeJSON(w, map[string]any{
		"stock_code":     code,
		"current_price":  strconv.FormatInt(price, 10),
		"open_price":     strconv.FormatInt(open, 10),
		"is_market_open": s.marketOpen(),
	})
}

type wireCandle struct {
	Date   string `json:"candle_date"`
	Time   string `json:"candle_time"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// candles serves both candle families. Only today's ticks exist, so by-date
// requests for other days come back empty.
func (s *server) candles(hours, today bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		if !s.mkt.has(code) {
			writeDetail(w, http.StatusNotFound, "unknown stock code")
			return
		}
		q := r.URL.Query()
		date := markethours.Today(s.now())
		source := "cache"
		if !today {
			source = "database"
			if d := q.Get("start_date"); d != date {
				writeJSON(w, map[string]any{"stock_code": code, "date": d, "source": "none", "candles": []wireCandle{}})
				return
			}
		}

		var cs []model.Candle
		if hours {
			cs, _ = s.mkt.hourCandles(code, date)
		} else {
			interval, err := strconv.Atoi(q.Get("minute_interval"))
			if err != nil || interval <= 0 {
				interval = 1
			}
			cs, _ = s.mkt.minuteCandles(code, date, interval)
		}

		out := make([]wireCandle, len(cs))
		for i, c := range cs {
			out[i] = wireCandle{
				Date:   c.Date,
				Time:   c.Time,
				Open:   strconv.FormatInt(c.Open, 10),
				High:   strconv.FormatInt(c.High, 10),
				Low:    strconv.FormatInt(c.Low, 10),
				Close:  strconv.FormatInt(c.Close, 10),
				Volume: strconv.FormatInt(c.Volume, 10),
			}
		}
		writeJSON(w, map[string]any{"stock_code": code, "date": date, "source": source, "candles": out})
	}
}

func (s *server) metadata(w http.ResponseWriter, r *http.Request) {
	m, ok := s.mkt.metadata(r.URL.Query().Get("stock_code"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "unknown stock code")
		return
	}
	writeJSON(w, m)
}

func (s *server) predict(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = markethours.Today(s.now())
	}
	l := s.mkt.predictions(date)
	l.IsMarketOpen = s.marketOpen()
	writeJSON(w, l)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
