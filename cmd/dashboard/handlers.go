package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradedash/internal/api"
	"tradedash/internal/chart"
	"tradedash/internal/fetcher"
	"tradedash/internal/logger"
	"tradedash/internal/markethours"
	"tradedash/internal/metacache"
	"tradedash/internal/model"
	"tradedash/internal/view"
)

const requestTimeout = 15 * time.Second

type handlers struct {
	charts *view.ChartView
	detail *view.DetailPanel
	orders *view.OrderEntry
	meta   *metacache.Loader
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /charts/{file}", h.chartSVG)
	mux.HandleFunc("GET /detail/{code}", h.detailPanel)
	mux.HandleFunc("GET /orders/{code}", h.orderEntry)
	mux.HandleFunc("GET /metadata/{code}", h.metadata)
}

// chartSVG serves GET /charts/{code}.svg?interval&date&target&stop&buy.
// A selection equal to the current, loaded one is rendered without reloading.
func (h *handlers) chartSVG(w http.ResponseWriter, r *http.Request) {
	code, ok := strings.CutSuffix(r.PathValue("file"), ".svg")
	if !ok || code == "" {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()

	g := model.Hour
	if v := q.Get("interval"); v != "" {
		var err error
		if g, err = model.ParseGranularity(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	date := q.Get("date")
	if date == "" {
		date = markethours.Today(time.Now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	var ref chart.RefPrices
	for _, p := range []struct {
		key string
		dst *int64
	}{{"target", &ref.Target}, {"stop", &ref.Stop}, {"buy", &ref.Buy}} {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				http.Error(w, p.key+" must be a non-negative integer", http.StatusBadRequest)
				return
			}
			*p.dst = n
		}
	}

	sel := view.Selection{Code: code, Date: date, Granularity: g, Ref: ref}
	if h.charts.Selection() != sel || h.charts.Series().StockCode != code {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		if err := h.charts.Select(ctx, sel); err != nil {
			writeError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if err := h.charts.Render(w); err != nil {
		log.Printf("[dashboard] render chart %s: %v", code, err)
	}
}

// detailPanel serves GET /detail/{code}; ?format=svg returns the tick sparkline.
func (h *handlers) detailPanel(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if r.URL.Query().Get("format") == "svg" {
		var buf strings.Builder
		if err := h.detail.Sparkline(&buf, code, 320, 120); err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write([]byte(buf.String()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	d, err := h.detail.Load(ctx, code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, d)
}

type orderTicket struct {
	Code      string           `json:"code"`
	SellPrice model.SellPrice  `json:"sell_price"`
	TickSize  int64            `json:"tick_size"`
	OrderBook *model.OrderBook `json:"order_book,omitempty"`
}

// orderEntry serves GET /orders/{code}?date.
func (h *handlers) orderEntry(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = markethours.Today(time.Now())
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	sp, err := h.orders.Load(ctx, code, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := orderTicket{Code: code, SellPrice: sp, TickSize: view.TickSize(sp.CurrentPrice)}
	if b, ok := h.orders.OrderBook(); ok {
		out.OrderBook = &b
	}
	writeJSON(w, out)
}

func (h *handlers) metadata(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	m, err := h.meta.Get(ctx, r.PathValue("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, m)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[dashboard] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case api.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, api.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, fetcher.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, chart.ErrTooFewPoints):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	slog.Warn("request failed", append([]any{"path", r.URL.Path, "status", status, "error", err}, logger.LogWithTrace(r.Context())...)...)
	http.Error(w, err.Error(), status)
}

// withTrace tags each request context with a trace ID, reusing X-Request-ID
// when the caller sent one.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logger.GenerateTraceID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithTraceID(r.Context(), id)))
	})
}
