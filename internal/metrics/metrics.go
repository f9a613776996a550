// Package metrics exposes Prometheus collectors and a /healthz report for
// the dashboard process.
package metrics

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard.
type Metrics struct {
	// Streams (labels: kind=price|asking_price)
	StreamMessages  *prometheus.CounterVec
	StreamMalformed *prometheus.CounterVec
	StreamErrors    *prometheus.CounterVec
	StreamActive    *prometheus.GaugeVec

	// REST client
	APIRequestDur   *prometheus.HistogramVec // labels: method, status
	TokenRefreshes  *prometheus.CounterVec   // labels: result=ok|failed
	SessionsExpired prometheus.Counter

	// Fetching
	FetchDur        *prometheus.HistogramVec // labels: granularity, source
	FetchSuperseded prometheus.Counter

	// Live aggregation
	CandlePatches prometheus.Counter
	DroppedTicks  prometheus.Counter
	HistoryEvicts prometheus.Counter

	// Metadata cache
	MetaCacheHits   prometheus.Counter
	MetaCacheMisses prometheus.Counter

	// Redis circuit breaker
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips prometheus.Counter

	// Archive
	ArchiveSaveDur prometheus.Histogram
	ArchiveCandles prometheus.Counter

	// Live gateway
	GatewayClients prometheus.Gauge
	GatewayDrops   prometheus.Counter

	// Market session
	MarketState        prometheus.Gauge       // 0=closed, 1=open
	SessionTransitions *prometheus.CounterVec // labels: type=open|close
}

// NewMetrics creates all collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_stream_messages_total",
			Help: "Stream payloads delivered to consumers",
		}, []string{"kind"}),
		StreamMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_stream_malformed_total",
			Help: "Stream payloads dropped as malformed",
		}, []string{"kind"}),
		StreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_stream_errors_total",
			Help: "Stream connections that failed or broke",
		}, []string{"kind"}),
		StreamActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dashboard_stream_active",
			Help: "Whether a stream subscription is active (0/1)",
		}, []string{"kind"}),

		APIRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_api_request_duration_seconds",
			Help:    "Backend REST request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_token_refreshes_total",
			Help: "Access token refresh attempts",
		}, []string{"result"}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_sessions_expired_total",
			Help: "Requests that ended with an expired session",
		}),

		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dashboard_fetch_duration_seconds",
			Help:    "Candle series fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"granularity", "source"}),
		FetchSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_fetch_superseded_total",
			Help: "Fetch results discarded because a newer selection started",
		}),

		CandlePatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_candle_patches_total",
			Help: "Live ticks applied to a chart series",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_dropped_ticks_total",
			Help: "Ticks dropped because a consumer was full",
		}),
		HistoryEvicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_tick_history_evictions_total",
			Help: "Ticks evicted from bounded per-instrument history",
		}),

		MetaCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_metadata_cache_hits_total",
			Help: "Metadata lookups served from cache",
		}),
		MetaCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_metadata_cache_misses_total",
			Help: "Metadata lookups that went to the backend",
		}),

		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		ArchiveSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashboard_archive_save_duration_seconds",
			Help:    "SQLite archive save latency",
			Buckets: prometheus.DefBuckets,
		}),
		ArchiveCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_archive_candles_total",
			Help: "Candles written to the SQLite archive",
		}),

		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_gateway_clients",
			Help: "Connected live gateway clients",
		}),
		GatewayDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_gateway_drops_total",
			Help: "Gateway messages dropped for slow clients",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_session_transitions_total",
			Help: "Market session transitions (open, close)",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.StreamMessages,
		m.StreamMalformed,
		m.StreamErrors,
		m.StreamActive,
		m.APIRequestDur,
		m.TokenRefreshes,
		m.SessionsExpired,
		m.FetchDur,
		m.FetchSuperseded,
		m.CandlePatches,
		m.DroppedTicks,
		m.HistoryEvicts,
		m.MetaCacheHits,
		m.MetaCacheMisses,
		m.BreakerState,
		m.BreakerTrips,
		m.ArchiveSaveDur,
		m.ArchiveCandles,
		m.GatewayClients,
		m.GatewayDrops,
		m.MarketState,
		m.SessionTransitions,
	)

	return m
}

// ObserveRequest records one REST round trip. Status 0 means the request
// never got a response.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	m.APIRequestDur.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ObserveRefresh records a token refresh attempt.
func (m *Metrics) ObserveRefresh(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// SetMarketOpen records the session state and counts transitions.
func (m *Metrics) SetMarketOpen(open bool) {
	if open {
		m.MarketState.Set(1)
		m.SessionTransitions.WithLabelValues("open").Inc()
		return
	}
	m.MarketState.Set(0)
	m.SessionTransitions.WithLabelValues("close").Inc()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// SetStreamActive records whether the stream of the given kind is active.
func (m *Metrics) SetStreamActive(kind string, active bool) {
	m.StreamActive.WithLabelValues(kind).Set(boolGauge(active))
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server reading from g.
func NewServer(addr string, health *HealthStatus, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
