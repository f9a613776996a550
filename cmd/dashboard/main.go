package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tradedash/config"
	"tradedash/internal/api"
	"tradedash/internal/chart"
	"tradedash/internal/fetcher"
	"tradedash/internal/gateway"
	"tradedash/internal/logger"
	"tradedash/internal/markethours"
	"tradedash/internal/metacache"
	"tradedash/internal/metrics"
	"tradedash/internal/model"
	"tradedash/internal/session"
	redisstore "tradedash/internal/store/redis"
	sqlitestore "tradedash/internal/store/sqlite"
	"tradedash/internal/stream"
	"tradedash/internal/view"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[dashboard] starting...")

	// ---- Config & logging ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[dashboard] config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[dashboard] invalid config: %v", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[dashboard] %v", err)
	}
	logger.Init("dashboard", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[dashboard] shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg, nil); err != nil {
		log.Fatalf("[dashboard] %v", err)
	}
	log.Println("[dashboard] stopped")
}

// run wires the dashboard and serves until ctx is cancelled. ready, when
// set, receives the HTTP listener address once requests are accepted.
func run(ctx context.Context, cfg *config.Config, ready func(addr string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, health, reg)
	metricsSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsSrv.Stop(shutdownCtx)
	}()

	// ---- Backend client ----
	client := api.NewClient(api.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		TOTPSecret:        cfg.API.TOTPSecret,
	})
	client.OnRequest = func(method, _ string, status int, elapsed time.Duration) {
		prom.ObserveRequest(method, status, elapsed)
	}
	client.OnRefresh = prom.ObserveRefresh
	client.OnSessionExpired = func() {
		prom.SessionsExpired.Inc()
		log.Println("[dashboard] backend session expired, log in again")
	}

	loginCtx, loginCancel := context.WithTimeout(logger.NewTrace(ctx), 15*time.Second)
	if _, err := client.Login(loginCtx, cfg.API.Nickname, cfg.API.Password); err != nil {
		loginCancel()
		return fmt.Errorf("login: %w", err)
	}
	loginCancel()
	slog.Info("logged in", "base_url", client.BaseURL())

	// ---- Candle archive ----
	archive, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLite.Path})
	if err != nil {
		return fmt.Errorf("sqlite init: %w", err)
	}
	defer archive.Close()
	archive.OnSaved = func(candles int, elapsed time.Duration) {
		prom.ArchiveCandles.Add(float64(candles))
		prom.ArchiveSaveDur.Observe(elapsed.Seconds())
	}
	log.Println("[dashboard] sqlite archive ready")

	// ---- Metadata cache ----
	var (
		cache       metacache.Cache = metacache.NewMemory()
		redisPinger metrics.Pinger
	)
	if cfg.Redis.Addr != "" {
		health.SetRedisConfigured(true)
		rc, err := redisstore.New(redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			log.Printf("[dashboard] WARNING: redis init failed: %v (continuing with in-process cache)", err)
			health.SetRedisConfigured(false)
		} else {
			defer rc.Close()
			rc.Breaker().OnStateChange = func(_, to redisstore.State) {
				prom.BreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.BreakerTrips.Inc()
				}
			}
			cache = rc
			redisPinger = rc
			log.Println("[dashboard] redis metadata cache ready")
		}
	}
	meta := metacache.NewLoader(cache, client)
	meta.OnHit = prom.MetaCacheHits.Inc
	meta.OnMiss = prom.MetaCacheMisses.Inc

	health.CheckSQLite(ctx, archive)
	if redisPinger != nil {
		health.CheckRedis(ctx, redisPinger)
	}
	health.StartLivenessChecker(ctx, redisPinger, archive, 10*time.Second)

	// ---- Live gateway ----
	hub := gateway.NewHub()
	hub.OnClientCount = func(n int) { prom.GatewayClients.Set(float64(n)) }
	hub.OnDropped = prom.GatewayDrops.Inc
	defer hub.Close()

	// ---- Streams (one transport per view, each holds one subscription) ----
	var priceActive, bookActive atomic.Int32
	newPrice := func() *stream.Transport[model.Tick] {
		t := stream.NewPrice(streamConfig(cfg, client))
		instrumentStream(t, prom, &priceActive, health.SetStreamConnected)
		return t
	}
	chartFeed := newPrice()
	watchFeed := newPrice()
	bookFeed := stream.NewAskingPrice(streamConfig(cfg, client))
	instrumentStream(bookFeed, prom, &bookActive, nil)

	// ---- Views ----
	chartFetcher := newFetcher(client, archive, prom)
	charts, err := view.NewChartView(chartFetcher, client, chartFeed, hub, chart.DefaultOptions())
	if err != nil {
		return fmt.Errorf("chart init: %w", err)
	}
	defer charts.Close()
	charts.OnPatched = prom.CandlePatches.Inc
	charts.OnTick = func(model.Tick) { health.SetLastTickTime(time.Now()) }

	watchlist := view.NewWatchlist(client, watchFeed, hub, cfg.Stream.HistoryDepth)
	defer watchlist.Close()
	watchlist.OnTick = func(model.Tick) { health.SetLastTickTime(time.Now()) }
	watchlist.OnEvicted = prom.HistoryEvicts.Inc
	if codes, err := watchlist.Load(logger.NewTrace(ctx), ""); err != nil {
		log.Printf("[dashboard] WARNING: watchlist load failed: %v", err)
	} else {
		log.Printf("[dashboard] watching %d instruments", len(codes))
	}

	detail := view.NewDetailPanel(client, watchlist, hub)
	orders := view.NewOrderEntry(client, bookFeed, hub)
	defer orders.Close()

	// ---- Session watcher ----
	watcher := session.NewWatcher(client, cfg.Session.PollCron)
	var polled atomic.Bool
	watcher.OnChange = func(open bool) {
		prom.SetMarketOpen(open)
		health.SetMarketOpen(open)
		if !polled.Swap(true) {
			return
		}
		if open {
			prom.SessionTransitions.WithLabelValues("open").Inc()
		} else {
			prom.SessionTransitions.WithLabelValues("close").Inc()
		}
		tctx := logger.NewTrace(ctx)
		slog.Info("market session changed", append([]any{"open", open}, logger.LogWithTrace(tctx)...)...)
		if open {
			if _, err := watchlist.Load(tctx, ""); err != nil {
				log.Printf("[dashboard] watchlist reload failed: %v", err)
			}
		} else {
			watchlist.SessionChanged(false)
		}
		if err := charts.SessionChanged(tctx, open); err != nil {
			log.Printf("[dashboard] chart reload failed: %v", err)
		}
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("session watcher: %w", err)
	}
	defer watcher.Stop()

	go hub.StartStatusBroadcast(ctx, 5*time.Second, func() any {
		now := time.Now()
		return map[string]any{
			"market_open": watcher.IsOpen(),
			"status":      markethours.StatusString(now),
			"clients":     hub.ClientCount(),
		}
	})

	// ---- HTTP ----
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub)
	h := &handlers{charts: charts, detail: detail, orders: orders, meta: meta}
	h.register(mux)
	mux.Handle("GET /healthz", health)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	srv := &http.Server{Handler: withTrace(mux)}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[dashboard] listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if ready != nil {
		ready(ln.Addr().String())
	}

	log.Println("[dashboard] running. Press Ctrl+C to stop.")
	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		serveErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	return serveErr
}

func streamConfig(cfg *config.Config, client *api.Client) stream.Config {
	return stream.Config{
		BaseURL: cfg.API.BaseURL,
		Tokens:  client.Tokens(),
		Buffer:  cfg.Stream.Buffer,
	}
}

// instrumentStream wires transport hooks to metrics. Transports of the same
// kind share active, so the kind reads as connected while any of them is.
func instrumentStream[T any](t *stream.Transport[T], prom *metrics.Metrics, active *atomic.Int32, connected func(bool)) {
	kind := t.Kind().String()
	t.OnMessage = prom.StreamMessages.WithLabelValues(kind).Inc
	t.OnMalformed = prom.StreamMalformed.WithLabelValues(kind).Inc
	t.OnConnError = prom.StreamErrors.WithLabelValues(kind).Inc
	t.OnActive = func(up bool) {
		delta := int32(-1)
		if up {
			delta = 1
		}
		n := active.Add(delta)
		prom.SetStreamActive(kind, n > 0)
		if connected != nil {
			connected(n > 0)
		}
	}
}

func newFetcher(src model.CandleSource, archive model.SeriesArchive, prom *metrics.Metrics) *fetcher.Fetcher {
	f := fetcher.New(src, archive)
	f.OnFetched = func(g model.Granularity, source model.Source, elapsed time.Duration) {
		prom.FetchDur.WithLabelValues(string(g), string(source)).Observe(elapsed.Seconds())
	}
	f.OnSuperseded = prom.FetchSuperseded.Inc
	return f
}
