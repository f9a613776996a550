// cmd/ticksim is a demo trading backend.
// Serves the REST and SSE surface the dashboard consumes, with simulated KRX
// prices, so the dashboard can run without the real backend.
//
// Prices are whole KRW and move along the KRX tick-size grid.
//
// Config (env vars):
//
//	TICKSIM_ADDR  listen address (default: ":8000")
//	TICKSIM_CODES  comma-separated CODE:PRICE pairs (default: "005930:71000,000660:182000,035420:201500")
//	TICKSIM_INTERVAL_MS  tick interval milliseconds (default: "500")
//	TICKSIM_NICKNAME  login nickname (default: "demo")
//	TICKSIM_PASSWORD  login password (default: "demo")
//	TICKSIM_TOTP_SECRET  when set, logins must carry a valid otp_code
//	TICKSIM_ALWAYS_OPEN  "false" follows KRX session hours (default: "true")
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tradedash/internal/model"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ticksim] starting demo backend...")

	addr := envOrDefault("TICKSIM_ADDR", ":8000")
	intervalMs := envIntOrDefault("TICKSIM_INTERVAL_MS", 500)
	metas, prices := parseInstruments(envOrDefault("TICKSIM_CODES", "005930:71000,000660:182000,035420:201500"))
	if len(metas) == 0 {
		log.Fatalf("[ticksim] no instruments configured via TICKSIM_CODES")
	}
	log.Printf("[ticksim] instruments: %d, interval: %dms", len(metas), intervalMs)

	srv := newServer(
		newMarket(time.Now().UnixNano(), metas, prices),
		credentials{
			nickname:   envOrDefault("TICKSIM_NICKNAME", "demo"),
			password:   envOrDefault("TICKSIM_PASSWORD", "demo"),
			totpSecret: os.Getenv("TICKSIM_TOTP_SECRET"),
		},
		!strings.EqualFold(os.Getenv("TICKSIM_ALWAYS_OPEN"), "false"),
	)

	stop := make(chan struct{})
	go srv.run(time.Duration(intervalMs)*time.Millisecond, stop)

	httpSrv := &http.Server{Addr: addr, Handler: srv.routes()}
	go func() {
		log.Printf("[ticksim] listening on %s  (API: http://localhost%s/api/v1)", addr, addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[ticksim] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[ticksim] shutting down...")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(ctx)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) ([]model.Metadata, map[string]int64) {
	names := map[string]string{
		"005930": "삼성전자",
		"000660": "SK하이닉스",
		"035420": "NAVER",
	}

	var metas []model.Metadata
	prices := make(map[string]int64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[ticksim] skipping invalid instrument entry: %q", part)
			continue
		}
		code := strings.TrimSpace(seg[0])
		price, err := strconv.ParseInt(strings.TrimSpace(seg[1]), 10, 64)
		if code == "" || err != nil || price <= 0 {
			log.Printf("[ticksim] skipping invalid instrument entry: %q", part)
			continue
		}
		name := names[code]
		if name == "" {
			name = "SIM" + code
		}
		metas = append(metas, model.Metadata{
			StockCode:    code,
			StockName:    name,
			Market:       "KOSPI",
			ListedShares: 100_000_000,
			MarketCap:    price * 100_000_000,
		})
		prices[code] = price
	}
	return metas, prices
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
