package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthReport(t *testing.T) {
	h := NewHealthStatus()
	now := h.StartedAt.Add(time.Minute)

	if got := h.Report(now).Status; got != "healthy" {
		t.Fatalf("fresh status = %s, want healthy", got)
	}

	h.SetMarketOpen(true)
	if got := h.Report(now).Status; got != "degraded" {
		t.Fatalf("open market without stream = %s, want degraded", got)
	}
	h.SetStreamConnected(true)
	h.SetLastTickTime(now.Add(-2 * time.Second))
	rep := h.Report(now)
	if rep.Status != "healthy" || rep.TickAge != "2s" {
		t.Fatalf("report = %+v", rep)
	}

	h.SetRedisConfigured(true)
	h.CheckRedis(context.Background(), fakePinger{err: errors.New("down")})
	if got := h.Report(now).Status; got != "degraded" {
		t.Fatalf("redis down = %s, want degraded", got)
	}

	h.CheckSQLite(context.Background(), fakePinger{err: errors.New("locked")})
	if got := h.Report(now).Status; got != "unhealthy" {
		t.Fatalf("sqlite down = %s, want unhealthy", got)
	}
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveRefresh(true)
	m.SetMarketOpen(true)
	m.StreamMessages.WithLabelValues("price").Add(3)

	h := NewHealthStatus()
	srv := httptest.NewServer(NewServer(":0", h, reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	body := string(raw)
	for _, want := range []string{
		`dashboard_token_refreshes_total{result="ok"} 1`,
		`dashboard_stream_messages_total{kind="price"} 3`,
		`dashboard_market_state 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rep Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || rep.Status != "healthy" {
		t.Fatalf("healthz = %d %+v", resp.StatusCode, rep)
	}
}
