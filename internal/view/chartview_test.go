package view

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tradedash/internal/chart"
	"tradedash/internal/fetcher"
	"tradedash/internal/gateway"
	"tradedash/internal/model"
)

func minuteSeries(code, date string) model.Series {
	return model.Series{
		StockCode:   code,
		Date:        date,
		Granularity: model.Minute1,
		Candles: []model.Candle{
			{Date: date, Time: "09:59:00", Open: 71800, High: 72100, Low: 71700, Close: 72000, Volume: 900},
			{Date: date, Time: "10:00:00", Open: 72000, High: 72500, Low: 71900, Close: 72400, Volume: 1200},
		},
	}
}

func newTestChartView(t *testing.T, b *fakeBackend, clock *fakeClock) (*ChartView, *pushServer, *recorder) {
	t.Helper()
	ps, srv := newPushServer(t)
	f := fetcher.New(b, nil)
	f.Now = clock.Now
	rec := &recorder{}
	v, err := NewChartView(f, b, priceFeed(srv), rec, chart.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	v.Now = clock.Now
	t.Cleanup(v.Close)
	return v, ps, rec
}

func TestChartView_LiveTickPatchesLastBucket(t *testing.T) {
	clock := newClock(2025, 6, 10, 10, 0)
	b := newBackend(true)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	v, ps, rec := newTestChartView(t, b, clock)

	err := v.Select(context.Background(), Selection{Code: "005930", Granularity: model.Minute1, Ref: chart.RefPrices{Target: 75000}})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Streaming() {
		t.Fatal("expected live stream while market open")
	}
	if got := v.Selection().Date; got != "2025-06-10" {
		t.Fatalf("default date = %s", got)
	}

	ps.tick("005930", "100001", 72600)
	eventually(t, "patched close", func() bool {
		last, _ := v.Series().Last()
		return last.Close == 72600
	})

	last, _ := v.Series().Last()
	want := model.Candle{Date: "2025-06-10", Time: "10:00:00", Open: 72000, High: 72600, Low: 71900, Close: 72600, Volume: 1200}
	if last != want {
		t.Fatalf("last = %+v, want %+v", last, want)
	}
	if n := len(v.Series().Candles); n != 2 {
		t.Fatalf("candles = %d, want 2", n)
	}
	eventually(t, "quote published", func() bool { return rec.count(gateway.QuoteChannel("005930")) == 1 })
	if rec.count(gateway.CandleChannel("005930")) != 2 {
		t.Fatalf("candle publishes = %d, want snapshot + patch", rec.count(gateway.CandleChannel("005930")))
	}

	var buf bytes.Buffer
	if err := v.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Target") {
		t.Fatal("rendered chart lacks target line")
	}
}

func TestChartView_NoStreamWhenClosed(t *testing.T) {
	clock := newClock(2025, 6, 10, 10, 0)
	b := newBackend(false)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	v, ps, _ := newTestChartView(t, b, clock)

	if err := v.Select(context.Background(), Selection{Code: "005930"}); err != nil {
		t.Fatal(err)
	}
	if v.Streaming() || v.MarketOpen() {
		t.Fatal("should not stream while market closed")
	}
	if hits, _ := ps.connections(); hits != 0 {
		t.Fatalf("stream connections = %d, want 0", hits)
	}
	if len(v.Series().Candles) != 2 {
		t.Fatal("history should still be shown")
	}
}

func TestChartView_PastDateDoesNotStream(t *testing.T) {
	clock := newClock(2025, 6, 10, 10, 0)
	b := newBackend(true)
	b.series["005930"] = minuteSeries("005930", "2025-06-09")
	v, ps, _ := newTestChartView(t, b, clock)

	if err := v.Select(context.Background(), Selection{Code: "005930", Date: "2025-06-09"}); err != nil {
		t.Fatal(err)
	}
	if hits, _ := ps.connections(); hits != 0 || v.Streaming() {
		t.Fatalf("past date opened %d stream(s)", hits)
	}
}

func TestChartView_LateResponseIsDiscarded(t *testing.T) {
	clock := newClock(2025, 6, 10, 10, 0)
	b := newBackend(false)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	b.series["000660"] = minuteSeries("000660", "2025-06-10")
	gate := make(chan struct{})
	b.gates["005930"] = gate
	v, _, _ := newTestChartView(t, b, clock)

	first := make(chan error, 1)
	go func() { first <- v.Select(context.Background(), Selection{Code: "005930"}) }()
	if code := <-b.entered; code != "005930" {
		t.Fatalf("first fetch for %s", code)
	}

	if err := v.Select(context.Background(), Selection{Code: "000660"}); err != nil {
		t.Fatal(err)
	}
	close(gate)

	if err := <-first; !errors.Is(err, fetcher.ErrSuperseded) {
		t.Fatalf("first select err = %v, want ErrSuperseded", err)
	}
	if got := v.Series().StockCode; got != "000660" {
		t.Fatalf("chart shows %s, want 000660", got)
	}
}

func TestChartView_SelectDisconnectsPrevious(t *testing.T) {
	clock := newClock(2025, 6, 10, 10, 0)
	b := newBackend(true)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	b.series["000660"] = minuteSeries("000660", "2025-06-10")
	v, ps, _ := newTestChartView(t, b, clock)

	if err := v.Select(context.Background(), Selection{Code: "005930"}); err != nil {
		t.Fatal(err)
	}
	if err := v.Select(context.Background(), Selection{Code: "000660"}); err != nil {
		t.Fatal(err)
	}
	hits, queries := ps.connections()
	if hits != 2 || queries[1] != "000660" {
		t.Fatalf("connections = %d %v", hits, queries)
	}

	eventually(t, "old connection released", func() bool { return ps.open() == 1 })

	// A tick for the old code must not touch the new series.
	ps.tick("005930", "100002", 99999)
	ps.tick("000660", "100002", 72700)
	eventually(t, "new code patched", func() bool {
		last, _ := v.Series().Last()
		return last.Close == 72700
	})
	for _, c := range v.Series().Candles {
		if c.High == 99999 {
			t.Fatal("stale code tick leaked into new selection")
		}
	}
}

func TestChartView_StopsAfterClosingPricesSettle(t *testing.T) {
	clock := newClock(2025, 6, 10, 15, 31)
	b := newBackend(true)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	v, ps, _ := newTestChartView(t, b, clock)

	if err := v.Select(context.Background(), Selection{Code: "005930"}); err != nil {
		t.Fatal(err)
	}
	ps.tick("005930", "153100", 72300)
	eventually(t, "first post-close tick", func() bool {
		last, _ := v.Series().Last()
		return last.Close == 72300
	})

	clock.Advance(45 * time.Second)
	ps.tick("005930", "153145", 72300)
	eventually(t, "stream closed", func() bool { return !v.Streaming() })
}

func TestChartView_CloseDestroys(t *testing.T) {
	clock := newClock(2025, 6, 10, 10, 0)
	b := newBackend(true)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	v, _, _ := newTestChartView(t, b, clock)

	if err := v.Select(context.Background(), Selection{Code: "005930"}); err != nil {
		t.Fatal(err)
	}
	v.Close()
	v.Close()
	if v.Streaming() {
		t.Fatal("still streaming after Close")
	}
	if v.Chart().State() != chart.Destroyed {
		t.Fatal("chart not destroyed")
	}
	if err := v.Select(context.Background(), Selection{Code: "005930"}); !errors.Is(err, chart.ErrDestroyed) {
		t.Fatalf("select after close = %v", err)
	}
}

func TestChartView_SessionOpenReloads(t *testing.T) {
	clock := newClock(2025, 6, 10, 8, 50)
	b := newBackend(false)
	b.series["005930"] = minuteSeries("005930", "2025-06-10")
	v, ps, _ := newTestChartView(t, b, clock)

	if err := v.Select(context.Background(), Selection{Code: "005930"}); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	b.open = true
	b.mu.Unlock()
	if err := v.SessionChanged(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if hits, _ := ps.connections(); hits != 1 || !v.Streaming() {
		t.Fatalf("expected one stream after open, got %d", hits)
	}
}
