package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"tradedash/internal/candle"
	"tradedash/internal/chart"
	"tradedash/internal/closedetector"
	"tradedash/internal/fetcher"
	"tradedash/internal/gateway"
	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

// Selection is what a ChartView shows.
type Selection struct {
	Code        string
	Date        string // YYYY-MM-DD, exchange-local; empty means today
	Granularity model.Granularity
	Ref         chart.RefPrices
}

// ChartView drives one candlestick chart: it loads history, streams live
// ticks into the last bucket while the market is open and tears the stream
// down once closing prices settle. The view owns feed; nothing else may
// connect through it.
type ChartView struct {
	fetcher *fetcher.Fetcher
	status  model.MarketStatusSource
	feed    PriceFeed
	pub     Publisher
	chart   *chart.Chart

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	sel    Selection
	live   *candle.Live
	open   bool
	loop   *liveLoop
	closed bool

	// Metrics hooks (optional, set externally)
	OnPatched func()
	OnTick    func(t model.Tick)
}

// NewChartView creates a view with a mounted chart. pub may be nil.
func NewChartView(f *fetcher.Fetcher, status model.MarketStatusSource, feed PriceFeed, pub Publisher, opts chart.Options) (*ChartView, error) {
	c := chart.New(opts)
	if err := c.Mount(); err != nil {
		return nil, err
	}
	return &ChartView{
		fetcher: f,
		status:  status,
		feed:    feed,
		pub:     publisherOr(pub),
		chart:   c,
		Now:     time.Now,
	}, nil
}

// Select switches the view to sel. The previous live stream is
// disconnected before anything else happens. History and market status are
// loaded in parallel; a result that arrives after a newer Select returns
// fetcher.ErrSuperseded and is not applied. A live subscription is opened
// only when the market is open and sel is today.
func (v *ChartView) Select(ctx context.Context, sel Selection) error {
	if sel.Date == "" {
		sel.Date = markethours.Today(v.Now())
	}
	if sel.Granularity == "" {
		sel.Granularity = model.Minute1
	}

	v.stopLive()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return chart.ErrDestroyed
	}
	v.sel = sel
	v.mu.Unlock()

	ticket := v.fetcher.Begin()

	var (
		wg     sync.WaitGroup
		series model.Series
		err    error
		open   bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		series, err = v.fetcher.FetchFor(ctx, ticket, sel.Code, sel.Date, sel.Granularity)
	}()
	go func() {
		defer wg.Done()
		open = marketOpen(ctx, v.status, v.Now())
	}()
	wg.Wait()
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return chart.ErrDestroyed
	}
	if !v.fetcher.Current(ticket) {
		return fetcher.ErrSuperseded
	}

	if err := v.chart.SetData(series, sel.Ref); err != nil {
		return err
	}
	v.live = candle.NewLive(series)
	v.live.OnPatched = v.OnPatched
	v.open = open
	v.pub.Publish(gateway.CandleChannel(sel.Code), series)

	if open && markethours.IsToday(sel.Date, v.Now()) {
		v.startLiveLocked(ticket, sel.Code)
	}
	return nil
}

// startLiveLocked connects the feed and starts the consumer loop. A
// connection failure is logged and leaves the view static.
func (v *ChartView) startLiveLocked(ticket fetcher.Ticket, code string) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := v.feed.Connect(ctx, []string{code})
	if err != nil {
		cancel()
		log.Printf("[view] chart %s: live subscription failed: %v", code, err)
		return
	}

	det := closedetector.ForSession(v.Now())
	loop := &liveLoop{cancel: cancel, done: make(chan struct{})}
	v.loop = loop

	go func() {
		defer close(loop.done)
		stopped := drain(ctx, sub,
			func(t model.Tick) bool { return v.onTick(ticket, det, t) },
			func() bool { return !det.Expired(v.Now()) },
		)
		if stopped {
			log.Printf("[view] chart %s: session over, closing live stream", code)
			sub.Stop()
		}
	}()
}

func (v *ChartView) onTick(ticket fetcher.Ticket, det *closedetector.Detector, t model.Tick) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.fetcher.Current(ticket) {
		return false
	}
	if t.StockCode != v.sel.Code {
		return true
	}

	if v.OnTick != nil {
		v.OnTick(t)
	}
	if cd, ok := v.live.Apply(t); ok {
		if err := v.chart.UpdateLast(cd); err != nil {
			log.Printf("[view] chart %s: %v", t.StockCode, err)
		} else {
			v.pub.Publish(gateway.CandleChannel(t.StockCode), cd)
		}
	}
	v.pub.Publish(gateway.QuoteChannel(t.StockCode), t)

	return !det.Observe(t.StockCode, t.Price, v.Now())
}

// stopLive disconnects the feed and waits for the consumer loop to exit.
func (v *ChartView) stopLive() {
	v.mu.Lock()
	loop := v.loop
	v.loop = nil
	v.mu.Unlock()

	v.feed.Disconnect()
	loop.stop()
}

// Streaming reports whether a live consumer loop is running.
func (v *ChartView) Streaming() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loop.running()
}

// Selection returns the current selection.
func (v *ChartView) Selection() Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sel
}

// MarketOpen reports the market status seen by the last Select.
func (v *ChartView) MarketOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// Chart returns the underlying chart.
func (v *ChartView) Chart() *chart.Chart { return v.chart }

// Series returns the displayed series.
func (v *ChartView) Series() model.Series { return v.chart.Series() }

// Render writes the chart as SVG.
func (v *ChartView) Render(w io.Writer) error { return v.chart.Render(w) }

// SessionChanged reacts to a market open/close transition: on open the
// current selection is reloaded so a stream starts, on close the stream is
// left to the close detector.
func (v *ChartView) SessionChanged(ctx context.Context, open bool) error {
	v.mu.Lock()
	sel, wasOpen, closed := v.sel, v.open, v.closed
	if !open {
		v.open = false
	}
	v.mu.Unlock()
	if closed || sel.Code == "" || !open || wasOpen {
		return nil
	}
	err := v.Select(ctx, sel)
	if errors.Is(err, fetcher.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reload %s on open: %w", sel.Code, err)
	}
	return nil
}

// Close disconnects the stream, discards in-flight loads and destroys the
// chart. Idempotent.
func (v *ChartView) Close() {
	v.stopLive()
	v.fetcher.Begin()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.chart.Destroy()
}
