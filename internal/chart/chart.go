// Package chart holds the candlestick chart model and renders it as SVG.
//
// A Chart moves from Uninitialized to Ready on Mount and to Destroyed on
// Destroy. Data and live updates are only accepted while Ready. The price
// and volume panes each have a time scale; their visible logical ranges are
// linked both ways.
package chart

import (
	"errors"
	"fmt"
	"sync"

	"tradedash/internal/model"
)

var (
	// ErrNotReady is returned before Mount.
	ErrNotReady = errors.New("chart: not mounted")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("chart: destroyed")

	// ErrOutOfOrder is returned by UpdateLast for a bucket older than the
	// last one.
	ErrOutOfOrder = errors.New("chart: update older than last bucket")

	// ErrUnknownPane is returned for a pane other than PricePane or
	// VolumePane.
	ErrUnknownPane = errors.New("chart: unknown pane")
)

// State is the chart lifecycle state.
type State int

const (
	Uninitialized State = iota
	Ready
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// Colours follow the KRX convention: rising is red, falling is blue.
const (
	ColorUp       = "#ef4444"
	ColorDown     = "#3b82f6"
	ColorVolUp    = "#ef444480"
	ColorVolDown  = "#3b82f680"
	ColorTarget   = "#ef4444"
	ColorBuy      = "#22c55e"
	ColorStopLoss = "#3b82f6"
	colorAxis     = "#9ca3af"
	colorGrid     = "#e5e7eb"
)

// RefPrices are the optional reference lines. Zero or negative means unset.
type RefPrices struct {
	Target int64
	Stop   int64
	Buy    int64
}

// PriceLine is a horizontal reference line on the price pane.
type PriceLine struct {
	Label string
	Price int64
	Color string
}

// Options sizes the rendered chart in pixels.
type Options struct {
	Width  int
	Height int

	// PriceShare is the fraction of the plot height given to the price pane.
	PriceShare float64
}

// DefaultOptions is a 3:1 price/volume split.
func DefaultOptions() Options {
	return Options{Width: 800, Height: 480, PriceShare: 0.75}
}

// Chart is a two-pane candlestick chart. Safe for concurrent use.
type Chart struct {
	mu     sync.Mutex
	state  State
	opts   Options
	series model.Series
	lines  []PriceLine

	panes   [2]*TimeScale
	syncing bool
}

// New creates an unmounted chart.
func New(opts Options) *Chart {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.PriceShare <= 0 || opts.PriceShare >= 1 {
		opts.PriceShare = def.PriceShare
	}
	return &Chart{opts: opts}
}

// Mount creates both panes and links their time scales. Mounting a Ready
// chart is a no-op.
func (c *Chart) Mount() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Destroyed:
		return ErrDestroyed
	case Ready:
		return nil
	}

	c.panes[PricePane] = &TimeScale{}
	c.panes[VolumePane] = &TimeScale{}
	c.link(PricePane, VolumePane)
	c.link(VolumePane, PricePane)
	c.state = Ready
	return nil
}

// link mirrors range changes of src onto dst. The syncing flag stops the
// mirrored change from bouncing back.
func (c *Chart) link(src, dst Pane) {
	c.panes[src].Subscribe(func(r LogicalRange) {
		if c.syncing {
			return
		}
		c.syncing = true
		c.panes[dst].SetVisibleLogicalRange(r)
		c.syncing = false
	})
}

func (c *Chart) ready() error {
	switch c.state {
	case Uninitialized:
		return ErrNotReady
	case Destroyed:
		return ErrDestroyed
	}
	return nil
}

// State returns the lifecycle state.
func (c *Chart) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetData replaces the series wholesale, redraws the reference lines and
// fits the visible range to the data.
func (c *Chart) SetData(s model.Series, ref RefPrices) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}

	c.series = s.Clone()
	c.lines = c.lines[:0]
	for _, l := range []PriceLine{
		{Label: "Target", Price: ref.Target, Color: ColorTarget},
		{Label: "Buy", Price: ref.Buy, Color: ColorBuy},
		{Label: "Stop", Price: ref.Stop, Color: ColorStopLoss},
	} {
		if l.Price > 0 {
			c.lines = append(c.lines, l)
		}
	}
	c.fitContent()
	return nil
}

// UpdateLast patches the last bucket when c has its key, or appends c when
// it starts a newer bucket. A view that was showing the last bar keeps
// showing it.
func (c *Chart) UpdateLast(cd model.Candle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}

	n := len(c.series.Candles)
	if n > 0 {
		last := c.series.Candles[n-1]
		switch {
		case cd.Key() == last.Key():
			c.series.Candles[n-1] = cd
			return nil
		case cd.Key() < last.Key():
			return fmt.Errorf("%w: %s < %s", ErrOutOfOrder, cd.Key(), last.Key())
		}
	}

	c.series.Candles = append(c.series.Candles, cd)
	r := c.panes[PricePane].VisibleLogicalRange()
	if n == 0 || r.To >= float64(n-1) {
		c.panes[PricePane].SetVisibleLogicalRange(LogicalRange{From: r.From, To: float64(n)})
	}
	return nil
}

// Destroy releases the chart. Further calls fail with ErrDestroyed.
func (c *Chart) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Destroyed
	c.series = model.Series{}
	c.lines = nil
	c.panes = [2]*TimeScale{}
}

// Series returns a copy of the displayed series.
func (c *Chart) Series() model.Series {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.series.Clone()
}

// PriceLines returns the reference lines currently drawn.
func (c *Chart) PriceLines() []PriceLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PriceLine(nil), c.lines...)
}

// pane returns the time scale of p. Callers hold c.mu.
func (c *Chart) pane(p Pane) (*TimeScale, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if p < 0 || int(p) >= len(c.panes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPane, p)
	}
	return c.panes[p], nil
}

// SetVisibleRange scrolls or zooms one pane; the other follows.
func (c *Chart) SetVisibleRange(p Pane, r LogicalRange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, err := c.pane(p)
	if err != nil {
		return err
	}
	ts.SetVisibleLogicalRange(r)
	return nil
}

// VisibleRange returns the visible logical range of a pane.
func (c *Chart) VisibleRange(p Pane) (LogicalRange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, err := c.pane(p)
	if err != nil {
		return LogicalRange{}, err
	}
	return ts.VisibleLogicalRange(), nil
}

// SubscribeRange registers fn for range changes of pane p. fn runs with the
// chart locked and must not call back into it.
func (c *Chart) SubscribeRange(p Pane, fn func(LogicalRange)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, err := c.pane(p)
	if err != nil {
		return err
	}
	ts.Subscribe(fn)
	return nil
}

func (c *Chart) fitContent() {
	n := len(c.series.Candles)
	r := LogicalRange{From: 0, To: float64(n - 1)}
	if n == 0 {
		r = LogicalRange{}
	}
	c.panes[PricePane].SetVisibleLogicalRange(r)
}
