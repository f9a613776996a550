package chart

import (
	"fmt"
	"math"
	"strconv"

	"tradedash/internal/model"
)

// Plot geometry in pixels. The right gutter holds the price axis.
const (
	padLeft     = 10
	padRight    = 70
	padTop      = 10
	padBottom   = 20
	paneGap     = 6
	priceMargin = 0.05
)

type layout struct {
	plotX, plotW   int
	priceY, priceH int
	volY, volH     int
}

func (c *Chart) layout() layout {
	usable := c.opts.Height - padTop - padBottom - paneGap
	priceH := int(float64(usable) * c.opts.PriceShare)
	return layout{
		plotX:  padLeft,
		plotW:  c.opts.Width - padLeft - padRight,
		priceY: padTop,
		priceH: priceH,
		volY:   padTop + priceH + paneGap,
		volH:   usable - priceH,
	}
}

// YScale returns the price range of the whole series: the lowest low and the
// highest high.
func (c *Chart) YScale() (lo, hi int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return yScale(c.series.Candles)
}

func yScale(cs []model.Candle) (lo, hi int64, ok bool) {
	if len(cs) == 0 {
		return 0, 0, false
	}
	lo, hi = cs[0].Low, cs[0].High
	for _, cd := range cs[1:] {
		if cd.Low < lo {
			lo = cd.Low
		}
		if cd.High > hi {
			hi = cd.High
		}
	}
	return lo, hi, true
}

// priceY maps a price into a pane of height h starting at y0, leaving a
// margin above and below the range.
func priceY(p, lo, hi int64, y0, h int) int {
	span := float64(hi - lo)
	if span <= 0 {
		span = 1
	}
	inner := float64(h) * (1 - 2*priceMargin)
	return y0 + int(math.Round(float64(h)*priceMargin+inner*float64(hi-p)/span))
}

func slotWidth(l layout, r LogicalRange) float64 {
	w := r.Width()
	if w <= 0 {
		w = 1
	}
	return float64(l.plotW) / w
}

func barX(i int, l layout, r LogicalRange) int {
	return l.plotX + int(math.Round((float64(i)-r.From+0.5)*slotWidth(l, r)))
}

// Tooltip is the crosshair readout for one bucket.
type Tooltip struct {
	Time   string // HH:mm
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

func tooltipOf(cd model.Candle) Tooltip {
	t := cd.Time
	if len(t) >= 5 {
		t = t[:5]
	}
	return Tooltip{Time: t, Open: cd.Open, High: cd.High, Low: cd.Low, Close: cd.Close, Volume: cd.Volume}
}

func (t Tooltip) String() string {
	return fmt.Sprintf("%s O %s H %s L %s C %s V %s", t.Time,
		FormatPrice(t.Open), FormatPrice(t.High), FormatPrice(t.Low), FormatPrice(t.Close), FormatPrice(t.Volume))
}

// PointAt returns the bucket under horizontal pixel x.
func (c *Chart) PointAt(x int) (Tooltip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready() != nil {
		return Tooltip{}, false
	}
	l := c.layout()
	if x < l.plotX || x >= l.plotX+l.plotW {
		return Tooltip{}, false
	}
	r := c.panes[PricePane].VisibleLogicalRange()
	i := int(math.Floor(r.From + float64(x-l.plotX)/slotWidth(l, r)))
	first, last, ok := r.Bars(len(c.series.Candles))
	if !ok || i < first || i > last {
		return Tooltip{}, false
	}
	return tooltipOf(c.series.Candles[i]), true
}

// FormatPrice renders whole units with thousands separators: 71500 -> "71,500".
func FormatPrice(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := v < 0
	if neg {
		s = s[1:]
	}
	n := len(s)
	if n <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	out := make([]byte, 0, n+n/3+1)
	if neg {
		out = append(out, '-')
	}
	head := n % 3
	if head > 0 {
		out = append(out, s[:head]...)
	}
	for i := head; i < n; i += 3 {
		if len(out) > 0 && out[len(out)-1] != '-' {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
