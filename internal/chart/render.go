package chart

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"
)

// errWriter remembers the first write error; svgo does not report them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

const axisTicks = 4

// Render writes the chart as an SVG document. The y scale is recomputed
// from the full series on every call.
func (c *Chart) Render(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ready(); err != nil {
		return err
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(c.opts.Width, c.opts.Height)
	canvas.Rect(0, 0, c.opts.Width, c.opts.Height, "fill:#ffffff")

	l := c.layout()
	cs := c.series.Candles
	lo, hi, ok := yScale(cs)
	if !ok {
		canvas.Text(c.opts.Width/2, c.opts.Height/2, "no data",
			"text-anchor:middle;font-size:12px;font-family:sans-serif;fill:"+colorAxis)
		canvas.End()
		return ew.err
	}

	c.drawPriceAxis(canvas, l, lo, hi)

	r := c.panes[PricePane].VisibleLogicalRange()
	vr := c.panes[VolumePane].VisibleLogicalRange()
	if first, last, ok := r.Bars(len(cs)); ok {
		body := int(slotWidth(l, r) * 0.7)
		if body < 1 {
			body = 1
		}
		for i := first; i <= last; i++ {
			cd := cs[i]
			x := barX(i, l, r)
			color := ColorDown
			if cd.Up() {
				color = ColorUp
			}
			canvas.Line(x, priceY(cd.High, lo, hi, l.priceY, l.priceH), x, priceY(cd.Low, lo, hi, l.priceY, l.priceH),
				"stroke-width:1;stroke:"+color)
			top := priceY(max(cd.Open, cd.Close), lo, hi, l.priceY, l.priceH)
			bot := priceY(min(cd.Open, cd.Close), lo, hi, l.priceY, l.priceH)
			canvas.Rect(x-body/2, top, body, max(bot-top, 1), "fill:"+color)
		}
		canvas.Text(l.plotX, c.opts.Height-5, tooltipOf(cs[first]).Time,
			"font-size:10px;font-family:sans-serif;fill:"+colorAxis)
		canvas.Text(l.plotX+l.plotW, c.opts.Height-5, tooltipOf(cs[last]).Time,
			"text-anchor:end;font-size:10px;font-family:sans-serif;fill:"+colorAxis)
	}
	c.drawVolume(canvas, l, vr)

	for _, pl := range c.lines {
		y := priceY(pl.Price, lo, hi, l.priceY, l.priceH)
		canvas.Line(l.plotX, y, l.plotX+l.plotW, y, "stroke-width:1;stroke-dasharray:4,4;stroke:"+pl.Color)
		canvas.Text(l.plotX+l.plotW+4, y+4, fmt.Sprintf("%s %s", pl.Label, FormatPrice(pl.Price)),
			"font-size:10px;font-family:sans-serif;fill:"+pl.Color)
	}

	canvas.End()
	return ew.err
}

func (c *Chart) drawPriceAxis(canvas *svg.SVG, l layout, lo, hi int64) {
	for i := 0; i <= axisTicks; i++ {
		p := lo + (hi-lo)*int64(i)/axisTicks
		y := priceY(p, lo, hi, l.priceY, l.priceH)
		canvas.Line(l.plotX, y, l.plotX+l.plotW, y, "stroke-width:1;stroke-opacity:0.2;stroke:"+colorGrid)
		canvas.Text(l.plotX+l.plotW+4, y+4, FormatPrice(p), "font-size:10px;font-family:sans-serif;fill:"+colorAxis)
	}
}

func (c *Chart) drawVolume(canvas *svg.SVG, l layout, r LogicalRange) {
	cs := c.series.Candles
	first, last, ok := r.Bars(len(cs))
	if !ok {
		return
	}
	var peak int64
	for _, cd := range cs[first : last+1] {
		peak = max(peak, cd.Volume)
	}
	if peak <= 0 {
		return
	}
	body := max(int(slotWidth(l, r)*0.7), 1)
	// 10% headroom, bars grow from the pane bottom
	usable := float64(l.volH) * 0.9
	for i := first; i <= last; i++ {
		cd := cs[i]
		h := int(usable * float64(cd.Volume) / float64(peak))
		color := ColorVolDown
		if cd.Up() {
			color = ColorVolUp
		}
		canvas.Rect(barX(i, l, r)-body/2, l.volY+l.volH-h, body, h, "fill:"+color)
	}
}
