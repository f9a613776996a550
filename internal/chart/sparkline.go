package chart

import (
	"errors"
	"io"

	svg "github.com/ajstarks/svgo"
)

// ErrTooFewPoints is returned by Sparkline for fewer than two prices.
var ErrTooFewPoints = errors.New("chart: sparkline needs at least two points")

// SparklineData is the input of the detail-panel line chart.
type SparklineData struct {
	Prices    []int64
	Open      int64
	FirstTime string // HHMMSS of the first price, optional
	LastTime  string
}

// Sparkline draws a price line with a dashed reference at the open price.
// The line is red when the last price is at or above the open.
func Sparkline(w io.Writer, width, height int, d SparklineData) error {
	if len(d.Prices) < 2 {
		return ErrTooFewPoints
	}
	const top, right, bottom, left = 10, 10, 20, 10
	cw, ch := width-left-right, height-top-bottom

	lo, hi := d.Prices[0], d.Prices[0]
	for _, p := range d.Prices[1:] {
		lo, hi = min(lo, p), max(hi, p)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	y := func(p int64) int {
		return top + int(float64(ch)*(1-float64(p-lo)/float64(span)))
	}

	color := ColorDown
	if d.Prices[len(d.Prices)-1] >= d.Open {
		color = ColorUp
	}

	xs := make([]int, len(d.Prices))
	ys := make([]int, len(d.Prices))
	for i, p := range d.Prices {
		xs[i] = left + i*cw/(len(d.Prices)-1)
		ys[i] = y(p)
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(width, height)

	openY := y(d.Open)
	canvas.Line(left, openY, width-right, openY, "stroke-width:1;stroke-dasharray:4,4;stroke:"+colorAxis)

	fillX := append(append([]int(nil), xs...), width-right, left)
	fillY := append(append([]int(nil), ys...), height-bottom, height-bottom)
	canvas.Polygon(fillX, fillY, "stroke:none;fill-opacity:0.15;fill:"+color)
	canvas.Polyline(xs, ys, "fill:none;stroke-width:2;stroke:"+color)

	if d.FirstTime != "" && d.LastTime != "" {
		style := "text-anchor:middle;font-size:10px;font-family:sans-serif;fill:" + colorAxis
		canvas.Text(left+20, height-5, clock(d.FirstTime), style)
		canvas.Text(width-right-20, height-5, clock(d.LastTime), style)
	}

	canvas.End()
	return ew.err
}

// clock turns HHMMSS into HH:MM.
func clock(t string) string {
	if len(t) < 4 {
		return t
	}
	return t[:2] + ":" + t[2:4]
}
