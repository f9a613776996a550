package chart

import "math"

// Pane identifies one of the two chart panes.
type Pane int

const (
	PricePane Pane = iota
	VolumePane
)

// LogicalRange is a span of bar indexes; fractional ends are allowed.
type LogicalRange struct {
	From float64
	To   float64
}

// Bars returns the whole bar indexes in r clipped to [0, n).
func (r LogicalRange) Bars(n int) (first, last int, ok bool) {
	first = int(math.Max(0, math.Ceil(r.From)))
	last = int(math.Min(float64(n-1), math.Floor(r.To)))
	return first, last, n > 0 && first <= last
}

// Width is the number of bar slots the range spans.
func (r LogicalRange) Width() float64 {
	return r.To - r.From + 1
}

// TimeScale holds one pane's visible range and notifies subscribers when it
// is set.
type TimeScale struct {
	rng  LogicalRange
	subs []func(LogicalRange)
}

// VisibleLogicalRange returns the current range.
func (t *TimeScale) VisibleLogicalRange() LogicalRange {
	return t.rng
}

// SetVisibleLogicalRange updates the range and notifies subscribers.
func (t *TimeScale) SetVisibleLogicalRange(r LogicalRange) {
	t.rng = r
	for _, fn := range t.subs {
		fn(r)
	}
}

// Subscribe registers fn for range changes.
func (t *TimeScale) Subscribe(fn func(LogicalRange)) {
	t.subs = append(t.subs, fn)
}
