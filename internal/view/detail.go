package view

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"tradedash/internal/candle"
	"tradedash/internal/chart"
	"tradedash/internal/gateway"
	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

// DetailState is what the detail panel can show.
type DetailState string

const (
	StateCollecting DetailState = "collecting" // no candles yet, still waiting for ticks
	StateReady      DetailState = "ready"
	StateNoSession  DetailState = "no-session" // not a trading day and nothing to show
)

// Quote is the headline block of the detail panel.
type Quote struct {
	Code          string  `json:"code"`
	Price         int64   `json:"price"`
	Change        int64   `json:"change"` // absolute
	ChangeRate    float64 `json:"change_rate"`
	Symbol        string  `json:"symbol"`
	Up            bool    `json:"up"`
	Open          int64   `json:"open"`
	High          int64   `json:"high"`
	Low           int64   `json:"low"`
	OpenRate      float64 `json:"open_rate"`
	HighRate      float64 `json:"high_rate"`
	LowRate       float64 `json:"low_rate"`
	Volume        int64   `json:"volume"`
	VolumeText    string  `json:"volume_text"`
	VolumeRatio   float64 `json:"volume_ratio"`
	TradeStrength float64 `json:"trade_strength"`
}

// rateFrom is the change of price relative to base in percent.
func rateFrom(price, base int64) float64 {
	if base == 0 {
		return 0
	}
	return float64(price-base) / float64(base) * 100
}

func (q *Quote) fillRates() {
	q.OpenRate = rateFrom(q.Price, q.Open)
	q.HighRate = rateFrom(q.Price, q.High)
	q.LowRate = rateFrom(q.Price, q.Low)
	q.VolumeText = FormatVolume(q.Volume)
}

// QuoteFromTick derives the quote from a live tick.
func QuoteFromTick(t model.Tick) Quote {
	q := Quote{
		Code:          t.StockCode,
		Price:         t.Price,
		Change:        abs64(t.Change),
		ChangeRate:    t.ChangeRate,
		Symbol:        t.Sign.Symbol(t.Change),
		Up:            t.Change >= 0,
		Open:          t.Open,
		High:          t.High,
		Low:           t.Low,
		Volume:        t.AccVolume,
		VolumeRatio:   t.VolumeRatio,
		TradeStrength: t.TradeStrength,
	}
	q.fillRates()
	return q
}

// QuoteFromPrediction derives a quote before any tick arrived, measuring
// change against the predicted session open.
func QuoteFromPrediction(p model.Prediction) Quote {
	price := p.StockOpen
	if p.CurrentPrice != nil {
		price = *p.CurrentPrice
	}
	change := price - p.StockOpen
	q := Quote{
		Code:       p.StockCode,
		Price:      price,
		Change:     abs64(change),
		ChangeRate: rateFrom(price, p.StockOpen),
		Symbol:     model.ChangeSign("").Symbol(change),
		Up:         change >= 0,
		Open:       p.StockOpen,
		High:       p.StockOpen,
		Low:        p.StockOpen,
	}
	if p.ActualHigh != nil {
		q.High = *p.ActualHigh
	}
	if p.ActualLow != nil {
		q.Low = *p.ActualLow
	}
	q.fillRates()
	return q
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// FormatVolume renders a share count in Korean units: "1.23억" from 10^8,
// "12만" from 10^4, otherwise the plain number with separators.
func FormatVolume(v int64) string {
	switch {
	case v >= 100_000_000:
		return fmt.Sprintf("%.2f억", float64(v)/1e8)
	case v >= 10_000:
		return fmt.Sprintf("%.0f만", math.Round(float64(v)/1e4))
	}
	return chart.FormatPrice(v)
}

// TickHistory supplies the live ticks collected for an instrument.
type TickHistory interface {
	History(code string) []model.Tick
	Latest(code string) (model.Tick, bool)
	Prediction(code string) (model.Prediction, bool)
}

// Detail is one rendering of the detail panel.
type Detail struct {
	Code  string       `json:"code"`
	Name  string       `json:"name,omitempty"`
	State DetailState  `json:"state"`
	Hours model.Series `json:"hours"`
	Quote Quote        `json:"quote"`
	Ticks int          `json:"ticks"`
}

// HourSource loads today's hour candles.
type HourSource interface {
	HourCandlesToday(ctx context.Context, code string) (model.Series, error)
}

// DetailPanel combines today's hour candles with the watchlist's tick
// history into hour buckets and a quote.
type DetailPanel struct {
	hours   HourSource
	ticks   TickHistory
	pub     Publisher
	policy  candle.HourBucket
	session func(time.Time) bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewDetailPanel creates a panel. pub may be nil.
func NewDetailPanel(hours HourSource, ticks TickHistory, pub Publisher) *DetailPanel {
	return &DetailPanel{
		hours:   hours,
		ticks:   ticks,
		pub:     publisherOr(pub),
		policy:  candle.NewHourBucket(),
		session: markethours.IsTradingDay,
		Now:     time.Now,
	}
}

// Load builds the panel for code and publishes it on the detail channel.
func (d *DetailPanel) Load(ctx context.Context, code string) (Detail, error) {
	hist, err := d.hours.HourCandlesToday(ctx, code)
	if err != nil {
		return Detail{}, fmt.Errorf("detail %s: %w", code, err)
	}
	det := d.Build(code, hist, d.ticks.History(code))
	d.pub.Publish(gateway.DetailChannel(code), det)
	return det, nil
}

// Build folds ticks over hist and picks the panel state.
func (d *DetailPanel) Build(code string, hist model.Series, ticks []model.Tick) Detail {
	now := d.Now()
	if hist.StockCode == "" {
		hist.StockCode = code
	}
	if hist.Date == "" {
		hist.Date = markethours.Today(now)
	}

	det := Detail{
		Code:  code,
		Hours: d.policy.Fold(hist, ticks),
		Ticks: len(ticks),
	}
	switch {
	case !det.Hours.Empty():
		det.State = StateReady
	case !d.session(now):
		det.State = StateNoSession
	default:
		det.State = StateCollecting
	}

	if t, ok := d.ticks.Latest(code); ok {
		det.Quote = QuoteFromTick(t)
	} else if p, ok := d.ticks.Prediction(code); ok {
		det.Quote = QuoteFromPrediction(p)
	} else {
		det.Quote = Quote{Code: code}
	}
	if p, ok := d.ticks.Prediction(code); ok {
		det.Name = p.StockName
	}
	return det
}

// Sparkline draws the tick-price line chart for code. It fails with
// chart.ErrTooFewPoints until two ticks were collected.
func (d *DetailPanel) Sparkline(w io.Writer, code string, width, height int) error {
	ticks := d.ticks.History(code)
	if len(ticks) < 2 {
		return chart.ErrTooFewPoints
	}
	data := chart.SparklineData{
		Prices:    make([]int64, len(ticks)),
		FirstTime: ticks[0].TradeTime,
		LastTime:  ticks[len(ticks)-1].TradeTime,
	}
	for i, t := range ticks {
		data.Prices[i] = t.Price
	}
	last := ticks[len(ticks)-1]
	data.Open = last.Open
	if data.Open == 0 {
		data.Open = ticks[0].Price
	}
	return chart.Sparkline(w, width, height, data)
}
