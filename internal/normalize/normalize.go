// Package normalize converts backend wire payloads, whose numeric fields are
// sent as text, into typed model values. Every function is pure.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

// ErrMissingField is returned when a required identifying field is absent.
var ErrMissingField = errors.New("missing required field")

// FieldError reports which wire field failed to parse.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("normalize: field %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// DecodeTick parses a price_update event body.
func DecodeTick(data []byte) (model.Tick, error) {
	var w model.WireTick
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Tick{}, fmt.Errorf("normalize: decode tick: %w", err)
	}
	return Tick(w)
}

// Tick converts a wire tick into a typed tick. Change and rate are negated
// when the sign code marks a fall and the feed sent them unsigned.
func Tick(w model.WireTick) (model.Tick, error) {
	if strings.TrimSpace(w.StockCode) == "" {
		return model.Tick{}, &FieldError{Field: "stock_code", Err: ErrMissingField}
	}
	if w.CurrentPrice == "" {
		return model.Tick{}, &FieldError{Field: "current_price", Err: ErrMissingField}
	}

	p := parser{}
	t := model.Tick{
		StockCode:     w.StockCode,
		TradeTime:     w.TradeTime,
		Price:         p.int64("current_price", w.CurrentPrice),
		Change:        p.int64("price_change", w.PriceChange),
		ChangeRate:    p.float64("price_change_rate", w.PriceChangeRate),
		Sign:          model.ChangeSign(w.PriceChangeSign),
		AccVolume:     p.int64("accumulated_volume", w.AccumulatedVolume),
		VolumeRatio:   p.float64("volume_ratio", w.VolumeRatio),
		TradeStrength: p.float64("trade_strength", w.TradeStrength),
		Open:          p.int64("open_price", w.OpenPrice),
		High:          p.int64("high_price", w.HighPrice),
		Low:           p.int64("low_price", w.LowPrice),
	}
	if p.err != nil {
		return model.Tick{}, p.err
	}

	if t.Sign.Down() {
		if t.Change > 0 {
			t.Change = -t.Change
		}
		if t.ChangeRate > 0 {
			t.ChangeRate = -t.ChangeRate
		}
	}

	if w.Timestamp != "" {
		ts, err := parseTimestamp(w.Timestamp)
		if err != nil {
			return model.Tick{}, &FieldError{Field: "timestamp", Value: w.Timestamp, Err: err}
		}
		t.TS = ts
	}
	return t, nil
}

// DecodeOrderBook parses an asking_price_update event body.
func DecodeOrderBook(data []byte) (model.OrderBook, error) {
	var raw map[string]model.Numeric
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.OrderBook{}, fmt.Errorf("normalize: decode order book: %w", err)
	}
	return OrderBook(raw)
}

// OrderBook converts the flat askpN/bidpN wire map into ten levels per side.
func OrderBook(raw map[string]model.Numeric) (model.OrderBook, error) {
	code := string(raw["stock_code"])
	if strings.TrimSpace(code) == "" {
		return model.OrderBook{}, &FieldError{Field: "stock_code", Err: ErrMissingField}
	}

	p := parser{}
	ob := model.OrderBook{StockCode: code}
	for i := 0; i < model.Depth; i++ {
		n := strconv.Itoa(i + 1)
		ob.Asks[i] = model.Level{
			Price:  p.int64("askp"+n, raw["askp"+n]),
			Volume: p.int64("askp_rsqn"+n, raw["askp_rsqn"+n]),
		}
		ob.Bids[i] = model.Level{
			Price:  p.int64("bidp"+n, raw["bidp"+n]),
			Volume: p.int64("bidp_rsqn"+n, raw["bidp_rsqn"+n]),
		}
	}
	ob.TotalAskVolume = p.int64("total_askp_rsqn", raw["total_askp_rsqn"])
	ob.TotalBidVolume = p.int64("total_bidp_rsqn", raw["total_bidp_rsqn"])
	if p.err != nil {
		return model.OrderBook{}, p.err
	}
	return ob, nil
}

// parser keeps the first conversion error so field lists stay flat.
type parser struct {
	err error
}

func (p *parser) int64(field string, v model.Numeric) int64 {
	if p.err != nil {
		return 0
	}
	n, err := v.Int64()
	if err != nil {
		p.err = &FieldError{Field: field, Value: string(v), Err: err}
	}
	return n
}

func (p *parser) float64(field string, v model.Numeric) float64 {
	if p.err != nil {
		return 0
	}
	f, err := v.Float64()
	if err != nil {
		p.err = &FieldError{Field: field, Value: string(v), Err: err}
	}
	return f
}

// parseTimestamp accepts RFC 3339 or a zone-less local timestamp, which is
// taken as KST.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999"} {
		if ts, err := time.ParseInLocation(layout, s, markethours.KST); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp layout")
}
