package model

import (
	"time"

	"tradedash/internal/markethours"
)

// ChangeSign is the exchange's change-direction code versus the previous close.
type ChangeSign string

const (
	SignLimitUp   ChangeSign = "1"
	SignUp        ChangeSign = "2"
	SignFlat      ChangeSign = "3"
	SignLimitDown ChangeSign = "4"
	SignDown      ChangeSign = "5"
)

// Down reports whether the sign marks a fall (limit-down or down).
func (s ChangeSign) Down() bool {
	return s == SignLimitDown || s == SignDown
}

// Symbol returns the arrow shown next to a change value. Unknown codes fall
// back to the direction of change.
func (s ChangeSign) Symbol(change int64) string {
	switch s {
	case SignLimitUp, SignUp:
		return "▲"
	case SignFlat:
		return ""
	case SignLimitDown, SignDown:
		return "▼"
	}
	if change >= 0 {
		return "▲"
	}
	return "▼"
}

// WireTick is a price_update payload as pushed by the backend. Numeric fields
// arrive as text.
type WireTick struct {
	StockCode         string  `json:"stock_code"`
	TradeTime         string  `json:"trade_time"`
	CurrentPrice      Numeric `json:"current_price"`
	PriceChange       Numeric `json:"price_change"`
	PriceChangeRate   Numeric `json:"price_change_rate"`
	PriceChangeSign   Numeric `json:"price_change_sign"`
	AccumulatedVolume Numeric `json:"accumulated_volume"`
	VolumeRatio       Numeric `json:"volume_ratio"`
	TradeStrength     Numeric `json:"trade_strength"`
	OpenPrice         Numeric `json:"open_price"`
	HighPrice         Numeric `json:"high_price"`
	LowPrice          Numeric `json:"low_price"`
	Timestamp         string  `json:"timestamp"`
}

// Tick is one normalized price observation. Prices are whole KRW.
type Tick struct {
	StockCode     string     `json:"stock_code"`
	TradeTime     string     `json:"trade_time"` // HHMMSS, exchange-local
	Price         int64      `json:"price"`
	Change        int64      `json:"change"`
	ChangeRate    float64    `json:"change_rate"`
	Sign          ChangeSign `json:"sign"`
	AccVolume     int64      `json:"acc_volume"`
	VolumeRatio   float64    `json:"volume_ratio"`
	TradeStrength float64    `json:"trade_strength"`
	Open          int64      `json:"open"`
	High          int64      `json:"high"`
	Low           int64      `json:"low"`
	TS            time.Time  `json:"ts"` // zero when the feed omits it
}

// Clock returns the exchange-local trade time of day. It reads TradeTime and
// falls back to TS when the trade time is missing or malformed.
func (t Tick) Clock() (hour, minute, second int, ok bool) {
	if len(t.TradeTime) >= 6 {
		h, okH := digits2(t.TradeTime[0:2])
		m, okM := digits2(t.TradeTime[2:4])
		s, okS := digits2(t.TradeTime[4:6])
		if okH && okM && okS {
			return h, m, s, true
		}
	}
	if !t.TS.IsZero() {
		k := t.TS.In(markethours.KST)
		return k.Hour(), k.Minute(), k.Second(), true
	}
	return 0, 0, 0, false
}

func digits2(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}
