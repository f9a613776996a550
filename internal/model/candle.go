package model

import (
	"encoding/json"
	"time"

	"tradedash/internal/markethours"
)

// Candle is one OHLCV bucket for an instrument. The bucket key is the
// exchange-local date plus the bucket start time.
type Candle struct {
	Date   string `json:"candle_date"` // YYYY-MM-DD
	Time   string `json:"candle_time"` // HH:MM:SS bucket start
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"`
}

// Key returns the bucket key. Keys of well-formed candles sort in time order.
func (c Candle) Key() string {
	return c.Date + " " + c.Time
}

// Start parses the bucket start in exchange-local time.
func (c Candle) Start() (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", c.Key(), markethours.KST)
}

// Up reports whether the candle closed at or above its open.
func (c Candle) Up() bool {
	return c.Close >= c.Open
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
