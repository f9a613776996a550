package model

import "fmt"

// Source marks where a candle series came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
	SourceNone     Source = "none"
)

// ParseSource maps a backend source tag to a Source.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceCache, SourceDatabase, SourceNone:
		return Source(s), true
	}
	return "", false
}

// Granularity is the bucket width of a series.
type Granularity string

const (
	Hour     Granularity = "hour"
	Minute1  Granularity = "1m"
	Minute10 Granularity = "10m"
	Minute30 Granularity = "30m"
	Minute60 Granularity = "60m"
)

// Minutes returns the minute interval for minute granularities and 0 for Hour.
func (g Granularity) Minutes() int {
	switch g {
	case Minute1:
		return 1
	case Minute10:
		return 10
	case Minute30:
		return 30
	case Minute60:
		return 60
	}
	return 0
}

// ParseGranularity accepts "hour", "1m".."60m" or a bare minute count.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "hour", "h":
		return Hour, nil
	case "1m", "1":
		return Minute1, nil
	case "10m", "10":
		return Minute10, nil
	case "30m", "30":
		return Minute30, nil
	case "60m", "60":
		return Minute60, nil
	}
	return "", fmt.Errorf("unsupported granularity %q", s)
}

// Series is the candle sequence for one instrument, date and granularity.
// Candles are ascending by Key with no duplicate keys.
type Series struct {
	StockCode   string      `json:"stock_code"`
	Date        string      `json:"date"`
	Granularity Granularity `json:"granularity"`
	Source      Source      `json:"source"`
	Candles     []Candle    `json:"candles"`
}

// Empty reports whether the series has no candles.
func (s Series) Empty() bool {
	return len(s.Candles) == 0
}

// Last returns the latest bucket.
func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Clone returns a copy that shares no candle storage with s.
func (s Series) Clone() Series {
	out := s
	out.Candles = append([]Candle(nil), s.Candles...)
	return out
}
