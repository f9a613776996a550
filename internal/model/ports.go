package model

import "context"

// ── Port Interfaces ──
// These decouple the view layer from the concrete backend client and storage
// implementations so tests can substitute fakes.

// CandleSource serves candle series from the backend.
type CandleSource interface {
	HourCandlesToday(ctx context.Context, code string) (Series, error)
	HourCandles(ctx context.Context, code, startDate, endDate string) (Series, error)
	MinuteCandlesToday(ctx context.Context, code string, interval int) (Series, error)
	MinuteCandles(ctx context.Context, code, startDate, endDate string, interval int) (Series, error)
}

// MarketStatusSource reports whether the session is open.
type MarketStatusSource interface {
	MarketStatus(ctx context.Context) (MarketStatus, error)
}

// SeriesArchive persists candle series locally.
type SeriesArchive interface {
	// SaveSeries upserts every candle of s.
	SaveSeries(ctx context.Context, s Series) error

	// LoadSeries returns the archived series; Source is SourceNone when empty.
	LoadSeries(ctx context.Context, code, date string, g Granularity) (Series, error)

	// Close releases underlying resources.
	Close() error
}
