// Package fetcher loads historical candle series from the backend.
//
// The exchange-local date decides the endpoint: today's date goes to the
// "today" endpoints, any other date to the by-date endpoints with a one-day
// range. Errors are returned as-is; there is no retry.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"tradedash/internal/candle"
	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

// ErrSuperseded is returned by FetchFor when a newer ticket was issued while
// the request was in flight.
var ErrSuperseded = errors.New("fetcher: superseded by a newer request")

// Ticket identifies one load generation.
type Ticket uint64

// Fetcher routes candle requests and stamps provenance.
type Fetcher struct {
	src     model.CandleSource
	archive model.SeriesArchive
	gen     atomic.Uint64

	// Now is the clock used to decide what "today" is. Defaults to time.Now.
	Now func() time.Time

	// Metrics hooks (optional, set externally)
	OnFetched    func(g model.Granularity, source model.Source, elapsed time.Duration)
	OnSuperseded func()
}

// New creates a Fetcher. archive may be nil; when set, database-provenance
// series are written through to it.
func New(src model.CandleSource, archive model.SeriesArchive) *Fetcher {
	return &Fetcher{src: src, archive: archive, Now: time.Now}
}

// Begin starts a new load generation and invalidates all earlier tickets.
func (f *Fetcher) Begin() Ticket {
	return Ticket(f.gen.Add(1))
}

// Current reports whether t is still the latest generation.
func (f *Fetcher) Current(t Ticket) bool {
	return Ticket(f.gen.Load()) == t
}

// FetchFor is Fetch under a ticket. A result that arrives after a newer
// Begin is discarded and ErrSuperseded returned.
func (f *Fetcher) FetchFor(ctx context.Context, t Ticket, code, date string, g model.Granularity) (model.Series, error) {
	s, err := f.Fetch(ctx, code, date, g)
	if !f.Current(t) {
		if f.OnSuperseded != nil {
			f.OnSuperseded()
		}
		return model.Series{}, ErrSuperseded
	}
	return s, err
}

// Fetch loads the series of code for the exchange-local date at granularity
// g. An empty date means today.
func (f *Fetcher) Fetch(ctx context.Context, code, date string, g model.Granularity) (model.Series, error) {
	now := f.Now()
	if date == "" {
		date = markethours.Today(now)
	}
	today := markethours.IsToday(date, now)

	start := time.Now()
	s, err := f.route(ctx, code, date, g, today)
	if err != nil {
		return model.Series{}, fmt.Errorf("fetch %s %s %s: %w", code, date, g, err)
	}

	s.StockCode = code
	s.Granularity = g
	if s.Date == "" {
		s.Date = date
	}
	s.Candles = candle.Merge(nil, s.Candles)
	s.Source = provenance(s, today)

	if f.OnFetched != nil {
		f.OnFetched(g, s.Source, time.Since(start))
	}

	if s.Source == model.SourceDatabase && f.archive != nil {
		if err := f.archive.SaveSeries(ctx, s); err != nil {
			log.Printf("[fetcher] archive %s %s %s: %v", code, date, g, err)
		}
	}
	return s, nil
}

func (f *Fetcher) route(ctx context.Context, code, date string, g model.Granularity, today bool) (model.Series, error) {
	if g == model.Hour {
		if today {
			return f.src.HourCandlesToday(ctx, code)
		}
		return f.src.HourCandles(ctx, code, date, date)
	}
	interval := g.Minutes()
	if interval == 0 {
		return model.Series{}, fmt.Errorf("unsupported granularity %q", g)
	}
	if today {
		return f.src.MinuteCandlesToday(ctx, code, interval)
	}
	return f.src.MinuteCandles(ctx, code, date, date, interval)
}

// provenance keeps a valid server tag, otherwise cache for today and
// database for past dates. A series without candles has no provenance.
func provenance(s model.Series, today bool) model.Source {
	if s.Empty() {
		return model.SourceNone
	}
	if s.Source == model.SourceCache || s.Source == model.SourceDatabase {
		return s.Source
	}
	if today {
		return model.SourceCache
	}
	return model.SourceDatabase
}
