// Package candle folds live ticks into candle series.
//
// Two policies exist. HourBucket builds hour-of-day buckets from raw ticks and
// merges them over a historical series. ServerProvided never re-buckets: the
// backend supplies minute buckets and a live price only patches the latest
// one. For picks the policy for a granularity.
package candle

import (
	"sort"

	"tradedash/internal/model"
)

// Policy folds ticks into a series.
type Policy interface {
	// Fold returns hist with ticks folded in. hist is not modified.
	Fold(hist model.Series, ticks []model.Tick) model.Series

	// Patch folds one live tick into s in place and returns the bucket it
	// touched. ok is false when the tick had nowhere to go.
	Patch(s *model.Series, tick model.Tick) (c model.Candle, ok bool)
}

// For returns the aggregation policy for g.
func For(g model.Granularity) Policy {
	if g == model.Hour {
		return NewHourBucket()
	}
	return ServerProvided{}
}

// Merge overlays live buckets on hist. A live bucket replaces the historical
// bucket with the same key, otherwise it is appended. The result is sorted by
// key and holds one candle per key. Neither input is modified.
func Merge(hist, live []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(hist)+len(live))
	out = append(out, hist...)

	pos := make(map[string]int, len(out)+len(live))
	for i, c := range out {
		pos[c.Key()] = i
	}
	for _, c := range live {
		if i, ok := pos[c.Key()]; ok {
			out[i] = c
			continue
		}
		pos[c.Key()] = len(out)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ApplyPrice merges a live price into c: high/low widen, close follows the
// price, open is unchanged.
func ApplyPrice(c model.Candle, price int64) model.Candle {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	return c
}
