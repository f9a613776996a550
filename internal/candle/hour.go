package candle

import (
	"fmt"

	"tradedash/internal/model"
)

// Session hours covered by hour buckets. Ticks after hour 15 are left out
// even though the session runs to 15:30.
const (
	SessionFirstHour = 9
	SessionLastHour  = 15
)

// HourBucket partitions ticks by exchange-local hour of day. Within a bucket
// open is the first tick's price, close the last, high/low the extremes.
// Hours without ticks produce no candle.
type HourBucket struct {
	FirstHour int
	LastHour  int
}

// NewHourBucket returns the policy for the regular session hours.
func NewHourBucket() HourBucket {
	return HourBucket{FirstHour: SessionFirstHour, LastHour: SessionLastHour}
}

func (p HourBucket) hourOf(t model.Tick) (int, bool) {
	h, _, _, ok := t.Clock()
	if !ok || h < p.FirstHour || h > p.LastHour {
		return 0, false
	}
	return h, true
}

func hourTime(h int) string {
	return fmt.Sprintf("%02d:00:00", h)
}

// Aggregate buckets ticks (in trade-time order) into candles dated date.
// Bucket volume is the growth of accumulated volume across the bucket's ticks.
func (p HourBucket) Aggregate(date string, ticks []model.Tick) []model.Candle {
	var out []model.Candle
	index := make(map[int]int, p.LastHour-p.FirstHour+1)

	var prevAcc int64
	havePrev := false
	for _, t := range ticks {
		var delta int64
		if havePrev && t.AccVolume > prevAcc {
			delta = t.AccVolume - prevAcc
		}
		if t.AccVolume > 0 {
			prevAcc = t.AccVolume
			havePrev = true
		}

		h, ok := p.hourOf(t)
		if !ok {
			continue
		}
		i, exists := index[h]
		if !exists {
			index[h] = len(out)
			out = append(out, model.Candle{
				Date:   date,
				Time:   hourTime(h),
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
				Close:  t.Price,
				Volume: delta,
			})
			continue
		}

		c := &out[i]
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume += delta
	}
	return Merge(nil, out)
}

// Fold aggregates ticks and merges the result over hist. With no historical
// candles and fewer than two ticks there is nothing to show yet and the
// returned series is empty.
func (p HourBucket) Fold(hist model.Series, ticks []model.Tick) model.Series {
	out := hist.Clone()
	out.Granularity = model.Hour
	if len(hist.Candles) == 0 && len(ticks) < 2 {
		out.Candles = nil
		return out
	}
	out.Candles = Merge(hist.Candles, p.Aggregate(hist.Date, ticks))
	return out
}

// Patch folds one tick into the bucket for its hour, creating the bucket if
// needed. Volume is left to Fold, which sees the whole tick history.
func (p HourBucket) Patch(s *model.Series, tick model.Tick) (model.Candle, bool) {
	h, ok := p.hourOf(tick)
	if !ok {
		return model.Candle{}, false
	}
	key := model.Candle{Date: s.Date, Time: hourTime(h)}.Key()
	for i := len(s.Candles) - 1; i >= 0; i-- {
		if s.Candles[i].Key() == key {
			s.Candles[i] = ApplyPrice(s.Candles[i], tick.Price)
			return s.Candles[i], true
		}
	}
	c := model.Candle{Date: s.Date, Time: hourTime(h), Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price}
	s.Candles = Merge(s.Candles, []model.Candle{c})
	return c, true
}
