package candle

import "tradedash/internal/model"

// ServerProvided is the policy for backend-built minute buckets. Live prices
// only ever patch the latest bucket.
type ServerProvided struct{}

// Fold applies each tick's price to the last bucket in order.
func (p ServerProvided) Fold(hist model.Series, ticks []model.Tick) model.Series {
	out := hist.Clone()
	for _, t := range ticks {
		p.Patch(&out, t)
	}
	return out
}

// Patch merges tick's price into the last bucket. An empty series is left
// untouched.
func (ServerProvided) Patch(s *model.Series, tick model.Tick) (model.Candle, bool) {
	n := len(s.Candles)
	if n == 0 {
		return model.Candle{}, false
	}
	s.Candles[n-1] = ApplyPrice(s.Candles[n-1], tick.Price)
	return s.Candles[n-1], true
}
