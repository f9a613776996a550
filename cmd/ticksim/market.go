package main

import (
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"tradedash/internal/candle"
	"tradedash/internal/markethours"
	"tradedash/internal/model"
	"tradedash/internal/ringbuf"
	"tradedash/internal/view"
)

// tickDepth bounds the ticks kept per instrument for candle endpoints.
const tickDepth = 20000

// instrument holds per-symbol simulation state.
type instrument struct {
	meta   model.Metadata
	prev   int64 // previous close
	open   int64
	price  int64
	high   int64
	low    int64
	volume int64
	ticks  *ringbuf.Ring[model.Tick]
}

// market is a random-walk KRX market. Safe for concurrent use.
type market struct {
	mu    sync.Mutex
	rng   *rand.Rand
	insts map[string]*instrument
	codes []string
}

func newMarket(seed int64, metas []model.Metadata, prices map[string]int64) *market {
	m := &market{
		rng:   rand.New(rand.NewSource(seed)),
		insts: make(map[string]*instrument, len(metas)),
	}
	for _, md := range metas {
		p := view.RoundToTick(prices[md.StockCode])
		m.insts[md.StockCode] = &instrument{
			meta:  md,
			prev:  p,
			open:  p,
			price: p,
			high:  p,
			low:   p,
			ticks: ringbuf.New[model.Tick](tickDepth),
		}
		m.codes = append(m.codes, md.StockCode)
	}
	sort.Strings(m.codes)
	return m
}

// walk moves price by up to two ticks and keeps it on the tick grid.
func (m *market) walk(price int64) int64 {
	steps := m.rng.Intn(5) - 2
	next := price + int64(steps)*view.TickSize(price)
	return max(view.RoundToTick(next), 1)
}

// step advances every instrument once and returns the new ticks.
func (m *market) step(now time.Time) []model.WireTick {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := now.In(markethours.KST)
	tradeTime := k.Format("150405")
	out := make([]model.WireTick, 0, len(m.codes))
	for _, code := range m.codes {
		in := m.insts[code]
		in.price = m.walk(in.price)
		in.high = max(in.high, in.price)
		in.low = min(in.low, in.price)
		in.volume += int64(m.rng.Intn(500) + 1)

		t := model.Tick{
			StockCode: code,
			TradeTime: tradeTime,
			Price:     in.price,
			Change:    in.price - in.prev,
			Sign:      signOf(in.price - in.prev),
			AccVolume: in.volume,
			Open:      in.open,
			High:      in.high,
			Low:       in.low,
			TS:        now,
		}
		if in.prev > 0 {
			t.ChangeRate = float64(t.Change) / float64(in.prev) * 100
		}
		in.ticks.Push(t)
		out = append(out, wireTick(t))
	}
	return out
}

func signOf(change int64) model.ChangeSign {
	switch {
	case change > 0:
		return model.SignUp
	case change < 0:
		return model.SignDown
	}
	return model.SignFlat
}

// wireTick renders t the way the backend sends it, numbers as text and
// change unsigned with the direction carried by the sign code.
func wireTick(t model.Tick) model.WireTick {
	num := func(v int64) model.Numeric { return model.Numeric(strconv.FormatInt(v, 10)) }
	change, rate := t.Change, t.ChangeRate
	if change < 0 {
		change, rate = -change, -rate
	}
	return model.WireTick{
		StockCode:         t.StockCode,
		TradeTime:         t.TradeTime,
		CurrentPrice:      num(t.Price),
		PriceChange:       num(change),
		PriceChangeRate:   model.Numeric(strconv.FormatFloat(rate, 'f', 2, 64)),
		PriceChangeSign:   model.Numeric(t.Sign),
		AccumulatedVolume: num(t.AccVolume),
		VolumeRatio:       "100.00",
		TradeStrength:     model.Numeric(strconv.FormatFloat(80+float64(t.AccVolume%40), 'f', 2, 64)),
		OpenPrice:         num(t.Open),
		HighPrice:         num(t.High),
		LowPrice:          num(t.Low),
		Timestamp:         t.TS.UTC().Format(time.RFC3339),
	}
}

// orderBook builds ten levels per side around the current price in the
// flat askpN/bidpN wire form.
func (m *market) orderBook(code string) (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.insts[code]
	if !ok {
		return nil, false
	}
	out := map[string]string{"stock_code": code}
	var totalAsk, totalBid int64
	ask, bid := in.price, in.price
	for i := 1; i <= model.Depth; i++ {
		ask += view.TickSize(ask)
		bid = max(bid-view.TickSize(bid), 1)
		av, bv := int64(m.rng.Intn(5000)+100), int64(m.rng.Intn(5000)+100)
		totalAsk += av
		totalBid += bv
		n := strconv.Itoa(i)
		out["askp"+n] = strconv.FormatInt(ask, 10)
		out["askp_rsqn"+n] = strconv.FormatInt(av, 10)
		out["bidp"+n] = strconv.FormatInt(bid, 10)
		out["bidp_rsqn"+n] = strconv.FormatInt(bv, 10)
	}
	out["total_askp_rsqn"] = strconv.FormatInt(totalAsk, 10)
	out["total_bidp_rsqn"] = strconv.FormatInt(totalBid, 10)
	return out, true
}

func (m *market) quote(code string) (open, price int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.insts[code]
	if !ok {
		return 0, 0, false
	}
	return in.open, in.price, true
}

func (m *market) metadata(code string) (model.Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.insts[code]
	if !ok {
		return model.Metadata{}, false
	}
	return in.meta, true
}

// hourCandles folds the recorded ticks into hour buckets.
func (m *market) hourCandles(code, date string) ([]model.Candle, bool) {
	ticks, ok := m.ticks(code)
	if !ok {
		return nil, false
	}
	return candle.NewHourBucket().Aggregate(date, ticks), true
}

// minuteCandles buckets the recorded ticks by interval minutes from midnight.
func (m *market) minuteCandles(code, date string, interval int) ([]model.Candle, bool) {
	ticks, ok := m.ticks(code)
	if !ok {
		return nil, false
	}
	var out []model.Candle
	var firstVol int64
	for _, t := range ticks {
		h, mi, _, ok := t.Clock()
		if !ok {
			continue
		}
		slot := (h*60 + mi) / interval * interval
		key := model.Candle{Date: date, Time: clockOf(slot)}.Key()
		if n := len(out); n > 0 && out[n-1].Key() == key {
			c := &out[n-1]
			c.High = max(c.High, t.Price)
			c.Low = min(c.Low, t.Price)
			c.Close = t.Price
			c.Volume = t.AccVolume - firstVol
			continue
		}
		firstVol = t.AccVolume
		out = append(out, model.Candle{
			Date: date, Time: clockOf(slot),
			Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price,
		})
	}
	return out, true
}

func clockOf(minutes int) string {
	return time.Date(0, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format("15:04:05")
}

func (m *market) ticks(code string) ([]model.Tick, bool) {
	m.mu.Lock()
	in, ok := m.insts[code]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return in.ticks.Snapshot(), true
}

func (m *market) has(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.insts[code]
	return ok
}

func (m *market) predictions(date string) model.PredictionList {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sp model.StrategyPredictions
	sp.Strategy.ID = 1
	sp.Strategy.Name = "ticksim"
	for i, code := range m.codes {
		in := m.insts[code]
		sp.Predictions = append(sp.Predictions, model.Prediction{
			ID:                 int64(i + 1),
			StockCode:          code,
			StockName:          in.meta.StockName,
			PredictionDate:     date,
			StockOpen:          in.open,
			Signal:             "BUY",
			ProbUp:             0.5 + m.rng.Float64()/2,
			ExpectedReturn:     m.rng.Float64() * 3,
			PredictedDirection: 1,
		})
	}
	return model.PredictionList{Data: []model.StrategyPredictions{sp}}
}
