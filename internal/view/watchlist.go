package view

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tradedash/internal/closedetector"
	"tradedash/internal/fetcher"
	"tradedash/internal/gateway"
	"tradedash/internal/markethours"
	"tradedash/internal/model"
	"tradedash/internal/ringbuf"
)

// PredictionSource lists the day's predictions.
type PredictionSource interface {
	Predictions(ctx context.Context, date string) (model.PredictionList, error)
}

// DefaultHistoryDepth bounds the per-instrument tick history.
const DefaultHistoryDepth = 600

// Watchlist follows every instrument in the day's prediction list through
// one shared price subscription and keeps a bounded tick history per
// instrument.
type Watchlist struct {
	src   PredictionSource
	feed  PriceFeed
	pub   Publisher
	depth int

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	gen atomic.Uint64

	mu          sync.Mutex
	date        string
	predictions map[string]model.Prediction
	codes       []string
	history     map[string]*ringbuf.Ring[model.Tick]
	open        bool
	loop        *liveLoop

	// Metrics hooks (optional, set externally)
	OnTick    func(t model.Tick)
	OnEvicted func()
}

// NewWatchlist creates a watchlist. depth <= 0 means DefaultHistoryDepth;
// pub may be nil.
func NewWatchlist(src PredictionSource, feed PriceFeed, pub Publisher, depth int) *Watchlist {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Watchlist{
		src:         src,
		feed:        feed,
		pub:         publisherOr(pub),
		depth:       depth,
		Now:         time.Now,
		predictions: make(map[string]model.Prediction),
		history:     make(map[string]*ringbuf.Ring[model.Tick]),
	}
}

// Load fetches the prediction list for date (empty means today), replaces
// the watched set and, when the market is open, subscribes to all codes.
// It returns the watched codes. Tick history survives only a reload of the
// same date. A load overtaken by a newer one returns fetcher.ErrSuperseded
// and changes nothing.
func (w *Watchlist) Load(ctx context.Context, date string) ([]string, error) {
	gen := w.gen.Add(1)
	if date == "" {
		date = markethours.Today(w.Now())
	}
	list, err := w.src.Predictions(ctx, date)
	if w.gen.Load() != gen {
		return nil, fetcher.ErrSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("load predictions %s: %w", date, err)
	}

	w.stopLive()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen.Load() != gen {
		return nil, fetcher.ErrSuperseded
	}

	sameDay := date == w.date
	w.date = date
	w.codes = list.StockCodes()
	w.predictions = make(map[string]model.Prediction, len(w.codes))
	for _, s := range list.Data {
		for _, p := range s.Predictions {
			if _, ok := w.predictions[p.StockCode]; !ok && p.StockCode != "" {
				w.predictions[p.StockCode] = p
			}
		}
	}
	history := make(map[string]*ringbuf.Ring[model.Tick], len(w.codes))
	for _, code := range w.codes {
		if h, ok := w.history[code]; ok && sameDay {
			history[code] = h
			continue
		}
		history[code] = ringbuf.New[model.Tick](w.depth)
	}
	w.history = history
	w.open = list.IsMarketOpen

	if w.open && markethours.IsToday(date, w.Now()) {
		w.startLiveLocked()
	}
	return append([]string(nil), w.codes...), nil
}

// SessionChanged starts streaming when the market opens. Closing is left to
// the close detector.
func (w *Watchlist) SessionChanged(open bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = open
	if open && !w.loop.running() && markethours.IsToday(w.date, w.Now()) {
		w.loop.stop()
		w.startLiveLocked()
	}
}

func (w *Watchlist) startLiveLocked() {
	if len(w.codes) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := w.feed.Connect(ctx, w.codes)
	if err != nil {
		cancel()
		log.Printf("[view] watchlist: live subscription failed: %v", err)
		return
	}

	det := closedetector.ForSession(w.Now())
	loop := &liveLoop{cancel: cancel, done: make(chan struct{})}
	w.loop = loop

	go func() {
		defer close(loop.done)
		if drain(ctx, sub, func(t model.Tick) bool { return w.onTick(det, t) },
			func() bool { return !det.Expired(w.Now()) }) {
			log.Printf("[view] watchlist: session over, closing live stream")
			sub.Stop()
		}
	}()
}

func (w *Watchlist) onTick(det *closedetector.Detector, t model.Tick) bool {
	w.mu.Lock()
	h, ok := w.history[t.StockCode]
	w.mu.Unlock()
	if !ok {
		return true
	}

	if h.Push(t) && w.OnEvicted != nil {
		w.OnEvicted()
	}
	if w.OnTick != nil {
		w.OnTick(t)
	}
	w.pub.Publish(gateway.QuoteChannel(t.StockCode), t)
	return !det.Observe(t.StockCode, t.Price, w.Now())
}

func (w *Watchlist) stopLive() {
	w.mu.Lock()
	loop := w.loop
	w.loop = nil
	w.mu.Unlock()

	w.feed.Disconnect()
	loop.stop()
}

// Codes returns the watched codes in prediction-list order.
func (w *Watchlist) Codes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.codes...)
}

// Prediction returns the first prediction listed for code.
func (w *Watchlist) Prediction(code string) (model.Prediction, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.predictions[code]
	return p, ok
}

// History returns code's ticks, oldest first.
func (w *Watchlist) History(code string) []model.Tick {
	w.mu.Lock()
	h, ok := w.history[code]
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Snapshot()
}

// Latest returns code's most recent tick.
func (w *Watchlist) Latest(code string) (model.Tick, bool) {
	w.mu.Lock()
	h, ok := w.history[code]
	w.mu.Unlock()
	if !ok {
		return model.Tick{}, false
	}
	return h.Last()
}

// MarketOpen reports the last known session state.
func (w *Watchlist) MarketOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Streaming reports whether the consumer loop is running.
func (w *Watchlist) Streaming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loop.running()
}

// Close disconnects the stream.
func (w *Watchlist) Close() {
	w.stopLive()
}
