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
	"tradedash/internal/model"
)

// TickSize returns the KRX quote unit for price.
func TickSize(price int64) int64 {
	switch {
	case price < 2_000:
		return 1
	case price < 5_000:
		return 5
	case price < 20_000:
		return 10
	case price < 50_000:
		return 50
	case price < 200_000:
		return 100
	case price < 500_000:
		return 500
	}
	return 1_000
}

// RoundToTick rounds price to the nearest valid quote, halves going up.
// Results are never below one tick.
func RoundToTick(price int64) int64 {
	if price <= 0 {
		return TickSize(0)
	}
	tick := TickSize(price)
	r := (price + tick/2) / tick * tick
	// Rounding up can cross into a band with a wider tick.
	if t := TickSize(r); t != tick {
		r = (r + t/2) / t * t
	}
	return r
}

// StepPrice moves price by one tick in direction dir (+1 or -1), never
// going below one tick.
func StepPrice(price int64, dir int) int64 {
	tick := TickSize(price)
	next := price + tick*int64(dir)
	return max(tick, next)
}

// SellPriceSource fetches the order-ticket quote.
type SellPriceSource interface {
	SellPrice(ctx context.Context, code, date string) (model.SellPrice, error)
}

// OrderEntry backs the sell ticket: the current quote plus a live order
// book while the market is open.
type OrderEntry struct {
	src  SellPriceSource
	feed OrderBookFeed
	pub  Publisher

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	gen atomic.Uint64

	mu    sync.Mutex
	code  string
	quote model.SellPrice
	book  model.OrderBook
	have  bool
	loop  *liveLoop
}

// NewOrderEntry creates an order entry controller. pub may be nil.
func NewOrderEntry(src SellPriceSource, feed OrderBookFeed, pub Publisher) *OrderEntry {
	return &OrderEntry{src: src, feed: feed, pub: publisherOr(pub), Now: time.Now}
}

// Load fetches the quote for code and, when the backend says the market is
// open, subscribes to its asking prices. A load overtaken by a newer one
// returns fetcher.ErrSuperseded and changes nothing.
func (o *OrderEntry) Load(ctx context.Context, code, date string) (model.SellPrice, error) {
	gen := o.gen.Add(1)
	o.stopLive()

	sp, err := o.src.SellPrice(ctx, code, date)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen.Load() != gen {
		return model.SellPrice{}, fetcher.ErrSuperseded
	}
	if err != nil {
		return model.SellPrice{}, fmt.Errorf("sell price %s: %w", code, err)
	}
	o.code = code
	o.quote = sp
	o.book = model.OrderBook{}
	o.have = false

	if sp.IsMarketOpen {
		o.startLiveLocked(code)
	}
	return sp, nil
}

func (o *OrderEntry) startLiveLocked(code string) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := o.feed.Connect(ctx, []string{code})
	if err != nil {
		cancel()
		log.Printf("[view] order entry %s: asking-price subscription failed: %v", code, err)
		return
	}

	det := closedetector.ForSession(o.Now())
	loop := &liveLoop{cancel: cancel, done: make(chan struct{})}
	o.loop = loop

	go func() {
		defer close(loop.done)
		if drain(ctx, sub, o.onBook, func() bool { return !det.Expired(o.Now()) }) {
			sub.Stop()
		}
	}()
}

func (o *OrderEntry) onBook(b model.OrderBook) bool {
	o.mu.Lock()
	if b.StockCode != o.code {
		o.mu.Unlock()
		return true
	}
	o.book = b
	o.have = true
	o.mu.Unlock()

	o.pub.Publish(gateway.OrderBookChannel(b.StockCode), b)
	return true
}

func (o *OrderEntry) stopLive() {
	o.mu.Lock()
	loop := o.loop
	o.loop = nil
	o.mu.Unlock()

	o.feed.Disconnect()
	loop.stop()
}

// Quote returns the last loaded sell quote.
func (o *OrderEntry) Quote() model.SellPrice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.quote
}

// OrderBook returns the latest asking-price snapshot, if one arrived.
func (o *OrderEntry) OrderBook() (model.OrderBook, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.book, o.have
}

// Streaming reports whether the asking-price loop is running.
func (o *OrderEntry) Streaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loop.running()
}

// Close disconnects the stream.
func (o *OrderEntry) Close() {
	o.stopLive()
}
