// Package view holds the page-level controllers that tie fetching, live
// streams, aggregation and rendering together: ChartView, Watchlist,
// DetailPanel and OrderEntry.
//
// Every controller follows the same rules. A selection change disconnects
// the previous stream before anything else. Live subscriptions are only
// opened while the market is open. Each subscription is drained by exactly
// one consumer goroutine, and controller state is guarded by a mutex because
// loads run on the caller's goroutine.
package view

import (
	"context"
	"log"
	"time"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
	"tradedash/internal/stream"
)

// Publisher receives updates for the live gateway.
type Publisher interface {
	Publish(channel string, v any)
}

// PriceFeed opens tick subscriptions. *stream.Transport[model.Tick]
// satisfies it.
type PriceFeed interface {
	Connect(ctx context.Context, codes []string) (*stream.Subscription[model.Tick], error)
	Disconnect()
}

// OrderBookFeed opens asking-price subscriptions.
type OrderBookFeed interface {
	Connect(ctx context.Context, codes []string) (*stream.Subscription[model.OrderBook], error)
	Disconnect()
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

func publisherOr(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// marketOpen asks src and falls back to the local trading calendar when
// the backend cannot answer.
func marketOpen(ctx context.Context, src model.MarketStatusSource, now time.Time) bool {
	st, err := src.MarketStatus(ctx)
	if err != nil {
		open := markethours.IsMarketOpen(now)
		log.Printf("[view] market status unavailable, local hours say open=%v: %v", open, err)
		return open
	}
	return st.IsOpen
}

// closeWatchInterval is how often consumer loops check the close deadline
// when no ticks arrive.
const closeWatchInterval = 5 * time.Second

// drain feeds every payload of sub to handle until the subscription ends,
// ctx is cancelled, or handle or idle returns false. idle runs every
// closeWatchInterval. It reports whether the loop itself asked to stop.
func drain[T any](ctx context.Context, sub *stream.Subscription[T], handle func(T) bool, idle func() bool) bool {
	ticker := time.NewTicker(closeWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case v, ok := <-sub.C():
			if !ok {
				return false
			}
			if !handle(v) {
				return true
			}
		case <-ticker.C:
			if !idle() {
				return true
			}
		}
	}
}

// liveLoop is the lifetime of one consumer goroutine.
type liveLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *liveLoop) running() bool {
	if l == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *liveLoop) stop() {
	if l == nil {
		return
	}
	l.cancel()
	<-l.done
}
