package candle

import (
	"context"
	"log"
	"sync"

	"tradedash/internal/model"
)

// Live owns the displayed series of one instrument and folds that
// instrument's ticks into it with a Policy.
type Live struct {
	mu     sync.Mutex
	policy Policy
	series model.Series

	// Metrics hooks (optional, set externally)
	OnPatched     func()
	OnDroppedTick func()
}

// NewLive creates a Live for series using the policy for its granularity.
func NewLive(series model.Series) *Live {
	return &Live{policy: For(series.Granularity), series: series.Clone()}
}

// Replace swaps the series wholesale, e.g. after a refetch.
func (l *Live) Replace(series model.Series) {
	l.mu.Lock()
	l.policy = For(series.Granularity)
	l.series = series.Clone()
	l.mu.Unlock()
}

// Snapshot returns a copy of the current series.
func (l *Live) Snapshot() model.Series {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.series.Clone()
}

// Apply folds one tick. Ticks for other instruments are ignored.
func (l *Live) Apply(t model.Tick) (model.Candle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.StockCode != l.series.StockCode {
		return model.Candle{}, false
	}
	c, ok := l.policy.Patch(&l.series, t)
	if ok && l.OnPatched != nil {
		l.OnPatched()
	}
	return c, ok
}

// Run consumes ticks until tickCh closes or ctx is cancelled and sends every
// patched bucket to outCh. Sends never block; a full outCh drops the update.
func (l *Live) Run(ctx context.Context, tickCh <-chan model.Tick, outCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-tickCh:
			if !ok {
				return
			}
			c, patched := l.Apply(t)
			if !patched {
				continue
			}
			select {
			case outCh <- c:
			default:
				log.Printf("[candle] outCh full, dropping update %s %s", t.StockCode, c.Key())
				if l.OnDroppedTick != nil {
					l.OnDroppedTick()
				}
			}
		}
	}
}
