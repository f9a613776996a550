// Package session polls the backend market status on a cron schedule and
// reports open/close transitions.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

// DefaultSchedule polls every 30 seconds.
const DefaultSchedule = "*/30 * * * * *"

const pollTimeout = 5 * time.Second

// Watcher tracks whether the market session is open.
type Watcher struct {
	src      model.MarketStatusSource
	schedule string
	cron     *cron.Cron

	mu    sync.Mutex
	known bool
	open  bool

	// Now is the clock used for the local-hours fallback.
	Now func() time.Time

	// OnChange fires on the first poll and on every transition after it.
	OnChange func(open bool)
}

// NewWatcher creates a watcher polling src on schedule (six fields,
// seconds first). An empty schedule means DefaultSchedule.
func NewWatcher(src model.MarketStatusSource, schedule string) *Watcher {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Watcher{
		src:      src,
		schedule: schedule,
		cron:     cron.New(cron.WithSeconds()),
		Now:      time.Now,
	}
}

// Start polls once and then on the schedule until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.Poll(ctx) }); err != nil {
		return fmt.Errorf("register session poll: %w", err)
	}
	w.Poll(ctx)
	w.cron.Start()
	log.Printf("[session] watcher started (%s)", w.schedule)
	return nil
}

// Stop halts polling and waits for a running poll to finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	log.Println("[session] watcher stopped")
}

// Poll asks the backend for the session state. When the backend cannot
// answer, the local trading calendar decides.
func (w *Watcher) Poll(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var open bool
	st, err := w.src.MarketStatus(pctx)
	if err != nil {
		open = markethours.IsMarketOpen(w.Now())
		log.Printf("[session] market status unavailable, local hours say open=%v: %v", open, err)
	} else {
		open = st.IsOpen
	}

	w.mu.Lock()
	changed := !w.known || w.open != open
	w.known = true
	w.open = open
	w.mu.Unlock()

	if changed {
		log.Printf("[session] market open=%v", open)
		if w.OnChange != nil {
			w.OnChange(open)
		}
	}
	return open
}

// IsOpen returns the last polled state. Before the first poll it falls back
// to the local trading calendar.
func (w *Watcher) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.known {
		return markethours.IsMarketOpen(w.Now())
	}
	return w.open
}
