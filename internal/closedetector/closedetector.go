// Package closedetector decides when live subscriptions can be dropped after
// the KRX session ends. Ticks keep arriving for a while after 15:30 as the
// closing auction settles; once every instrument's price has stopped moving
// for StableFor, the closing prices are final.
package closedetector

import (
	"log"
	"sync"
	"time"

	"tradedash/internal/markethours"
)

type observation struct {
	price       int64
	stableSince time.Time
}

// Detector tracks post-close price stability per instrument.
type Detector struct {
	mu        sync.Mutex
	closeTime time.Time
	last      map[string]*observation

	// StableFor is how long every price must stay unchanged. Default 30s.
	StableFor time.Duration

	// MaxGrace is the hard deadline after closeTime. Default 5 minutes.
	MaxGrace time.Duration
}

// New creates a Detector for the given close time.
func New(closeTime time.Time) *Detector {
	return &Detector{
		closeTime: closeTime,
		last:      make(map[string]*observation),
		StableFor: 30 * time.Second,
		MaxGrace:  5 * time.Minute,
	}
}

// ForSession creates a Detector for the close of the session on now's
// exchange-local date.
func ForSession(now time.Time) *Detector {
	return New(markethours.TodayClose(now))
}

// CloseTime returns the session close the detector measures from.
func (d *Detector) CloseTime() time.Time {
	return d.closeTime
}

// IsPostClose reports whether now is after the close.
func (d *Detector) IsPostClose(now time.Time) bool {
	return now.After(d.closeTime)
}

// Expired reports whether the hard deadline has passed.
func (d *Detector) Expired(now time.Time) bool {
	return now.After(d.closeTime.Add(d.MaxGrace))
}

// Observe records a price for code and reports whether the subscription
// should be torn down: either the deadline passed or every instrument seen
// so far has held its price for StableFor after the close.
func (d *Detector) Observe(code string, price int64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Expired(now) {
		log.Printf("[closedetector] hard deadline %v reached, disconnecting", d.MaxGrace)
		return true
	}

	o, seen := d.last[code]
	if !seen {
		o = &observation{price: price}
		d.last[code] = o
	}
	if !d.IsPostClose(now) {
		o.price = price
		o.stableSince = time.Time{}
		return false
	}

	if price != o.price || o.stableSince.IsZero() {
		o.price = price
		o.stableSince = now
		return false
	}

	for _, other := range d.last {
		if other.stableSince.IsZero() || now.Sub(other.stableSince) < d.StableFor {
			return false
		}
	}
	log.Printf("[closedetector] %d instrument(s) stable for %v after close, closing prices captured",
		len(d.last), d.StableFor)
	return true
}

// ClosingPrice returns the last observed price for code.
func (d *Detector) ClosingPrice(code string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.last[code]
	if !ok {
		return 0, false
	}
	return o.price, true
}
