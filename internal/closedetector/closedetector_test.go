package closedetector

import (
	"testing"
	"time"

	"tradedash/internal/markethours"
)

var closeTime = time.Date(2025, 6, 10, 15, 30, 0, 0, markethours.KST)

func TestDetector_PriceStabilization(t *testing.T) {
	d := New(closeTime)
	d.StableFor = 3 * time.Second

	if d.Observe("005930", 71000, closeTime.Add(-time.Minute)) {
		t.Error("should not disconnect before close")
	}
	if d.Observe("005930", 71100, closeTime.Add(1*time.Second)) {
		t.Error("should not disconnect when price is changing")
	}
	if d.Observe("005930", 71200, closeTime.Add(2*time.Second)) {
		t.Error("should not disconnect when price is changing")
	}
	if d.Observe("005930", 71200, closeTime.Add(3*time.Second)) {
		t.Error("should not disconnect yet, only 1s stable")
	}
	if !d.Observe("005930", 71200, closeTime.Add(5*time.Second)) {
		t.Error("should disconnect, price stable for 3s")
	}

	if p, ok := d.ClosingPrice("005930"); !ok || p != 71200 {
		t.Errorf("closing price: got %d ok=%v", p, ok)
	}
}

func TestDetector_WaitsForEveryInstrument(t *testing.T) {
	d := New(closeTime)
	d.StableFor = 2 * time.Second

	d.Observe("005930", 71000, closeTime.Add(1*time.Second))
	d.Observe("000660", 180000, closeTime.Add(1*time.Second))
	d.Observe("000660", 180500, closeTime.Add(2*time.Second))

	if d.Observe("005930", 71000, closeTime.Add(3*time.Second)) {
		t.Error("000660 moved 1s ago, must keep listening")
	}
	if !d.Observe("000660", 180500, closeTime.Add(4*time.Second)) {
		t.Error("both instruments stable for 2s, should disconnect")
	}
}

func TestDetector_HardDeadline(t *testing.T) {
	d := New(closeTime)
	d.MaxGrace = 2 * time.Minute

	if d.Observe("005930", 71100, closeTime.Add(time.Minute)) {
		t.Error("should not disconnect before hard deadline")
	}
	if !d.Observe("005930", 71200, closeTime.Add(3*time.Minute)) {
		t.Error("should disconnect past hard deadline")
	}
	if !d.Expired(closeTime.Add(3 * time.Minute)) {
		t.Error("Expired should agree with the deadline")
	}
}

func TestDetector_PriceChangeResetsStability(t *testing.T) {
	d := New(closeTime)
	d.StableFor = 2 * time.Second

	d.Observe("005930", 71000, closeTime.Add(1*time.Second))
	d.Observe("005930", 71000, closeTime.Add(2*time.Second))
	d.Observe("005930", 71100, closeTime.Add(2500*time.Millisecond))

	if d.Observe("005930", 71100, closeTime.Add(3*time.Second)) {
		t.Error("only 0.5s since price change")
	}
	if !d.Observe("005930", 71100, closeTime.Add(4500*time.Millisecond)) {
		t.Error("2s stable after the change, should disconnect")
	}
}

func TestForSession_UsesExchangeClose(t *testing.T) {
	d := ForSession(time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC))
	if !d.CloseTime().Equal(closeTime) {
		t.Errorf("close: got %v, want %v", d.CloseTime(), closeTime)
	}
}
