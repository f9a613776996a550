package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradedash/internal/markethours"
	"tradedash/internal/model"
)

type fakeStatus struct {
	mu   sync.Mutex
	open bool
	err  error
}

func (f *fakeStatus) set(open bool, err error) {
	f.mu.Lock()
	f.open, f.err = open, err
	f.mu.Unlock()
}

func (f *fakeStatus) MarketStatus(context.Context) (model.MarketStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.MarketStatus{IsOpen: f.open}, f.err
}

func TestPollReportsTransitions(t *testing.T) {
	src := &fakeStatus{}
	w := NewWatcher(src, "")
	var changes []bool
	w.OnChange = func(open bool) { changes = append(changes, open) }

	w.Poll(context.Background()) // first poll always reports
	w.Poll(context.Background())
	src.set(true, nil)
	w.Poll(context.Background())
	w.Poll(context.Background())
	src.set(false, nil)
	w.Poll(context.Background())

	want := []bool{false, true, false}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes = %v, want %v", changes, want)
		}
	}
}

func TestPollFallsBackToLocalHours(t *testing.T) {
	src := &fakeStatus{}
	src.set(false, errors.New("backend down"))
	w := NewWatcher(src, "")

	// Tuesday 10:00 KST
	w.Now = func() time.Time { return time.Date(2025, 6, 10, 10, 0, 0, 0, markethours.KST) }
	if !w.Poll(context.Background()) {
		t.Fatal("expected open from local hours during session")
	}
	// Tuesday 20:00 KST
	w.Now = func() time.Time { return time.Date(2025, 6, 10, 20, 0, 0, 0, markethours.KST) }
	if w.Poll(context.Background()) || w.IsOpen() {
		t.Fatal("expected closed from local hours after session")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewWatcher(&fakeStatus{}, "not a schedule")
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStartPollsImmediately(t *testing.T) {
	src := &fakeStatus{}
	src.set(true, nil)
	w := NewWatcher(src, "0 0 0 1 1 *")
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if !w.IsOpen() {
		t.Fatal("expected initial poll to mark session open")
	}
}
