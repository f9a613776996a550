package stream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Subscription is one live stream connection scoped to a fixed set of
// instruments. Payloads arrive in server order on C().
type Subscription[T any] struct {
	t     *Transport[T]
	codes []string
	ch    chan T

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc

	active   atomic.Bool
	done     chan struct{}
	finished sync.Once
	err      error
}

func newSubscription[T any](t *Transport[T], codes []string) *Subscription[T] {
	return &Subscription[T]{
		t:     t,
		codes: codes,
		ch:    make(chan T, t.cfg.Buffer),
		done:  make(chan struct{}),
	}
}

// Codes returns the instrument set this subscription is scoped to.
func (s *Subscription[T]) Codes() []string {
	return append([]string(nil), s.codes...)
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Done is closed once the connection is fully released.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// IsActive reports whether the connection is open.
func (s *Subscription[T]) IsActive() bool { return s.active.Load() }

// Err returns the error that ended the subscription; nil after Stop.
func (s *Subscription[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Start opens the connection and begins delivery. It fails if the
// subscription was already started or stopped.
func (s *Subscription[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	resp, err := s.t.open(ctx, s.codes)
	if err != nil {
		cancel()
		if ctx.Err() == nil {
			logf("%s connect %v failed: %v", s.t.kind, s.codes, err)
			if s.t.OnConnError != nil {
				s.t.OnConnError()
			}
		}
		s.finish(err)
		return err
	}

	s.active.Store(true)
	if s.t.OnActive != nil {
		s.t.OnActive(true)
	}
	logf("%s subscribed to %v", s.t.kind, s.codes)

	go s.read(ctx, resp.Body)
	return nil
}

// Stop closes the connection and waits for the reader to exit. Idempotent.
func (s *Subscription[T]) Stop() {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.mu.Unlock()
		s.finish(nil)
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
}

func (s *Subscription[T]) read(ctx context.Context, body io.ReadCloser) {
	defer body.Close()

	want := s.t.kind.EventName()
	err := readEvents(body, func(ev Event) bool {
		if ev.Name != want {
			return true
		}
		v, err := s.t.decode(ev.Data)
		if err != nil {
			logf("dropping malformed %s payload: %v", ev.Name, err)
			if s.t.OnMalformed != nil {
				s.t.OnMalformed()
			}
			return true
		}
		select {
		case s.ch <- v:
			if s.t.OnMessage != nil {
				s.t.OnMessage()
			}
			return true
		case <-ctx.Done():
			return false
		}
	})

	if ctx.Err() != nil {
		// Stopped by the owner.
		s.finish(nil)
		return
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	logf("%s connection %v error: %v", s.t.kind, s.codes, err)
	if s.t.OnConnError != nil {
		s.t.OnConnError()
	}
	s.finish(err)
}

func (s *Subscription[T]) finish(err error) {
	s.finished.Do(func() {
		s.err = err
		wasActive := s.active.Swap(false)
		close(s.ch)
		close(s.done)
		if wasActive {
			logf("%s unsubscribed from %v", s.t.kind, s.codes)
			if s.t.OnActive != nil {
				s.t.OnActive(false)
			}
		}
	})
}
