package eventbus

import (
	"sync"
)

// Subscription is a live, ordered view onto one run's events, obtained from
// Bus.Subscribe. Callers must drain Recv until it reports closed, then call
// Close (idempotent), mirroring the teacher's hooks.Subscription Close idiom.
type Subscription struct {
	bus *Bus
	rs  *runState

	ch chan Event

	closeOnce sync.Once
	closed    chan struct{}

	mu          sync.Mutex
	slowConsumer bool
}

func newSubscription(bus *Bus, rs *runState, queueSize int) *Subscription {
	return &Subscription{
		bus:    bus,
		rs:     rs,
		ch:     make(chan Event, queueSize),
		closed: make(chan struct{}),
	}
}

// deliver performs a non-blocking send. If the subscriber's queue is full the
// subscription is marked as a slow consumer and force-closed: the spec's
// drop-on-overflow semantics resolve to "disconnect and make the client
// resubscribe with after_event_id" rather than silently dropping individual
// events, so replay always remains gap-free from the client's perspective.
func (s *Subscription) deliver(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.mu.Lock()
		s.slowConsumer = true
		s.mu.Unlock()
		s.Close()
	}
}

// Recv blocks until the next event, the subscription closes normally (ok ==
// false, err == nil), or it was force-closed for being a slow consumer
// (err == ErrSlowConsumer).
func (s *Subscription) Recv() (Event, bool, error) {
	select {
	case ev, ok := <-s.ch:
		if ok {
			return ev, true, nil
		}
		return Event{}, false, s.closeErr()
	case <-s.closed:
		// Drain any event still buffered at the moment of closing before
		// reporting the subscription as finished.
		select {
		case ev, ok := <-s.ch:
			if ok {
				return ev, true, nil
			}
		default:
		}
		return Event{}, false, s.closeErr()
	}
}

func (s *Subscription) closeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slowConsumer {
		return ErrSlowConsumer
	}
	return nil
}

// Close unregisters the subscription from its run. Idempotent and safe to
// call concurrently with delivery.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.unregister(s.rs, s)
		close(s.closed)
	})
	return nil
}
