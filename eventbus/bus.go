package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/resumeforge/tailorcore/coreerrors"
)

// Journal is the durable persistence boundary the Bus delegates to for every
// event it assigns an id to. The Recovery Store (C4) implements this
// interface; the Bus itself holds only the live, in-memory fan-out state,
// matching spec.md §4.3's "append-only in-memory vector plus a durable
// journal".
type Journal interface {
	RecordEvent(ctx context.Context, ev Event) error
	ReadEventsAfter(ctx context.Context, runID string, afterEventID int64) ([]Event, error)
}

const (
	// DefaultQueueSize bounds each subscriber's live event queue.
	DefaultQueueSize = 256
	// DefaultHeartbeatInterval matches spec.md §4.3's 15s idle heartbeat.
	DefaultHeartbeatInterval = 15 * time.Second
	// terminalGrace is how long a run's live fan-out stays open after its
	// done/error event, so trailing subscribers still observe the terminal
	// event before the stream closes.
	terminalGrace = 5 * time.Second
)

// ErrSlowConsumer is returned from Subscription.Recv when a subscriber's
// queue overflowed and its subscription was force-closed. Callers should
// resubscribe with after_event_id set to the last event_id they observed.
var ErrSlowConsumer = errors.New("eventbus: slow consumer disconnected")

// Forwarder relays a just-published event to other processes in a cluster
// deployment, so a subscriber attached to a different API server instance
// than the one running the Orchestrator still observes it live. See
// eventbus/pulse for a goa.design/pulse-backed implementation. Forwarding is
// best-effort: Publish calls Forward on its own goroutine and discards any
// error, so it is never surfaced to the publisher.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}

// Bus fans out per-run events to live subscribers and replays journaled
// history to new ones, per spec.md §4.3.
type Bus struct {
	journal           Journal
	queueSize         int
	heartbeatInterval time.Duration
	forwarder         Forwarder

	mu   sync.Mutex
	runs map[string]*runState
}

// SetForwarder attaches a cross-process Forwarder. Optional; a single-process
// deployment never needs one.
func (b *Bus) SetForwarder(f Forwarder) {
	b.forwarder = f
}

// New constructs a Bus backed by journal. queueSize and heartbeatInterval
// default to DefaultQueueSize / DefaultHeartbeatInterval when zero.
func New(journal Journal, queueSize int, heartbeatInterval time.Duration) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Bus{
		journal:           journal,
		queueSize:         queueSize,
		heartbeatInterval: heartbeatInterval,
		runs:              make(map[string]*runState),
	}
}

type runState struct {
	mu            sync.Mutex
	runID         string
	lastEventID   int64
	subscribers   map[*Subscription]struct{}
	lastActivity  time.Time
	terminal      bool
	terminalAt    time.Time
	heartbeatDone chan struct{}

	// snap is the folded view maintained incrementally by applyToSnapshot.
	snap Snapshot
}

func (b *Bus) runStateFor(runID string) *runState {
	b.mu.Lock()
	defer b.mu.Unlock()
	rs, ok := b.runs[runID]
	if !ok {
		rs = &runState{
			runID:        runID,
			subscribers:  make(map[*Subscription]struct{}),
			lastActivity: time.Now(),
			snap:         Snapshot{RunID: runID, Status: "pending"},
		}
		b.runs[runID] = rs
	}
	return rs
}

// Publish assigns the next event_id for runID, stamps ts, durably records the
// event via the Journal, folds it into the run's snapshot, and fans it out to
// every live subscriber.
func (b *Bus) Publish(ctx context.Context, runID string, typ EventType, payload any) (Event, error) {
	rs := b.runStateFor(runID)

	rs.mu.Lock()
	if rs.terminal {
		rs.mu.Unlock()
		return Event{}, coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, runID, "cannot publish after run terminal event", nil)
	}
	ev := Event{
		RunID:   runID,
		EventID: rs.lastEventID + 1,
		Type:    typ,
		TS:      time.Now().UTC(),
		Payload: MarshalPayload(payload),
	}
	rs.lastEventID = ev.EventID
	rs.lastActivity = ev.TS
	applyToSnapshot(&rs.snap, ev)
	if typ.terminal() {
		rs.terminal = true
		rs.terminalAt = ev.TS
	}
	subs := make([]*Subscription, 0, len(rs.subscribers))
	for s := range rs.subscribers {
		subs = append(subs, s)
	}
	terminal := rs.terminal
	rs.mu.Unlock()

	if err := b.journal.RecordEvent(ctx, ev); err != nil {
		return Event{}, err
	}

	for _, s := range subs {
		s.deliver(ev)
	}

	if b.forwarder != nil {
		go b.forwarder.Forward(context.Background(), ev)
	}

	if terminal {
		go b.scheduleCleanup(runID, rs)
	}
	return ev, nil
}

// Ingest delivers an event that was already assigned an id and durably
// recorded by another process's Bus (see eventbus/pulse), fanning it out to
// this process's local subscribers without re-journaling or re-numbering it.
// Out-of-order or duplicate deliveries are ignored.
func (b *Bus) Ingest(ev Event) {
	rs := b.runStateFor(ev.RunID)

	rs.mu.Lock()
	if ev.EventID <= rs.lastEventID {
		rs.mu.Unlock()
		return
	}
	rs.lastEventID = ev.EventID
	rs.lastActivity = ev.TS
	applyToSnapshot(&rs.snap, ev)
	if ev.Type.terminal() {
		rs.terminal = true
		rs.terminalAt = ev.TS
	}
	subs := make([]*Subscription, 0, len(rs.subscribers))
	for s := range rs.subscribers {
		subs = append(subs, s)
	}
	terminal := rs.terminal
	rs.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev)
	}
	if terminal {
		go b.scheduleCleanup(ev.RunID, rs)
	}
}

// Subscribe registers a live subscriber and replays journaled events with
// event_id > afterEventID before the first live event is observed. The
// replay-then-tail splice is race-free: the subscriber is registered for live
// delivery before the historical window is computed, so no event can be lost
// in between.
func (b *Bus) Subscribe(ctx context.Context, runID string, afterEventID int64) (*Subscription, error) {
	rs := b.runStateFor(runID)

	sub := newSubscription(b, rs, b.queueSize)

	rs.mu.Lock()
	snapshotLastID := rs.lastEventID
	if !rs.terminal {
		rs.subscribers[sub] = struct{}{}
	}
	alreadyTerminal := rs.terminal
	if rs.heartbeatDone == nil && !rs.terminal {
		rs.heartbeatDone = make(chan struct{})
		go b.runHeartbeat(runID, rs, rs.heartbeatDone)
	}
	rs.mu.Unlock()

	history, err := b.journal.ReadEventsAfter(ctx, runID, afterEventID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	for _, ev := range history {
		if ev.EventID <= snapshotLastID {
			sub.deliver(ev)
		}
	}
	if alreadyTerminal {
		sub.Close()
	}
	return sub, nil
}

// Snapshot returns the Bus's derived, folded view of a run (spec.md §4.3).
func (b *Bus) Snapshot(runID string) Snapshot {
	rs := b.runStateFor(runID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.snap.clone()
}

func (b *Bus) unregister(rs *runState, sub *Subscription) {
	rs.mu.Lock()
	delete(rs.subscribers, sub)
	rs.mu.Unlock()
}

func (b *Bus) runHeartbeat(runID string, rs *runState, done chan struct{}) {
	ticker := time.NewTicker(b.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rs.mu.Lock()
			idle := time.Since(rs.lastActivity) >= b.heartbeatInterval
			terminal := rs.terminal
			rs.mu.Unlock()
			if terminal {
				return
			}
			if idle {
				_, _ = b.Publish(context.Background(), runID, EventHeartbeat, HeartbeatPayload{TS: time.Now().UTC()})
			}
		}
	}
}

// scheduleCleanup closes all subscriptions and stops the heartbeat goroutine
// terminalGrace after a run's done/error event, then drops the run's live
// state; the Journal retains the durable history.
func (b *Bus) scheduleCleanup(runID string, rs *runState) {
	time.Sleep(terminalGrace)

	rs.mu.Lock()
	subs := make([]*Subscription, 0, len(rs.subscribers))
	for s := range rs.subscribers {
		subs = append(subs, s)
	}
	hbDone := rs.heartbeatDone
	rs.mu.Unlock()

	if hbDone != nil {
		close(hbDone)
	}
	for _, s := range subs {
		s.Close()
	}

	b.mu.Lock()
	delete(b.runs, runID)
	b.mu.Unlock()
}
