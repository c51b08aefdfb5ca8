// Package pulse forwards Event Bus traffic across process boundaries using
// goa.design/pulse replicated streams, so a run started on one API server
// instance can be tailed by an SSE subscriber attached to another. It is
// grounded on the teacher's features/stream/pulse.Sink: the same
// envelope-then-publish shape, the same narrow client interface the teacher
// wraps the real Pulse client behind (so tests never need a live Redis).
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/resumeforge/tailorcore/eventbus"
)

// StreamHandle is the subset of a goa.design/pulse stream handle the relay
// needs: append an entry, and consume entries as they arrive.
type StreamHandle interface {
	Add(ctx context.Context, eventType string, payload []byte) (entryID string, err error)
	Subscribe(ctx context.Context) (<-chan StreamEntry, error)
}

// StreamEntry is one delivered Pulse stream entry.
type StreamEntry struct {
	ID      string
	Type    string
	Payload []byte
}

// Client opens per-run Pulse streams. Implementations typically wrap
// *rmap.Map / the Pulse streaming client the way the teacher's
// clients/pulse.Client wraps its Redis-backed stream handles.
type Client interface {
	Stream(ctx context.Context, streamID string) (StreamHandle, error)
}

// envelope is the wire shape published to the Pulse stream: an Event plus
// enough metadata for a remote Bus to call Ingest without re-deriving it.
type envelope struct {
	RunID   string          `json:"run_id"`
	EventID int64           `json:"event_id"`
	Type    string          `json:"type"`
	TS      string          `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Relay implements eventbus.Forwarder by publishing to a Pulse stream, and
// separately consumes that same stream to Ingest events into a local Bus —
// the two directions let every process in a cluster both originate and
// observe any run's events.
type Relay struct {
	client Client
	bus    *eventbus.Bus
}

// NewRelay builds a Relay that forwards outbound events from bus into Pulse
// streams via client, and feeds consumed remote events back into bus.Ingest.
func NewRelay(client Client, bus *eventbus.Bus) (*Relay, error) {
	if client == nil {
		return nil, errors.New("pulse: client is required")
	}
	if bus == nil {
		return nil, errors.New("pulse: bus is required")
	}
	return &Relay{client: client, bus: bus}, nil
}

func streamID(runID string) string {
	return fmt.Sprintf("run/%s/events", runID)
}

// Forward implements eventbus.Forwarder.
func (r *Relay) Forward(ctx context.Context, ev eventbus.Event) error {
	handle, err := r.client.Stream(ctx, streamID(ev.RunID))
	if err != nil {
		return fmt.Errorf("pulse: open stream: %w", err)
	}
	env := envelope{
		RunID:   ev.RunID,
		EventID: ev.EventID,
		Type:    string(ev.Type),
		TS:      ev.TS.Format(envelopeTimeLayout),
		Payload: ev.Payload,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pulse: marshal envelope: %w", err)
	}
	_, err = handle.Add(ctx, env.Type, payload)
	return err
}

// Tail subscribes to runID's Pulse stream and ingests every delivered entry
// into the local Bus until ctx is canceled. Call once per run a process is
// actively serving SSE subscribers for but did not itself originate.
func (r *Relay) Tail(ctx context.Context, runID string) error {
	handle, err := r.client.Stream(ctx, streamID(runID))
	if err != nil {
		return fmt.Errorf("pulse: open stream: %w", err)
	}
	entries, err := handle.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("pulse: subscribe: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal(entry.Payload, &env); err != nil {
				continue
			}
			ts, err := parseTimestamp(env.TS)
			if err != nil {
				continue
			}
			r.bus.Ingest(eventbus.Event{
				RunID:   env.RunID,
				EventID: env.EventID,
				Type:    eventbus.EventType(env.Type),
				TS:      ts,
				Payload: env.Payload,
			})
		}
	}
}
