package pulse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/eventbus"
)

type fakeHandle struct {
	mu      sync.Mutex
	entries []StreamEntry
	sub     chan StreamEntry
}

func (h *fakeHandle) Add(ctx context.Context, eventType string, payload []byte) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry := StreamEntry{ID: "e", Type: eventType, Payload: payload}
	h.entries = append(h.entries, entry)
	if h.sub != nil {
		h.sub <- entry
	}
	return entry.ID, nil
}

// Subscribe replays any entries already Added (mirroring a real Pulse
// stream's retained history) and then keeps the returned channel open for
// live Adds, so callers never race between Add and Subscribe ordering.
func (h *fakeHandle) Subscribe(ctx context.Context) (<-chan StreamEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEntry, 16+len(h.entries))
	for _, e := range h.entries {
		ch <- e
	}
	h.sub = ch
	return ch, nil
}

type fakeClient struct {
	handles map[string]*fakeHandle
}

func newFakeClient() *fakeClient {
	return &fakeClient{handles: make(map[string]*fakeHandle)}
}

func (c *fakeClient) Stream(ctx context.Context, streamID string) (StreamHandle, error) {
	h, ok := c.handles[streamID]
	if !ok {
		h = &fakeHandle{}
		c.handles[streamID] = h
	}
	return h, nil
}

func TestRelayForwardThenTailIngestsIntoLocalBus(t *testing.T) {
	client := newFakeClient()

	originBus := eventbus.New(newFakeJournalForRelayTest(), 0, time.Hour)
	originRelay, err := NewRelay(client, originBus)
	require.NoError(t, err)
	originBus.SetForwarder(originRelay)

	remoteBus := eventbus.New(newFakeJournalForRelayTest(), 0, time.Hour)
	remoteRelay, err := NewRelay(client, remoteBus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go remoteRelay.Tail(ctx, "run-1")

	sub, err := remoteBus.Subscribe(ctx, "run-1", 0)
	require.NoError(t, err)
	defer sub.Close()

	_, err = originBus.Publish(ctx, "run-1", eventbus.EventJobStarted, eventbus.JobStartedPayload{ResumeLength: 42})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forwarded event")
		default:
		}
		ev, ok, err := sub.Recv()
		require.NoError(t, err)
		if ok {
			assert.Equal(t, int64(1), ev.EventID)
			assert.Equal(t, eventbus.EventJobStarted, ev.Type)
			return
		}
	}
}

// fakeJournalForRelayTest is a minimal in-memory eventbus.Journal, duplicated
// from eventbus's own test double since it is unexported there.
type fakeJournalForRelayTest struct {
	mu     sync.Mutex
	events map[string][]eventbus.Event
}

func newFakeJournalForRelayTest() *fakeJournalForRelayTest {
	return &fakeJournalForRelayTest{events: make(map[string][]eventbus.Event)}
}

func (f *fakeJournalForRelayTest) RecordEvent(ctx context.Context, ev eventbus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.RunID] = append(f.events[ev.RunID], ev)
	return nil
}

func (f *fakeJournalForRelayTest) ReadEventsAfter(ctx context.Context, runID string, afterEventID int64) ([]eventbus.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eventbus.Event
	for _, ev := range f.events[runID] {
		if ev.EventID > afterEventID {
			out = append(out, ev)
		}
	}
	return out, nil
}
