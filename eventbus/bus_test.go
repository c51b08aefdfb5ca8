package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJournal is an in-memory Journal double for tests.
type fakeJournal struct {
	mu     sync.Mutex
	events map[string][]Event
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{events: make(map[string][]Event)}
}

func (f *fakeJournal) RecordEvent(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.RunID] = append(f.events[ev.RunID], ev)
	return nil
}

func (f *fakeJournal) ReadEventsAfter(ctx context.Context, runID string, afterEventID int64) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events[runID] {
		if ev.EventID > afterEventID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestPublishAssignsStrictlyIncreasingEventIDs(t *testing.T) {
	bus := New(newFakeJournal(), 0, time.Hour)
	ctx := context.Background()

	ev1, err := bus.Publish(ctx, "run-1", EventJobStarted, JobStartedPayload{ResumeLength: 100})
	require.NoError(t, err)
	ev2, err := bus.Publish(ctx, "run-1", EventAgentStep, AgentStepPayload{AgentIndex: 0, Status: "started"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), ev1.EventID)
	assert.Equal(t, int64(2), ev2.EventID)
}

func TestSubscribeReplaysHistoryThenTailsLive(t *testing.T) {
	bus := New(newFakeJournal(), 0, time.Hour)
	ctx := context.Background()

	_, err := bus.Publish(ctx, "run-1", EventJobStarted, JobStartedPayload{})
	require.NoError(t, err)
	_, err = bus.Publish(ctx, "run-1", EventAgentStep, AgentStepPayload{AgentIndex: 0, Status: "started"})
	require.NoError(t, err)

	sub, err := bus.Subscribe(ctx, "run-1", 0)
	require.NoError(t, err)
	defer sub.Close()

	ev, ok, err := sub.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), ev.EventID)

	ev, ok, err = sub.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), ev.EventID)

	_, err = bus.Publish(ctx, "run-1", EventAgentStep, AgentStepPayload{AgentIndex: 0, Status: "completed"})
	require.NoError(t, err)

	ev, ok, err = sub.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), ev.EventID)
}

func TestSubscribeAfterEventIDSkipsAlreadySeen(t *testing.T) {
	bus := New(newFakeJournal(), 0, time.Hour)
	ctx := context.Background()

	_, _ = bus.Publish(ctx, "run-1", EventJobStarted, JobStartedPayload{})
	_, _ = bus.Publish(ctx, "run-1", EventAgentStep, AgentStepPayload{AgentIndex: 0})

	sub, err := bus.Subscribe(ctx, "run-1", 1)
	require.NoError(t, err)
	defer sub.Close()

	ev, ok, err := sub.Recv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), ev.EventID)
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	bus := New(newFakeJournal(), 2, time.Hour)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "run-1", 0)
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 10; i++ {
		_, _ = bus.Publish(ctx, "run-1", EventAgentChunk, AgentChunkPayload{AgentIndex: 0, Text: "x"})
	}

	var sawSlowConsumer bool
	for i := 0; i < 5; i++ {
		_, ok, err := sub.Recv()
		if err == ErrSlowConsumer {
			sawSlowConsumer = true
			break
		}
		if !ok {
			break
		}
	}
	assert.True(t, sawSlowConsumer)
}

func TestSnapshotFoldsEvents(t *testing.T) {
	bus := New(newFakeJournal(), 0, time.Hour)
	ctx := context.Background()

	_, _ = bus.Publish(ctx, "run-1", EventJobStarted, JobStartedPayload{})
	_, _ = bus.Publish(ctx, "run-1", EventAgentStep, AgentStepPayload{AgentIndex: 0, Status: "completed"})
	_, _ = bus.Publish(ctx, "run-1", EventInsight, InsightPayload{InsightID: "i1", Message: "nice phrasing"})

	snap := bus.Snapshot("run-1")
	assert.Equal(t, "running", snap.Status)
	assert.Equal(t, []int{0}, snap.CompletedSteps)
	assert.Len(t, snap.Insights, 1)
	assert.Equal(t, int64(3), snap.LastEventID)
}

func TestPublishAfterTerminalEventIsRejected(t *testing.T) {
	bus := New(newFakeJournal(), 0, time.Hour)
	ctx := context.Background()

	_, _ = bus.Publish(ctx, "run-1", EventJobStarted, JobStartedPayload{})
	_, err := bus.Publish(ctx, "run-1", EventDone, DonePayload{OverallStatus: "completed"})
	require.NoError(t, err)

	_, err = bus.Publish(ctx, "run-1", EventAgentStep, AgentStepPayload{})
	assert.Error(t, err)
}
