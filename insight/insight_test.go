package insight

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/model"
)

type fakeJournal struct {
	mu     sync.Mutex
	events map[string][]eventbus.Event
}

func newFakeJournal() *fakeJournal { return &fakeJournal{events: make(map[string][]eventbus.Event)} }

func (f *fakeJournal) RecordEvent(ctx context.Context, ev eventbus.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.RunID] = append(f.events[ev.RunID], ev)
	return nil
}

func (f *fakeJournal) ReadEventsAfter(ctx context.Context, runID string, after int64) ([]eventbus.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eventbus.Event
	for _, ev := range f.events[runID] {
		if ev.EventID > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

// fakeStreamer yields a fixed sequence of chunks.
type fakeStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	if f.idx >= len(f.chunks) {
		return model.Chunk{}, errors.New("eof")
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, nil
}

func (f *fakeStreamer) Close() error { return nil }

type fakeClient struct {
	text string
	err  error
}

func (c *fakeClient) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkDeltaText, DeltaText: c.text},
		{Type: model.ChunkFinishReason, FinishReason: "stop"},
	}}, nil
}

func TestParseInsightJSONToleratesProseAndFences(t *testing.T) {
	p, err := parseInsightJSON("Sure, here you go:\n```json\n{\"category\": \"keyword\", \"importance\": \"high\", \"message\": \"Found 3 missing ATS keywords.\"}\n```\nHope that helps!")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "keyword", p.Category)
	assert.Equal(t, "high", p.Importance)
}

func TestParseInsightJSONEmptyInputYieldsNilNoError(t *testing.T) {
	p, err := parseInsightJSON("   ")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestTapPublishesInsightOnFlush(t *testing.T) {
	journal := newFakeJournal()
	bus := eventbus.New(journal, eventbus.DefaultQueueSize, time.Hour)
	client := &fakeClient{text: `{"category": "keyword", "importance": "medium", "message": "Added a quantifiable metric to the summary."}`}

	ex := New(client, "anthropic::claude-haiku-4-5", bus, WithFlush(4, 50*time.Millisecond))
	tap := ex.NewTap(context.Background(), "run-1", 2, 2)
	tap.Push("this is more than four characters")
	tap.Close()

	evs, err := journal.ReadEventsAfter(context.Background(), "run-1", 0)
	require.NoError(t, err)

	var found bool
	for _, ev := range evs {
		if ev.Type == eventbus.EventInsight {
			found = true
		}
	}
	assert.True(t, found, "expected an insight event to have been recorded")
}

func TestTapSwallowsExtractionFailureWithoutPanicking(t *testing.T) {
	journal := newFakeJournal()
	bus := eventbus.New(journal, eventbus.DefaultQueueSize, time.Hour)
	client := &fakeClient{err: errors.New("boom")}

	var mu sync.Mutex
	var failures int
	metrics := metricsFunc{onFailure: func(string) {
		mu.Lock()
		failures++
		mu.Unlock()
	}}

	ex := New(client, "anthropic::claude-haiku-4-5", bus, WithFlush(1, 10*time.Millisecond), WithMetrics(metrics))
	tap := ex.NewTap(context.Background(), "run-1", 2, 2)
	tap.Push("x")
	tap.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, failures, 1)
}

func TestTapDropsOldestBatchWhenQueueFull(t *testing.T) {
	journal := newFakeJournal()
	bus := eventbus.New(journal, eventbus.DefaultQueueSize, time.Hour)

	blocker := make(chan struct{})
	client := &blockingClient{blocker: blocker}

	var mu sync.Mutex
	var drops int
	metrics := metricsFunc{onDrop: func(string) {
		mu.Lock()
		drops++
		mu.Unlock()
	}}

	ex := New(client, "anthropic::claude-haiku-4-5", bus, WithFlush(1, time.Hour), WithMaxQueuedBatches(1), WithMetrics(metrics))
	tap := ex.NewTap(context.Background(), "run-1", 0, 0)

	tap.Push("a")
	tap.Push("b")
	tap.Push("c")
	time.Sleep(20 * time.Millisecond)
	close(blocker)
	tap.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, drops, 1)
}

type blockingClient struct{ blocker chan struct{} }

func (c *blockingClient) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	<-c.blocker
	return &fakeStreamer{chunks: []model.Chunk{{Type: model.ChunkFinishReason, FinishReason: "stop"}}}, nil
}

type metricsFunc struct {
	onDrop    func(string)
	onFailure func(string)
}

func (m metricsFunc) IncInsightDrop(runID string) {
	if m.onDrop != nil {
		m.onDrop(runID)
	}
}

func (m metricsFunc) IncInsightFailure(runID string) {
	if m.onFailure != nil {
		m.onFailure(runID)
	}
}
