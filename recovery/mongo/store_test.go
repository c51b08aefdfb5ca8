package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/recovery"
)

// These tests exercise the document<->domain translation helpers directly;
// the collection-backed methods require a live MongoDB and have no tests in
// this package.

func TestSessionDocRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	errRec := recovery.ErrorRecord{ErrorID: "e1", RunID: "run-1", Category: "TRANSIENT", Type: "RATE_LIMITED", Message: "rate limited", CreatedAt: now}
	sess := recovery.RecoverySession{
		RunID:           "run-1",
		FormData:        map[string]any{"name": "Ada"},
		Status:          recovery.StatusRunning,
		CompletedAgents: []int{0, 1},
		ErrorContext:    &errRec,
		RetryCount:      2,
		CreatedAt:       now,
		ExpiresAt:       now.Add(7 * 24 * time.Hour),
	}

	doc := toSessionDoc(sess)
	back := doc.toDomain()

	assert.Equal(t, sess.RunID, back.RunID)
	assert.Equal(t, sess.Status, back.Status)
	assert.Equal(t, sess.CompletedAgents, back.CompletedAgents)
	assert.Equal(t, sess.RetryCount, back.RetryCount)
	assert.Equal(t, sess.CreatedAt, back.CreatedAt)
	assert.Equal(t, sess.ExpiresAt, back.ExpiresAt)
	if assert.NotNil(t, back.ErrorContext) {
		assert.Equal(t, errRec.ErrorID, back.ErrorContext.ErrorID)
		assert.Equal(t, errRec.Message, back.ErrorContext.Message)
	}
}

func TestCheckpointDocRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	cp := recovery.AgentCheckpoint{
		RunID:          "run-1",
		AgentIndex:     2,
		OutputJSON:     []byte(`{"ok":true}`),
		RawText:        "raw",
		TokensIn:       100,
		TokensOut:      200,
		ThinkingTokens: 50,
		CostMicroUSD:   12345,
		ModelID:        "anthropic::claude-sonnet-4-5",
		DurationMS:     1500,
		CreatedAt:      now,
	}

	back := toCheckpointDoc(cp).toDomain()
	assert.Equal(t, cp, back)
}

func TestEventDocRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ev := eventbus.Event{
		RunID:   "run-1",
		EventID: 7,
		Type:    eventbus.EventAgentChunk,
		TS:      now,
		Payload: eventbus.MarshalPayload(eventbus.AgentChunkPayload{AgentIndex: 1, Text: "hello"}),
	}

	back := toEventDoc(ev).toDomain()
	assert.Equal(t, ev.RunID, back.RunID)
	assert.Equal(t, ev.EventID, back.EventID)
	assert.Equal(t, ev.Type, back.Type)
	assert.Equal(t, ev.TS, back.TS)
	assert.JSONEq(t, string(ev.Payload), string(back.Payload))
}
