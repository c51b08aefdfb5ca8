// Package eventbus implements the per-run ordered append-only Event Bus
// (spec.md §4.3, C3): subscribe/replay semantics, strictly increasing event
// ids, heartbeats, and bounded per-subscriber queues with drop-on-overflow.
// It is grounded on the teacher's runtime/agent/hooks.Bus (the
// register/subscription/sync.Once idiom) and runtime/agent/runlog.Store (the
// append-only, cursor-free event log shape), generalized from hooks.Bus's
// synchronous single-process fan-out to a per-run, replay-capable log backed
// by a durable Journal.
package eventbus

import (
	"encoding/json"
	"time"
)

// EventType discriminates the payload shape of an Event (spec.md §4.3 table).
type EventType string

const (
	EventJobStarted EventType = "job_started"
	EventAgentStep  EventType = "agent_step"
	EventAgentChunk EventType = "agent_chunk"
	EventInsight    EventType = "insight"
	EventMetric     EventType = "metric"
	EventHeartbeat  EventType = "heartbeat"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

// terminal reports whether an EventType ends a run's event sequence.
func (t EventType) terminal() bool {
	return t == EventDone || t == EventError
}

// Event is a single immutable, append-only record in a run's event log.
// EventID is assigned by the Bus, strictly increasing and starting at 1.
type Event struct {
	RunID   string
	EventID int64
	Type    EventType
	TS      time.Time
	Payload json.RawMessage
}

// MarshalPayload is a convenience for constructing an Event's Payload from a
// typed struct (the JobStartedPayload / AgentStepPayload / ... types below).
func MarshalPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Payload types are internal, fixed-shape structs; a marshal failure
		// indicates a programming error, not a runtime condition callers can
		// recover from.
		panic("eventbus: payload marshal: " + err.Error())
	}
	return b
}

// JobStartedPayload is the job_started event payload.
type JobStartedPayload struct {
	ResumeLength  int            `json:"resume_length"`
	JobSource     string         `json:"job_source"`
	ModelsByAgent map[string]string `json:"models_by_agent"`
}

// AgentStepPayload is the agent_step event payload.
type AgentStepPayload struct {
	AgentIndex     int    `json:"agent_index"`
	AgentName      string `json:"agent_name"`
	Status         string `json:"status"`
	TokensIn       int    `json:"tokens_in"`
	TokensOut      int    `json:"tokens_out"`
	ThinkingTokens int    `json:"thinking_tokens"`
	CostMicroUSD   int64  `json:"cost_micro_usd"`
	DurationMS     int64  `json:"duration_ms"`
	// FromCheckpoint marks a synthetic completed step replayed from a prior
	// run's checkpoint on resume (spec.md §4.7 sequencing), rather than a
	// freshly executed agent call.
	FromCheckpoint bool `json:"from_checkpoint,omitempty"`
}

// AgentChunkPayload is the agent_chunk event payload.
type AgentChunkPayload struct {
	AgentIndex int    `json:"agent_index"`
	Text       string `json:"text"`
}

// InsightPayload is the insight event payload.
type InsightPayload struct {
	InsightID  string `json:"insight_id"`
	Category   string `json:"category"`
	Importance string `json:"importance"`
	Message    string `json:"message"`
	Step       int    `json:"step"`
}

// MetricPayload is the metric event payload.
type MetricPayload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// HeartbeatPayload is the heartbeat event payload.
type HeartbeatPayload struct {
	TS time.Time `json:"ts"`
}

// ErrorPayload is the error event payload. Message is already PII-sanitized
// by coreerrors.Sanitize before publication.
type ErrorPayload struct {
	ErrorID  string `json:"error_id"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Message  string `json:"message"`
}

// DonePayload is the done event payload.
type DonePayload struct {
	OverallStatus   string `json:"overall_status"`
	TotalCostMicro  int64  `json:"total_cost_micro_usd"`
	CheckpointCount int    `json:"checkpoint_count"`
}
