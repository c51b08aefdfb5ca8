// Package agents implements the five fixed pipeline agents (spec.md §4.6,
// C6): Job Analyzer, Strategy Planner, Resume Builder, Validator, and
// Polisher. It is grounded on the teacher's runtime/agent/engine (the
// generate-then-parse-then-record-usage loop) and runtime/agent/model
// (streaming Chunk consumption), generalized from the teacher's tool-calling
// engine to this system's fixed, toolless, single-turn-per-agent contract.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/model"
	"github.com/resumeforge/tailorcore/registry"
)

// InsightSink is the narrow interface an agent run feeds streamed text into;
// *insight.Tap satisfies it structurally (spec.md §4.5's insight_sink.push).
type InsightSink interface {
	Push(text string)
}

// EventPublisher is the narrow slice of eventbus.Bus a runner needs.
type EventPublisher interface {
	Publish(ctx context.Context, runID string, typ eventbus.EventType, payload any) (eventbus.Event, error)
}

// Pricer is the narrow slice of registry.Registry a runner needs.
type Pricer interface {
	Price(modelID string, tokensIn, tokensOut, thinkingTokens int) (int64, error)
}

var _ Pricer = (*registry.Registry)(nil)

// AgentOutput is the parsed, costed result of one agent execution
// (spec.md §3's AgentOutput entity).
type AgentOutput struct {
	AgentIndex     int
	AgentName      string
	OutputJSON     json.RawMessage
	RawText        string
	TokensIn       int
	TokensOut      int
	ThinkingTokens int
	CostMicroUSD   int64
	ModelID        string
	DurationMS     int64
}

// RunContext carries the collaborators a single agent invocation needs.
type RunContext struct {
	RunID   string
	ModelID string
	Client  model.Client
	Pricer  Pricer
	Bus     EventPublisher
	Insight InsightSink // nil for agents that do not produce an insight tap
}

// Parser turns the agent's concatenated raw text response into its
// canonical JSON output. A returned error that is already a
// *coreerrors.CoreError is propagated verbatim; any other error is wrapped
// as a RECOVERABLE AGENT_PARSE error by execute.
type Parser func(rawText string) (json.RawMessage, error)

// execute runs the shared generate-stream -> accumulate -> parse -> cost
// -> publish pipeline common to every agent (spec.md §4.6).
func execute(ctx context.Context, rc RunContext, agentIndex int, agentName, systemPrompt, userPrompt string, parse Parser) (AgentOutput, error) {
	start := time.Now()

	req := model.Request{
		ModelID:           rc.ModelID,
		SystemInstruction: systemPrompt,
		Messages:          []model.Message{{Role: model.RoleUser, Content: userPrompt}},
		Temperature:       0.3,
		MaxTokens:         8192,
	}

	stream, err := rc.Client.GenerateStream(ctx, req)
	if err != nil {
		return AgentOutput{}, classifyStreamErr(rc.RunID, err)
	}
	defer stream.Close()

	var text strings.Builder
	var usage model.TokenUsage
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return AgentOutput{}, classifyStreamErr(rc.RunID, err)
		}
		switch chunk.Type {
		case model.ChunkDeltaText:
			text.WriteString(chunk.DeltaText)
			if rc.Bus != nil {
				_, _ = rc.Bus.Publish(ctx, rc.RunID, eventbus.EventAgentChunk, eventbus.AgentChunkPayload{
					AgentIndex: agentIndex, Text: chunk.DeltaText,
				})
			}
			if rc.Insight != nil {
				rc.Insight.Push(chunk.DeltaText)
			}
		case model.ChunkUsageUpdate:
			if chunk.Usage != nil {
				// Usage updates are summed, not replaced: spec.md §4.6
				// requires attributing every partial usage_update a
				// provider emits.
				usage.InputTokens += chunk.Usage.InputTokens
				usage.OutputTokens += chunk.Usage.OutputTokens
				usage.ThinkingTokens += chunk.Usage.ThinkingTokens
			}
		case model.ChunkFinishReason:
			// Informational only; draining continues until Recv reports EOF
			// in case a provider emits trailing usage after the finish chunk.
		}
	}

	rawText := text.String()
	outputJSON, perr := parse(rawText)
	if perr != nil {
		var ce *coreerrors.CoreError
		if errors.As(perr, &ce) {
			return AgentOutput{}, ce
		}
		return AgentOutput{}, coreerrors.New(coreerrors.Recoverable, coreerrors.TypeAgentParse, rc.RunID, perr.Error(), perr)
	}

	// The sentinel/fence parse above already produced a well-formed document;
	// this is the additional schema acceptance gate before it becomes
	// checkpoint-worthy (spec.md's Open Question on output strictness).
	if serr := validateSchema(agentName, outputJSON); serr != nil {
		var ce *coreerrors.CoreError
		if errors.As(serr, &ce) {
			ce.RunID = rc.RunID
			return AgentOutput{}, ce
		}
		return AgentOutput{}, coreerrors.New(coreerrors.Recoverable, coreerrors.TypeAgentParse, rc.RunID, serr.Error(), serr)
	}

	cost, cerr := rc.Pricer.Price(rc.ModelID, usage.InputTokens, usage.OutputTokens, usage.ThinkingTokens)
	if cerr != nil {
		return AgentOutput{}, coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, rc.RunID, "pricing lookup failed for model "+rc.ModelID, cerr)
	}

	out := AgentOutput{
		AgentIndex:     agentIndex,
		AgentName:      agentName,
		OutputJSON:     outputJSON,
		RawText:        rawText,
		TokensIn:       usage.InputTokens,
		TokensOut:      usage.OutputTokens,
		ThinkingTokens: usage.ThinkingTokens,
		CostMicroUSD:   cost,
		ModelID:        rc.ModelID,
		DurationMS:     time.Since(start).Milliseconds(),
	}

	if rc.Bus != nil {
		_, _ = rc.Bus.Publish(ctx, rc.RunID, eventbus.EventAgentStep, eventbus.AgentStepPayload{
			AgentIndex:     agentIndex,
			AgentName:      agentName,
			Status:         "completed",
			TokensIn:       out.TokensIn,
			TokensOut:      out.TokensOut,
			ThinkingTokens: out.ThinkingTokens,
			CostMicroUSD:   out.CostMicroUSD,
			DurationMS:     out.DurationMS,
		})
	}
	return out, nil
}

func classifyStreamErr(runID string, err error) error {
	var ce *coreerrors.CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return coreerrors.New(coreerrors.Transient, coreerrors.TypeNetwork, runID, err.Error(), err)
}
