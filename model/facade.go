package model

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/resumeforge/tailorcore/coreerrors"
)

// Facade wraps a provider-specific Client with the cross-cutting behavior
// spec.md §4.2 requires of every provider: a wall-clock deadline per call,
// and a guarantee that at least one usage_update is observed before the
// stream completes, estimating it from EstimateInputTokens and
// EstimateTextTokens when the provider
// never reports usage.
//
// Facade itself performs no retries and no caching; see orchestrator for
// retry policy.
type Facade struct {
	next     Client
	deadline time.Duration
	provider string
}

// NewFacade wraps next with the given per-call wall-clock deadline (spec.md
// default 300s, configurable via AGENT_TIMEOUT_SECONDS). provider is a short
// label ("anthropic", "openai", "bedrock") used only for error attribution.
func NewFacade(provider string, next Client, deadline time.Duration) *Facade {
	if deadline <= 0 {
		deadline = 300 * time.Second
	}
	return &Facade{next: next, deadline: deadline, provider: provider}
}

// GenerateStream enforces the deadline and wraps the resulting Streamer so
// that usage is guaranteed before completion.
func (f *Facade) GenerateStream(ctx context.Context, req Request) (Streamer, error) {
	cctx, cancel := context.WithTimeout(ctx, f.deadline)
	inner, err := f.next.GenerateStream(cctx, req)
	if err != nil {
		cancel()
		return nil, classifyProviderErr(f.provider, err)
	}
	return &guaranteedUsageStreamer{
		ctx:      cctx,
		cancel:   cancel,
		inner:    inner,
		provider: f.provider,
		estimate: EstimateInputTokens(req),
	}, nil
}

// guaranteedUsageStreamer wraps a provider Streamer, translating context
// deadline expiry into coreerrors.TypeTimeout and synthesizing a terminal
// usage_update chunk (marked Estimated) if the wrapped stream never emitted one.
type guaranteedUsageStreamer struct {
	ctx      context.Context
	cancel   context.CancelFunc
	inner    Streamer
	provider string
	estimate int

	sawUsage     bool
	observedOut  int
	pendingFinal *Chunk
	closed       bool
}

func (s *guaranteedUsageStreamer) Recv() (Chunk, error) {
	if s.pendingFinal != nil {
		c := *s.pendingFinal
		s.pendingFinal = nil
		return c, nil
	}
	chunk, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if !s.sawUsage {
				s.sawUsage = true
				s.pendingFinal = &Chunk{Type: ChunkUsageUpdate, Usage: &TokenUsage{
					InputTokens:  s.estimate,
					OutputTokens: s.observedOut,
					Estimated:    true,
				}}
				return Chunk{Type: ChunkFinishReason, FinishReason: "stop"}, nil
			}
			return Chunk{}, io.EOF
		}
		if s.ctx.Err() != nil {
			return Chunk{}, coreerrors.New(coreerrors.Transient, coreerrors.TypeTimeout, "", "provider call exceeded deadline", s.ctx.Err())
		}
		return Chunk{}, classifyProviderErr(s.provider, err)
	}
	if chunk.Type == ChunkUsageUpdate {
		s.sawUsage = true
	}
	if chunk.Type == ChunkDeltaText {
		s.observedOut += EstimateTextTokens(chunk.DeltaText)
	}
	return chunk, nil
}

func (s *guaranteedUsageStreamer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.cancel()
	return s.inner.Close()
}

// classifyProviderErr normalizes an arbitrary provider error into the
// coreerrors taxonomy required by spec.md §4.2. Adapters may already return a
// *coreerrors.CoreError (e.g. from an SDK-specific classifier), in which case
// it is passed through unchanged.
func classifyProviderErr(provider string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := coreerrors.As(err); ok {
		return ce
	}
	return coreerrors.New(coreerrors.Transient, coreerrors.TypeNetwork, "", provider+": "+err.Error(), err)
}
