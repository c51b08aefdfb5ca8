package model

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamer replays a fixed chunk sequence, never emitting usage, to
// exercise the façade's usage_estimated fallback.
type fakeStreamer struct {
	chunks []Chunk
	idx    int
}

func (f *fakeStreamer) Recv() (Chunk, error) {
	if f.idx >= len(f.chunks) {
		return Chunk{}, io.EOF
	}
	c := f.chunks[f.idx]
	f.idx++
	return c, nil
}
func (f *fakeStreamer) Close() error { return nil }

type fakeClient struct {
	streamer Streamer
	err      error
}

func (f *fakeClient) GenerateStream(ctx context.Context, req Request) (Streamer, error) {
	return f.streamer, f.err
}

func TestFacadeEstimatesUsageWhenProviderOmitsIt(t *testing.T) {
	fc := &fakeClient{streamer: &fakeStreamer{chunks: []Chunk{
		{Type: ChunkDeltaText, DeltaText: "hello world"},
	}}}
	f := NewFacade("fake", fc, time.Second)
	s, err := f.GenerateStream(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi there"}}})
	require.NoError(t, err)
	defer s.Close()

	var sawUsage bool
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if c.Type == ChunkUsageUpdate {
			sawUsage = true
			assert.True(t, c.Usage.Estimated)
			assert.Greater(t, c.Usage.InputTokens, 0)
		}
	}
	assert.True(t, sawUsage, "facade must guarantee a usage_update before completion")
}

func TestFacadePassesThroughRealUsage(t *testing.T) {
	fc := &fakeClient{streamer: &fakeStreamer{chunks: []Chunk{
		{Type: ChunkDeltaText, DeltaText: "hi"},
		{Type: ChunkUsageUpdate, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 2}},
	}}}
	f := NewFacade("fake", fc, time.Second)
	s, err := f.GenerateStream(context.Background(), Request{})
	require.NoError(t, err)
	defer s.Close()

	var usageCount int
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if c.Type == ChunkUsageUpdate {
			usageCount++
			assert.False(t, c.Usage.Estimated)
		}
	}
	assert.Equal(t, 1, usageCount)
}

func TestFacadePropagatesClientError(t *testing.T) {
	fc := &fakeClient{err: errors.New("boom")}
	f := NewFacade("fake", fc, time.Millisecond)
	_, err := f.GenerateStream(context.Background(), Request{})
	require.Error(t, err)
}

func TestEstimateTextTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTextTokens(""))
	assert.Equal(t, 1, EstimateTextTokens("hi"))
	assert.Equal(t, 3, EstimateTextTokens("twelve-char!"))
}

func TestBareModelIDStripsProviderQualifier(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5", BareModelID("anthropic::claude-sonnet-4-5"))
	assert.Equal(t, "gpt-4.1", BareModelID("openai::gpt-4.1"))
}

func TestBareModelIDLeavesUnqualifiedIDUnchanged(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5", BareModelID("claude-sonnet-4-5"))
	assert.Equal(t, "", BareModelID(""))
}
