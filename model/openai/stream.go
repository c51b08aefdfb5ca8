package openai

import (
	"context"
	"io"
	"sync"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/resumeforge/tailorcore/model"
)

// streamer adapts an OpenAI chat-completion-chunk SSE stream into the
// model.Streamer contract, mirroring the anthropic adapter's goroutine +
// buffered channel shape.
type streamer struct {
	cancel context.CancelFunc
	ch     chan model.Chunk

	closeOnce sync.Once
	done      chan struct{}
	raw       *ssestream.Stream[sdk.ChatCompletionChunk]

	mu      sync.Mutex
	readErr error
}

func newStreamer(ctx context.Context, raw *ssestream.Stream[sdk.ChatCompletionChunk]) *streamer {
	ctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		cancel: cancel,
		ch:     make(chan model.Chunk, 32),
		done:   make(chan struct{}),
		raw:    raw,
	}
	go s.run(ctx)
	return s
}

func (s *streamer) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	for s.raw.Next() {
		if ctx.Err() != nil {
			s.setErr(ctx.Err())
			return
		}
		chunk := s.raw.Current()

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				select {
				case s.ch <- model.Chunk{Type: model.ChunkDeltaText, DeltaText: choice.Delta.Content}:
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
			}
			if choice.FinishReason != "" {
				select {
				case s.ch <- model.Chunk{Type: model.ChunkFinishReason, FinishReason: choice.FinishReason}:
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
			}
		}

		// The final chunk (IncludeUsage: true) carries usage with an empty
		// choices list.
		if chunk.Usage.TotalTokens > 0 {
			usage := model.TokenUsage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
			}
			select {
			case s.ch <- model.Chunk{Type: model.ChunkUsageUpdate, Usage: &usage}:
			case <-ctx.Done():
				s.setErr(ctx.Err())
				return
			}
		}
	}
	if err := s.raw.Err(); err != nil {
		s.setErr(classify(err))
	}
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil {
		s.readErr = err
	}
}

func (s *streamer) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func (s *streamer) Recv() (model.Chunk, error) {
	c, ok := <-s.ch
	if !ok {
		if err := s.err(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	}
	return c, nil
}

func (s *streamer) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return s.raw.Close()
}
