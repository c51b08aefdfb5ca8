package anthropic

import (
	"context"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/resumeforge/tailorcore/model"
)

// streamer adapts an Anthropic SSE event stream into the model.Streamer
// contract via a goroutine feeding a buffered channel, the same shape the
// teacher's anthropicStreamer uses.
type streamer struct {
	cancel context.CancelFunc
	ch     chan model.Chunk

	closeOnce sync.Once
	done      chan struct{}
	raw       *ssestream.Stream[sdk.MessageStreamEventUnion]

	mu      sync.Mutex
	readErr error
}

func newStreamer(ctx context.Context, raw *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
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
		event := s.raw.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" {
					select {
					case s.ch <- model.Chunk{Type: model.ChunkDeltaText, DeltaText: delta.Text}:
					case <-ctx.Done():
						s.setErr(ctx.Err())
						return
					}
				}
			}
		case sdk.MessageDeltaEvent:
			usage := model.TokenUsage{
				InputTokens:  int(ev.Usage.InputTokens),
				OutputTokens: int(ev.Usage.OutputTokens),
			}
			select {
			case s.ch <- model.Chunk{Type: model.ChunkUsageUpdate, Usage: &usage}:
			case <-ctx.Done():
				s.setErr(ctx.Err())
				return
			}
		case sdk.MessageStopEvent:
			select {
			case s.ch <- model.Chunk{Type: model.ChunkFinishReason, FinishReason: "stop"}:
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
