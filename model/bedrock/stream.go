package bedrock

import (
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/resumeforge/tailorcore/model"
)

// streamer adapts a Bedrock ConverseStream event stream into the model.Streamer
// contract, mirroring the anthropic and openai adapters' goroutine + buffered
// channel shape.
type streamer struct {
	cancel context.CancelFunc
	ch     chan model.Chunk

	closeOnce sync.Once
	done      chan struct{}
	raw       *bedrockruntime.ConverseStreamEventStream

	mu      sync.Mutex
	readErr error
}

func newStreamer(ctx context.Context, raw *bedrockruntime.ConverseStreamEventStream) *streamer {
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
	defer s.raw.Close()

	events := s.raw.Events()
	for {
		select {
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		case event, ok := <-events:
			if !ok {
				if err := s.raw.Err(); err != nil {
					s.setErr(classify(err))
				}
				return
			}
			if done := s.handle(ctx, event); done {
				return
			}
		}
	}
}

// handle translates one Bedrock event into zero or more model.Chunk values.
// It returns true when the send loop should stop (context cancelled).
func (s *streamer) handle(ctx context.Context, event bedrockruntime.ConverseStreamOutput) bool {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		if ev.Value.Delta == nil {
			return false
		}
		if textDelta, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok && textDelta.Value != "" {
			return !s.send(ctx, model.Chunk{Type: model.ChunkDeltaText, DeltaText: textDelta.Value})
		}
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		reason := string(ev.Value.StopReason)
		return !s.send(ctx, model.Chunk{Type: model.ChunkFinishReason, FinishReason: reason})
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return false
		}
		usage := model.TokenUsage{
			InputTokens:  int32Deref(ev.Value.Usage.InputTokens),
			OutputTokens: int32Deref(ev.Value.Usage.OutputTokens),
		}
		return !s.send(ctx, model.Chunk{Type: model.ChunkUsageUpdate, Usage: &usage})
	}
	return false
}

func int32Deref(p *int32) int {
	if p == nil {
		return 0
	}
	return int(*p)
}

func (s *streamer) send(ctx context.Context, c model.Chunk) bool {
	select {
	case s.ch <- c:
		return true
	case <-ctx.Done():
		s.setErr(ctx.Err())
		return false
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
	return nil
}
