package pulse

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
)

// RedisClient implements Client over goa.design/pulse's Redis-backed
// streaming package, grounded on the teacher's
// features/stream/pulse/clients/pulse adapter (a thin New(Options)
// constructor wrapping a *redis.Client, one Pulse stream per call).
type RedisClient struct {
	redis *redis.Client
}

// NewRedisClient builds a Client backed by an existing Redis connection.
func NewRedisClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{redis: rdb}
}

// Stream implements Client.
func (c *RedisClient) Stream(ctx context.Context, streamID string) (StreamHandle, error) {
	str, err := streaming.NewStream(streamID, c.redis)
	if err != nil {
		return nil, fmt.Errorf("pulse: create stream %q: %w", streamID, err)
	}
	return &redisStreamHandle{stream: str, streamID: streamID}, nil
}

type redisStreamHandle struct {
	stream   *streaming.Stream
	streamID string
}

// Add implements StreamHandle.
func (h *redisStreamHandle) Add(ctx context.Context, eventType string, payload []byte) (string, error) {
	return h.stream.Add(ctx, eventType, payload)
}

// Subscribe implements StreamHandle, adapting a Pulse sink's
// *streaming.Event channel into this package's StreamEntry shape and
// acking each entry once delivered to the caller.
func (h *redisStreamHandle) Subscribe(ctx context.Context) (<-chan StreamEntry, error) {
	sink, err := h.stream.NewSink(ctx, "tailorcore-"+h.streamID)
	if err != nil {
		return nil, fmt.Errorf("pulse: create sink for %q: %w", h.streamID, err)
	}
	out := make(chan StreamEntry)
	go func() {
		defer close(out)
		defer sink.Close(context.Background())
		src := sink.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-src:
				if !ok {
					return
				}
				out <- StreamEntry{ID: ev.ID, Type: ev.EventName, Payload: ev.Payload}
				_ = sink.Ack(ctx, ev)
			}
		}
	}()
	return out, nil
}
