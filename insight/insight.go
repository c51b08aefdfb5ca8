// Package insight implements the Insight Extractor (spec.md §4.5, C5): a
// fire-and-forget tap on an agent's token stream that batches characters and
// asks a cheap, fast model for a single structured observation per batch,
// publishing each as an `insight` event. It is grounded on the teacher's
// runtime/agent/hooks.Bus fan-out/Subscriber shape, generalized from
// synchronous in-process delivery to a buffered background worker so a slow
// or failing insight call never blocks the agent producing the tokens.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/model"
)

const (
	// DefaultFlushChars is N in spec.md §4.5's flush condition.
	DefaultFlushChars = 400
	// DefaultFlushInterval is T in spec.md §4.5's flush condition.
	DefaultFlushInterval = time.Second
	// DefaultMaxQueuedBatches bounds the tap's pending-batch queue.
	DefaultMaxQueuedBatches = 64
)

// Metrics receives the tap's fire-and-forget failure/backpressure counters.
// A nil Metrics is valid; calls are then no-ops.
type Metrics interface {
	IncInsightDrop(runID string)
	IncInsightFailure(runID string)
}

// Extractor owns the insight model client and spawns Taps for individual
// agent runs.
type Extractor struct {
	client           model.Client
	modelID          string
	bus              *eventbus.Bus
	metrics          Metrics
	flushChars       int
	flushInterval    time.Duration
	maxQueuedBatches int
}

// Option configures an Extractor constructed by New.
type Option func(*Extractor)

// WithFlush overrides the default char/time flush thresholds.
func WithFlush(chars int, interval time.Duration) Option {
	return func(e *Extractor) {
		if chars > 0 {
			e.flushChars = chars
		}
		if interval > 0 {
			e.flushInterval = interval
		}
	}
}

// WithMaxQueuedBatches overrides the default queue bound.
func WithMaxQueuedBatches(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxQueuedBatches = n
		}
	}
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New constructs an Extractor. client and modelID select the insight model
// (spec.md's INSIGHT_MODEL); bus is where insight and metric events land.
func New(client model.Client, modelID string, bus *eventbus.Bus, opts ...Option) *Extractor {
	e := &Extractor{
		client:           client,
		modelID:          modelID,
		bus:              bus,
		flushChars:       DefaultFlushChars,
		flushInterval:    DefaultFlushInterval,
		maxQueuedBatches: DefaultMaxQueuedBatches,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tap is a single agent run's insight sink, matching the agent contract's
// insight_sink.push(tokens) (spec.md §4.6).
type Tap struct {
	ex         *Extractor
	runID      string
	agentIndex int
	step       int

	mu        sync.Mutex
	buf       strings.Builder
	lastFlush time.Time

	batches chan string
	drops   atomic.Int64

	wg       sync.WaitGroup
	tickStop chan struct{}
	workCtx  context.Context
	cancel   context.CancelFunc
}

// NewTap starts a Tap for one agent execution. step identifies the pipeline
// step the resulting Insight events are attributed to.
func (e *Extractor) NewTap(ctx context.Context, runID string, agentIndex, step int) *Tap {
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &Tap{
		ex:         e,
		runID:      runID,
		agentIndex: agentIndex,
		step:       step,
		lastFlush:  time.Now(),
		batches:    make(chan string, e.maxQueuedBatches),
		tickStop:   make(chan struct{}),
		workCtx:    workCtx,
		cancel:     cancel,
	}

	t.wg.Add(2)
	go t.runWorker()
	go t.runTicker()
	return t
}

// Push feeds newly streamed text into the tap. It never blocks the caller
// beyond a short mutex hold and flushes synchronously once the char
// threshold is crossed.
func (t *Tap) Push(text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	t.buf.WriteString(text)
	shouldFlush := t.buf.Len() >= t.ex.flushChars
	t.mu.Unlock()
	if shouldFlush {
		t.flush()
	}
}

// Close flushes any remaining buffered text and stops the tap's background
// goroutines. It cancels the tap's context before waiting, so queued and
// in-flight insight calls run against a cancelled context, since insight
// extraction is explicitly best-effort; it then waits for the goroutines to
// exit.
func (t *Tap) Close() {
	t.flush()
	close(t.tickStop)
	close(t.batches)
	t.cancel()
	t.wg.Wait()
}

func (t *Tap) flush() {
	t.mu.Lock()
	if t.buf.Len() == 0 {
		t.lastFlush = time.Now()
		t.mu.Unlock()
		return
	}
	batch := t.buf.String()
	t.buf.Reset()
	t.lastFlush = time.Now()
	t.mu.Unlock()

	select {
	case t.batches <- batch:
	default:
		// Queue full: drop the oldest queued batch to make room, per
		// spec.md §4.5's backpressure policy.
		select {
		case <-t.batches:
		default:
		}
		select {
		case t.batches <- batch:
		default:
		}
		n := t.drops.Add(1)
		if t.ex.metrics != nil {
			t.ex.metrics.IncInsightDrop(t.runID)
		}
		if t.ex.bus != nil {
			_, _ = t.ex.bus.Publish(t.workCtx, t.runID, eventbus.EventMetric, eventbus.MetricPayload{
				Name: "insight_drops", Value: float64(n), Unit: "count",
			})
		}
	}
}

func (t *Tap) runTicker() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.ex.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.tickStop:
			return
		case <-ticker.C:
			t.mu.Lock()
			idle := time.Since(t.lastFlush) >= t.ex.flushInterval
			t.mu.Unlock()
			if idle {
				t.flush()
			}
		}
	}
}

func (t *Tap) runWorker() {
	defer t.wg.Done()
	for batch := range t.batches {
		t.process(batch)
	}
}

func (t *Tap) process(batch string) {
	ins, err := t.ex.extract(t.workCtx, batch)
	if err != nil {
		if t.ex.metrics != nil {
			t.ex.metrics.IncInsightFailure(t.runID)
		}
		return
	}
	if ins == nil || t.ex.bus == nil {
		return
	}
	_, _ = t.ex.bus.Publish(t.workCtx, t.runID, eventbus.EventInsight, eventbus.InsightPayload{
		InsightID:  uuid.NewString(),
		Category:   ins.Category,
		Importance: ins.Importance,
		Message:    ins.Message,
		Step:       t.step,
	})
}

// parsedInsight is the shape extracted from the insight model's response.
type parsedInsight struct {
	Category   string `json:"category"`
	Importance string `json:"importance"`
	Message    string `json:"message"`
}

const insightSystemPrompt = `You mine a short, single observation from a fragment of a resume-optimization agent's in-progress output. Respond with exactly one JSON object: {"category": string, "importance": "low"|"medium"|"high", "message": string}. message must be a single sentence under 140 characters aimed at a user watching the process live. If the fragment contains nothing worth surfacing, respond with {"category": "none", "importance": "low", "message": ""}.`

// extract invokes the insight model on a single batch and parses its
// response. A nil result with nil error means the model judged the batch
// uninteresting.
func (e *Extractor) extract(ctx context.Context, batch string) (*parsedInsight, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := model.Request{
		ModelID:           e.modelID,
		SystemInstruction: insightSystemPrompt,
		Messages:          []model.Message{{Role: model.RoleUser, Content: batch}},
		Temperature:       0,
		MaxTokens:         200,
	}
	stream, err := e.client.GenerateStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		if chunk.Type == model.ChunkDeltaText {
			out.WriteString(chunk.DeltaText)
		}
		if chunk.Type == model.ChunkFinishReason {
			break
		}
	}

	parsed, err := parseInsightJSON(out.String())
	if err != nil {
		return nil, err
	}
	if parsed == nil || parsed.Category == "none" || strings.TrimSpace(parsed.Message) == "" {
		return nil, nil
	}
	return parsed, nil
}

// parseInsightJSON tolerates fenced code blocks and leading/trailing prose
// around the JSON object, mirroring the parser tolerance required of every
// agent output in spec.md §4.6.
func parseInsightJSON(text string) (*parsedInsight, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, nil
	}
	candidate := text[start : end+1]

	var p parsedInsight
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
