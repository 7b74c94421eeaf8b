// Package eventbus implements the Run Event Bus (C7): process-local async
// handlers invoked with every event, and a Redis stream writer that XADDs
// each event to run:{run_id}:events for the WS/SSE gateway to replay.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/iceos/orchestrator/internal/run"
)

// Logger matches the teacher's common/logger contextual-fields interface so
// the bus can be wired with either the real logger or a test double.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Handler is a process-local subscriber. Handler errors are logged and
// swallowed — they never abort the engine (spec §4.8).
type Handler func(run.Event) error

// Bus fans run.Event values out to in-process handlers and, when a stream
// writer is configured, to a Redis stream.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	stream   *StreamWriter
	logger   Logger
}

// New builds a Bus. stream may be nil if only in-process fan-out is wanted.
func New(stream *StreamWriter, logger Logger) *Bus {
	return &Bus{stream: stream, logger: logger}
}

// Subscribe registers a process-local handler. Not safe to call concurrently
// with Publish on the same handler slice mutation, so it takes the write lock.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish invokes every registered handler synchronously (each error is
// logged, never propagated) and, if a stream writer is configured, XADDs the
// event to Redis. Publish itself never returns an error: a broken event bus
// must not take down a run.
func (b *Bus) Publish(ctx context.Context, evt run.Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(evt); err != nil {
			b.logf("event handler failed", "event_type", evt.EventType, "run_id", evt.RunID, "error", err)
		}
	}

	if b.stream == nil {
		return
	}
	if err := b.stream.Append(ctx, evt); err != nil {
		b.logf("event stream append failed", "event_type", evt.EventType, "run_id", evt.RunID, "error", err)
	}
}

func (b *Bus) logf(msg string, kv ...interface{}) {
	if b.logger == nil {
		return
	}
	b.logger.Error(msg, kv...)
}

// streamKey returns the per-run Redis stream key (spec §4.8).
func streamKey(runID string) string {
	return fmt.Sprintf("run:%s:events", runID)
}

// StreamWriter XADDs events to a run's Redis stream and supports
// cursor-based replay for the WS/SSE gateway.
type StreamWriter struct {
	client *redis.Client
	maxLen int64
}

// NewStreamWriter wraps a *redis.Client. maxLen caps the stream length via
// XADD MAXLEN ~ trimming; 0 disables trimming.
func NewStreamWriter(client *redis.Client, maxLen int64) *StreamWriter {
	return &StreamWriter{client: client, maxLen: maxLen}
}

// Append marshals evt to JSON and XADDs it under a single "event" field,
// mirroring the teacher's token-over-stream encoding in
// cmd/workflow-runner/executor/run_request_consumer.go.
func (w *StreamWriter) Append(ctx context.Context, evt run.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey(evt.RunID),
		Values: map[string]interface{}{"event": string(payload)},
	}
	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}

	if err := w.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("eventbus: xadd stream %s: %w", args.Stream, err)
	}
	return nil
}

// Entry is a single replayed stream record: its Redis entry ID (usable as
// the next cursor) plus the decoded event.
type Entry struct {
	ID    string
	Event run.Event
}

// Replay reads entries from a run's stream starting strictly after cursor.
// cursor of "" or "0" replays from the beginning. count bounds the number of
// entries returned; pass 0 for no limit.
func (w *StreamWriter) Replay(ctx context.Context, runID, cursor string, count int64) ([]Entry, error) {
	start := cursor
	if start == "" {
		start = "0"
	}

	stream := streamKey(runID)
	rangeStart := "(" + start

	var cmd *redis.XMessageSliceCmd
	if count > 0 {
		cmd = w.client.XRangeN(ctx, stream, rangeStart, "+", count)
	} else {
		cmd = w.client.XRange(ctx, stream, rangeStart, "+")
	}
	messages, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("eventbus: xrange stream %s: %w", stream, err)
	}

	entries := make([]Entry, 0, len(messages))
	for _, msg := range messages {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var evt run.Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			return nil, fmt.Errorf("eventbus: unmarshal stream entry %s: %w", msg.ID, err)
		}
		entries = append(entries, Entry{ID: msg.ID, Event: evt})
	}
	return entries, nil
}
