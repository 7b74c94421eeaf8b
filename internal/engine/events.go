package engine

import (
	"context"
	"time"

	"github.com/iceos/orchestrator/internal/run"
)

// Bus is the minimal event-sink surface the engine needs — satisfied by
// *eventbus.Bus. Kept narrow so engine tests can substitute a recorder.
type Bus interface {
	Publish(ctx context.Context, evt run.Event)
}

func (e *Engine) emit(runID string, eventType run.EventType, fields map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(context.Background(), run.Event{
		EventType: eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Fields:    fields,
	})
}

func (e *Engine) emitNode(runID string, eventType run.EventType, nodeID string, fields map[string]interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(context.Background(), run.Event{
		EventType: eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		NodeID:    nodeID,
		Fields:    fields,
	})
}

func (e *Engine) emitLevel(runID string, eventType run.EventType, level int) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(context.Background(), run.Event{
		EventType: eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		Level:     &level,
	})
}

// eventPublisher adapts the engine's Bus onto executor.EventPublisher,
// which HumanExecutor uses to announce a pending approval without importing
// the engine package.
type eventPublisher struct {
	engine *Engine
}

func (p *eventPublisher) Publish(ev run.Event) {
	if p.engine.bus == nil {
		return
	}
	p.engine.bus.Publish(context.Background(), ev)
}
