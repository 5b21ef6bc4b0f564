// Package streaming bridges the in-process eventbus to NATS JetStream, so
// external subscribers (a control-plane UI, an operator dashboard) can
// observe a run's progress without polling the registry.
package streaming

import (
	"context"
	"fmt"
	"time"

	"github.com/duragraph/dataflow/internal/infrastructure/messaging/nats"
	"github.com/duragraph/dataflow/internal/infrastructure/scheduler"
	"github.com/duragraph/dataflow/internal/pkg/eventbus"
)

// Bridge subscribes to the scheduler's lifecycle events on the in-process
// eventBus and republishes them to NATS under dataflow.runs.<run_id>.<event>.
type Bridge struct {
	eventBus  *eventbus.EventBus
	publisher *nats.Publisher
}

// NewBridge creates a new streaming bridge.
func NewBridge(eventBus *eventbus.EventBus, publisher *nats.Publisher) *Bridge {
	return &Bridge{eventBus: eventBus, publisher: publisher}
}

// Start registers handlers for every scheduler lifecycle event.
func (b *Bridge) Start() {
	b.eventBus.Subscribe(scheduler.EventGraphStarted, b.handleGraphStarted)
	b.eventBus.Subscribe(scheduler.EventTickCompleted, b.handleTickCompleted)
	b.eventBus.Subscribe(scheduler.EventGraphCompleted, b.handleGraphCompleted)
	b.eventBus.Subscribe(scheduler.EventGraphFailed, b.handleGraphFailed)
}

func (b *Bridge) handleGraphStarted(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(scheduler.GraphStarted)
	if !ok {
		return nil
	}
	return b.publish(ctx, e.RunID, "run_started", map[string]interface{}{
		"run_id": e.RunID,
	})
}

func (b *Bridge) handleTickCompleted(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(scheduler.TickCompleted)
	if !ok {
		return nil
	}
	return b.publish(ctx, e.RunID, "tick", map[string]interface{}{
		"run_id": e.RunID,
		"tick":   e.Tick,
	})
}

func (b *Bridge) handleGraphCompleted(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(scheduler.GraphCompleted)
	if !ok {
		return nil
	}
	return b.publish(ctx, e.RunID, "run_completed", map[string]interface{}{
		"run_id": e.RunID,
		"ticks":  e.Ticks,
	})
}

func (b *Bridge) handleGraphFailed(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(scheduler.GraphFailed)
	if !ok {
		return nil
	}
	return b.publish(ctx, e.RunID, "run_failed", map[string]interface{}{
		"run_id": e.RunID,
		"error":  e.Err,
	})
}

func (b *Bridge) publish(ctx context.Context, runID, eventType string, payload map[string]interface{}) error {
	topic := fmt.Sprintf("dataflow.runs.%s.%s", runID, eventType)
	envelope := map[string]interface{}{
		"run_id":     runID,
		"event_type": eventType,
		"payload":    payload,
		"timestamp":  time.Now(),
	}
	return b.publisher.Publish(ctx, topic, envelope)
}
