// Package scheduler drives a validated flow.Graph to completion: a
// single-threaded, cooperative loop that repeatedly walks every element in
// topological order, invokes its lifecycle hooks, and routes produced
// frames to bound downstream sink pads until every source has signalled
// end-of-stream and every sink pad buffer has drained.
//
// The walk itself is grounded in the reference service's graph execution
// engine (infrastructure/graph engine): a plan built once from the graph's
// adjacency, then repeatedly re-applied — generalized here from "execute a
// workflow node DAG once" to "tick a dataflow graph forever, bounded by
// EOS" per the engine's termination protocol.
package scheduler

import (
	"context"

	"github.com/duragraph/dataflow/internal/domain/flow"
	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
	"github.com/duragraph/dataflow/internal/pkg/eventbus"
)

// Event types published on the scheduler's event bus. These exist purely
// for observability (metrics, streaming bridges); nothing in the core
// scheduling algorithm depends on a subscriber being present.
const (
	EventGraphStarted   = "scheduler.graph_started"
	EventTickCompleted  = "scheduler.tick_completed"
	EventGraphCompleted = "scheduler.graph_completed"
	EventGraphFailed    = "scheduler.graph_failed"
)

// GraphStarted is published once, before the first tick.
type GraphStarted struct{ RunID string }

func (e GraphStarted) EventType() string     { return EventGraphStarted }
func (e GraphStarted) AggregateID() string   { return e.RunID }
func (e GraphStarted) AggregateType() string { return "run" }

// TickCompleted is published after every tick.
type TickCompleted struct {
	RunID string
	Tick  int
}

func (e TickCompleted) EventType() string     { return EventTickCompleted }
func (e TickCompleted) AggregateID() string   { return e.RunID }
func (e TickCompleted) AggregateType() string { return "run" }

// GraphCompleted is published once Run returns without error.
type GraphCompleted struct {
	RunID string
	Ticks int
}

func (e GraphCompleted) EventType() string     { return EventGraphCompleted }
func (e GraphCompleted) AggregateID() string   { return e.RunID }
func (e GraphCompleted) AggregateType() string { return "run" }

// GraphFailed is published once Run returns a fatal error.
type GraphFailed struct {
	RunID string
	Err   string
}

func (e GraphFailed) EventType() string     { return EventGraphFailed }
func (e GraphFailed) AggregateID() string   { return e.RunID }
func (e GraphFailed) AggregateType() string { return "run" }

// Scheduler drives one flow.Graph at a time to completion.
type Scheduler struct {
	bus *eventbus.EventBus
}

// New builds a Scheduler. bus may be nil, in which case lifecycle events
// are not published.
func New(bus *eventbus.EventBus) *Scheduler {
	return &Scheduler{bus: bus}
}

// Run validates g and drives it to termination: every tick walks elements
// in topological order, delivering pending sink-pad frames (Pull), calling
// Internal once, then calling New on every source pad not yet EOS-sent and
// routing the result to every fan-out sink pad. Run returns once every
// source pad is EOS-sent and no sink pad still holds an undelivered frame,
// or returns the first fatal error encountered — a scheduling-invariant
// violation or an error raised from a user hook. ctx cancellation is
// observed between ticks only; a tick in progress always completes.
func (s *Scheduler) Run(ctx context.Context, runID string, g *flow.Graph) error {
	plan, err := g.Validate()
	if err != nil {
		return err
	}

	s.publish(ctx, GraphStarted{RunID: runID})

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := s.tick(plan)
		ticks++
		s.publish(ctx, TickCompleted{RunID: runID, Tick: ticks})
		if err != nil {
			s.publish(ctx, GraphFailed{RunID: runID, Err: err.Error()})
			return err
		}
		if done {
			s.publish(ctx, GraphCompleted{RunID: runID, Ticks: ticks})
			return nil
		}
	}
}

// tick performs one full pass over the plan's topological order and
// reports whether the graph has fully terminated.
func (s *Scheduler) tick(plan *flow.Plan) (bool, error) {
	for _, e := range plan.Order {
		for _, short := range e.SinkPadNames() {
			pad, _ := e.SinkPad(short)
			if err := pad.Drain(); err != nil {
				return false, dferrors.ElementFailed(e.Name(), err)
			}
		}

		if err := e.CallInternal(); err != nil {
			return false, dferrors.ElementFailed(e.Name(), err)
		}

		for _, short := range e.SourcePadNames() {
			pad, _ := e.SourcePad(short)
			if pad.EOSSent() {
				continue
			}
			frame, err := pad.Produce()
			if err != nil {
				return false, dferrors.ElementFailed(e.Name(), err)
			}
			for _, sink := range pad.FanOut() {
				if err := sink.Write(frame); err != nil {
					return false, dferrors.SchedulingInvariant(err.Error())
				}
			}
		}
	}

	return terminal(plan), nil
}

func terminal(plan *flow.Plan) bool {
	for _, e := range plan.Order {
		for _, short := range e.SourcePadNames() {
			pad, _ := e.SourcePad(short)
			if !pad.EOSSent() {
				return false
			}
		}
		for _, short := range e.SinkPadNames() {
			pad, _ := e.SinkPad(short)
			if pad.HasPending() {
				return false
			}
		}
	}
	return true
}

func (s *Scheduler) publish(ctx context.Context, event eventbus.Event) {
	if s.bus == nil {
		return
	}
	_ = s.bus.PublishSync(ctx, event)
}
