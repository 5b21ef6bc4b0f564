// Package cronsource provides a Source element that emits one frame per
// firing of a cron schedule, for pipelines that need to originate work on a
// wall-clock cadence rather than from an external feed.
package cronsource

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/duragraph/dataflow/internal/domain/flow"
	"github.com/duragraph/dataflow/internal/domain/pipeline"
	"github.com/duragraph/dataflow/internal/pkg/errors"
)

func init() {
	pipeline.RegisterElementKind("cron_source", func(name string, config map[string]interface{}) (*flow.Element, error) {
		spec, _ := config["spec"].(string)
		return New(name, spec)
	})
}

// Payload is the value carried on every frame this element emits: the
// scheduled and actual fire times, for elements downstream that care about
// drift.
type Payload struct {
	Scheduled time.Time
	Fired     time.Time
}

// New builds a Source element with a single "out" pad that blocks in its
// New hook until spec's next scheduled time, then emits one frame. It never
// emits EOS on its own; stop it by cancelling the Scheduler's context.
//
// New's blocking wait is the one place in this engine where an element's
// hook is expected to sleep rather than return promptly. The scheduler is
// single-threaded, so while it sleeps the whole tick waits: every element
// after this one in topological order runs only once the frame is emitted.
func New(name, spec string) (*flow.Element, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.NewDomainError("INVALID_CRON_SPEC", "invalid cron schedule: "+spec, errors.ErrInvalidInput)
	}

	return flow.NewElement(name, []string{"out"}, nil, flow.Hooks{
		New: func(pad *flow.Pad) (flow.Frame, error) {
			now := time.Now()
			next := schedule.Next(now)
			time.Sleep(time.Until(next))
			return flow.NewFrame(Payload{Scheduled: next, Fired: time.Now()}), nil
		},
	}), nil
}
