// Package runmanager tracks in-flight and completed graph runs so the
// control plane can report status for a run started asynchronously from an
// HTTP request, the way the reference service's run application layer
// tracks LangGraph runs — generalized here to a tick-based run record
// instead of a node-status state machine.
package runmanager

import (
	"context"
	"sync"
	"time"

	"github.com/duragraph/dataflow/internal/domain/flow"
	"github.com/duragraph/dataflow/internal/infrastructure/monitoring"
	"github.com/duragraph/dataflow/internal/infrastructure/scheduler"
	"github.com/duragraph/dataflow/internal/pkg/eventbus"
	pkguuid "github.com/duragraph/dataflow/internal/pkg/uuid"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is a snapshot of one run's state.
type Record struct {
	RunID      string
	PipelineID string
	Status     Status
	Ticks      int
	Err        string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Manager starts graph runs in background goroutines and serves their
// status to callers that don't hold the goroutine.
type Manager struct {
	bus     *eventbus.EventBus
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	records map[string]*Record
}

// New creates a run manager and subscribes it to the bus's tick events so
// Get reflects progress without the caller wiring that up separately.
// metrics may be nil.
func New(bus *eventbus.EventBus, metrics *monitoring.Metrics) *Manager {
	m := &Manager{bus: bus, metrics: metrics, records: make(map[string]*Record)}
	bus.Subscribe(scheduler.EventTickCompleted, m.OnTick)
	return m
}

// Start launches a graph run in a new goroutine and returns its run ID
// immediately; Get reflects its progress as ticks complete.
func (m *Manager) Start(pipelineID string, g *flow.Graph) string {
	runID := pkguuid.New()
	rec := &Record{RunID: runID, PipelineID: pipelineID, Status: StatusRunning, StartedAt: time.Now()}

	m.mu.Lock()
	m.records[runID] = rec
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordRunStarted(pipelineID)
	}

	go func() {
		sched := scheduler.New(m.bus)
		err := sched.Run(context.Background(), runID, g)

		m.mu.Lock()
		rec.EndedAt = time.Now()
		if err != nil {
			rec.Status = StatusFailed
			rec.Err = err.Error()
		} else {
			rec.Status = StatusCompleted
		}
		m.mu.Unlock()

		if m.metrics != nil {
			status := "completed"
			if err != nil {
				status = "failed"
			}
			m.metrics.RecordRunFinished(pipelineID, status, rec.EndedAt.Sub(rec.StartedAt))
		}
	}()

	return runID
}

// Get returns a copy of a run's current record.
func (m *Manager) Get(runID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[runID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// OnTick is the scheduler TickCompleted handler that New subscribes on the
// bus; it records the latest tick count on the matching run's record.
func (m *Manager) OnTick(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(scheduler.TickCompleted)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[e.RunID]; ok {
		rec.Ticks = e.Tick
	}
	return nil
}
