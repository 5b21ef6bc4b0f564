package pipeline

import "time"

const (
	EventTypeDefinitionRegistered = "pipeline.definition_registered"
	EventTypeDefinitionUpdated    = "pipeline.definition_updated"
)

// DefinitionRegistered is recorded when a new pipeline definition is
// registered in the registry.
type DefinitionRegistered struct {
	DefinitionID string
	Name         string
	Version      string
	OccurredAt   time.Time
}

func (e DefinitionRegistered) EventType() string     { return EventTypeDefinitionRegistered }
func (e DefinitionRegistered) AggregateID() string   { return e.DefinitionID }
func (e DefinitionRegistered) AggregateType() string { return "pipeline_definition" }

// DefinitionUpdated is recorded when an existing definition's nodes, edges,
// or config are changed.
type DefinitionUpdated struct {
	DefinitionID string
	Version      string
	OccurredAt   time.Time
}

func (e DefinitionUpdated) EventType() string     { return EventTypeDefinitionUpdated }
func (e DefinitionUpdated) AggregateID() string   { return e.DefinitionID }
func (e DefinitionUpdated) AggregateType() string { return "pipeline_definition" }
