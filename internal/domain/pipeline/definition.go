// Package pipeline holds the persistence-facing counterpart of a live
// flow.Graph: a named, versioned definition of elements and links that can
// be stored, looked up, and handed to the scheduler to start a run.
package pipeline

import (
	"time"

	"github.com/duragraph/dataflow/internal/pkg/errors"
	"github.com/duragraph/dataflow/internal/pkg/eventbus"
	pkguuid "github.com/duragraph/dataflow/internal/pkg/uuid"
)

// NodeSpec describes one element to construct when a definition is
// materialized into a flow.Graph.
type NodeSpec struct {
	Name   string                 `json:"name"`
	Kind   string                 `json:"kind"` // registered element constructor name
	Config map[string]interface{} `json:"config,omitempty"`
}

// EdgeSpec describes one Graph.Link call: sink pad bound to source pad.
type EdgeSpec struct {
	SinkElement   string `json:"sink_element"`
	SinkPad       string `json:"sink_pad"`
	SourceElement string `json:"source_element"`
	SourcePad     string `json:"source_pad"`
}

// Definition is a versioned, storable pipeline aggregate. It records domain
// events on registration and update the same way the reference workflow
// aggregate does, for the registry to persist through the event store
// alongside the CRUD row.
type Definition struct {
	id        string
	name      string
	version   string
	nodes     []NodeSpec
	edges     []EdgeSpec
	config    map[string]interface{}
	createdAt time.Time
	updatedAt time.Time

	events []eventbus.Event
}

// New constructs a Definition, recording a DefinitionRegistered event.
func New(name, version string, nodes []NodeSpec, edges []EdgeSpec, config map[string]interface{}) (*Definition, error) {
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	if len(nodes) == 0 {
		return nil, errors.InvalidInput("nodes", "at least one node is required")
	}
	if version == "" {
		version = "1.0.0"
	}
	if err := validate(nodes, edges); err != nil {
		return nil, err
	}
	if config == nil {
		config = make(map[string]interface{})
	}

	now := time.Now()
	id := pkguuid.New()
	d := &Definition{
		id:        id,
		name:      name,
		version:   version,
		nodes:     nodes,
		edges:     edges,
		config:    config,
		createdAt: now,
		updatedAt: now,
	}
	d.record(DefinitionRegistered{
		DefinitionID: id,
		Name:         name,
		Version:      version,
		OccurredAt:   now,
	})
	return d, nil
}

// Rehydrate reconstructs a Definition from storage, without recording any
// events — used by the registry's FindByID path.
func Rehydrate(id, name, version string, nodes []NodeSpec, edges []EdgeSpec, config map[string]interface{}, createdAt, updatedAt time.Time) *Definition {
	return &Definition{
		id: id, name: name, version: version,
		nodes: nodes, edges: edges, config: config,
		createdAt: createdAt, updatedAt: updatedAt,
	}
}

func (d *Definition) ID() string                    { return d.id }
func (d *Definition) Name() string                   { return d.name }
func (d *Definition) Version() string                { return d.version }
func (d *Definition) Nodes() []NodeSpec              { return d.nodes }
func (d *Definition) Edges() []EdgeSpec              { return d.edges }
func (d *Definition) Config() map[string]interface{} { return d.config }
func (d *Definition) CreatedAt() time.Time           { return d.createdAt }
func (d *Definition) UpdatedAt() time.Time           { return d.updatedAt }
func (d *Definition) Events() []eventbus.Event       { return d.events }
func (d *Definition) ClearEvents()                   { d.events = nil }

// Update replaces the node/edge specs and records a DefinitionUpdated event.
func (d *Definition) Update(nodes []NodeSpec, edges []EdgeSpec, config map[string]interface{}) error {
	if nodes != nil || edges != nil {
		effectiveNodes, effectiveEdges := d.nodes, d.edges
		if nodes != nil {
			effectiveNodes = nodes
		}
		if edges != nil {
			effectiveEdges = edges
		}
		if err := validate(effectiveNodes, effectiveEdges); err != nil {
			return err
		}
	}

	now := time.Now()
	if nodes != nil {
		d.nodes = nodes
	}
	if edges != nil {
		d.edges = edges
	}
	if config != nil {
		d.config = config
	}
	d.updatedAt = now
	d.record(DefinitionUpdated{DefinitionID: d.id, Version: d.version, OccurredAt: now})
	return nil
}

func (d *Definition) record(e eventbus.Event) { d.events = append(d.events, e) }

// validate checks structural invariants a materializable definition must
// satisfy: unique node names and every edge referencing a declared node.
// Acyclicity and pad-existence are left to flow.Graph.Validate at
// materialization time, since they require the actual constructed elements.
func validate(nodes []NodeSpec, edges []EdgeSpec) error {
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			return errors.InvalidInput("node.name", "node name is required")
		}
		if seen[n.Name] {
			return errors.InvalidInput("node.name", "duplicate node name: "+n.Name)
		}
		seen[n.Name] = true
	}
	for _, e := range edges {
		if !seen[e.SinkElement] {
			return errors.InvalidInput("edge.sink_element", "unknown node: "+e.SinkElement)
		}
		if !seen[e.SourceElement] {
			return errors.InvalidInput("edge.source_element", "unknown node: "+e.SourceElement)
		}
	}
	return nil
}
