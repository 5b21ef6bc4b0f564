package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duragraph/dataflow/internal/domain/flow"
	"github.com/duragraph/dataflow/internal/domain/pipeline"
)

func init() {
	pipeline.RegisterElementKind("test_source", func(name string, _ map[string]interface{}) (*flow.Element, error) {
		return flow.NewElement(name, []string{"out"}, nil, flow.Hooks{}), nil
	})
	pipeline.RegisterElementKind("test_passthrough", func(name string, _ map[string]interface{}) (*flow.Element, error) {
		return flow.NewElement(name, []string{"out"}, []string{"in"}, flow.Hooks{}), nil
	})
}

func sampleNodesEdges() ([]pipeline.NodeSpec, []pipeline.EdgeSpec) {
	nodes := []pipeline.NodeSpec{
		{Name: "a", Kind: "test_source"},
		{Name: "b", Kind: "test_passthrough"},
	}
	edges := []pipeline.EdgeSpec{
		{SinkElement: "b", SinkPad: "in", SourceElement: "a", SourcePad: "out"},
	}
	return nodes, edges
}

func TestNew_RecordsRegisteredEvent(t *testing.T) {
	nodes, edges := sampleNodesEdges()
	def, err := pipeline.New("ingest", "", nodes, edges, nil)
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", def.Version(), "empty version should default")
	assert.NotEmpty(t, def.ID())
	require.Len(t, def.Events(), 1)
	assert.Equal(t, pipeline.EventTypeDefinitionRegistered, def.Events()[0].EventType())
}

func TestNew_RejectsMissingName(t *testing.T) {
	nodes, edges := sampleNodesEdges()
	_, err := pipeline.New("", "v1", nodes, edges, nil)
	assert.Error(t, err)
}

func TestNew_RejectsEdgeReferencingUnknownNode(t *testing.T) {
	nodes := []pipeline.NodeSpec{{Name: "a", Kind: "test_passthrough"}}
	edges := []pipeline.EdgeSpec{{SinkElement: "missing", SinkPad: "in", SourceElement: "a", SourcePad: "out"}}

	_, err := pipeline.New("ingest", "v1", nodes, edges, nil)
	assert.Error(t, err)
}

func TestUpdate_RecordsUpdatedEvent(t *testing.T) {
	nodes, edges := sampleNodesEdges()
	def, err := pipeline.New("ingest", "v1", nodes, edges, nil)
	require.NoError(t, err)
	def.ClearEvents()

	require.NoError(t, def.Update(nodes, edges, map[string]interface{}{"batch_size": 10}))
	require.Len(t, def.Events(), 1)
	assert.Equal(t, pipeline.EventTypeDefinitionUpdated, def.Events()[0].EventType())
	assert.Equal(t, 10, def.Config()["batch_size"])
}

func TestMaterialize_BuildsLinkedGraph(t *testing.T) {
	nodes, edges := sampleNodesEdges()
	def, err := pipeline.New("ingest", "v1", nodes, edges, nil)
	require.NoError(t, err)

	g, err := def.Materialize()
	require.NoError(t, err)

	_, err = g.Validate()
	assert.NoError(t, err, "a linear two-node graph should validate")
}

func TestMaterialize_UnknownKindFails(t *testing.T) {
	def, err := pipeline.New("ingest", "v1", []pipeline.NodeSpec{{Name: "a", Kind: "does_not_exist"}}, nil, nil)
	require.NoError(t, err)

	_, err = def.Materialize()
	assert.Error(t, err)
}

func TestRehydrate_CarriesNoEvents(t *testing.T) {
	nodes, edges := sampleNodesEdges()
	now := time.Now()
	def := pipeline.Rehydrate("id-1", "ingest", "v1", nodes, edges, nil, now, now)
	assert.Empty(t, def.Events())
	assert.Equal(t, "id-1", def.ID())
}
