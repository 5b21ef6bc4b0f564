package flow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duragraph/dataflow/internal/domain/flow"
)

func sourceElement(name string) *flow.Element {
	return flow.NewElement(name, []string{"out"}, nil, flow.Hooks{
		New: func(pad *flow.Pad) (flow.Frame, error) { return flow.EOSFrame(nil), nil },
	})
}

func sinkElement(name string) *flow.Element {
	return flow.NewElement(name, nil, []string{"in"}, flow.Hooks{})
}

func TestGraph_DuplicateElementName(t *testing.T) {
	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, sourceElement("a")))
	err := g.Insert(nil, sourceElement("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate element")
}

func TestGraph_DuplicatePadName(t *testing.T) {
	e := flow.NewElement("a", []string{"out", "out"}, nil, flow.Hooks{})
	g := flow.NewGraph()
	err := g.Insert(nil, e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source pad")
}

func TestGraph_LinkUnknownPad(t *testing.T) {
	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, sourceElement("a")))
	err := g.Link("missing", "in", "a", "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element not in graph")
}

func TestGraph_LinkAlreadyBound(t *testing.T) {
	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, sourceElement("a"), sinkElement("b")))
	require.NoError(t, g.Link("b", "in", "a", "out"))

	other := sourceElement("c")
	require.NoError(t, g.Insert(nil, other))
	err := g.Link("b", "in", "c", "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already bound")
}

func TestGraph_InsertWithLinkMap(t *testing.T) {
	g := flow.NewGraph()
	err := g.Insert(map[string]string{
		"b:snk:in": "a:src:out",
	}, sourceElement("a"), sinkElement("b"))
	require.NoError(t, err)

	b, _ := g.Element("b")
	pad, _ := b.SinkPad("in")
	assert.True(t, pad.IsBound())
}

func TestGraph_ValidateDeterministicOrder(t *testing.T) {
	// Two independent chains; tie-break must be lexicographic on name.
	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil,
		sourceElement("z-source"), sinkElement("z-sink"),
		sourceElement("a-source"), sinkElement("a-sink"),
	))
	require.NoError(t, g.Link("z-sink", "in", "z-source", "out"))
	require.NoError(t, g.Link("a-sink", "in", "a-source", "out"))

	plan, err := g.Validate()
	require.NoError(t, err)

	names := make([]string, 0, len(plan.Order))
	for _, e := range plan.Order {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a-source", "a-sink", "z-source", "z-sink"}, names)
}

func TestPad_WriteDetectsNonEmptySlot(t *testing.T) {
	e := flow.NewElement("a", nil, []string{"in"}, flow.Hooks{})
	pad, _ := e.SinkPad("in")

	require.NoError(t, pad.Write(flow.NewFrame(1)))
	err := pad.Write(flow.NewFrame(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undelivered frame")
}
