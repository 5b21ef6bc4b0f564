package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duragraph/dataflow/internal/domain/flow"
	"github.com/duragraph/dataflow/internal/infrastructure/scheduler"
)

// counterSource emits Frame(data=1..n) then one EOS frame.
func counterSource(name string, n int) *flow.Element {
	i := 0
	return flow.NewElement(name, []string{"out"}, nil, flow.Hooks{
		New: func(pad *flow.Pad) (flow.Frame, error) {
			i++
			if i > n {
				return flow.EOSFrame(nil), nil
			}
			return flow.NewFrame(i), nil
		},
	})
}

// recordingSink records every non-EOS payload it receives and counts EOS.
type recordingSink struct {
	Values []interface{}
	EOS    int
}

func newRecordingSink(name string) (*flow.Element, *recordingSink) {
	rec := &recordingSink{}
	e := flow.NewElement(name, nil, []string{"in"}, flow.Hooks{
		Pull: func(pad *flow.Pad, frame flow.Frame) error {
			if frame.Data() != nil {
				rec.Values = append(rec.Values, frame.Data())
			}
			if frame.EOS() {
				rec.EOS++
				pad.Owner().MarkEOS(pad.ShortName())
			}
			return nil
		},
	})
	return e, rec
}

func doublerTransform(name string) *flow.Element {
	pending := make([]flow.Frame, 0, 1)
	return flow.NewElement(name, []string{"out"}, []string{"in"}, flow.Hooks{
		Pull: func(pad *flow.Pad, frame flow.Frame) error {
			if frame.Data() != nil {
				pending = append(pending, flow.NewFrame(frame.Data().(int)*2))
			}
			if frame.EOS() {
				pad.Owner().MarkEOS(pad.ShortName())
				pending = append(pending, flow.EOSFrame(nil))
			}
			return nil
		},
		New: func(pad *flow.Pad) (flow.Frame, error) {
			if len(pending) == 0 {
				return flow.NewFrame(nil), nil
			}
			f := pending[0]
			pending = pending[1:]
			return f, nil
		},
	})
}

func TestScheduler_CounterDoublerPrinter(t *testing.T) {
	source := counterSource("counter", 5)
	doubler := doublerTransform("doubler")
	sinkElem, sink := newRecordingSink("printer")

	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, source, doubler, sinkElem))
	require.NoError(t, g.Link("doubler", "in", "counter", "out"))
	require.NoError(t, g.Link("printer", "in", "doubler", "out"))

	require.NoError(t, scheduler.New(nil).Run(context.Background(), "run-1", g))

	nonNil := make([]interface{}, 0, len(sink.Values))
	for _, v := range sink.Values {
		if v != nil {
			nonNil = append(nonNil, v)
		}
	}
	assert.Equal(t, []interface{}{2, 4, 6, 8, 10}, nonNil)
	assert.Equal(t, 1, sink.EOS, "sink should observe exactly one EOS")
}

func TestScheduler_FanOut(t *testing.T) {
	source := counterSource("counter", 3)
	sinkA, recA := newRecordingSink("sink-a")
	sinkB, recB := newRecordingSink("sink-b")

	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, source, sinkA, sinkB))
	require.NoError(t, g.Link("sink-a", "in", "counter", "out"))
	require.NoError(t, g.Link("sink-b", "in", "counter", "out"))

	require.NoError(t, scheduler.New(nil).Run(context.Background(), "run-2", g))

	assert.Equal(t, []interface{}{1, 2, 3}, recA.Values)
	assert.Equal(t, []interface{}{1, 2, 3}, recB.Values)
	assert.Equal(t, 1, recA.EOS)
	assert.Equal(t, 1, recB.EOS)
}

func TestScheduler_MultiplePadsPerElement(t *testing.T) {
	numbers := []interface{}{1, 2, 3}
	letters := []interface{}{"A", "B", "C"}
	ni, li := 0, 0

	source := flow.NewElement("multi", []string{"numbers", "letters"}, nil, flow.Hooks{
		New: func(pad *flow.Pad) (flow.Frame, error) {
			switch pad.ShortName() {
			case "numbers":
				if ni >= len(numbers) {
					return flow.EOSFrame(nil), nil
				}
				v := numbers[ni]
				ni++
				return flow.NewFrame(v), nil
			default:
				if li >= len(letters) {
					return flow.EOSFrame(nil), nil
				}
				v := letters[li]
				li++
				return flow.NewFrame(v), nil
			}
		},
	})

	numSink, numRec := newRecordingSink("nums")
	letSink, letRec := newRecordingSink("lets")

	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, source, numSink, letSink))
	require.NoError(t, g.Link("nums", "in", "multi", "numbers"))
	require.NoError(t, g.Link("lets", "in", "multi", "letters"))

	require.NoError(t, scheduler.New(nil).Run(context.Background(), "run-3", g))

	assert.Equal(t, []interface{}{1, 2, 3}, numRec.Values)
	assert.Equal(t, []interface{}{"A", "B", "C"}, letRec.Values)
}

func TestScheduler_CycleRejected(t *testing.T) {
	a := flow.NewElement("a", []string{"out"}, []string{"in"}, flow.Hooks{})
	b := flow.NewElement("b", []string{"out"}, []string{"in"}, flow.Hooks{})

	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, a, b))
	require.NoError(t, g.Link("b", "in", "a", "out"))
	require.NoError(t, g.Link("a", "in", "b", "out"))

	err := scheduler.New(nil).Run(context.Background(), "run-4", g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestScheduler_UnlinkedPadRejected(t *testing.T) {
	source := counterSource("counter", 1)
	transform := doublerTransform("doubler")

	g := flow.NewGraph()
	require.NoError(t, g.Insert(nil, source, transform))
	// doubler:in is never linked.

	err := scheduler.New(nil).Run(context.Background(), "run-5", g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unlinked pad")
	assert.Contains(t, err.Error(), "doubler:snk:in")
}
