package pipeline

import (
	"sync"

	"github.com/duragraph/dataflow/internal/domain/flow"
	"github.com/duragraph/dataflow/internal/pkg/errors"
)

// Constructor builds one element from its NodeSpec config. Registered under
// a NodeSpec.Kind so a Definition loaded from storage can be turned back
// into live elements without the registry knowing every concrete element
// type that exists.
type Constructor func(name string, config map[string]interface{}) (*flow.Element, error)

var (
	constructorsMu sync.Mutex
	constructors   = map[string]Constructor{}
)

// RegisterElementKind associates a NodeSpec.Kind with a Constructor. Call
// from an init() in the package defining each element kind.
func RegisterElementKind(kind string, ctor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	constructors[kind] = ctor
}

func lookupElementKind(kind string) (Constructor, bool) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	ctor, ok := constructors[kind]
	return ctor, ok
}

// Materialize builds a live flow.Graph from a Definition: one element per
// NodeSpec via its registered Constructor, linked per EdgeSpec.
func (d *Definition) Materialize() (*flow.Graph, error) {
	g := flow.NewGraph()

	elements := make([]*flow.Element, 0, len(d.nodes))
	for _, n := range d.nodes {
		ctor, ok := lookupElementKind(n.Kind)
		if !ok {
			return nil, errors.NewDomainError("UNKNOWN_ELEMENT_KIND", "no element kind registered: "+n.Kind, errors.ErrInvalidInput)
		}
		el, err := ctor(n.Name, n.Config)
		if err != nil {
			return nil, errors.NewDomainError("ELEMENT_CONSTRUCTION_FAILED", "failed to construct element "+n.Name, err)
		}
		elements = append(elements, el)
	}

	if err := g.Insert(nil, elements...); err != nil {
		return nil, err
	}
	for _, e := range d.edges {
		if err := g.Link(e.SinkElement, e.SinkPad, e.SourceElement, e.SourcePad); err != nil {
			return nil, err
		}
	}
	return g, nil
}
