package flow

import (
	"fmt"
	"sort"

	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
)

// Graph is the container that owns a set of elements and the edge relation
// binding their pads. It exclusively owns its elements; elements exclusively
// own their pads. A Graph is mutated by Insert/Link at construction time and
// becomes read-only once handed to a Scheduler.
type Graph struct {
	elements map[string]*Element
	order    []string // insertion order, for stable iteration pre-validation
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{elements: make(map[string]*Element)}
}

// Insert adds one or more elements to the graph. If linkMap is non-nil it is
// applied after every element is inserted, mapping a sink pad's full name to
// the source pad's full name it should be bound to — the one-step
// convenience form of the authoring contract's insert(..., link_map=).
func (g *Graph) Insert(linkMap map[string]string, elements ...*Element) error {
	for _, e := range elements {
		if _, exists := g.elements[e.Name()]; exists {
			return dferrors.NewDomainError("DUPLICATE_ELEMENT", fmt.Sprintf("duplicate element name: %s", e.Name()), dferrors.ErrInvalidInput)
		}
		if err := checkUniquePadNames(e); err != nil {
			return err
		}
		g.elements[e.Name()] = e
		g.order = append(g.order, e.Name())
	}

	for sinkFull, sourceFull := range linkMap {
		sinkPad, err := g.resolvePad(sinkFull, Sink)
		if err != nil {
			return err
		}
		sourcePad, err := g.resolvePad(sourceFull, Source)
		if err != nil {
			return err
		}
		if err := g.bind(sinkPad, sourcePad); err != nil {
			return err
		}
	}
	return nil
}

// Link binds a sink pad to a source pad, both referenced by their owning
// element name and short pad name. It fails if the sink is already bound or
// if either pad is not owned by an element already present in the graph.
func (g *Graph) Link(sinkElement, sinkShort, sourceElement, sourceShort string) error {
	sinkOwner, ok := g.elements[sinkElement]
	if !ok {
		return dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("element not in graph: %s", sinkElement), dferrors.ErrInvalidInput)
	}
	sourceOwner, ok := g.elements[sourceElement]
	if !ok {
		return dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("element not in graph: %s", sourceElement), dferrors.ErrInvalidInput)
	}
	sinkPad, ok := sinkOwner.SinkPad(sinkShort)
	if !ok {
		return dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("no such sink pad: %s:snk:%s", sinkElement, sinkShort), dferrors.ErrInvalidInput)
	}
	sourcePad, ok := sourceOwner.SourcePad(sourceShort)
	if !ok {
		return dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("no such source pad: %s:src:%s", sourceElement, sourceShort), dferrors.ErrInvalidInput)
	}
	return g.bind(sinkPad, sourcePad)
}

func (g *Graph) bind(sinkPad, sourcePad *Pad) error {
	if sinkPad.boundTo != nil {
		return dferrors.NewDomainError("PAD_ALREADY_BOUND", fmt.Sprintf("pad already bound: %s", sinkPad.FullName()), dferrors.ErrInvalidState)
	}
	sinkPad.boundTo = sourcePad
	sourcePad.fanOut = append(sourcePad.fanOut, sinkPad)
	return nil
}

func (g *Graph) resolvePad(full string, dir Direction) (*Pad, error) {
	elemName, short, err := splitPadName(full, dir)
	if err != nil {
		return nil, err
	}
	e, ok := g.elements[elemName]
	if !ok {
		return nil, dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("element not in graph: %s", elemName), dferrors.ErrInvalidInput)
	}
	var p *Pad
	if dir == Source {
		p, ok = e.SourcePad(short)
	} else {
		p, ok = e.SinkPad(short)
	}
	if !ok {
		return nil, dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("no such pad: %s", full), dferrors.ErrInvalidInput)
	}
	return p, nil
}

func splitPadName(full string, want Direction) (elem, short string, err error) {
	// "<element>:<dir>:<short>" — element names themselves never contain ':'.
	var dir string
	parts := splitN(full, ':', 3)
	if len(parts) != 3 {
		return "", "", dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("malformed pad name: %s", full), dferrors.ErrInvalidInput)
	}
	elem, dir, short = parts[0], parts[1], parts[2]
	if Direction(dir) != want {
		return "", "", dferrors.NewDomainError("UNKNOWN_PAD", fmt.Sprintf("pad %s is not a %s pad", full, want), dferrors.ErrInvalidInput)
	}
	return elem, short, nil
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func checkUniquePadNames(e *Element) error {
	seen := make(map[string]bool, len(e.srcNames))
	for _, n := range e.srcNames {
		if seen["src:"+n] {
			return dferrors.NewDomainError("DUPLICATE_PAD", fmt.Sprintf("duplicate source pad %q on element %s", n, e.Name()), dferrors.ErrInvalidInput)
		}
		seen["src:"+n] = true
	}
	for _, n := range e.snkNames {
		if seen["snk:"+n] {
			return dferrors.NewDomainError("DUPLICATE_PAD", fmt.Sprintf("duplicate sink pad %q on element %s", n, e.Name()), dferrors.ErrInvalidInput)
		}
		seen["snk:"+n] = true
	}
	return nil
}

// Elements returns every element in the graph, in insertion order.
func (g *Graph) Elements() []*Element {
	out := make([]*Element, 0, len(g.order))
	for _, n := range g.order {
		out = append(out, g.elements[n])
	}
	return out
}

// Element looks up an element by name.
func (g *Graph) Element(name string) (*Element, bool) {
	e, ok := g.elements[name]
	return e, ok
}

// Plan is the result of validating a graph: a topological order over its
// elements plus per-element upstream/downstream neighbor sets, ready for a
// Scheduler to drive.
type Plan struct {
	Order      []*Element
	Upstream   map[string][]string
	Downstream map[string][]string
}

// Validate checks the graph's structural invariants and computes a
// deterministic execution plan:
//  1. every sink pad is bound ("unlinked pad" error naming the pad);
//  2. the element graph induced by edges is acyclic, via Kahn's algorithm
//     with element name as a lexicographic tie-breaker ("cycle detected"
//     error listing the participating elements otherwise);
//  3. per-element upstream/downstream element name sets are recorded.
func (g *Graph) Validate() (*Plan, error) {
	for _, e := range g.Elements() {
		for _, short := range e.snkNames {
			pad := e.snks[short]
			if !pad.IsBound() {
				return nil, dferrors.NewDomainError("UNLINKED_PAD", fmt.Sprintf("unlinked pad: %s", pad.FullName()), dferrors.ErrInvalidState)
			}
		}
	}

	upstream := make(map[string][]string)
	downstream := make(map[string][]string)
	inDegree := make(map[string]int)
	for _, e := range g.Elements() {
		inDegree[e.Name()] = 0
	}
	for _, e := range g.Elements() {
		for _, short := range e.snkNames {
			src := e.snks[short].boundTo
			if src == nil {
				continue
			}
			u, v := src.owner.Name(), e.Name()
			downstream[u] = appendUnique(downstream[u], v)
			upstream[v] = appendUnique(upstream[v], u)
			inDegree[v]++
		}
	}

	order, err := kahn(g.Elements(), downstream, inDegree)
	if err != nil {
		return nil, err
	}

	return &Plan{Order: order, Upstream: upstream, Downstream: downstream}, nil
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// kahn computes a topological order, breaking ties lexicographically by
// element name for determinism. A non-empty residual set after the queue
// drains indicates a cycle, reported with its participants.
func kahn(elements []*Element, downstream map[string][]string, inDegree map[string]int) ([]*Element, error) {
	byName := make(map[string]*Element, len(elements))
	degree := make(map[string]int, len(elements))
	for name, d := range inDegree {
		degree[name] = d
	}
	for _, e := range elements {
		byName[e.Name()] = e
	}

	ready := make([]string, 0, len(elements))
	for _, e := range elements {
		if degree[e.Name()] == 0 {
			ready = append(ready, e.Name())
		}
	}
	sort.Strings(ready)

	order := make([]*Element, 0, len(elements))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, byName[name])

		next := append([]string(nil), downstream[name]...)
		sort.Strings(next)
		for _, d := range next {
			degree[d]--
			if degree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(elements) {
		seen := make(map[string]bool, len(order))
		for _, e := range order {
			seen[e.Name()] = true
		}
		var participants []string
		for _, e := range elements {
			if !seen[e.Name()] {
				participants = append(participants, e.Name())
			}
		}
		sort.Strings(participants)
		return nil, dferrors.NewDomainError("CYCLE_DETECTED", fmt.Sprintf("cycle detected among elements: %v", participants), dferrors.ErrGraphCycle)
	}

	return order, nil
}
