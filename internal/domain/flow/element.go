package flow

import (
	pkguuid "github.com/duragraph/dataflow/internal/pkg/uuid"
)

// PullFunc handles one frame delivered on a sink pad. It must not block
// indefinitely and must not itself produce frames; it may call pad.markEOS
// (via Element.MarkEOS) to declare the pad drained from this element's
// point of view.
type PullFunc func(pad *Pad, frame Frame) error

// InternalFunc runs once per scheduling tick, after all of an element's
// Pull calls for that tick and before any of its New calls. The default is
// a no-op.
type InternalFunc func() error

// NewFunc produces the next frame for a source pad. It must always return a
// non-nil Frame; once it returns an EOS frame for a given pad it is never
// called again for that pad.
type NewFunc func(pad *Pad) (Frame, error)

// Hooks bundles an element's optional lifecycle callbacks. Missing hooks
// are detected by a nil check rather than dispatched through an overridden
// virtual method, which lets a pure Source omit Pull and Internal, and a
// pure Sink omit New and Internal.
type Hooks struct {
	Pull     PullFunc
	Internal InternalFunc
	New      NewFunc
}

// Element is a stateful node in the graph with zero or more sink pads and
// zero or more source pads. Any per-element state the Pull/Internal/New
// hooks need is expected to be captured in their closures; the engine keeps
// no state field of its own.
type Element struct {
	name  string
	hooks Hooks

	srcNames []string
	snkNames []string
	srcs     map[string]*Pad
	snks     map[string]*Pad
}

// NewElement constructs an element with the given name (or a generated
// unique name if empty), ordered source/sink pad short names, and hooks.
// Duplicate short names within one direction are a construction error
// surfaced by Graph.Insert rather than here, so that elements can be built
// standalone in tests before ever touching a graph.
func NewElement(name string, srcNames, snkNames []string, hooks Hooks) *Element {
	if name == "" {
		name = pkguuid.New()
	}

	e := &Element{
		name:     name,
		hooks:    hooks,
		srcNames: append([]string(nil), srcNames...),
		snkNames: append([]string(nil), snkNames...),
		srcs:     make(map[string]*Pad, len(srcNames)),
		snks:     make(map[string]*Pad, len(snkNames)),
	}
	for _, short := range e.srcNames {
		e.srcs[short] = &Pad{owner: e, dir: Source, short: short}
	}
	for _, short := range e.snkNames {
		e.snks[short] = &Pad{owner: e, dir: Sink, short: short}
	}
	return e
}

// Name returns the element's unique name.
func (e *Element) Name() string { return e.name }

// SourcePadNames returns source pad short names in declaration order.
func (e *Element) SourcePadNames() []string { return append([]string(nil), e.srcNames...) }

// SinkPadNames returns sink pad short names in declaration order.
func (e *Element) SinkPadNames() []string { return append([]string(nil), e.snkNames...) }

// Srcs exposes the element's source pads keyed by short name.
func (e *Element) Srcs() map[string]*Pad { return e.srcs }

// Snks exposes the element's sink pads keyed by short name.
func (e *Element) Snks() map[string]*Pad { return e.snks }

// SourcePad looks up a source pad by short name.
func (e *Element) SourcePad(short string) (*Pad, bool) {
	p, ok := e.srcs[short]
	return p, ok
}

// SinkPad looks up a sink pad by short name.
func (e *Element) SinkPad(short string) (*Pad, bool) {
	p, ok := e.snks[short]
	return p, ok
}

// MarkEOS lets an element declare that one of its own sink pads is drained,
// independent of any EOS frame delivered on it.
func (e *Element) MarkEOS(sinkShort string) {
	if p, ok := e.snks[sinkShort]; ok {
		p.markEOS()
	}
}

// IsSource reports whether the element has only source pads.
func (e *Element) IsSource() bool { return len(e.snkNames) == 0 && len(e.srcNames) > 0 }

// IsSink reports whether the element has only sink pads.
func (e *Element) IsSink() bool { return len(e.srcNames) == 0 && len(e.snkNames) > 0 }

// IsTransform reports whether the element has both source and sink pads.
func (e *Element) IsTransform() bool { return len(e.srcNames) > 0 && len(e.snkNames) > 0 }

// CallInternal invokes the element's Internal hook, if any. The scheduler
// calls it once per tick, after all of this element's Pull calls and
// before any of its New calls.
func (e *Element) CallInternal() error {
	return e.internal()
}

func (e *Element) pull(pad *Pad, frame Frame) error {
	if e.hooks.Pull == nil {
		return nil
	}
	return e.hooks.Pull(pad, frame)
}

func (e *Element) internal() error {
	if e.hooks.Internal == nil {
		return nil
	}
	return e.hooks.Internal()
}

func (e *Element) new(pad *Pad) (Frame, error) {
	if e.hooks.New == nil {
		return EOSFrame(nil), nil
	}
	return e.hooks.New(pad)
}
