package flow

import (
	"fmt"

	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
)

// Direction distinguishes a pad's role: source (output) or sink (input).
type Direction string

const (
	// Source pads produce frames via an element's New hook.
	Source Direction = "src"
	// Sink pads consume frames via an element's Pull hook.
	Sink Direction = "snk"
)

// Pad is a named port on an Element. A source pad may fan out to any number
// of sink pads; a sink pad is bound to exactly one source pad. Pads are
// owned exclusively by their element and hold a non-owning back-reference
// to it for name prefixing and EOS bookkeeping.
type Pad struct {
	owner *Element
	dir   Direction
	short string

	// sink-only state
	boundTo     *Pad
	pending     *Frame
	eosReceived bool

	// source-only state
	fanOut  []*Pad
	eosSent bool
}

// FullName returns the pad's "<element>:<dir>:<short>" identifier.
func (p *Pad) FullName() string {
	return fmt.Sprintf("%s:%s:%s", p.owner.Name(), p.dir, p.short)
}

// ShortName returns the pad's name local to its owning element.
func (p *Pad) ShortName() string { return p.short }

// Dir returns the pad's direction.
func (p *Pad) Dir() Direction { return p.dir }

// Owner returns the element that owns this pad.
func (p *Pad) Owner() *Element { return p.owner }

// IsBound reports whether a sink pad has been linked to a source pad. Always
// true for source pads, which may be bound to any number of sinks.
func (p *Pad) IsBound() bool {
	if p.dir == Source {
		return true
	}
	return p.boundTo != nil
}

// EOSReceived reports whether a sink pad has observed a terminal frame.
func (p *Pad) EOSReceived() bool { return p.eosReceived }

// EOSSent reports whether a source pad has emitted its terminal frame.
func (p *Pad) EOSSent() bool { return p.eosSent }

// HasPending reports whether a sink pad's single-slot buffer currently holds
// an undelivered frame.
func (p *Pad) HasPending() bool { return p.pending != nil }

// FanOut returns the sink pads currently bound to this source pad.
func (p *Pad) FanOut() []*Pad { return append([]*Pad(nil), p.fanOut...) }

// Produce invokes the owning element's New hook for this source pad and
// records EOS-sent on a terminal frame. Calling it again once EOSSent is
// true is a scheduling-invariant error and does not invoke New. The
// scheduler is responsible for routing the returned frame to every fan-out
// sink pad via Write.
func (p *Pad) Produce() (Frame, error) {
	if p.eosSent {
		return Frame{}, dferrors.SchedulingInvariant(fmt.Sprintf("pad %s: New called after EOS was sent", p.FullName()))
	}
	f, err := p.owner.new(p)
	if err != nil {
		return Frame{}, err
	}
	if f.EOS() {
		p.eosSent = true
	}
	return f, nil
}

// Write places a frame into this sink pad's single-slot buffer. A non-empty
// slot at write time is a fatal scheduling-invariant violation (spec §4.5):
// the scheduler's topological-order contract guarantees this can't happen
// in a correctly driven graph, so it is returned as an error rather than
// silently overwritten.
func (p *Pad) Write(f Frame) error {
	if p.pending != nil {
		return fmt.Errorf("pad %s: write to a slot that still holds an undelivered frame", p.FullName())
	}
	p.pending = &f
	return nil
}

// Drain invokes the owning element's Pull hook on this sink pad's pending
// frame, if any, and clears the slot.
func (p *Pad) Drain() error {
	if p.pending == nil {
		return nil
	}
	f := *p.pending
	p.pending = nil
	if f.EOS() {
		p.eosReceived = true
	}
	return p.owner.pull(p, f)
}

// markEOS lets an element declare that it has drained one of its own sink
// pads, independent of whether a terminal frame was ever delivered on it.
func (p *Pad) markEOS() {
	if p.dir != Sink {
		return
	}
	p.eosReceived = true
}
