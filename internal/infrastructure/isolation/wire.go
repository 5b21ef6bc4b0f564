package isolation

import "github.com/duragraph/dataflow/internal/domain/flow"

// InboundItem is one (pad_name, frame) pair enqueued to a process-hosted
// element's input queue, per spec §4.7.
type InboundItem struct {
	Pad   string
	Frame flow.Frame
}

// OutboundItem is one (pad_name, frame) pair a worker process emits for one
// of the hosted element's source pads.
type OutboundItem struct {
	Pad   string
	Frame flow.Frame
}

// wireFrame is the gob-encodable surrogate for flow.Frame, whose fields are
// unexported by design (frames are immutable value types with no public
// constructor-free zero value). The two queues speak wireFrame/wireInbound
// on the pipe and convert to/from flow.Frame at the boundary.
type wireFrame struct {
	Data interface{}
	EOS  bool
}

func toWire(f flow.Frame) wireFrame {
	return wireFrame{Data: f.Data(), EOS: f.EOS()}
}

func fromWire(w wireFrame) flow.Frame {
	if w.EOS {
		return flow.EOSFrame(w.Data)
	}
	return flow.NewFrame(w.Data)
}

// wireInbound is the gob-encodable surrogate for InboundItem.
type wireInbound struct {
	Pad   string
	Frame wireFrame
}

// wireOutbound is the gob-encodable surrogate for OutboundItem.
type wireOutbound struct {
	Pad   string
	Frame wireFrame
}
