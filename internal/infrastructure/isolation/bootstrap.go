package isolation

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// controlFD is the file descriptor a worker process finds its control pipe
// on. The parent passes it via cmd.ExtraFiles[0], which Go always surfaces
// to the child starting at fd 3 (0/1/2 being stdin/stdout/stderr).
const controlFD = 3

// control byte codes written by the parent onto the control pipe.
const (
	ctrlStop     byte = 's'
	ctrlShutdown byte = 'd'
)

// ShmRef describes one shared-memory segment a worker should map at
// startup, handed down from the parent's Registry (see shm.go).
type ShmRef struct {
	Name string
	Path string
	Size int
}

// workerMeta is the bootstrap metadata a parent passes a worker process
// through workerEnvName, encoded as JSON since it only ever crosses an
// environment variable, not the frame pipe.
type workerMeta struct {
	Args map[string]string
	Shm  []ShmRef
}

// WorkerContext is everything a WorkerFunc needs to participate in the
// graph it was hosted from: its input queue, its output queue, the two
// cancellation signals, any startup arguments, and any mapped shared-memory
// segments. It is the process-isolated analogue of the Pad/Hooks surface an
// in-process Element sees, per spec §4.7's "same authoring contract".
type WorkerContext struct {
	Input   <-chan InboundItem
	Output  chan<- OutboundItem
	Signals *Signals
	Args    map[string]string
	Shm     []*Segment
}

// ShmByName returns the mapped segment registered under name, or nil.
func (c *WorkerContext) ShmByName(name string) *Segment {
	for _, seg := range c.Shm {
		if seg.Name == name {
			return seg
		}
	}
	return nil
}

// RunWorker checks whether this process was re-exec'd to host a registered
// worker (see workerArgs/isWorkerInvocation) and, if so, runs it to
// completion and calls os.Exit with its outcome, so for a worker invocation
// it never returns. When this process is not a worker invocation it returns
// false, letting normal main-process logic proceed. Callers must invoke RunWorker as the first statement in main(),
// before any flag parsing of their own.
func RunWorker() bool {
	name, ok := isWorkerInvocation(os.Args)
	if !ok {
		return false
	}

	fn, ok := lookupWorker(name)
	if !ok {
		fmt.Fprintln(os.Stderr, unknownWorkerErr(name))
		os.Exit(1)
	}

	var meta workerMeta
	if raw := os.Getenv(workerEnvName); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			fmt.Fprintf(os.Stderr, "isolation: malformed worker metadata: %v\n", err)
			os.Exit(1)
		}
	}

	shm := make([]*Segment, 0, len(meta.Shm))
	for _, ref := range meta.Shm {
		f, err := os.OpenFile(ref.Path, os.O_RDWR, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "isolation: failed to open shm segment %s: %v\n", ref.Name, err)
			os.Exit(1)
		}
		bytes, err := mmapShared(f, ref.Size)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "isolation: failed to map shm segment %s: %v\n", ref.Name, err)
			os.Exit(1)
		}
		shm = append(shm, &Segment{Name: ref.Name, Path: ref.Path, Bytes: bytes})
	}

	signals := newSignals()
	ctrl := os.NewFile(controlFD, "dataflow-control")
	go watchControl(ctrl, signals)

	input := make(chan InboundItem, 64)
	go decodeInbound(os.Stdin, input)

	output := make(chan OutboundItem, 64)
	done := make(chan struct{})
	go encodeOutbound(os.Stdout, output, done)

	ctx := &WorkerContext{
		Input:   input,
		Output:  output,
		Signals: signals,
		Args:    meta.Args,
		Shm:     shm,
	}

	err := fn(ctx)
	close(output)
	<-done // let the last frames flush before the process exits

	for _, seg := range shm {
		munmapShared(seg.Bytes)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "isolation: worker %q failed: %v\n", name, err)
		os.Exit(1)
	}
	os.Exit(0)
	return true // unreachable; satisfies the compiler
}

// watchControl reads one-byte control codes from the parent until the pipe
// closes (which happens when the parent itself exits, treated the same as
// an explicit shutdown).
func watchControl(f *os.File, signals *Signals) {
	buf := make([]byte, 1)
	for {
		_, err := f.Read(buf)
		if err != nil {
			signals.Shutdown()
			return
		}
		switch buf[0] {
		case ctrlStop:
			signals.Stop()
		case ctrlShutdown:
			signals.Shutdown()
		}
	}
}

func decodeInbound(r io.Reader, out chan<- InboundItem) {
	defer close(out)
	dec := gob.NewDecoder(r)
	for {
		var w wireInbound
		if err := dec.Decode(&w); err != nil {
			return
		}
		out <- InboundItem{Pad: w.Pad, Frame: fromWire(w.Frame)}
	}
}

func encodeOutbound(w io.Writer, in <-chan OutboundItem, done chan<- struct{}) {
	defer close(done)
	enc := gob.NewEncoder(w)
	for item := range in {
		w := wireOutbound{Pad: item.Pad, Frame: toWire(item.Frame)}
		if err := enc.Encode(w); err != nil {
			return
		}
	}
}
