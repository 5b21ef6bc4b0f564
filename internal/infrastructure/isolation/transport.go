// Package isolation hosts an Element's hooks in a separate OS process (spec
// §4.7/§9's "sub_process_internal"), connected back to the graph through
// bounded queues over pipes plus an optional shared-memory arena, instead of
// an in-process function call.
//
// Go has no portable fork(), so "spawn a worker" here means re-exec the same
// binary with an argv flag the worker side recognizes at the very top of
// main() (RunWorker). This mirrors the reference engine's Temporal bridge
// (runtime/bridge), which also hands a workflow's step off to a separately
// scheduled process — generalized from "a durable workflow worker" to "any
// graph element that wants OS-level isolation".
package isolation

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/duragraph/dataflow/internal/domain/flow"
	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
)

// Config describes how to spawn and bound one hosted worker process.
type Config struct {
	// Command and Args name the binary to re-exec. Args should not include
	// the --dataflow-worker flag; Transport appends it.
	Command string
	Args    []string

	// Worker is the name a RegisterWorker call on the far side was made
	// under.
	Worker string

	// WorkerArgs are passed down to the worker's WorkerContext.Args.
	WorkerArgs map[string]string

	// ShmSizes requests one named shared-memory segment per entry, mapped
	// into both this process's Registry and the worker's WorkerContext.Shm.
	ShmSizes map[string]int

	// EnqueueRate and EnqueueBurst bound the retry pace when a sink pad's
	// Pull delivery to the worker's input queue hits a transient failure.
	// Zero means a conservative built-in default.
	EnqueueRate  rate.Limit
	EnqueueBurst int

	// StopGrace bounds how long Close waits for the worker to exit after
	// signaling Stop/Shutdown before it is force-killed.
	StopGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.EnqueueRate == 0 {
		c.EnqueueRate = 50
	}
	if c.EnqueueBurst == 0 {
		c.EnqueueBurst = 10
	}
	if c.StopGrace == 0 {
		c.StopGrace = 5 * time.Second
	}
	return c
}

// Transport owns one spawned worker process and the plumbing connecting it
// to the hosting flow.Element's pads.
type Transport struct {
	cfg Config
	cmd *exec.Cmd
	shm *Registry

	stdinMu  sync.Mutex
	stdin    io.WriteCloser
	stdinEnc *gob.Encoder
	limiter  *rate.Limiter

	ctrlWrite io.WriteCloser

	outMu   sync.Mutex
	outputs map[string]chan flow.Frame
	readErr error

	closeOnce sync.Once
	closeErr  error
	exited    chan struct{}
}

// NewHostedElement spawns a worker process per cfg and returns a flow.Element
// whose Pull/New hooks are backed by it, alongside the Transport handle used
// to tear the process down. srcNames/snkNames describe the hosted element's
// pads exactly as they would for an in-process element.
func NewHostedElement(name string, srcNames, snkNames []string, cfg Config) (*flow.Element, *Transport, error) {
	cfg = cfg.withDefaults()

	shm := NewRegistry()
	shmRefs := make([]ShmRef, 0, len(cfg.ShmSizes))
	for segName, size := range cfg.ShmSizes {
		seg, err := shm.ToSHM(segName, size)
		if err != nil {
			return nil, nil, err
		}
		shmRefs = append(shmRefs, ShmRef{Name: seg.Name, Path: seg.Path, Size: size})
	}

	meta := workerMeta{Args: cfg.WorkerArgs, Shm: shmRefs}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		shm.Release()
		return nil, nil, dferrors.Transport("failed to encode worker metadata", err)
	}

	cmd := exec.Command(cfg.Command, append(append([]string(nil), cfg.Args...), workerArgs(cfg.Worker)...)...)
	cmd.Env = append(cmd.Environ(), workerEnvName+"="+string(metaJSON))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		shm.Release()
		return nil, nil, dferrors.Transport("failed to open worker stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		shm.Release()
		return nil, nil, dferrors.Transport("failed to open worker stdout", err)
	}

	ctrlRead, ctrlWrite, err := os.Pipe()
	if err != nil {
		shm.Release()
		return nil, nil, dferrors.Transport("failed to open worker control pipe", err)
	}
	cmd.ExtraFiles = []*os.File{ctrlRead}

	if err := cmd.Start(); err != nil {
		shm.Release()
		return nil, nil, dferrors.Transport(fmt.Sprintf("failed to start worker %q", cfg.Worker), err)
	}
	ctrlRead.Close() // parent keeps only the write end

	t := &Transport{
		cfg:       cfg,
		cmd:       cmd,
		shm:       shm,
		stdin:     stdin,
		stdinEnc:  gob.NewEncoder(stdin),
		limiter:   rate.NewLimiter(cfg.EnqueueRate, cfg.EnqueueBurst),
		ctrlWrite: ctrlWrite,
		outputs:   make(map[string]chan flow.Frame, len(srcNames)),
		exited:    make(chan struct{}),
	}
	for _, short := range srcNames {
		t.outputs[short] = make(chan flow.Frame, 1) // one-slot, mirroring the sink pad it feeds
	}

	go t.readLoop(stdout)
	go t.waitLoop()

	hooks := flow.Hooks{
		Pull: t.pull,
		New:  t.new,
	}
	if len(srcNames) == 0 && len(snkNames) == 0 {
		return nil, nil, dferrors.NewDomainError("INVALID_HOSTED_ELEMENT", "a hosted element needs at least one pad", dferrors.ErrInvalidInput)
	}
	el := flow.NewElement(name, srcNames, snkNames, hooks)
	return el, t, nil
}

// pull is the hosted element's Pull hook: it forwards the frame to the
// worker's input queue, retrying at the configured rate on transient
// enqueue failures rather than failing the tick outright.
func (t *Transport) pull(pad *flow.Pad, frame flow.Frame) error {
	item := wireInbound{Pad: pad.ShortName(), Frame: toWire(frame)}

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := t.limiter.Wait(context.Background()); err != nil {
				return dferrors.Transport("enqueue rate limiter wait failed", err)
			}
		}
		t.stdinMu.Lock()
		err := t.stdinEnc.Encode(item)
		t.stdinMu.Unlock()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return dferrors.Transport(fmt.Sprintf("failed to enqueue frame to worker input pad %s", pad.ShortName()), lastErr)
}

// new is the hosted element's New hook: it blocks for the next frame the
// worker emitted for this source pad, or until the worker process exits.
// The wait has no timeout and does not observe the Stop signal.
func (t *Transport) new(pad *flow.Pad) (flow.Frame, error) {
	t.outMu.Lock()
	ch, ok := t.outputs[pad.ShortName()]
	readErr := t.readErr
	t.outMu.Unlock()
	if !ok {
		return flow.Frame{}, dferrors.SchedulingInvariant(fmt.Sprintf("hosted element has no output queue for pad %s", pad.ShortName()))
	}

	select {
	case f, open := <-ch:
		if !open {
			if readErr != nil {
				return flow.Frame{}, readErr
			}
			return flow.EOSFrame(nil), nil
		}
		return f, nil
	case <-t.exited:
		return flow.Frame{}, dferrors.Transport("worker process exited before producing a frame", nil)
	}
}

// readLoop demultiplexes the worker's stdout stream of wireOutbound frames
// into the per-pad output channels New reads from.
func (t *Transport) readLoop(stdout io.Reader) {
	dec := gob.NewDecoder(stdout)
	for {
		var w wireOutbound
		if err := dec.Decode(&w); err != nil {
			t.outMu.Lock()
			if err != io.EOF {
				t.readErr = dferrors.Transport("worker output stream failed", err)
			}
			for _, ch := range t.outputs {
				close(ch)
			}
			t.outMu.Unlock()
			return
		}
		t.outMu.Lock()
		ch, ok := t.outputs[w.Pad]
		t.outMu.Unlock()
		if ok {
			ch <- fromWire(w.Frame)
		}
	}
}

func (t *Transport) waitLoop() {
	t.cmd.Wait()
	close(t.exited)
}

// Stop signals the worker process that the graph has reached a normal,
// expected end (spec §4.7's stop signal).
func (t *Transport) Stop() error { return t.signal(ctrlStop) }

// Shutdown signals the worker process that the graph is terminating
// abnormally (spec §4.7's shutdown signal), distinct from Stop per the
// spec's resolution of their conflation.
func (t *Transport) Shutdown() error { return t.signal(ctrlShutdown) }

func (t *Transport) signal(code byte) error {
	_, err := t.ctrlWrite.Write([]byte{code})
	if err != nil {
		return dferrors.Transport("failed to signal worker", err)
	}
	return nil
}

// Close tears the worker process down per spec §4.7/§8's scoped-release
// order: arm Shutdown then Stop (a worker that only checks one of the two
// must still see both), wait up to StopGrace for a clean exit, force-kill on
// timeout, and always release shared-memory segments regardless of how the
// process exited. Idempotent.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.Shutdown()
		t.Stop()
		t.stdin.Close()
		t.ctrlWrite.Close()

		select {
		case <-t.exited:
		case <-time.After(t.cfg.StopGrace):
			t.cmd.Process.Kill()
			<-t.exited
		}

		t.closeErr = t.shm.Release()
	})
	return t.closeErr
}

// Join waits for the worker process to exit, for callers coordinating
// multiple hosted elements' shutdown (e.g. via errgroup).
func (t *Transport) Join(ctx context.Context) error {
	select {
	case <-t.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinAll waits for every given transport to exit, returning the first
// error observed, mirroring how the reference service's worker supervisors
// join a pool of concurrently running workers.
func JoinAll(ctx context.Context, transports ...*Transport) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range transports {
		t := t
		g.Go(func() error { return t.Join(ctx) })
	}
	return g.Wait()
}
