package isolation_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duragraph/dataflow/internal/domain/flow"
	"github.com/duragraph/dataflow/internal/infrastructure/isolation"
)

// TestMain doubles as the re-exec entrypoint a hosted worker process needs:
// when this test binary is invoked with --dataflow-worker, RunWorker
// recognizes it and runs the matching registered worker instead of any
// test. This is the same pattern os/exec's own tests use to spawn a helper
// child process from the test binary itself, rather than building a
// separate worker binary.
func TestMain(m *testing.M) {
	isolation.RegisterPayloadType(int(0))
	isolation.RegisterWorker("square", squareWorker)
	isolation.RegisterWorker("drainer", drainWorker)
	if isolation.RunWorker() {
		return
	}
	os.Exit(m.Run())
}

func squareWorker(ctx *isolation.WorkerContext) error {
	for item := range ctx.Input {
		if item.Frame.EOS() {
			ctx.Output <- isolation.OutboundItem{Pad: "out", Frame: flow.EOSFrame(nil)}
			return nil
		}
		v := item.Frame.Data().(int)
		ctx.Output <- isolation.OutboundItem{Pad: "out", Frame: flow.NewFrame(v * v)}
	}
	return nil
}

// drainWorker exercises the spec §4.7 distinction the square worker above
// ignores: a bare Stop or bare Shutdown means abandon the input queue and
// exit now, while Stop armed together with Shutdown (Signals.DrainOnExit)
// means keep servicing the input queue until it closes before exiting.
func drainWorker(ctx *isolation.WorkerContext) error {
	for {
		select {
		case item, ok := <-ctx.Input:
			if !ok {
				return nil
			}
			if item.Frame.EOS() {
				ctx.Output <- isolation.OutboundItem{Pad: "out", Frame: flow.EOSFrame(nil)}
				return nil
			}
			ctx.Output <- isolation.OutboundItem{Pad: "out", Frame: flow.NewFrame(item.Frame.Data().(int) * 10)}
		case <-ctx.Signals.StopDone():
			return drainOrAbort(ctx)
		case <-ctx.Signals.ShutdownDone():
			return drainOrAbort(ctx)
		}
	}
}

// drainOrAbort runs once either cancellation signal fires. Close arms
// Shutdown then Stop a few microseconds apart, so a brief grace window lets
// the companion signal catch up before deciding which of the two exit modes
// this is.
func drainOrAbort(ctx *isolation.WorkerContext) error {
	if !ctx.Signals.DrainOnExit() {
		select {
		case <-ctx.Signals.StopDone():
		case <-ctx.Signals.ShutdownDone():
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !ctx.Signals.DrainOnExit() {
		return nil
	}
	for item := range ctx.Input {
		if item.Frame.EOS() {
			ctx.Output <- isolation.OutboundItem{Pad: "out", Frame: flow.EOSFrame(nil)}
			return nil
		}
		ctx.Output <- isolation.OutboundItem{Pad: "out", Frame: flow.NewFrame(item.Frame.Data().(int) * 10)}
	}
	return nil
}

func TestTransport_RoundTrip(t *testing.T) {
	el, tr, err := isolation.NewHostedElement("squarer", []string{"out"}, []string{"in"}, isolation.Config{
		Command: os.Args[0],
		Worker:  "square",
	})
	require.NoError(t, err)
	defer tr.Close()

	in, ok := el.SinkPad("in")
	require.True(t, ok)
	out, ok := el.SourcePad("out")
	require.True(t, ok)

	var got []int
	for _, v := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, in.Write(flow.NewFrame(v)))
		require.NoError(t, in.Drain())

		frame, err := out.Produce()
		require.NoError(t, err)
		require.False(t, frame.EOS())
		got = append(got, frame.Data().(int))
	}
	require.Equal(t, []int{1, 4, 9, 16, 25}, got)

	require.NoError(t, in.Write(flow.EOSFrame(nil)))
	require.NoError(t, in.Drain())
	frame, err := out.Produce()
	require.NoError(t, err)
	require.True(t, frame.EOS())

	require.NoError(t, tr.Close())
}

// TestTransport_ComboSignal_DrainsQueuedInput asserts the spec §4.7 "drain
// before exit" behavior: once both Stop and Shutdown are armed, a worker
// that honors Signals.DrainOnExit keeps consuming and forwarding input
// instead of exiting as soon as either signal lands.
func TestTransport_ComboSignal_DrainsQueuedInput(t *testing.T) {
	el, tr, err := isolation.NewHostedElement("drainer-combo", []string{"out"}, []string{"in"}, isolation.Config{
		Command: os.Args[0],
		Worker:  "drainer",
	})
	require.NoError(t, err)
	defer tr.Close()

	in, ok := el.SinkPad("in")
	require.True(t, ok)
	out, ok := el.SourcePad("out")
	require.True(t, ok)

	require.NoError(t, tr.Stop())
	require.NoError(t, tr.Shutdown())

	require.NoError(t, in.Write(flow.NewFrame(4)))
	require.NoError(t, in.Drain())
	frame, err := out.Produce()
	require.NoError(t, err)
	require.False(t, frame.EOS())
	require.Equal(t, 40, frame.Data().(int), "worker must still drain input arriving after a combo stop+shutdown signal")

	require.NoError(t, in.Write(flow.EOSFrame(nil)))
	require.NoError(t, in.Drain())
	frame, err = out.Produce()
	require.NoError(t, err)
	require.True(t, frame.EOS())

	require.NoError(t, tr.Close())
}

// TestTransport_AbruptShutdown_ExitsWithoutDraining asserts the other half
// of the distinction: a bare Shutdown with Stop never armed is a kill, not a
// drain request, and the worker exits promptly rather than waiting on
// further input.
func TestTransport_AbruptShutdown_ExitsWithoutDraining(t *testing.T) {
	el, tr, err := isolation.NewHostedElement("drainer-abrupt", []string{"out"}, []string{"in"}, isolation.Config{
		Command: os.Args[0],
		Worker:  "drainer",
	})
	require.NoError(t, err)
	defer tr.Close()

	in, ok := el.SinkPad("in")
	require.True(t, ok)
	out, ok := el.SourcePad("out")
	require.True(t, ok)

	require.NoError(t, in.Write(flow.NewFrame(3)))
	require.NoError(t, in.Drain())
	frame, err := out.Produce()
	require.NoError(t, err)
	require.Equal(t, 30, frame.Data().(int))

	require.NoError(t, tr.Shutdown())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Join(ctx), "worker must exit promptly on a bare Shutdown with no Stop armed")
}
