package isolation

import (
	"encoding/gob"
	"fmt"
	"sync"
)

// WorkerFunc is the user-supplied routine a process-hosted element runs in
// its own OS process (spec §4.7's sub_process_internal). It is expected to
// loop reading ctx.Input, writing ctx.Output, and observing ctx.Signals
// between blocking waits, returning once Stop (or Shutdown) is armed and,
// per DrainOnExit, its input is drained.
type WorkerFunc func(ctx *WorkerContext) error

var (
	registryMu sync.Mutex
	workers    = map[string]WorkerFunc{}
)

// RegisterWorker associates a name with a WorkerFunc. The same binary is
// re-exec'd to host the worker in a separate process (there being no
// portable fork() in Go), so registration must happen in an init() or
// early in main() in both the parent role and the worker role — the
// process looks itself up by name via RunWorker at startup, the same way a
// plugin-style binary dispatches on an early argv flag before running its
// normal main-process logic.
func RegisterWorker(name string, fn WorkerFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	workers[name] = fn
}

func lookupWorker(name string) (WorkerFunc, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	fn, ok := workers[name]
	return fn, ok
}

// RegisterPayloadType registers a concrete Frame payload type with the gob
// codec used to serialize frames across the input/output queues. Every
// concrete type that ever flows through a process-hosted element's pads
// must be registered once, in both the main process and the worker
// process, before the graph runs — mirroring gob's usual registration
// requirement for values carried in an interface{} field.
func RegisterPayloadType(v interface{}) {
	gob.Register(v)
}

// workerEnvName is the environment variable carrying the worker bootstrap
// metadata (see bootstrap.go) for a re-exec'd worker process.
const workerEnvName = "DATAFLOW_WORKER"

// workerFlag is the argv marker RunWorker looks for. A program built
// against this package should call RunWorker() as the very first thing in
// main(), before parsing any of its own flags:
//
//	func main() {
//	    isolation.RegisterWorker("square", squareWorker)
//	    if isolation.RunWorker() {
//	        return // this process is a re-exec'd worker; it already ran.
//	    }
//	    // ... normal main-process logic ...
//	}
const workerFlag = "--dataflow-worker"

func workerArgs(name string) []string {
	return []string{workerFlag, name}
}

func isWorkerInvocation(args []string) (string, bool) {
	for i, a := range args {
		if a == workerFlag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func unknownWorkerErr(name string) error {
	return fmt.Errorf("isolation: no worker registered under name %q", name)
}
