package isolation

import (
	"fmt"
	"os"
	"sync"

	dferrors "github.com/duragraph/dataflow/internal/pkg/errors"
)

// Segment is one named shared-memory region visible to both the main
// process and a hosted worker process. Bytes is advisory: the engine makes
// no attempt to synchronize concurrent access to it, per spec §5 — that is
// the worker implementer's responsibility.
type Segment struct {
	Name  string
	Path  string
	Bytes []byte
}

// Registry is a per-transport-context collection of named shared-memory
// segments, mirroring spec §4.7/§9: scoped to one isolation context, never
// process-global. Segments are backed by a temp file mapped MAP_SHARED so a
// re-exec'd worker process can map the same file independently and observe
// the same pages — the cross-process analogue of the reference vector
// engine's single-process arena (grounded on SnellerInc-sneller's
// vm/malloc_linux.go use of a raw syscall.Mmap rather than a higher-level
// shared-memory package).
type Registry struct {
	mu       sync.Mutex
	segments map[string]*Segment
}

// NewRegistry returns an empty shared-memory registry.
func NewRegistry() *Registry {
	return &Registry{segments: make(map[string]*Segment)}
}

// ToSHM creates a named shared-memory segment of the given size. It must be
// called before the worker process is spawned so the segment's path can be
// handed to the worker at startup.
func (r *Registry) ToSHM(name string, size int) (*Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.segments[name]; exists {
		return nil, dferrors.NewDomainError("SHM_ALREADY_EXISTS", fmt.Sprintf("shared-memory segment already registered: %s", name), dferrors.ErrAlreadyExists)
	}

	f, err := os.CreateTemp("", "dataflow-shm-*")
	if err != nil {
		return nil, dferrors.Transport("failed to create shared-memory backing file", err)
	}
	path := f.Name()

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, dferrors.Transport("failed to size shared-memory backing file", err)
	}

	bytes, err := mmapShared(f, size)
	f.Close() // the mapping keeps the pages; the fd is no longer needed
	if err != nil {
		os.Remove(path)
		return nil, dferrors.Transport("failed to map shared-memory segment", err)
	}

	seg := &Segment{Name: name, Path: path, Bytes: bytes}
	r.segments[name] = seg
	return seg, nil
}

// List returns every registered segment, for handing to a worker's startup
// metadata (shm_list in spec §4.7).
func (r *Registry) List() []*Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Segment, 0, len(r.segments))
	for _, seg := range r.segments {
		out = append(out, seg)
	}
	return out
}

// Release unmaps and unlinks every segment. Idempotent: safe to call more
// than once, and always called on every transport exit path (normal,
// error, or signal) per spec §4.7.
func (r *Registry) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, seg := range r.segments {
		if seg.Bytes != nil {
			if err := munmapShared(seg.Bytes); err != nil && firstErr == nil {
				firstErr = dferrors.Transport(fmt.Sprintf("failed to unmap segment %s", name), err)
			}
		}
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = dferrors.Transport(fmt.Sprintf("failed to unlink segment %s", name), err)
		}
		delete(r.segments, name)
	}
	return firstErr
}
