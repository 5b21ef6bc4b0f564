//go:build !linux && !darwin

package isolation

import (
	"fmt"
	"os"
	"runtime"
)

// mmapShared has no portable implementation outside linux/darwin in this
// engine; other platforms fail fast with a transport error rather than
// silently falling back to process-local memory that wouldn't actually be
// shared with a worker process.
func mmapShared(f *os.File, size int) ([]byte, error) {
	return nil, fmt.Errorf("shared-memory segments are not supported on %s", runtime.GOOS)
}

func munmapShared(b []byte) error {
	return nil
}
