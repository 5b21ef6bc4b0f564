//go:build linux || darwin

package isolation

import (
	"os"
	"syscall"
)

// mmapShared maps f MAP_SHARED so that another process mapping the same
// path observes writes made through the returned slice. Grounded on
// SnellerInc-sneller's vm/malloc_linux.go, which maps its single-process
// arena the same way (MAP_PRIVATE there; MAP_SHARED here, since the whole
// point of this registry is cross-process visibility).
func mmapShared(f *os.File, size int) ([]byte, error) {
	return syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

func munmapShared(b []byte) error {
	return syscall.Munmap(b)
}
