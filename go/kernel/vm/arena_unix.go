//go:build linux || darwin || freebsd || netbsd || openbsd

package vm

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func allocArena(size int) ([]byte, bool, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false, errors.Wrap(err, "mmap() of frame arena failed")
	}
	return mem, true, nil
}

func freeArena(mem []byte, shared bool) error {
	if mem == nil || !shared {
		return nil
	}
	return errors.Wrap(unix.Munmap(mem), "munmap() of frame arena failed")
}
