//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package vm

func allocArena(size int) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func freeArena(mem []byte, shared bool) error {
	return nil
}
