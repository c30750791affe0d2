package process

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/fs"
)

const (
	STDIN_FILENO  = 0
	STDOUT_FILENO = 1

	// first descriptor handed out by FdTable
	FirstFd  = 2
	MaxFiles = 128
)

var ErrTooManyFiles = errors.New("too many open files")

// FdTable maps a process's descriptors to open files. fd 0 and 1 belong to
// the console and never appear here. Only the owning process changes it,
// but observers may list it while the process runs.
type FdTable struct {
	mu    sync.Mutex
	files map[int]fs.File
}

func NewFdTable() *FdTable {
	return &FdTable{files: make(map[int]fs.File)}
}

// Add installs f at the lowest free descriptor.
func (t *FdTable) Add(f fs.File) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.files) >= MaxFiles {
		return -1, errors.WithStack(ErrTooManyFiles)
	}
	fd := FirstFd
	for t.files[fd] != nil {
		fd++
	}
	t.files[fd] = f
	return fd, nil
}

func (t *FdTable) Get(fd int) fs.File {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.files[fd]
}

// Remove unlinks fd and returns its file, or nil if fd is not open.
func (t *FdTable) Remove(fd int) fs.File {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.files[fd]
	delete(t.files, fd)
	return f
}

func (t *FdTable) Fds() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fds := make([]int, 0, len(t.files))
	for fd := range t.files {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	return fds
}

func (t *FdTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, f := range t.files {
		f.Close()
		delete(t.files, fd)
	}
}
