package fs

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// HostFS serves files from a host directory. Names are resolved inside Root
// and cannot escape it.
type HostFS struct {
	Root string

	mu   sync.Mutex
	deny map[string]int
}

func NewHostFS(root string) (*HostFS, error) {
	stat, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, "stat() of fs root failed")
	} else if !stat.IsDir() {
		return nil, errors.Errorf("%s: not a directory", root)
	}
	return &HostFS{Root: root, deny: make(map[string]int)}, nil
}

func (h *HostFS) path(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	return filepath.Join(h.Root, filepath.Clean("/"+name)), nil
}

func hostErr(err error, name string) error {
	switch {
	case os.IsNotExist(err):
		return errors.Wrap(ErrNotFound, name)
	case os.IsExist(err):
		return errors.Wrap(ErrExists, name)
	}
	return errors.Wrap(err, name)
}

func (h *HostFS) Create(name string, size int64) error {
	if err := validSize(size); err != nil {
		return err
	}
	p, err := h.path(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return hostErr(err, name)
	}
	defer f.Close()
	return errors.Wrap(f.Truncate(size), "truncate() failed")
}

func (h *HostFS) Remove(name string) error {
	p, err := h.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return hostErr(err, name)
	}
	return nil
}

func (h *HostFS) Open(name string) (File, error) {
	p, err := h.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR, 0)
	if os.IsPermission(err) {
		f, err = os.Open(p)
	}
	if err != nil {
		return nil, hostErr(err, name)
	}
	if stat, err := f.Stat(); err != nil || stat.IsDir() {
		f.Close()
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return &hostFile{fs: h, f: f, path: p}, nil
}

func (h *HostFS) List() ([]string, error) {
	entries, err := os.ReadDir(h.Root)
	if err != nil {
		return nil, errors.Wrap(err, "readdir() failed")
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

type hostFile struct {
	fs     *HostFS
	f      *os.File
	path   string
	pos    int64
	denied bool
}

func (f *hostFile) Read(p []byte) (int, error) {
	n, err := f.f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *hostFile) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

func (f *hostFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	denied := f.fs.deny[f.path] > 0
	f.fs.mu.Unlock()
	if denied {
		return 0, nil
	}
	n := clamp(f.pos, f.Length(), len(p))
	if n == 0 {
		return 0, nil
	}
	n, err := f.f.WriteAt(p[:n], f.pos)
	f.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, "write failed")
	}
	return n, nil
}

func (f *hostFile) Seek(pos int64) { f.pos = pos }
func (f *hostFile) Tell() int64    { return f.pos }

func (f *hostFile) Length() int64 {
	stat, err := f.f.Stat()
	if err != nil {
		return 0
	}
	return stat.Size()
}

func (f *hostFile) DenyWrite() {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if !f.denied {
		f.denied = true
		f.fs.deny[f.path]++
	}
}

func (f *hostFile) AllowWrite() {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.denied {
		f.denied = false
		if f.fs.deny[f.path]--; f.fs.deny[f.path] <= 0 {
			delete(f.fs.deny, f.path)
		}
	}
}

func (f *hostFile) Close() error {
	f.AllowWrite()
	return f.f.Close()
}
