package fs

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"path"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type inode struct {
	data []byte
	deny int
}

// MemFS is an in-memory FileSys. Removing an open file unlinks the name;
// open handles keep working on the old contents.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*inode
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*inode)}
}

// NewTarFS builds a MemFS from the regular files of a tar archive.
func NewTarFS(r io.Reader) (*MemFS, error) {
	m := NewMemFS()
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "reading tar archive failed")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		body, err := ioutil.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s failed", hdr.Name)
		}
		m.files[path.Clean(hdr.Name)] = &inode{data: body}
	}
	return m, nil
}

// Add creates or replaces name with a copy of data.
func (m *MemFS) Add(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = &inode{data: append([]byte(nil), data...)}
}

func (m *MemFS) Create(name string, size int64) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := validSize(size); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok {
		return errors.Wrap(ErrExists, name)
	}
	m.files[name] = &inode{data: make([]byte, size)}
	return nil
}

func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return errors.Wrap(ErrNotFound, name)
	}
	delete(m.files, name)
	return nil
}

func (m *MemFS) Open(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ino, ok := m.files[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return &memFile{fs: m, ino: ino}, nil
}

func (m *MemFS) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memFile struct {
	fs     *MemFS
	ino    *inode
	pos    int64
	denied bool
}

func (f *memFile) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	n := clamp(off, int64(len(f.ino.data)), len(p))
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	copy(p, f.ino.data[off:off+int64(n)])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.ino.deny > 0 {
		return 0, nil
	}
	n := clamp(f.pos, int64(len(f.ino.data)), len(p))
	if n == 0 {
		return 0, nil
	}
	copy(f.ino.data[f.pos:], p[:n])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Seek(pos int64) { f.pos = pos }
func (f *memFile) Tell() int64    { return f.pos }

func (f *memFile) Length() int64 {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return int64(len(f.ino.data))
}

func (f *memFile) DenyWrite() {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if !f.denied {
		f.denied = true
		f.ino.deny++
	}
}

func (f *memFile) AllowWrite() {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.denied {
		f.denied = false
		f.ino.deny--
	}
}

func (f *memFile) Close() error {
	f.AllowWrite()
	return nil
}
