package fs

import (
	"io"

	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrExists      = errors.New("file exists")
	ErrInvalidName = errors.New("invalid file name")
	ErrTooLarge    = errors.New("file too large")
)

// MaxFileSize caps the length a file can be created with.
const MaxFileSize = 8 << 20

// File is an open file. Files have a fixed length set at creation: writes
// past the end are truncated and never grow the file.
type File interface {
	io.Reader
	io.Writer
	io.ReaderAt
	io.Closer

	Seek(pos int64)
	Tell() int64
	Length() int64

	// DenyWrite blocks writes through every handle of the file until
	// AllowWrite is called on this handle or it is closed.
	DenyWrite()
	AllowWrite()
}

// FileSys is the flat namespace user programs see.
type FileSys interface {
	Create(name string, size int64) error
	Remove(name string) error
	Open(name string) (File, error)
	List() ([]string, error)
}

func validName(name string) error {
	if name == "" {
		return errors.WithStack(ErrInvalidName)
	}
	for _, c := range []byte(name) {
		if c == 0 {
			return errors.WithStack(ErrInvalidName)
		}
	}
	return nil
}

func validSize(size int64) error {
	if size < 0 || size > MaxFileSize {
		return errors.Wrapf(ErrTooLarge, "%d bytes", size)
	}
	return nil
}

// clamp limits an access of n bytes at pos to a file of length size.
func clamp(pos, size int64, n int) int {
	if pos >= size {
		return 0
	}
	if rem := size - pos; int64(n) > rem {
		return int(rem)
	}
	return n
}
