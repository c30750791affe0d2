package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// ELF32 identification and header values accepted by the loader.
var elfMagic = []byte{0x7f, 'E', 'L', 'F', ELFCLASS32, ELFDATA2LSB, EV_CURRENT}

const (
	ELFCLASS32  = 1
	ELFDATA2LSB = 1
	EV_CURRENT  = 1

	ET_EXEC = 2
	EM_386  = 3

	// sanity bound on the program-header count
	MaxPhnum = 1024
)

// program header types
const (
	PT_NULL    = 0
	PT_LOAD    = 1
	PT_DYNAMIC = 2
	PT_INTERP  = 3
	PT_NOTE    = 4
	PT_SHLIB   = 5
	PT_PHDR    = 6
	PT_STACK   = 0x6474e551
)

// program header flags
const (
	PF_X = 1
	PF_W = 2
	PF_R = 4
)

var order = binary.LittleEndian

type Ehdr32 struct {
	Ident     []byte `struc:"[16]byte"`
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type Phdr32 struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

var ehdrSize, phdrSize int

func init() {
	var err error
	if ehdrSize, err = struc.Sizeof(&Ehdr32{Ident: make([]byte, 16)}); err != nil {
		panic(err)
	}
	if phdrSize, err = struc.Sizeof(&Phdr32{}); err != nil {
		panic(err)
	}
}

func getMagic(r io.ReaderAt) []byte {
	ret := make([]byte, len(elfMagic))
	r.ReadAt(ret, 0)
	return ret
}

// MatchElf reports whether r starts with a 32-bit little-endian ELF identification.
func MatchElf(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), elfMagic)
}

func readStruct(r io.ReaderAt, off int64, size int, v interface{}) error {
	buf := make([]byte, size)
	if n, err := r.ReadAt(buf, off); n != size {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrapf(ErrTruncated, "read %d bytes at %#x: %v", size, off, err)
	}
	return errors.Wrap(struc.UnpackWithOrder(bytes.NewReader(buf), v, order), "struc.Unpack() failed")
}

func (h *Ehdr32) validate() error {
	switch {
	case !bytes.Equal(h.Ident[:len(elfMagic)], elfMagic):
		return errors.Wrapf(ErrBadMagic, "% x", h.Ident[:len(elfMagic)])
	case h.Type != ET_EXEC:
		return errors.Wrapf(ErrNotExecutable, "type %d", h.Type)
	case h.Machine != EM_386:
		return errors.Wrapf(ErrBadMachine, "machine %d", h.Machine)
	case h.Version != EV_CURRENT:
		return errors.Wrapf(ErrBadVersion, "version %d", h.Version)
	case int(h.Phentsize) != phdrSize:
		return errors.Wrapf(ErrBadPhentsize, "%d != %d", h.Phentsize, phdrSize)
	case h.Phnum > MaxPhnum:
		return errors.Wrapf(ErrTooManyPhdrs, "%d > %d", h.Phnum, MaxPhnum)
	}
	return nil
}
