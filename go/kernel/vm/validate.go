package vm

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

var ErrStringTooLong = errors.New("user string too long")

// Mode is the kind of access a kernel handler will make to user memory.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) prot() int {
	if m == Write {
		return cpu.PROT_WRITE
	}
	return cpu.PROT_READ
}

func (m Mode) fault(addr uint64, size int, mapped bool) *cpu.MemError {
	enum := cpu.MEM_READ_UNMAPPED
	switch {
	case m == Write && mapped:
		enum = cpu.MEM_WRITE_PROT
	case m == Write:
		enum = cpu.MEM_WRITE_UNMAPPED
	case mapped:
		enum = cpu.MEM_READ_PROT
	}
	return &cpu.MemError{Addr: addr, Size: size, Enum: enum}
}

// Check reports whether every byte of [addr, addr+size) is a non-null user
// address mapped with permissions allowing mode.
func (as *AddressSpace) Check(addr, size uint32, mode Mode) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.check(addr, size, mode) == nil
}

// Validate is Check returning the fault, as a *cpu.MemError, instead of a bool.
func (as *AddressSpace) Validate(addr, size uint32, mode Mode) error {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.check(addr, size, mode)
}

// callers hold as.mu
func (as *AddressSpace) check(addr, size uint32, mode Mode) error {
	if size == 0 {
		return nil
	}
	start, end := uint64(addr), uint64(addr)+uint64(size)
	if addr == 0 {
		return &cpu.MemError{Addr: start, Size: int(size), Enum: cpu.MEM_NULL}
	}
	if end > cpu.PHYS_BASE {
		return &cpu.MemError{Addr: start, Size: int(size), Enum: cpu.MEM_KERNEL}
	}
	dir := as.root.Load()
	if dir == nil {
		return mode.fault(start, int(size), false)
	}
	// walk one page at a time so the failing address is exact
	for pg := cpu.PageRound(start); pg < end; pg += cpu.PAGE_SIZE {
		at := pg
		if at < start {
			at = start
		}
		page := dir.Mem.Find(pg)
		if page == nil {
			return mode.fault(at, int(size), false)
		}
		if page.Prot&mode.prot() == 0 {
			return mode.fault(at, int(size), true)
		}
	}
	return nil
}

// CheckString validates and copies a NUL-terminated user string. The scan
// proceeds page by page and never touches a page that fails validation.
// Strings longer than max bytes fail with ErrStringTooLong.
func (as *AddressSpace) CheckString(addr uint32, max int) (string, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	if addr == 0 {
		return "", &cpu.MemError{Addr: 0, Size: 1, Enum: cpu.MEM_NULL}
	}
	dir := as.root.Load()
	if dir == nil {
		return "", Read.fault(uint64(addr), 1, false)
	}
	var buf []byte
	for a := uint64(addr); ; {
		if a >= cpu.PHYS_BASE {
			return "", &cpu.MemError{Addr: a, Size: 1, Enum: cpu.MEM_KERNEL}
		}
		page := dir.Mem.Find(a)
		if page == nil {
			return "", Read.fault(a, 1, false)
		}
		if page.Prot&cpu.PROT_READ == 0 {
			return "", Read.fault(a, 1, true)
		}
		chunk := page.Data[a-page.Addr:]
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			buf = append(buf, chunk[:i]...)
			if len(buf) > max {
				return "", errors.Wrapf(ErrStringTooLong, "at %#x", addr)
			}
			return string(buf), nil
		}
		buf = append(buf, chunk...)
		if len(buf) > max {
			return "", errors.Wrapf(ErrStringTooLong, "at %#x", addr)
		}
		a = page.Addr + cpu.PAGE_SIZE
	}
}

// CopyIn validates [addr, addr+len(p)) for reading and copies it into p.
func (as *AddressSpace) CopyIn(addr uint32, p []byte) error {
	as.mu.RLock()
	defer as.mu.RUnlock()
	if err := as.check(addr, uint32(len(p)), Read); err != nil {
		return err
	}
	return as.root.Load().Read(uint64(addr), p, 0)
}

// CopyOut validates [addr, addr+len(p)) for writing and copies p into it.
func (as *AddressSpace) CopyOut(addr uint32, p []byte) error {
	as.mu.RLock()
	defer as.mu.RUnlock()
	if err := as.check(addr, uint32(len(p)), Write); err != nil {
		return err
	}
	return as.root.Load().Write(uint64(addr), p, 0)
}

func (as *AddressSpace) ReadWord(addr uint32) (uint32, error) {
	var p [4]byte
	if err := as.CopyIn(addr, p[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p[:]), nil
}

func (as *AddressSpace) WriteWord(addr uint32, val uint32) error {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], val)
	return as.CopyOut(addr, p[:])
}
