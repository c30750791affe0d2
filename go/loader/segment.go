package loader

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

// Segment is a validated PT_LOAD entry.
type Segment struct {
	Offset uint32
	Vaddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
}

func (s Segment) String() string {
	return fmt.Sprintf("LOAD off=%#x vaddr=%#x filesz=%#x memsz=%#x %s", s.Offset, s.Vaddr, s.Filesz, s.Memsz, s.flagString())
}

func (s Segment) flagString() string {
	out := []byte("---")
	if s.Flags&PF_R != 0 {
		out[0] = 'r'
	}
	if s.Flags&PF_W != 0 {
		out[1] = 'w'
	}
	if s.Flags&PF_X != 0 {
		out[2] = 'x'
	}
	return string(out)
}

// Prot maps segment flags to page protections. Present pages are always
// readable on i386.
func (s Segment) Prot() int {
	prot := cpu.PROT_READ
	if s.Flags&PF_W != 0 {
		prot |= cpu.PROT_WRITE
	}
	if s.Flags&PF_X != 0 {
		prot |= cpu.PROT_EXEC
	}
	return prot
}

// pages returns the page-aligned virtual range the segment occupies.
func (s Segment) pages() (start, end uint64) {
	start = cpu.PageRound(uint64(s.Vaddr))
	end = cpu.PageRoundUp(uint64(s.Vaddr) + uint64(s.Memsz))
	return
}

func badSegment(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBadSegment, format, args...)
}

func (s Segment) validate(fileSize int64) error {
	vaddr, memsz := uint64(s.Vaddr), uint64(s.Memsz)
	switch {
	case s.Offset&cpu.PAGE_MASK != s.Vaddr&cpu.PAGE_MASK:
		return badSegment("offset %#x and vaddr %#x differ in page offset", s.Offset, s.Vaddr)
	case int64(s.Offset) > fileSize:
		return badSegment("offset %#x past end of file", s.Offset)
	case int64(s.Offset)+int64(s.Filesz) > fileSize:
		return badSegment("file data %#x+%#x past end of file", s.Offset, s.Filesz)
	case s.Memsz < s.Filesz:
		return badSegment("memsz %#x < filesz %#x", s.Memsz, s.Filesz)
	case s.Memsz == 0:
		return badSegment("empty segment")
	case vaddr+memsz > 0xffffffff:
		return badSegment("range %#x+%#x wraps", s.Vaddr, s.Memsz)
	case !cpu.IsUserAddr(vaddr) || !cpu.IsUserAddr(vaddr+memsz):
		return badSegment("range %#x+%#x leaves user space", s.Vaddr, s.Memsz)
	case vaddr < cpu.PAGE_SIZE:
		// page 0 stays unmapped so NULL dereferences always fault
		return badSegment("vaddr %#x in page 0", s.Vaddr)
	}
	return nil
}
