package common

import (
	"github.com/lunixbochs/userprog/go/models/cpu"
)

const wordSize = 4

// WordReader is the part of an address space the argument accessor needs.
type WordReader interface {
	ReadWord(addr uint32) (uint32, error)
}

// Args reads syscall words from a user stack. Word 0 is the opcode and the
// arguments follow it; every slot is validated before it is read.
type Args struct {
	Mem WordReader
	Sp  uint32
}

func (a Args) Word(i int) (uint32, error) {
	addr := uint64(a.Sp) + uint64(i)*wordSize
	if addr+wordSize > cpu.PHYS_BASE {
		return 0, &cpu.MemError{Addr: addr, Size: wordSize, Enum: cpu.MEM_KERNEL}
	}
	return a.Mem.ReadWord(uint32(addr))
}

func (a Args) Opcode() (uint32, error) {
	return a.Word(0)
}

// Slice returns the n argument words following the opcode.
func (a Args) Slice(n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := a.Word(i + 1)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
