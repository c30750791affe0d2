package cpu

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrMapped = errors.New("page already mapped")

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	case MEM_KERNEL:
		reason = "kernel address"
	case MEM_NULL:
		reason = "null pointer"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// MemSim is a page directory: a sorted list of single-page mappings.
// It does not own the frames behind its pages.
type MemSim struct {
	Mem Pages
}

// Checks whether the address range exists in the currently-mapped memory.
// If prot > 0, ensures that each page has the entire protection mask provided.
func (m *MemSim) RangeValid(addr, size uint64, prot int) (mapGood bool, protGood bool) {
	first := m.Mem.bsearch(addr)
	if first == -1 {
		return false, false
	}
	protGood = true
	end := addr + size
	for _, mm := range m.Mem[first:] {
		if mm.Contains(addr) {
			if prot > 0 && (mm.Prot == 0 || mm.Prot&prot != prot) {
				protGood = false
			}
			addr = mm.Addr + PAGE_SIZE
			if addr >= end {
				break
			}
		} else {
			break
		}
	}
	return addr >= end, protGood
}

// Installs a page at addr backed by data, which must be exactly one page.
// Fails with ErrMapped if addr is already mapped.
func (m *MemSim) Map(addr uint64, frame int, data []byte, prot int, desc string) (*Page, error) {
	if addr&PAGE_MASK != 0 {
		return nil, errors.Errorf("unaligned page address %#x", addr)
	}
	if len(data) != PAGE_SIZE {
		return nil, errors.Errorf("bad frame size %d", len(data))
	}
	if m.Mem.Find(addr) != nil {
		return nil, errors.Wrapf(ErrMapped, "%#x", addr)
	}
	page := &Page{Addr: addr, Prot: prot, Frame: frame, Data: data, Desc: desc}
	i := m.Mem.insertPos(addr)
	m.Mem = append(m.Mem, nil)
	copy(m.Mem[i+1:], m.Mem[i:])
	m.Mem[i] = page
	return page, nil
}

// Removes every mapping and returns the pages that were mapped.
func (m *MemSim) Reset() Pages {
	pages := m.Mem
	m.Mem = nil
	return pages
}

func (m *MemSim) Read(addr uint64, p []byte, prot int) error {
	if gmap, gprot := m.RangeValid(addr, uint64(len(p)), prot); !gmap {
		if prot&PROT_EXEC == PROT_EXEC {
			return &MemError{Addr: addr, Size: len(p), Enum: MEM_FETCH_UNMAPPED}
		}
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_READ_UNMAPPED}
	} else if !gprot {
		if prot&PROT_EXEC == PROT_EXEC {
			return &MemError{Addr: addr, Size: len(p), Enum: MEM_FETCH_PROT}
		}
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_READ_PROT}
	}
	i := m.Mem.bsearch(addr)
	if i >= 0 {
		for _, mm := range m.Mem[i:] {
			if len(p) == 0 || !mm.Contains(addr) {
				break
			}
			o := addr - mm.Addr
			n := copy(p, mm.Data[o:])
			addr, p = addr+uint64(n), p[n:]
		}
	}
	return nil
}

func (m *MemSim) Write(addr uint64, p []byte, prot int) error {
	if gmap, gprot := m.RangeValid(addr, uint64(len(p)), prot); !gmap {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	} else if !gprot {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_PROT}
	}
	i := m.Mem.bsearch(addr)
	if i >= 0 {
		for _, mm := range m.Mem[i:] {
			if len(p) == 0 || !mm.Contains(addr) {
				break
			}
			o := addr - mm.Addr
			n := copy(mm.Data[o:], p)
			addr, p = addr+uint64(n), p[n:]
		}
	}
	return nil
}
