package cpu

// base hook enums on Unicorn's for simplicity
// https://github.com/unicorn-engine/unicorn/blob/master/bindings/go/unicorn/unicorn_const.go
const (
	// hook CPU interrupts
	HOOK_INTR = 1

	// hook all memory errors
	HOOK_MEM_ERR = 1008
)

// these errors are used for HOOK_MEM_ERR and MemError
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14
	// kernel-only address passed from user mode
	MEM_KERNEL = 22
	// NULL page dereference
	MEM_NULL = 23
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// address space layout shared by the kernel and the engines
const (
	PAGE_SIZE = 0x1000
	PAGE_MASK = PAGE_SIZE - 1

	// everything at or above PHYS_BASE belongs to the kernel
	PHYS_BASE = 0xc0000000
)

func PageRound(addr uint64) uint64 {
	return addr &^ PAGE_MASK
}

func PageRoundUp(addr uint64) uint64 {
	return (addr + PAGE_MASK) &^ PAGE_MASK
}

func IsUserAddr(addr uint64) bool {
	return addr < PHYS_BASE
}
