package cpu

type Hook interface{}

// This interface abstracts the minimum functionality the kernel requires from a CPU emulator.
type Cpu interface {
	// memory mapping
	// MemMapShared maps host memory p into the guest at addr, so both sides see the same bytes
	MemMapShared(addr uint64, p []byte, prot int) error
	MemUnmap(addr, size uint64) error

	// register IO
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error

	// execution
	Start(begin, until uint64) error
	Stop() error

	// hooks
	HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (Hook, error)
	HookDel(hook Hook) error

	// cleanup
	Close() error
}

type Builder interface {
	New() (Cpu, error)
}
