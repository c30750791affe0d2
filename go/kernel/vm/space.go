package vm

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

var ErrDetached = errors.New("address space is detached")

// MMU models the page-directory base register of one CPU. A nil directory
// is the kernel-only base directory.
type MMU struct {
	active atomic.Pointer[cpu.MemSim]
}

// Activate loads the page directory of as, or the base directory if as is
// nil or already detached. A Detach racing with Activate never leaves the
// detached directory active.
func (m *MMU) Activate(as *AddressSpace) {
	var dir *cpu.MemSim
	if as != nil {
		dir = as.root.Load()
	}
	m.active.Store(dir)
	if dir != nil && as.root.Load() != dir {
		m.active.CompareAndSwap(dir, nil)
	}
}

func (m *MMU) Active() *cpu.MemSim {
	return m.active.Load()
}

func (m *MMU) IsActive(as *AddressSpace) bool {
	dir := m.active.Load()
	return dir != nil && as != nil && dir == as.root.Load()
}

// AddressSpace is one process's user memory: a page directory whose pages
// are frames from a PagePool.
type AddressSpace struct {
	pool *PagePool
	// root is nil once the space has been detached
	root atomic.Pointer[cpu.MemSim]
	// guards the contents of the directory behind root
	mu sync.RWMutex
}

func NewAddressSpace(pool *PagePool) *AddressSpace {
	as := &AddressSpace{pool: pool}
	as.root.Store(&cpu.MemSim{})
	return as
}

func (as *AddressSpace) Pool() *PagePool {
	return as.pool
}

// Map allocates a zeroed frame, lets fill initialize it and installs it at
// addr. The frame goes back to the pool if anything fails.
func (as *AddressSpace) Map(addr uint64, prot int, desc string, fill func(p []byte) error) error {
	if !cpu.IsUserAddr(addr) {
		return errors.Errorf("map of kernel address %#x", addr)
	}
	frame, data, err := as.pool.Get(true)
	if err != nil {
		return err
	}
	if fill != nil {
		if err := fill(data); err != nil {
			as.pool.Put(frame)
			return err
		}
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	dir := as.root.Load()
	if dir == nil {
		as.pool.Put(frame)
		return errors.WithStack(ErrDetached)
	}
	if _, err := dir.Map(addr, frame, data, prot, desc); err != nil {
		as.pool.Put(frame)
		return err
	}
	return nil
}

// Pages returns a snapshot of the current mappings.
func (as *AddressSpace) Pages() cpu.Pages {
	as.mu.RLock()
	defer as.mu.RUnlock()
	dir := as.root.Load()
	if dir == nil {
		return nil
	}
	return append(cpu.Pages(nil), dir.Mem...)
}

// Detach clears the page-directory root and switches mmu back to the base
// directory if it was running this space. The returned directory is no
// longer reachable from the address space and can be passed to Destroy.
func (as *AddressSpace) Detach(mmu *MMU) *cpu.MemSim {
	dir := as.root.Swap(nil)
	if dir != nil && mmu != nil {
		mmu.active.CompareAndSwap(dir, nil)
	}
	return dir
}

// Destroy frees every frame of a directory returned by Detach.
func (as *AddressSpace) Destroy(dir *cpu.MemSim) {
	if dir == nil {
		return
	}
	as.mu.Lock()
	pages := dir.Reset()
	as.mu.Unlock()
	for _, page := range pages {
		as.pool.Put(page.Frame)
	}
}

// Release tears the address space down: detach first, then destroy.
func (as *AddressSpace) Release(mmu *MMU) {
	as.Destroy(as.Detach(mmu))
}
