package process

import (
	"fmt"
	"sync"

	"github.com/lunixbochs/userprog/go/fs"
	"github.com/lunixbochs/userprog/go/kernel/vm"
)

// Failed is returned by Wait, and by exec for a load failure.
const Failed = -1

type Process struct {
	Pid  int
	Name string
	// set once by Table.Attach
	Cmdline string
	Space   *vm.AddressSpace
	Files *FdTable
	// executable, write-denied while the process runs
	Exe fs.File

	// process tree, guarded by Table.mu
	parent   *Process
	children map[int]*Process
	waited   bool
	exited   bool

	statusMu  sync.Mutex
	status    int
	statusSet bool

	done *Sema
}

func newProcess(pid int, name string) *Process {
	return &Process{
		Pid:      pid,
		Name:     name,
		Files:    NewFdTable(),
		children: make(map[int]*Process),
		done:     NewSema(0),
	}
}

// NewRoot returns a descriptor for the kernel's own thread, which can
// spawn and wait for processes but is not in any Table.
func NewRoot(name string) *Process {
	return newProcess(0, name)
}

// SetExit records the exit status. Only the first call has any effect; it
// returns false for every later call.
func (p *Process) SetExit(status int) bool {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if p.statusSet {
		return false
	}
	p.status, p.statusSet = status, true
	return true
}

// Status returns the recorded exit status, if any.
func (p *Process) Status() (int, bool) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.status, p.statusSet
}

func (p *Process) String() string {
	return fmt.Sprintf("[%d %s]", p.Pid, p.Name)
}
