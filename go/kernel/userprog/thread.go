package userprog

import (
	"context"
	"fmt"

	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// Engine executes the user code of one thread. Run returns when the thread
// stops: with the error from Trap that ended it, with a *cpu.MemError for a
// fault, or with ctx.Err() if ctx is cancelled first.
type Engine interface {
	Run(ctx context.Context, t *Thread) error
}

// Thread is the single thread of control of a user process.
type Thread struct {
	Proc  *process.Process
	Entry uint32
	Sp    uint32
	MMU   *vm.MMU

	k *Kernel
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s entry=%#x sp=%#x", t.Proc, t.Entry, t.Sp)
}

// Activate switches the thread's MMU to its process's page directory and
// returns it. The result is nil once the address space is torn down.
func (t *Thread) Activate() *cpu.MemSim {
	t.MMU.Activate(t.Proc.Space)
	return t.MMU.Active()
}

// Trap enters the kernel from user mode. A nil result resumes user code,
// with f.Eax updated for syscalls that return a value.
func (t *Thread) Trap(f *common.TrapFrame) error {
	return t.k.dispatch.Handle(t.Proc, f)
}
