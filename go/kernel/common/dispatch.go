package common

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/log"
	"github.com/lunixbochs/userprog/go/models"
)

// SyscallVector is the software interrupt user programs use to enter the kernel.
const SyscallVector = 0x30

// ErrHalt is returned by the halt syscall. It stops every process.
var ErrHalt = errors.New("system halted")

// TrapFrame is the user register state saved on a kernel entry.
type TrapFrame struct {
	Vector uint32
	Eip    uint32
	Esp    uint32
	Eax    uint32
}

func (f *TrapFrame) String() string {
	return fmt.Sprintf("int %#x eip=%#08x esp=%#08x eax=%#08x", f.Vector, f.Eip, f.Esp, f.Eax)
}

// Tracer observes completed syscalls. err is non-nil for calls that ended
// the process or killed it.
type Tracer interface {
	Trace(p *process.Process, sys *Syscall, args []uint32, ret uint32, err error)
}

type Dispatcher struct {
	Table   *Table
	Tracers []Tracer
}

func NewDispatcher(table *Table, tracers ...Tracer) *Dispatcher {
	return &Dispatcher{Table: table, Tracers: tracers}
}

func (d *Dispatcher) trace(p *process.Process, sys *Syscall, args []uint32, ret uint32, err error) {
	for _, t := range d.Tracers {
		t.Trace(p, sys, args, ret, err)
	}
}

// Killed wraps the reason a process was terminated by the kernel.
type Killed struct {
	Reason error
}

func (k *Killed) Error() string {
	return "killed: " + k.Reason.Error()
}

func (k *Killed) Cause() error {
	return models.ExitStatus(process.Failed)
}

func kill(p *process.Process, reason error) error {
	log.L.Info("kill", "pid", p.Pid, "name", p.Name, "reason", reason)
	return &Killed{Reason: reason}
}

// Handle services one kernel entry. It reads the opcode and the arguments
// from the user stack, runs the handler and stores its return value in
// f.Eax. A nil error resumes the process. Any other result ends it:
// models.ExitStatus for exit, ErrHalt for halt, and a *Killed (whose
// cause is ExitStatus(-1)) when the process passed a bad pointer or an
// unknown opcode.
func (d *Dispatcher) Handle(p *process.Process, f *TrapFrame) error {
	if f.Vector != SyscallVector {
		return kill(p, errors.Errorf("unexpected interrupt %#x at %#x", f.Vector, f.Eip))
	}
	args := Args{Mem: p.Space, Sp: f.Esp}
	num, err := args.Opcode()
	if err != nil {
		return kill(p, errors.Wrap(err, "reading syscall number"))
	}
	sys := d.Table.Lookup(num)
	if sys == nil {
		err := kill(p, errors.Errorf("unknown syscall %d", num))
		d.trace(p, &Syscall{Num: int(num), Name: fmt.Sprintf("syscall_%d", num), Ret: VOID}, nil, 0, err)
		return err
	}
	vals, err := args.Slice(len(sys.Args))
	if err != nil {
		err = kill(p, errors.Wrapf(err, "reading %s arguments", sys.Name))
		d.trace(p, sys, nil, 0, err)
		return err
	}
	ret, err := sys.Call(p, vals)
	if err != nil {
		switch cause := errors.Cause(err); cause.(type) {
		case models.ExitStatus:
		default:
			if cause != ErrHalt {
				err = kill(p, errors.Wrap(err, sys.Name))
			}
		}
		d.trace(p, sys, vals, ret, err)
		return err
	}
	if sys.Ret != VOID {
		f.Eax = ret
	}
	d.trace(p, sys, vals, ret, nil)
	return nil
}

// ExitCode maps the result of Handle or of an engine run to an exit status.
func ExitCode(err error) (int, bool) {
	if status, ok := errors.Cause(err).(models.ExitStatus); ok {
		return int(status), true
	}
	return process.Failed, false
}
