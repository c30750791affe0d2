package common

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/process"
)

// argument and return kinds, used for validation of the table and for
// decoding arguments in traces
const (
	INT = iota
	FD
	STR
	BUF
	OBUF
	LEN
	PID
	// no return value: eax is left alone
	VOID
)

// MaxArity is the largest number of arguments a syscall may take.
const MaxArity = 4

type (
	Handler0 func(p *process.Process) (uint32, error)
	Handler1 func(p *process.Process, a uint32) (uint32, error)
	Handler2 func(p *process.Process, a, b uint32) (uint32, error)
	Handler3 func(p *process.Process, a, b, c uint32) (uint32, error)
	Handler4 func(p *process.Process, a, b, c, d uint32) (uint32, error)
)

type Syscall struct {
	Num  int
	Name string
	// one of Handler0..Handler4
	Fn   interface{}
	Args []int
	Ret  int
}

func (s *Syscall) String() string {
	return fmt.Sprintf("%d:%s/%d", s.Num, s.Name, len(s.Args))
}

// Arity is the number of argument words the handler consumes, or -1 if Fn
// is not a handler.
func (s *Syscall) Arity() int {
	switch s.Fn.(type) {
	case Handler0:
		return 0
	case Handler1:
		return 1
	case Handler2:
		return 2
	case Handler3:
		return 3
	case Handler4:
		return 4
	}
	return -1
}

// Call invokes the handler with the first Arity() words of args.
func (s *Syscall) Call(p *process.Process, args []uint32) (uint32, error) {
	if len(args) < s.Arity() {
		return 0, errors.Errorf("%s: want %d args, got %d", s.Name, s.Arity(), len(args))
	}
	switch fn := s.Fn.(type) {
	case Handler0:
		return fn(p)
	case Handler1:
		return fn(p, args[0])
	case Handler2:
		return fn(p, args[0], args[1])
	case Handler3:
		return fn(p, args[0], args[1], args[2])
	case Handler4:
		return fn(p, args[0], args[1], args[2], args[3])
	}
	return 0, errors.Errorf("%s: bad handler type %T", s.Name, s.Fn)
}

// Table maps opcodes to syscalls. It is built once and never modified, so
// lookups need no locking.
type Table struct {
	calls []Syscall
}

// NewTable builds a table from entries listed in opcode order starting at 0.
func NewTable(calls ...Syscall) (*Table, error) {
	t := &Table{calls: make([]Syscall, len(calls))}
	for i, sys := range calls {
		if sys.Num != i {
			return nil, errors.Errorf("syscall %q has number %d at index %d", sys.Name, sys.Num, i)
		}
		arity := sys.Arity()
		if arity < 0 {
			return nil, errors.Errorf("syscall %q: handler %T is not a Handler0..Handler%d", sys.Name, sys.Fn, MaxArity)
		}
		if arity != len(sys.Args) {
			return nil, errors.Errorf("syscall %q: handler takes %d args, table lists %d", sys.Name, arity, len(sys.Args))
		}
		for _, kind := range sys.Args {
			if kind < INT || kind >= VOID {
				return nil, errors.Errorf("syscall %q: bad argument kind %d", sys.Name, kind)
			}
		}
		sys.Args = append([]int(nil), sys.Args...)
		t.calls[i] = sys
	}
	return t, nil
}

// Lookup returns nil for opcodes outside the table.
func (t *Table) Lookup(num uint32) *Syscall {
	if uint64(num) >= uint64(len(t.calls)) {
		return nil
	}
	return &t.calls[num]
}

func (t *Table) Len() int {
	return len(t.calls)
}

func (t *Table) Names() []string {
	names := make([]string, len(t.calls))
	for i := range t.calls {
		names[i] = t.calls[i].Name
	}
	return names
}
