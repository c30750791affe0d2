package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/lunixbochs/argjoy"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/models"
)

// ColorWriter returns a writer for f that understands ansi colors, and
// whether f is a terminal.
func ColorWriter(f *os.File) (io.Writer, bool) {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	if tty {
		return colorable.NewColorable(f), true
	}
	return colorable.NewNonColorable(f), false
}

// Strace prints one line per syscall:
//
//	[pid] name(args) = ret
type Strace struct {
	mu      sync.Mutex
	w       io.Writer
	color   bool
	strsize int
}

func NewStrace(w io.Writer, strsize int, color bool) *Strace {
	return &Strace{w: w, strsize: strsize, color: color}
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%x", v)
}

func (s *Strace) bufArg(p *process.Process, addr uint32, size uint32) string {
	if p.Space == nil || size > 1<<20 {
		return hex(addr)
	}
	mem := make([]byte, size)
	if err := p.Space.CopyIn(addr, mem); err != nil {
		return hex(addr)
	}
	return models.Repr(mem, s.strsize)
}

func (s *Strace) traceArg(p *process.Process, args []interface{}) string {
	switch arg := args[0].(type) {
	case Obuf:
		return hex(arg.Addr)
	case Buf:
		if len(args) > 1 {
			if length, ok := args[1].(Len); ok {
				return s.bufArg(p, arg.Addr, uint32(length))
			}
		}
		return hex(arg.Addr)
	case Str:
		if arg.Err != nil {
			return hex(arg.Addr)
		}
		return models.Repr([]byte(arg.S), s.strsize)
	case Fd, Pid, Len, int32:
		return fmt.Sprintf("%d", arg)
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func (s *Strace) traceArgs(p *process.Process, sys *Syscall, args []uint32) string {
	if len(args) < len(sys.Args) {
		return "?"
	}
	aj := argjoy.NewArgjoy()
	aj.Register(argCodec(p.Space))
	regs := make([]uint64, len(args))
	for i, v := range args {
		regs[i] = uint64(v)
	}
	inRef, err := aj.Convert(argTypes(sys.Args), false, regs)
	if err != nil {
		return err.Error()
	}
	in := make([]interface{}, len(inRef))
	for i, val := range inRef {
		in[i] = val.Interface()
	}
	out := make([]string, len(in))
	for i := range in {
		out[i] = s.traceArg(p, in[i:])
	}
	return strings.Join(out, ", ")
}

func (s *Strace) traceRet(p *process.Process, sys *Syscall, args []uint32, ret uint32, err error) string {
	if err != nil {
		if _, ok := err.(*Killed); ok {
			return " = " + models.Color("killed", models.ColorError, s.color)
		}
		return " = ?"
	}
	var out []string
	for i, kind := range sys.Args {
		if kind == OBUF && i+1 < len(args) && int32(ret) >= 0 && ret <= args[i+1] {
			out = append(out, s.bufArg(p, args[i], ret))
		}
	}
	switch sys.Ret {
	case VOID:
	case INT, FD, PID, LEN:
		out = append(out, fmt.Sprintf("%d", int32(ret)))
	default:
		out = append(out, hex(ret))
	}
	if len(out) == 0 {
		return ""
	}
	return " = " + strings.Join(out, ", ")
}

func (s *Strace) Trace(p *process.Process, sys *Syscall, args []uint32, ret uint32, err error) {
	line := fmt.Sprintf("%s %s(%s)%s\n",
		models.Color(fmt.Sprintf("[%d]", p.Pid), models.ColorPid, s.color),
		models.Color(sys.Name, models.ColorName, s.color),
		s.traceArgs(p, sys, args),
		s.traceRet(p, sys, args, ret, err))
	s.mu.Lock()
	io.WriteString(s.w, line)
	s.mu.Unlock()
}
