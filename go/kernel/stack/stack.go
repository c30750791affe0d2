package stack

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

const (
	// at most this many argument tokens
	MaxArgs = 64
	// at most this many bytes of argument strings, terminators included
	MaxArgBytes = 2048

	WordSize = 4

	// the initial stack is one page directly below PHYS_BASE
	StackTop  = cpu.PHYS_BASE
	StackPage = cpu.PHYS_BASE - cpu.PAGE_SIZE
)

var (
	ErrEmpty       = errors.New("empty command line")
	ErrTooManyArgs = errors.New("too many arguments")
	ErrArgsTooLong = errors.New("arguments too long")
)

// Tokenize splits a command line on whitespace and enforces the argument limits.
func Tokenize(cmdline string) ([]string, error) {
	args := strings.Fields(cmdline)
	if err := checkArgs(args); err != nil {
		return nil, err
	}
	return args, nil
}

func checkArgs(args []string) error {
	if len(args) == 0 {
		return errors.WithStack(ErrEmpty)
	}
	if len(args) > MaxArgs {
		return errors.Wrapf(ErrTooManyArgs, "%d > %d", len(args), MaxArgs)
	}
	size := 0
	for _, arg := range args {
		size += len(arg) + 1
	}
	if size > MaxArgBytes {
		return errors.Wrapf(ErrArgsTooLong, "%d > %d bytes", size, MaxArgBytes)
	}
	return nil
}

type Memory interface {
	CopyOut(addr uint32, p []byte) error
}

// Stack pushes values downward from Sp.
type Stack struct {
	Mem Memory
	Sp  uint32
}

func (s *Stack) Push(p []byte) (uint32, error) {
	s.Sp -= uint32(len(p))
	if err := s.Mem.CopyOut(s.Sp, p); err != nil {
		return 0, errors.Wrap(err, "stack push failed")
	}
	return s.Sp, nil
}

func (s *Stack) PushWord(v uint32) (uint32, error) {
	var p [WordSize]byte
	binary.LittleEndian.PutUint32(p[:], v)
	return s.Push(p[:])
}

// Align zero-pads the stack down to a multiple of n.
func (s *Stack) Align(n uint32) error {
	if pad := s.Sp % n; pad != 0 {
		_, err := s.Push(make([]byte, pad))
		return err
	}
	return nil
}

// Build lays out args for main(argc, argv) below top and returns the new
// stack pointer. From top down: the strings in argument order, padding to a
// word boundary, a NULL argv[argc], argv[argc-1]..argv[0], argv, argc and a
// zero return address.
func Build(mem Memory, top uint32, args []string) (uint32, error) {
	if err := checkArgs(args); err != nil {
		return 0, err
	}
	s := &Stack{Mem: mem, Sp: top}
	ptrs := make([]uint32, len(args))
	for i, arg := range args {
		addr, err := s.Push(append([]byte(arg), 0))
		if err != nil {
			return 0, err
		}
		ptrs[i] = addr
	}
	if err := s.Align(WordSize); err != nil {
		return 0, err
	}
	if _, err := s.PushWord(0); err != nil {
		return 0, err
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		if _, err := s.PushWord(ptrs[i]); err != nil {
			return 0, err
		}
	}
	argv := s.Sp
	for _, v := range []uint32{argv, uint32(len(args)), 0} {
		if _, err := s.PushWord(v); err != nil {
			return 0, err
		}
	}
	return s.Sp, nil
}

// Setup maps a zeroed stack page at the top of user space and builds the
// argument frame in it.
func Setup(as *vm.AddressSpace, args []string) (uint32, error) {
	if err := checkArgs(args); err != nil {
		return 0, err
	}
	if err := as.Map(StackPage, cpu.PROT_READ|cpu.PROT_WRITE, "stack", nil); err != nil {
		return 0, errors.Wrap(err, "stack page")
	}
	return Build(as, StackTop, args)
}
