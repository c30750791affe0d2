package userprog

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/userprog/go/fs"
	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/stack"
	"github.com/lunixbochs/userprog/go/loader"
	"github.com/lunixbochs/userprog/go/models"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// program is the user code of a test executable, run in place of machine
// code by fakeEngine.
type program func(u *user) error

// fakeEngine runs Go functions as user programs. They enter the kernel
// through real trap frames built on the real user stack.
type fakeEngine struct {
	progs map[string]program
}

func (e *fakeEngine) Run(ctx context.Context, t *Thread) error {
	if t.Activate() == nil {
		return errors.New("no page directory")
	}
	prog, ok := e.progs[t.Proc.Name]
	if !ok {
		return errors.Errorf("no program %q", t.Proc.Name)
	}
	return prog(&user{t: t, ctx: ctx, data: stack.StackPage + 0x10})
}

type user struct {
	t    *Thread
	ctx  context.Context
	data uint32
}

// scratch area at the bottom of the stack page, far below the arguments
func (u *user) alloc(n int) uint32 {
	addr := u.data
	u.data += uint32(n+3) &^ 3
	return addr
}

func (u *user) str(s string) uint32 {
	addr := u.alloc(len(s) + 1)
	if err := u.t.Proc.Space.CopyOut(addr, append([]byte(s), 0)); err != nil {
		panic(err)
	}
	return addr
}

func (u *user) bytes(addr uint32, n int) []byte {
	p := make([]byte, n)
	if err := u.t.Proc.Space.CopyIn(addr, p); err != nil {
		panic(err)
	}
	return p
}

// syscall pushes the opcode and arguments below the initial stack and traps.
func (u *user) syscall(num uint32, args ...uint32) (uint32, error) {
	select {
	case <-u.ctx.Done():
		return 0, u.ctx.Err()
	default:
	}
	esp := u.t.Sp - 0x40
	for i, w := range append([]uint32{num}, args...) {
		if err := u.t.Proc.Space.WriteWord(esp+uint32(i*4), w); err != nil {
			return 0, err
		}
	}
	f := &common.TrapFrame{Vector: common.SyscallVector, Esp: esp, Eax: 0xdeadbeef}
	if err := u.t.Trap(f); err != nil {
		return 0, err
	}
	return f.Eax, nil
}

func (u *user) trap(esp uint32) error {
	return u.t.Trap(&common.TrapFrame{Vector: common.SyscallVector, Esp: esp})
}

func (u *user) exit(status int) error {
	_, err := u.syscall(SYS_EXIT, uint32(int32(status)))
	return err
}

// argv decodes the initial stack: fake return address, argc, argv.
func (u *user) argv() []string {
	as := u.t.Proc.Space
	argc, _ := as.ReadWord(u.t.Sp + 4)
	argv, _ := as.ReadWord(u.t.Sp + 8)
	var out []string
	for i := uint32(0); i < argc; i++ {
		ptr, _ := as.ReadWord(argv + i*4)
		s, _ := as.CheckString(ptr, cpu.PAGE_SIZE)
		out = append(out, s)
	}
	return out
}

var elfImage []byte

func init() {
	var err error
	elfImage, err = loader.NewExec(0x8048000,
		loader.Prog{Type: loader.PT_LOAD, Flags: loader.PF_R | loader.PF_X, Vaddr: 0x8048000, Data: []byte{0xcd, 0x30}},
		loader.Prog{Type: loader.PT_LOAD, Flags: loader.PF_R | loader.PF_W, Vaddr: 0x804a000, Memsz: 0x100},
	).Bytes()
	if err != nil {
		panic(err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type testKernel struct {
	*Kernel
	out *syncBuffer
	fs  *fs.MemFS
}

func newKernel(t *testing.T, input string, progs map[string]program) *testKernel {
	memfs := fs.NewMemFS()
	for name := range progs {
		memfs.Add(name, elfImage)
	}
	out := &syncBuffer{}
	config := &models.Config{
		Pages:     64,
		CacheSize: 4,
		Input:     bytes.NewReader([]byte(input)),
		Output:    out,
	}
	k, err := New(config, memfs, &fakeEngine{progs: progs})
	require.NoError(t, err)
	t.Cleanup(func() { k.Shutdown() })
	return &testKernel{Kernel: k, out: out, fs: memfs}
}
