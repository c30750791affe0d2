package ui

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/userprog/go/fs"
	"github.com/lunixbochs/userprog/go/kernel/userprog"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/loader"
	"github.com/lunixbochs/userprog/go/models"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// exitEngine ends every process at once with the status in its first argument.
type exitEngine struct{}

func (exitEngine) Run(ctx context.Context, t *userprog.Thread) error {
	argc, err := t.Proc.Space.ReadWord(t.Sp + 4)
	if err != nil {
		return err
	}
	return models.ExitStatus(argc)
}

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer, *bytes.Buffer) {
	exe, err := loader.NewExec(0x08048000, loader.Prog{
		Type:  loader.PT_LOAD,
		Flags: loader.PF_R | loader.PF_X,
		Vaddr: 0x08048000,
		Data:  []byte{0xf4},
	}).Bytes()
	require.NoError(t, err)
	memfs := fs.NewMemFS()
	memfs.Add("prog10", exe)
	memfs.Add("prog2", exe)
	memfs.Add("prog1", exe)

	console := &bytes.Buffer{}
	config := &models.Config{Pages: 16, Input: &bytes.Buffer{}, Output: console}
	k, err := userprog.New(config, memfs, exitEngine{})
	require.NoError(t, err)
	t.Cleanup(func() { k.Shutdown() })
	out := &bytes.Buffer{}
	return newShell(k, out), out, console
}

func TestShellCommands(t *testing.T) {
	tests := []struct {
		line, out string
	}{
		{"", ""},
		{"nosuch", "command not found.\n"},
		{"ls", "prog1\nprog2\nprog10\n"},
		{"wait", "usage: wait <pid>\n"},
		{"wait 0x50", "status -1\n"},
		{"wait x", "error: "},
		{"maps 9", "error: no process 9\n"},
		{"run 'unterminated", "parse error: "},
		{"ps", ""},
	}
	for _, test := range tests {
		s, out, _ := newTestShell(t)
		s.Exec(test.line)
		require.Contains(t, out.String(), test.out, "line %q", test.line)
		if test.out == "" {
			require.Empty(t, out.String(), "line %q", test.line)
		}
	}
}

func TestShellRun(t *testing.T) {
	s, out, console := newTestShell(t)
	// argc becomes the exit status
	s.Exec("run  prog1 a  b")
	require.Equal(t, "status 3\n", out.String())
	require.Equal(t, "prog1: exit(3)\n", console.String())

	out.Reset()
	s.Exec("run missing")
	require.Equal(t, "error: exec \"missing\" failed\n", out.String())
	require.Contains(t, console.String(), "load: missing: open failed\n")

	out.Reset()
	s.Exec("exec prog2 x")
	// the failed exec used pid 2
	require.Equal(t, "pid 3\n", out.String())
	out.Reset()
	s.Exec("wait 3")
	require.Equal(t, "status 2\n", out.String())
	out.Reset()
	s.Exec("wait 3")
	require.Equal(t, "status -1\n", out.String())
}

func TestShellSyscalls(t *testing.T) {
	s, out, _ := newTestShell(t)
	s.Exec("syscalls")
	require.Contains(t, out.String(), "0:halt/0\n")
	require.Contains(t, out.String(), "14:sum_of_four_integers/4\n")

	out.Reset()
	s.Exec("help")
	for name := range commands {
		require.Contains(t, out.String(), "  "+name)
	}

	s.Exec("halt")
	require.True(t, s.k.Halted())
}

func TestShellInspect(t *testing.T) {
	s, out, _ := newTestShell(t)
	// a process caught between spawn and load has no address space yet
	p, err := s.k.Procs.Spawn(nil, "ghost")
	require.NoError(t, err)
	pid := strconv.Itoa(p.Pid)

	s.Exec("maps " + pid)
	require.Empty(t, out.String())
	s.Exec("dump " + pid)
	require.Contains(t, out.String(), `"ghost"`)
	require.NotContains(t, out.String(), "error")

	space := vm.NewAddressSpace(s.k.Pool)
	require.NoError(t, space.Map(0x08048000, cpu.PROT_READ|cpu.PROT_EXEC, "code", nil))
	s.k.Procs.Attach(p, "ghost -x", space)
	out.Reset()
	s.Exec("ps")
	require.Contains(t, out.String(), " ghost -x\n")
	out.Reset()
	s.Exec("maps " + pid)
	require.Regexp(t, `^  0x08048000-0x08049000 r-x frame=\d+ \[code\]\n$`, out.String())
	out.Reset()
	s.Exec("dump " + pid)
	require.Contains(t, out.String(), "ghost -x")
	require.Contains(t, out.String(), "[code]")

	// released spaces are reported as empty, not dereferenced
	space.Release(nil)
	out.Reset()
	s.Exec("maps " + pid)
	require.Empty(t, out.String())
	s.k.Procs.Abort(p)
	s.Exec("dump " + pid)
	require.Equal(t, "error: no process "+pid+"\n", out.String())
}
