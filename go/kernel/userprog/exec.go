package userprog

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/kernel/stack"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/log"
)

// Exec starts cmdline as a child of parent. It returns once the child has
// loaded, with the child's pid, or process.Failed if the program could not
// be loaded. A child that fails to load never runs.
func (k *Kernel) Exec(parent *process.Process, cmdline string) int {
	if k.Halted() {
		return process.Failed
	}
	args, err := stack.Tokenize(cmdline)
	if err != nil {
		log.L.Info("load-failed", "cmdline", cmdline, "error", err)
		return process.Failed
	}
	p, err := k.Procs.Spawn(parent, args[0])
	if err != nil {
		log.L.Info("load-failed", "cmdline", cmdline, "error", err)
		return process.Failed
	}
	k.Procs.Attach(p, cmdline, vm.NewAddressSpace(k.Pool))

	loaded := make(chan error, 1)
	k.threads.Add(1)
	go k.start(p, args, loaded)
	if err := <-loaded; err != nil {
		return process.Failed
	}
	return p.Pid
}

// Wait blocks until child pid of parent exits and returns its status, or
// returns process.Failed at once if pid is not a waitable child.
func (k *Kernel) Wait(parent *process.Process, pid int) int {
	return k.Procs.Wait(parent, pid)
}

// start is the body of a new process's thread.
func (k *Kernel) start(p *process.Process, args []string, loaded chan<- error) {
	defer k.threads.Done()
	t, err := k.load(p, args)
	if err != nil {
		log.L.Info("load-failed", "pid", p.Pid, "name", p.Name, "error", err)
		k.closeExe(p)
		p.Space.Release(nil)
		k.Procs.Abort(p)
		loaded <- err
		return
	}
	loaded <- nil
	log.L.Debug("process-start", "pid", p.Pid, "entry", t.Entry, "sp", t.Sp)
	k.finish(t, k.Engine.Run(k.ctx, t))
}

func (k *Kernel) load(p *process.Process, args []string) (*Thread, error) {
	name := args[0]
	k.fsMu.Lock()
	defer k.fsMu.Unlock()
	f, err := k.FS.Open(name)
	if err != nil {
		k.Console.Printf("load: %s: open failed\n", name)
		return nil, err
	}
	p.Exe = f
	f.DenyWrite()
	img, err := k.Cache.Parse(f, f.Length())
	if err == nil {
		err = img.Map(f, p.Space)
	}
	if err != nil {
		k.Console.Printf("load: %s: error loading executable\n", name)
		return nil, err
	}
	sp, err := stack.Setup(p.Space, args)
	if err != nil {
		return nil, errors.Wrap(err, "stack setup")
	}
	return &Thread{Proc: p, Entry: img.Entry, Sp: sp, MMU: &vm.MMU{}, k: k}, nil
}

func (k *Kernel) closeExe(p *process.Process) {
	if p.Exe != nil {
		p.Exe.AllowWrite()
		p.Exe.Close()
		p.Exe = nil
	}
}

// finish tears down a process after its engine stopped with err. The status
// recorded by the exit syscall wins; anything else that stopped the engine
// ends the process with -1.
func (k *Kernel) finish(t *Thread, err error) {
	p := t.Proc
	if errors.Cause(err) == common.ErrHalt {
		k.Halt()
	}
	code, clean := common.ExitCode(err)
	if !clean && !k.Halted() {
		log.L.Info("kill", "pid", p.Pid, "name", p.Name, "reason", err)
	}
	p.SetExit(code)
	status, _ := p.Status()
	if !k.Halted() {
		k.Console.Printf("%s: exit(%d)\n", p.Name, status)
	}

	k.fsMu.Lock()
	p.Files.CloseAll()
	k.closeExe(p)
	k.fsMu.Unlock()

	// detach before destroy: the MMU must never see a freed directory
	p.Space.Release(t.MMU)
	k.Procs.Exit(p)
	log.L.Debug("process-exit", "pid", p.Pid, "name", p.Name, "status", status)
}
