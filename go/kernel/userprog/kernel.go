package userprog

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/console"
	"github.com/lunixbochs/userprog/go/fs"
	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/loader"
	"github.com/lunixbochs/userprog/go/log"
	"github.com/lunixbochs/userprog/go/models"
	"github.com/lunixbochs/userprog/go/models/trace"
)

type Kernel struct {
	Config  *models.Config
	Pool    *vm.PagePool
	Procs   *process.Table
	FS      fs.FileSys
	Console *console.Console
	Engine  Engine
	Cache   *loader.Cache

	table    *common.Table
	dispatch *common.Dispatcher
	recorder *common.Recorder

	// serializes file system calls
	fsMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	halted   chan struct{}
	haltOnce sync.Once
	threads  sync.WaitGroup
	shutdown sync.Once

	// the kernel's own thread, parent of the initial process
	root *process.Process
}

// New boots a kernel over fsys. User code runs on engine.
func New(config *models.Config, fsys fs.FileSys, engine Engine) (*Kernel, error) {
	config = config.Init()
	pool, err := vm.NewPagePool(config.Pages)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		Config:  config,
		Pool:    pool,
		Procs:   process.NewTable(config.Procs),
		FS:      fsys,
		Console: console.New(config.Input, config.Output),
		Engine:  engine,
		halted:  make(chan struct{}),
		root:    process.NewRoot("kernel"),
	}
	if config.CacheSize > 0 {
		if k.Cache, err = loader.NewCache(config.CacheSize); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if k.table, err = common.NewTable(k.syscalls()...); err != nil {
		pool.Close()
		return nil, err
	}
	var tracers []common.Tracer
	if config.Strace {
		w, color := common.ColorWriter(os.Stderr)
		tracers = append(tracers, common.NewStrace(w, config.Strsize, color && config.Color))
	}
	k.dispatch = common.NewDispatcher(k.table, tracers...)
	k.ctx, k.cancel = context.WithCancel(context.Background())
	return k, nil
}

// Syscalls returns the dispatch table.
func (k *Kernel) Syscalls() *common.Table {
	return k.table
}

// SyscallTable builds the table without booting a kernel, for tools that
// only need its names and argument kinds. Its handlers must not be called.
func SyscallTable() *common.Table {
	table, err := common.NewTable((&Kernel{}).syscalls()...)
	if err != nil {
		panic(err)
	}
	return table
}

func (k *Kernel) Root() *process.Process {
	return k.root
}

// Halt stops every running process. Processes stopped this way print no
// exit line.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		log.L.Info("halt")
		close(k.halted)
		k.cancel()
	})
}

func (k *Kernel) Halted() bool {
	select {
	case <-k.halted:
		return true
	default:
		return false
	}
}

// Run executes cmdline as the initial process and waits for it. It returns
// the process's exit status, or common.ErrHalt if a process halted the
// machine first. Either way every other process is stopped before Run
// returns.
func (k *Kernel) Run(cmdline string) (int, error) {
	if k.Config.TraceFile != "" && k.recorder == nil {
		if err := k.openTrace(cmdline); err != nil {
			k.Shutdown()
			return process.Failed, err
		}
	}
	pid := k.Exec(k.root, cmdline)
	if pid == process.Failed {
		k.Shutdown()
		return process.Failed, errors.Errorf("failed to load %q", cmdline)
	}
	done := make(chan int, 1)
	go func() {
		done <- k.Wait(k.root, pid)
	}()
	var status int
	var err error
	select {
	case status = <-done:
	case <-k.halted:
	}
	if k.Halted() {
		status, err = 0, errors.WithStack(common.ErrHalt)
	}
	if serr := k.Shutdown(); err == nil {
		err = serr
	}
	return status, err
}

// openTrace records every syscall to Config.TraceFile. It must be called
// before any process starts.
func (k *Kernel) openTrace(cmdline string) error {
	f, err := os.Create(k.Config.TraceFile)
	if err != nil {
		return errors.Wrap(err, "failed to create trace file")
	}
	tw, err := trace.NewWriter(f, cmdline)
	if err != nil {
		f.Close()
		return err
	}
	k.recorder = common.NewRecorder(tw)
	k.dispatch.Tracers = append(k.dispatch.Tracers, k.recorder)
	return nil
}

// Shutdown halts the machine, waits for every thread to finish and
// releases the kernel's resources.
func (k *Kernel) Shutdown() error {
	var err error
	k.shutdown.Do(func() {
		k.Halt()
		k.threads.Wait()
		if k.recorder != nil {
			err = k.recorder.Close()
		}
		if perr := k.Pool.Close(); err == nil {
			err = perr
		}
	})
	return err
}
