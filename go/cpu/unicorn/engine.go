package unicorn

import (
	"context"

	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/userprog"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/log"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// Engine runs i386 user code on unicorn. Guest memory is the kernel's own
// frames, mapped in place, so the kernel and the guest always agree on
// the contents of user memory.
type Engine struct {
	Builder cpu.Builder
}

func NewEngine() *Engine {
	return &Engine{Builder: &Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_32}}
}

func (e *Engine) Run(ctx context.Context, t *userprog.Thread) error {
	if !t.Proc.Space.Pool().Shared() {
		return errors.New("unicorn needs a frame arena outside the Go heap")
	}
	if t.Activate() == nil {
		return errors.WithStack(vm.ErrDetached)
	}
	c, err := e.Builder.New()
	if err != nil {
		return err
	}
	defer c.Close()

	// frames belong to the pool, so the emulator drops its view of them
	// and its hooks before it is closed
	var hooks []cpu.Hook
	var mapped []uint64
	defer func() {
		for _, h := range hooks {
			c.HookDel(h)
		}
		for _, addr := range mapped {
			c.MemUnmap(addr, cpu.PAGE_SIZE)
		}
	}()

	for _, page := range t.Proc.Space.Pages() {
		if err := c.MemMapShared(page.Addr, page.Data, page.Prot); err != nil {
			return err
		}
		mapped = append(mapped, page.Addr)
	}
	if err := c.RegWrite(uc.X86_REG_ESP, uint64(t.Sp)); err != nil {
		return errors.Wrap(err, "RegWrite(esp) failed")
	}

	// first error that stopped the guest
	var stopErr error
	stop := func(err error) {
		if stopErr == nil {
			stopErr = err
		}
		c.Stop()
	}
	intr, err := c.HookAdd(cpu.HOOK_INTR, func(c cpu.Cpu, intno uint32) {
		esp, _ := c.RegRead(uc.X86_REG_ESP)
		eip, _ := c.RegRead(uc.X86_REG_EIP)
		eax, _ := c.RegRead(uc.X86_REG_EAX)
		f := &common.TrapFrame{Vector: intno, Eip: uint32(eip), Esp: uint32(esp), Eax: uint32(eax)}
		if err := t.Trap(f); err != nil {
			stop(err)
			return
		}
		c.RegWrite(uc.X86_REG_EAX, uint64(f.Eax))
	}, 1, 0)
	if err != nil {
		return err
	}
	hooks = append(hooks, intr)
	memErr, err := c.HookAdd(cpu.HOOK_MEM_ERR, func(c cpu.Cpu, access int, addr uint64, size int, val int64) bool {
		eip, _ := c.RegRead(uc.X86_REG_EIP)
		log.L.Debug("page fault", "pid", t.Proc.Pid, "addr", addr, "eip", eip)
		stop(&cpu.MemError{Addr: addr, Size: size, Enum: access})
		return false
	}, 1, 0)
	if err != nil {
		return err
	}
	hooks = append(hooks, memErr)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-done:
		}
	}()

	err = c.Start(uint64(t.Entry), 0)
	switch {
	case stopErr != nil:
		return stopErr
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return errors.Wrap(err, "unicorn stopped")
	}
	return nil
}
