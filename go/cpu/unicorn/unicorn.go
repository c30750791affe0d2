package unicorn

import (
	"unsafe"

	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

type Builder struct {
	Arch, Mode int
}

func (b *Builder) New() (cpu.Cpu, error) {
	u, err := uc.NewUnicorn(b.Arch, b.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "NewUnicorn() failed")
	}
	return &UnicornCpu{u}, nil
}

type UnicornCpu struct {
	uc.Unicorn
}

func (u *UnicornCpu) HookAdd(htype int, cb interface{}, start uint64, end uint64, extra ...int) (cpu.Hook, error) {
	// wrap hooks to pass the cpu.Cpu instead of the raw unicorn handle
	var wrap interface{}
	switch htype {
	case cpu.HOOK_INTR:
		cbc := cb.(func(cpu.Cpu, uint32))
		wrap = func(_ uc.Unicorn, intno uint32) { cbc(u, intno) }

	case cpu.HOOK_MEM_ERR:
		cbc := cb.(func(cpu.Cpu, int, uint64, int, int64) bool)
		wrap = func(_ uc.Unicorn, access int, addr uint64, size int, val int64) bool {
			return cbc(u, access, addr, size, val)
		}

	default:
		return 0, errors.Errorf("unsupported hook type %d", htype)
	}
	return u.Unicorn.HookAdd(htype, wrap, start, end, extra...)
}

func (u *UnicornCpu) HookDel(hh cpu.Hook) error {
	return u.Unicorn.HookDel(hh.(uc.Hook))
}

// MemMapShared maps p into the guest without copying. p must be page
// aligned and must not live on the Go heap.
func (u *UnicornCpu) MemMapShared(addr uint64, p []byte, prot int) error {
	if len(p) == 0 || len(p)%cpu.PAGE_SIZE != 0 {
		return errors.Errorf("bad shared mapping size %#x", len(p))
	}
	err := u.Unicorn.MemMapPtr(addr, uint64(len(p)), prot, unsafe.Pointer(&p[0]))
	return errors.Wrapf(err, "MemMapPtr(%#x) failed", addr)
}
