package cpu

import (
	ks "github.com/keystone-engine/keystone/bindings/go/keystone"
	"github.com/pkg/errors"
)

// Keystone assembles source for user programs. The engine is opened on
// first use.
type Keystone struct {
	Arch ks.Architecture
	Mode ks.Mode
	ks   *ks.Keystone
}

func NewKeystone() *Keystone {
	return &Keystone{Arch: ks.ARCH_X86, Mode: ks.MODE_32}
}

func (k *Keystone) Open() (err error) {
	k.ks, err = ks.New(k.Arch, k.Mode)
	return errors.Wrap(err, "ks.New() failed")
}

// Asm assembles src as if it were loaded at addr.
func (k *Keystone) Asm(src string, addr uint32) ([]byte, error) {
	if k.ks == nil {
		if err := k.Open(); err != nil {
			return nil, err
		}
	}
	out, _, ok := k.ks.Assemble(src, uint64(addr))
	if !ok {
		return nil, errors.Wrap(k.ks.LastError(), "ks.Assemble() failed")
	}
	return out, nil
}

func (k *Keystone) Close() error {
	if k.ks == nil {
		return nil
	}
	err := k.ks.Close()
	k.ks = nil
	return err
}
