package cpu

import (
	"encoding/hex"
	"fmt"
	"strings"

	cs "github.com/lunixbochs/capstr"
	"github.com/pkg/errors"
)

type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}

// Capstr disassembles i386 code for listings.
type Capstr struct {
	Arch, Mode int

	cs *cs.Engine
}

func NewCapstr() *Capstr {
	return &Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_32}
}

func (c *Capstr) Open() (err error) {
	engine, err := cs.New(c.Arch, c.Mode)
	if err == nil {
		c.cs = engine
	}
	return errors.Wrap(err, "cs.New() failed")
}

func (c *Capstr) Dis(mem []byte, addr uint64) ([]Ins, error) {
	if c.cs == nil {
		if err := c.Open(); err != nil {
			return nil, err
		}
	}
	dis, err := c.cs.Dis(mem, addr, 0)
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	ret := make([]Ins, len(dis))
	for i, v := range dis {
		ret[i] = v
	}
	return ret, nil
}

// Listing renders mem one instruction per line, with the instruction
// bytes right-aligned to the longest one.
func (c *Capstr) Listing(mem []byte, addr uint64) (string, error) {
	if len(mem) == 0 {
		return "", nil
	}
	dis, err := c.Dis(mem, addr)
	if err != nil {
		return "", err
	}
	width := 0
	for _, ins := range dis {
		if n := len(ins.Bytes()); n > width {
			width = n
		}
	}
	out := make([]string, len(dis))
	for i, ins := range dis {
		pad := strings.Repeat(" ", (width-len(ins.Bytes()))*2)
		out[i] = fmt.Sprintf("0x%08x: %s%s %s %s", ins.Addr(), pad, hex.EncodeToString(ins.Bytes()), ins.Mnemonic(), ins.OpStr())
	}
	return strings.Join(out, "\n"), nil
}
