package common

import (
	"github.com/lunixbochs/argjoy"

	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// argCodec decodes raw argument words for tracing. Strings are read
// through the validator, never directly.
func argCodec(as *vm.AddressSpace) func(arg interface{}, vals []interface{}) error {
	return func(arg interface{}, vals []interface{}) error {
		reg, ok := vals[0].(uint64)
		if !ok {
			return argjoy.NoMatch
		}
		switch v := arg.(type) {
		case *int32:
			*v = int32(reg)
		case *Fd:
			*v = Fd(reg)
		case *Pid:
			*v = Pid(reg)
		case *Len:
			*v = Len(reg)
		case *Buf:
			*v = Buf{Addr: uint32(reg)}
		case *Obuf:
			*v = Obuf{Buf{Addr: uint32(reg)}}
		case *Str:
			v.Addr = uint32(reg)
			if as == nil {
				return nil
			}
			v.S, v.Err = as.CheckString(uint32(reg), cpu.PAGE_SIZE)
		default:
			return argjoy.NoMatch
		}
		return nil
	}
}
