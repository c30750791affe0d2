package common

import (
	"reflect"
)

// decoded argument types, one per argument kind
type (
	Fd  int32
	Pid int32
	Len uint32
	Str struct {
		Addr uint32
		S    string
		Err  error
	}
	Buf struct {
		Addr uint32
	}
	Obuf struct{ Buf }
)

var kindTypes = map[int]reflect.Type{
	INT:  reflect.TypeOf(int32(0)),
	FD:   reflect.TypeOf(Fd(0)),
	STR:  reflect.TypeOf(Str{}),
	BUF:  reflect.TypeOf(Buf{}),
	OBUF: reflect.TypeOf(Obuf{}),
	LEN:  reflect.TypeOf(Len(0)),
	PID:  reflect.TypeOf(Pid(0)),
}

func argTypes(kinds []int) []reflect.Type {
	out := make([]reflect.Type, len(kinds))
	for i, kind := range kinds {
		out[i] = kindTypes[kind]
	}
	return out
}
