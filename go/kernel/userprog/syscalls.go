package userprog

import (
	"io"

	"github.com/pkg/errors"

	co "github.com/lunixbochs/userprog/go/kernel/common"
	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/models"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// syscall numbers
const (
	SYS_HALT = iota
	SYS_EXIT
	SYS_EXEC
	SYS_WAIT
	SYS_CREATE
	SYS_REMOVE
	SYS_OPEN
	SYS_FILESIZE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_TELL
	SYS_CLOSE
	SYS_FIBONACCI
	SYS_SUM_OF_FOUR_INTEGERS
)

// user strings are scanned for at most one page
const maxString = cpu.PAGE_SIZE

const fail = ^uint32(0)

func (k *Kernel) syscalls() []co.Syscall {
	return []co.Syscall{
		{SYS_HALT, "halt", co.Handler0(k.halt), nil, co.VOID},
		{SYS_EXIT, "exit", co.Handler1(k.exit), []int{co.INT}, co.VOID},
		{SYS_EXEC, "exec", co.Handler1(k.exec), []int{co.STR}, co.PID},
		{SYS_WAIT, "wait", co.Handler1(k.wait), []int{co.PID}, co.INT},
		{SYS_CREATE, "create", co.Handler2(k.create), []int{co.STR, co.LEN}, co.INT},
		{SYS_REMOVE, "remove", co.Handler1(k.remove), []int{co.STR}, co.INT},
		{SYS_OPEN, "open", co.Handler1(k.open), []int{co.STR}, co.FD},
		{SYS_FILESIZE, "filesize", co.Handler1(k.filesize), []int{co.FD}, co.INT},
		{SYS_READ, "read", co.Handler3(k.read), []int{co.FD, co.OBUF, co.LEN}, co.INT},
		{SYS_WRITE, "write", co.Handler3(k.write), []int{co.FD, co.BUF, co.LEN}, co.INT},
		{SYS_SEEK, "seek", co.Handler2(k.seek), []int{co.FD, co.LEN}, co.VOID},
		{SYS_TELL, "tell", co.Handler1(k.tell), []int{co.FD}, co.INT},
		{SYS_CLOSE, "close", co.Handler1(k.close), []int{co.FD}, co.VOID},
		{SYS_FIBONACCI, "fibonacci", co.Handler1(k.fibonacci), []int{co.INT}, co.INT},
		{SYS_SUM_OF_FOUR_INTEGERS, "sum_of_four_integers", co.Handler4(k.sumOfFourIntegers), []int{co.INT, co.INT, co.INT, co.INT}, co.INT},
	}
}

func boolRet(ok bool) (uint32, error) {
	if ok {
		return 1, nil
	}
	return 0, nil
}

// userString copies a path or command line in. A string that does not fit
// in maxString is not a fault: ok is false and err is nil.
func userString(p *process.Process, addr uint32) (s string, ok bool, err error) {
	s, err = p.Space.CheckString(addr, maxString)
	if errors.Cause(err) == vm.ErrStringTooLong {
		return "", false, nil
	}
	return s, err == nil, err
}

func (k *Kernel) file(p *process.Process, fd uint32) *fileRef {
	f := p.Files.Get(int(int32(fd)))
	if f == nil {
		return nil
	}
	return &fileRef{f, k}
}

func (k *Kernel) halt(p *process.Process) (uint32, error) {
	k.Halt()
	return 0, co.ErrHalt
}

func (k *Kernel) exit(p *process.Process, status uint32) (uint32, error) {
	code := int(int32(status))
	p.SetExit(code)
	return 0, models.ExitStatus(code)
}

func (k *Kernel) exec(p *process.Process, cmdline uint32) (uint32, error) {
	s, ok, err := userString(p, cmdline)
	if !ok {
		return fail, err
	}
	return uint32(int32(k.Exec(p, s))), nil
}

func (k *Kernel) wait(p *process.Process, pid uint32) (uint32, error) {
	return uint32(int32(k.Wait(p, int(int32(pid))))), nil
}

func (k *Kernel) create(p *process.Process, path, size uint32) (uint32, error) {
	name, ok, err := userString(p, path)
	if !ok {
		return 0, err
	}
	k.fsMu.Lock()
	defer k.fsMu.Unlock()
	return boolRet(k.FS.Create(name, int64(size)) == nil)
}

func (k *Kernel) remove(p *process.Process, path uint32) (uint32, error) {
	name, ok, err := userString(p, path)
	if !ok {
		return 0, err
	}
	k.fsMu.Lock()
	defer k.fsMu.Unlock()
	return boolRet(k.FS.Remove(name) == nil)
}

func (k *Kernel) open(p *process.Process, path uint32) (uint32, error) {
	name, ok, err := userString(p, path)
	if !ok {
		return fail, err
	}
	k.fsMu.Lock()
	defer k.fsMu.Unlock()
	f, err := k.FS.Open(name)
	if err != nil {
		return fail, nil
	}
	fd, err := p.Files.Add(f)
	if err != nil {
		f.Close()
		return fail, nil
	}
	return uint32(fd), nil
}

func (k *Kernel) filesize(p *process.Process, fd uint32) (uint32, error) {
	f := k.file(p, fd)
	if f == nil {
		return fail, nil
	}
	return uint32(f.Length()), nil
}

// chunked so a large user buffer never needs a kernel buffer of equal size
func chunks(addr, size uint32, fn func(addr uint32, n int) (int, bool, error)) (uint32, error) {
	var total uint32
	for total < size {
		n := size - total
		if n > cpu.PAGE_SIZE {
			n = cpu.PAGE_SIZE
		}
		got, more, err := fn(addr+total, int(n))
		total += uint32(got)
		if err != nil || !more || got < int(n) {
			return total, err
		}
	}
	return total, nil
}

func (k *Kernel) read(p *process.Process, fd, buf, size uint32) (uint32, error) {
	if err := p.Space.Validate(buf, size, vm.Write); err != nil {
		return 0, err
	}
	switch int32(fd) {
	case process.STDIN_FILENO:
		return chunks(buf, size, func(addr uint32, n int) (int, bool, error) {
			tmp := make([]byte, 0, n)
			for len(tmp) < n {
				c, err := k.Console.Getc(k.ctx)
				if err != nil || c == 0 {
					return len(tmp), false, p.Space.CopyOut(addr, tmp)
				}
				tmp = append(tmp, c)
			}
			return n, true, p.Space.CopyOut(addr, tmp)
		})
	case process.STDOUT_FILENO:
		return fail, nil
	}
	f := k.file(p, fd)
	if f == nil {
		return fail, nil
	}
	return chunks(buf, size, func(addr uint32, n int) (int, bool, error) {
		tmp := make([]byte, n)
		got, err := f.Read(tmp)
		if cerr := p.Space.CopyOut(addr, tmp[:got]); cerr != nil {
			return got, false, cerr
		}
		return got, err == nil, nil
	})
}

func (k *Kernel) write(p *process.Process, fd, buf, size uint32) (uint32, error) {
	if err := p.Space.Validate(buf, size, vm.Read); err != nil {
		return 0, err
	}
	switch int32(fd) {
	case process.STDOUT_FILENO:
		// one putbuf for the whole buffer keeps it in one piece
		data := make([]byte, size)
		if err := p.Space.CopyIn(buf, data); err != nil {
			return 0, err
		}
		k.Console.Putbuf(data)
		return size, nil
	case process.STDIN_FILENO:
		return fail, nil
	}
	f := k.file(p, fd)
	if f == nil {
		return fail, nil
	}
	return chunks(buf, size, func(addr uint32, n int) (int, bool, error) {
		tmp := make([]byte, n)
		if err := p.Space.CopyIn(addr, tmp); err != nil {
			return 0, false, err
		}
		got, err := f.Write(tmp)
		return got, err == nil, nil
	})
}

func (k *Kernel) seek(p *process.Process, fd, pos uint32) (uint32, error) {
	if f := k.file(p, fd); f != nil {
		f.Seek(int64(pos))
	}
	return 0, nil
}

func (k *Kernel) tell(p *process.Process, fd uint32) (uint32, error) {
	f := k.file(p, fd)
	if f == nil {
		return fail, nil
	}
	return uint32(f.Tell()), nil
}

func (k *Kernel) close(p *process.Process, fd uint32) (uint32, error) {
	if f := p.Files.Remove(int(int32(fd))); f != nil {
		k.fsMu.Lock()
		f.Close()
		k.fsMu.Unlock()
	}
	return 0, nil
}

func (k *Kernel) fibonacci(p *process.Process, n uint32) (uint32, error) {
	return Fibonacci(int32(n)), nil
}

func (k *Kernel) sumOfFourIntegers(p *process.Process, a, b, c, d uint32) (uint32, error) {
	return a + b + c + d, nil
}

// Fibonacci returns the n-th Fibonacci number modulo 2^32, with F(1) = F(2) = 1.
func Fibonacci(n int32) uint32 {
	if n <= 0 {
		return 0
	}
	var a, b uint32 = 0, 1
	for i := int32(1); i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// fileRef serializes access to an open file with the file system lock.
type fileRef struct {
	f interface {
		io.Reader
		io.Writer
		Seek(int64)
		Tell() int64
		Length() int64
	}
	k *Kernel
}

func (r *fileRef) Read(p []byte) (int, error) {
	r.k.fsMu.Lock()
	defer r.k.fsMu.Unlock()
	return r.f.Read(p)
}

func (r *fileRef) Write(p []byte) (int, error) {
	r.k.fsMu.Lock()
	defer r.k.fsMu.Unlock()
	return r.f.Write(p)
}

func (r *fileRef) Seek(pos int64) {
	r.k.fsMu.Lock()
	defer r.k.fsMu.Unlock()
	r.f.Seek(pos)
}

func (r *fileRef) Tell() int64 {
	r.k.fsMu.Lock()
	defer r.k.fsMu.Unlock()
	return r.f.Tell()
}

func (r *fileRef) Length() int64 {
	r.k.fsMu.Lock()
	defer r.k.fsMu.Unlock()
	return r.f.Length()
}
