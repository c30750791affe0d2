package vm

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

func newSpace(t *testing.T, frames int) *AddressSpace {
	pool, err := NewPagePool(frames)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.Close() })
	return NewAddressSpace(pool)
}

func mustMap(t *testing.T, as *AddressSpace, addr uint64, prot int) {
	if err := as.Map(addr, prot, "", nil); err != nil {
		t.Fatal(err)
	}
}

func TestPagePool(t *testing.T) {
	pool, err := NewPagePool(2)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	a, data, err := pool.Get(false)
	if err != nil || a != 0 || len(data) != cpu.PAGE_SIZE {
		t.Fatalf("Get() = %d, %d, %v", a, len(data), err)
	}
	data[0] = 0xff
	b, _, err := pool.Get(true)
	if err != nil || b != 1 {
		t.Fatalf("Get() = %d, %v", b, err)
	}
	if _, _, err := pool.Get(true); errors.Cause(err) != ErrNoFrames {
		t.Fatalf("expected ErrNoFrames, got %v", err)
	}
	pool.Put(a)
	if pool.Free() != 1 {
		t.Fatal("Put() did not return the frame")
	}
	if _, data, _ := pool.Get(true); data[0] != 0 {
		t.Fatal("Get(true) did not zero the frame")
	}
	if _, err := NewPagePool(0); err == nil {
		t.Fatal("empty pool accepted")
	}
}

func TestPagePoolDoubleFree(t *testing.T) {
	pool, _ := NewPagePool(1)
	defer pool.Close()
	n, _, _ := pool.Get(true)
	pool.Put(n)
	defer func() {
		if recover() == nil {
			t.Fatal("double free did not panic")
		}
	}()
	pool.Put(n)
}

// {addr, size, mode, ok} against rw pages at 0x1000-0x3000, r page at 0x3000
var checkTable = []struct {
	addr, size uint32
	mode       Mode
	ok         bool
}{
	{0x1000, 4, Read, true},
	{0x1000, 0x3000, Read, true},
	{0x1000, 0x3000, Write, false},
	{0x2ffc, 4, Write, true},
	{0x2ffe, 4, Write, false},
	{0x3ffe, 4, Read, false},
	{0x3fff, 1, Read, true},
	{0, 4, Read, false},
	{0, 0, Read, true},
	{0x0ffc, 8, Read, false},
	{0xbffffffe, 4, Read, false},
	{0xc0000000, 4, Read, false},
	{0xfffffffc, 8, Read, false},
}

func TestCheck(t *testing.T) {
	as := newSpace(t, 8)
	mustMap(t, as, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	mustMap(t, as, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE)
	mustMap(t, as, 0x3000, cpu.PROT_READ)
	for _, v := range checkTable {
		if as.Check(v.addr, v.size, v.mode) != v.ok {
			t.Errorf("Check(%#x, %#x, %d) != %v", v.addr, v.size, v.mode, v.ok)
		}
	}
}

func TestCheckKernelRange(t *testing.T) {
	as := newSpace(t, 2)
	mustMap(t, as, cpu.PHYS_BASE-cpu.PAGE_SIZE, cpu.PROT_READ|cpu.PROT_WRITE)
	if !as.Check(cpu.PHYS_BASE-4, 4, Write) {
		t.Fatal("top user word rejected")
	}
	if as.Check(cpu.PHYS_BASE-4, 5, Read) {
		t.Fatal("range into kernel space accepted")
	}
	if err := as.Map(cpu.PHYS_BASE, cpu.PROT_READ, "", nil); err == nil {
		t.Fatal("mapped a kernel page")
	}
}

func TestCheckString(t *testing.T) {
	as := newSpace(t, 4)
	mustMap(t, as, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	mustMap(t, as, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE)
	// string crossing from the first page into the second
	if err := as.CopyOut(0x1ffd, []byte("hello\x00")); err != nil {
		t.Fatal(err)
	}
	if s, err := as.CheckString(0x1ffd, 100); err != nil || s != "hello" {
		t.Fatalf("CheckString() = %q, %v", s, err)
	}
	if _, err := as.CheckString(0x1ffd, 4); errors.Cause(err) != ErrStringTooLong {
		t.Fatalf("expected ErrStringTooLong, got %v", err)
	}
	// unterminated string running off the end of the mapping
	fill := bytes.Repeat([]byte{'a'}, 0x10)
	if err := as.CopyOut(0x2ff0, fill); err != nil {
		t.Fatal(err)
	}
	_, err := as.CheckString(0x2ff0, 0x10000)
	if merr, ok := err.(*cpu.MemError); !ok || merr.Addr != 0x3000 || merr.Enum != cpu.MEM_READ_UNMAPPED {
		t.Fatalf("expected unmapped read at 0x3000, got %v", err)
	}
	if _, err := as.CheckString(0, 10); err == nil {
		t.Fatal("null string accepted")
	}
	if _, err := as.CheckString(0xc0000000, 10); err == nil {
		t.Fatal("kernel string accepted")
	}
}

func TestCopy(t *testing.T) {
	as := newSpace(t, 4)
	mustMap(t, as, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	mustMap(t, as, 0x2000, cpu.PROT_READ)
	if err := as.WriteWord(0x1ffc, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if v, err := as.ReadWord(0x1ffc); err != nil || v != 0xdeadbeef {
		t.Fatalf("ReadWord() = %#x, %v", v, err)
	}
	err := as.WriteWord(0x1ffe, 1)
	if merr, ok := err.(*cpu.MemError); !ok || merr.Enum != cpu.MEM_WRITE_PROT {
		t.Fatalf("expected protected write, got %v", err)
	}
	// a failed copy must not have written the valid prefix
	if v, _ := as.ReadWord(0x1ffc); v != 0xdeadbeef {
		t.Fatal("partial write on failed CopyOut")
	}
}

func TestDetachDestroy(t *testing.T) {
	as := newSpace(t, 4)
	pool := as.Pool()
	mustMap(t, as, 0x1000, cpu.PROT_READ)
	mustMap(t, as, 0x2000, cpu.PROT_READ)
	if pool.Free() != 2 {
		t.Fatal("frames not allocated")
	}
	mmu := &MMU{}
	mmu.Activate(as)
	if !mmu.IsActive(as) {
		t.Fatal("Activate() did not load the directory")
	}

	dir := as.Detach(mmu)
	if dir == nil || len(dir.Mem) != 2 {
		t.Fatal("Detach() lost the directory")
	}
	if mmu.Active() != nil {
		t.Fatal("MMU still points at a detached directory")
	}
	// a late reactivation (timer, context switch) must land on the base directory
	mmu.Activate(as)
	if mmu.Active() != nil {
		t.Fatal("detached space was reactivated")
	}
	if as.Check(0x1000, 1, Read) {
		t.Fatal("detached space still validates")
	}
	if err := as.Map(0x3000, cpu.PROT_READ, "", nil); errors.Cause(err) != ErrDetached {
		t.Fatalf("expected ErrDetached, got %v", err)
	}
	if pool.Free() != 2 {
		t.Fatal("frames leaked by failed Map()")
	}

	as.Destroy(dir)
	if pool.Free() != 4 {
		t.Fatalf("Destroy() leaked frames: %d free", pool.Free())
	}
	// second release is a no-op
	as.Release(mmu)
	if pool.Free() != 4 {
		t.Fatal("double release changed the pool")
	}
}

func TestMapFillError(t *testing.T) {
	as := newSpace(t, 2)
	err := as.Map(0x1000, cpu.PROT_READ, "", func(p []byte) error { return errors.New("boom") })
	if err == nil || as.Pool().Free() != 2 {
		t.Fatal("failed fill leaked a frame")
	}
	mustMap(t, as, 0x1000, cpu.PROT_READ)
	if err := as.Map(0x1000, cpu.PROT_READ, "", nil); errors.Cause(err) != cpu.ErrMapped {
		t.Fatalf("expected ErrMapped, got %v", err)
	}
	if len(as.Pages()) != 1 {
		t.Fatal("duplicate page installed")
	}
}

func TestActivateDetachRace(t *testing.T) {
	for i := 0; i < 200; i++ {
		as := newSpace(t, 1)
		mmu := &MMU{}
		done := make(chan struct{})
		go func() {
			mmu.Activate(as)
			close(done)
		}()
		dir := as.Detach(mmu)
		<-done
		if active := mmu.Active(); active != nil && active == dir {
			t.Fatalf("iteration %d: detached directory left active", i)
		}
		as.Destroy(dir)
	}
}
