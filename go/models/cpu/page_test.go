package cpu

import (
	"testing"
)

func mkpage(addr uint64, prot int) *Page {
	return &Page{Addr: addr, Prot: prot, Data: make([]byte, PAGE_SIZE)}
}

func TestPageFind(t *testing.T) {
	mem := Pages{
		mkpage(0x1000, PROT_READ),
		mkpage(0x2000, PROT_READ),
		mkpage(0x4000, PROT_READ),
		mkpage(0x8000, PROT_READ),
	}
	if mem.Find(0x1000) != mem[0] ||
		mem.Find(0x1001) != mem[0] ||
		mem.Find(0x1fff) != mem[0] ||
		mem.Find(0x8fff) != mem[3] {
		t.Error("Find() failed")
	}
	if mem.Find(0x3000) != nil ||
		mem.Find(0x1) != nil ||
		mem.Find(0x10000) != nil {
		t.Error("Find() negative failed")
	}
}

func TestPageString(t *testing.T) {
	p := mkpage(0x8048000, PROT_READ|PROT_EXEC)
	p.Desc = "text"
	if s := p.String(); s != "0x08048000-0x08049000 r-x frame=0 [text]" {
		t.Fatalf("bad page string: %q", s)
	}
}

func TestPageRound(t *testing.T) {
	table := [][]uint64{
		// addr, down, up
		{0, 0, 0},
		{1, 0, 0x1000},
		{0x1000, 0x1000, 0x1000},
		{0x1fff, 0x1000, 0x2000},
		{0xbfffffff, 0xbffff000, 0xc0000000},
	}
	for _, v := range table {
		if PageRound(v[0]) != v[1] || PageRoundUp(v[0]) != v[2] {
			t.Errorf("round(%#x) = %#x, %#x", v[0], PageRound(v[0]), PageRoundUp(v[0]))
		}
	}
	if IsUserAddr(PHYS_BASE) || !IsUserAddr(PHYS_BASE-1) {
		t.Error("IsUserAddr() boundary wrong")
	}
}
