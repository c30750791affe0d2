package cpu

import (
	"fmt"
	"sort"
	"strings"
)

// Page is a single PAGE_SIZE mapping backed by one physical frame.
type Page struct {
	Addr  uint64
	Prot  int
	Frame int
	Data  []byte

	Desc string
}

func (p *Page) String() string {
	// add prot
	prots := []int{PROT_READ, PROT_WRITE, PROT_EXEC}
	chars := []string{"r", "w", "x"}
	prot := ""
	for i := range prots {
		if p.Prot&prots[i] != 0 {
			prot += chars[i]
		} else {
			prot += "-"
		}
	}
	desc := fmt.Sprintf("0x%08x-0x%08x %s frame=%d", p.Addr, p.Addr+PAGE_SIZE, prot, p.Frame)
	if p.Desc != "" {
		desc += fmt.Sprintf(" [%s]", p.Desc)
	}
	return desc
}

func (p *Page) Contains(addr uint64) bool {
	return addr >= p.Addr && addr < p.Addr+PAGE_SIZE
}

type Pages []*Page

func (p Pages) Len() int           { return len(p) }
func (p Pages) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Pages) Less(i, j int) bool { return p[i].Addr < p[j].Addr }

func (p Pages) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

// binary search to find index of the page containing addr, if any, else -1
func (p Pages) bsearch(addr uint64) int {
	l := 0
	r := len(p) - 1
	for l <= r {
		mid := (l + r) / 2
		e := p[mid]
		if addr >= e.Addr {
			if addr < e.Addr+PAGE_SIZE {
				return mid
			}
			l = mid + 1
		} else if addr < e.Addr {
			r = mid - 1
		}
	}
	return -1
}

// index at which a page starting at addr would be inserted
func (p Pages) insertPos(addr uint64) int {
	return sort.Search(len(p), func(i int) bool { return p[i].Addr >= addr })
}

func (p Pages) Find(addr uint64) *Page {
	i := p.bsearch(addr)
	if i >= 0 {
		return p[i]
	}
	return nil
}
