package loader

import (
	"bytes"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

// Prog describes one program header of an executable built by NewExec.
type Prog struct {
	Type  uint32
	Flags uint32
	Vaddr uint32
	// Memsz of 0 means len(Data)
	Memsz uint32
	Data  []byte
}

// File is an in-memory ELF32 executable. It is how test programs and the
// mkprog command produce images the loader accepts.
type File struct {
	Header Ehdr32
	Phdrs  []Phdr32
	// segment payloads, indexed like Phdrs
	Data [][]byte
}

// NewExec lays out a static i386 executable. Each segment's data starts
// on its own file page, at the same page offset as its vaddr.
func NewExec(entry uint32, progs ...Prog) *File {
	f := &File{
		Header: Ehdr32{
			Ident:     make([]byte, 16),
			Type:      ET_EXEC,
			Machine:   EM_386,
			Version:   EV_CURRENT,
			Entry:     entry,
			Phoff:     uint32(ehdrSize),
			Ehsize:    uint16(ehdrSize),
			Phentsize: uint16(phdrSize),
			Phnum:     uint16(len(progs)),
		},
	}
	copy(f.Header.Ident, elfMagic)
	for i, p := range progs {
		memsz := p.Memsz
		if memsz == 0 {
			memsz = uint32(len(p.Data))
		}
		off := uint32(cpu.PAGE_SIZE*(i+1)) + p.Vaddr&cpu.PAGE_MASK
		f.Phdrs = append(f.Phdrs, Phdr32{
			Type:   p.Type,
			Offset: off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Vaddr,
			Filesz: uint32(len(p.Data)),
			Memsz:  memsz,
			Flags:  p.Flags,
			Align:  cpu.PAGE_SIZE,
		})
		f.Data = append(f.Data, p.Data)
	}
	return f
}

// Bytes serializes the headers and segment data.
func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, &f.Header, order); err != nil {
		return nil, errors.Wrap(err, "struc.Pack() failed")
	}
	out := buf.Bytes()
	put := func(off int, p []byte) {
		if need := off + len(p); need > len(out) {
			out = append(out, make([]byte, need-len(out))...)
		}
		copy(out[off:], p)
	}
	for i := range f.Phdrs {
		var ph bytes.Buffer
		if err := struc.PackWithOrder(&ph, &f.Phdrs[i], order); err != nil {
			return nil, errors.Wrap(err, "struc.Pack() failed")
		}
		put(int(f.Header.Phoff)+i*phdrSize, ph.Bytes())
	}
	for i, ph := range f.Phdrs {
		if i < len(f.Data) {
			put(int(ph.Offset), f.Data[i])
		}
	}
	return out, nil
}
