package loader

import (
	"io"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/log"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

var (
	ErrTruncated          = errors.New("truncated executable")
	ErrBadMagic           = errors.New("bad ELF identification")
	ErrNotExecutable      = errors.New("not an executable")
	ErrBadMachine         = errors.New("unsupported machine")
	ErrBadVersion         = errors.New("unsupported ELF version")
	ErrBadPhentsize       = errors.New("bad program header size")
	ErrTooManyPhdrs       = errors.New("too many program headers")
	ErrUnsupportedSegment = errors.New("dynamic linking is not supported")
	ErrBadSegment         = errors.New("invalid loadable segment")
	ErrOverlap            = errors.New("overlapping segments")
)

// Image is a parsed and validated executable. It holds no reference to the
// file it came from and may be shared.
type Image struct {
	Header   Ehdr32
	Entry    uint32
	Segments []Segment
}

// Parse reads and validates the ELF header and program headers of r, which
// is size bytes long.
func Parse(r io.ReaderAt, size int64) (*Image, error) {
	img := &Image{}
	if err := readStruct(r, 0, ehdrSize, &img.Header); err != nil {
		return nil, err
	}
	if err := img.Header.validate(); err != nil {
		return nil, err
	}
	img.Entry = img.Header.Entry

	for i := 0; i < int(img.Header.Phnum); i++ {
		off := int64(img.Header.Phoff) + int64(i*phdrSize)
		if off > size {
			return nil, errors.Wrapf(ErrTruncated, "program header %d at %#x", i, off)
		}
		var ph Phdr32
		if err := readStruct(r, off, phdrSize, &ph); err != nil {
			return nil, err
		}
		switch ph.Type {
		case PT_DYNAMIC, PT_INTERP, PT_SHLIB:
			return nil, errors.Wrapf(ErrUnsupportedSegment, "program header %d type %#x", i, ph.Type)
		case PT_LOAD:
			seg := Segment{
				Offset: ph.Offset,
				Vaddr:  ph.Vaddr,
				Filesz: ph.Filesz,
				Memsz:  ph.Memsz,
				Flags:  ph.Flags,
			}
			if err := seg.validate(size); err != nil {
				return nil, errors.Wrapf(err, "program header %d", i)
			}
			if err := img.checkOverlap(seg); err != nil {
				return nil, errors.Wrapf(err, "program header %d", i)
			}
			img.Segments = append(img.Segments, seg)
		default:
			// PT_NULL, PT_NOTE, PT_PHDR, PT_STACK and unknown types
		}
	}
	return img, nil
}

// segments share pages at page granularity, so compare rounded ranges
func (img *Image) checkOverlap(seg Segment) error {
	start, end := seg.pages()
	for _, other := range img.Segments {
		ostart, oend := other.pages()
		if start < oend && ostart < end {
			return errors.Wrapf(ErrOverlap, "%#x-%#x and %#x-%#x", start, end, ostart, oend)
		}
	}
	return nil
}

// Map loads every segment of img from r into as. The file-backed part of
// each segment is read page by page into fresh frames and the rest is zero
// filled. On failure the pages mapped so far stay in as; the caller tears
// the whole address space down.
func (img *Image) Map(r io.ReaderAt, as *vm.AddressSpace) error {
	for _, seg := range img.Segments {
		if err := mapSegment(r, as, seg); err != nil {
			return err
		}
		log.L.Trace("segment-mapped", "vaddr", seg.Vaddr, "memsz", seg.Memsz, "flags", seg.flagString())
	}
	return nil
}

func mapSegment(r io.ReaderAt, as *vm.AddressSpace, seg Segment) error {
	filePage := int64(seg.Offset &^ cpu.PAGE_MASK)
	memPage := uint64(seg.Vaddr &^ cpu.PAGE_MASK)
	pageOffset := uint64(seg.Vaddr & cpu.PAGE_MASK)

	var readBytes, zeroBytes uint64
	if seg.Filesz > 0 {
		readBytes = pageOffset + uint64(seg.Filesz)
		zeroBytes = cpu.PageRoundUp(pageOffset+uint64(seg.Memsz)) - readBytes
	} else {
		zeroBytes = cpu.PageRoundUp(pageOffset + uint64(seg.Memsz))
	}

	desc := "segment " + seg.flagString()
	ofs, upage := filePage, memPage
	for readBytes > 0 || zeroBytes > 0 {
		pageRead := readBytes
		if pageRead > cpu.PAGE_SIZE {
			pageRead = cpu.PAGE_SIZE
		}
		err := as.Map(upage, seg.Prot(), desc, func(p []byte) error {
			if pageRead == 0 {
				return nil
			}
			if n, err := r.ReadAt(p[:pageRead], ofs); uint64(n) != pageRead {
				return errors.Wrapf(ErrTruncated, "segment data at %#x: %v", ofs, err)
			}
			return nil
		})
		if err != nil {
			if errors.Cause(err) == cpu.ErrMapped {
				return errors.Wrapf(ErrOverlap, "page %#x", upage)
			}
			return errors.Wrapf(err, "mapping page %#x", upage)
		}
		readBytes -= pageRead
		zeroBytes -= cpu.PAGE_SIZE - pageRead
		ofs += int64(pageRead)
		upage += cpu.PAGE_SIZE
	}
	return nil
}

// Load parses r and maps it into as.
func Load(r io.ReaderAt, size int64, as *vm.AddressSpace) (*Image, error) {
	img, err := Parse(r, size)
	if err != nil {
		return nil, err
	}
	if err := img.Map(r, as); err != nil {
		return nil, err
	}
	return img, nil
}
