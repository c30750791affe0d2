package trace

import (
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var TRACE_MAGIC = "UPSC"

const TRACE_VERSION = 1

var order = binary.LittleEndian

type TraceHeader struct {
	// MAGIC ("UPSC")
	Magic string `struc:"[4]byte"`
	// file format version
	Version uint32
	// command line of the initial process, right-null-padded
	Cmdline string `struc:"[128]byte"`
}

// Record is one completed (or killed) system call.
type Record struct {
	Pid    uint32
	Num    uint32
	Nargs  uint8 `struc:"sizeof=Args"`
	Args   []uint32
	Ret    uint32
	HasRet bool
	Killed bool
}

type Writer struct {
	w  io.WriteCloser
	zw *snappy.Writer
}

func NewWriter(w io.WriteCloser, cmdline string) (*Writer, error) {
	if len(cmdline) > 128 {
		cmdline = cmdline[:128]
	}
	header := &TraceHeader{
		Magic:   TRACE_MAGIC,
		Version: TRACE_VERSION,
		Cmdline: cmdline,
	}
	if err := struc.PackWithOrder(w, header, order); err != nil {
		return nil, errors.Wrap(err, "failed to pack header")
	}
	return &Writer{w: w, zw: snappy.NewBufferedWriter(w)}, nil
}

// write a record at a time
func (t *Writer) Pack(rec *Record) error {
	return errors.Wrap(struc.PackWithOrder(t.zw, rec, order), "failed to pack record")
}

func (t *Writer) Close() error {
	err := t.zw.Close()
	if cerr := t.w.Close(); err == nil {
		err = cerr
	}
	return err
}

type Reader struct {
	r      io.ReadCloser
	zr     *snappy.Reader
	Header TraceHeader
}

func NewReader(r io.ReadCloser) (*Reader, error) {
	t := &Reader{r: r}
	if err := struc.UnpackWithOrder(r, &t.Header, order); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if t.Header.Magic != TRACE_MAGIC {
		return nil, errors.New("invalid trace file magic")
	}
	if t.Header.Version != TRACE_VERSION {
		return nil, errors.Errorf("unsupported trace version %d", t.Header.Version)
	}
	t.Header.Cmdline = trimNull(t.Header.Cmdline)
	t.zr = snappy.NewReader(r)
	return t, nil
}

// Next returns io.EOF after the last record.
func (t *Reader) Next() (*Record, error) {
	rec := &Record{}
	if err := struc.UnpackWithOrder(t.zr, rec, order); err != nil {
		if errors.Cause(err) == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to unpack record")
	}
	// a call without arguments always reads back as nil Args
	if len(rec.Args) == 0 {
		rec.Args = nil
	}
	return rec, nil
}

func (t *Reader) Close() error {
	t.zr.Reset(nil)
	return t.r.Close()
}

func trimNull(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}
