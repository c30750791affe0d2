package common

import (
	"sync"

	"github.com/lunixbochs/userprog/go/kernel/process"
	"github.com/lunixbochs/userprog/go/log"
	"github.com/lunixbochs/userprog/go/models/trace"
)

// Recorder writes every syscall to a binary trace file.
type Recorder struct {
	mu  sync.Mutex
	w   *trace.Writer
	err error
}

func NewRecorder(w *trace.Writer) *Recorder {
	return &Recorder{w: w}
}

func (r *Recorder) Trace(p *process.Process, sys *Syscall, args []uint32, ret uint32, err error) {
	_, killed := err.(*Killed)
	rec := &trace.Record{
		Pid:    uint32(p.Pid),
		Num:    uint32(sys.Num),
		Args:   append([]uint32{}, args...),
		Ret:    ret,
		HasRet: err == nil && sys.Ret != VOID,
		Killed: killed,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if r.err = r.w.Pack(rec); r.err != nil {
		log.L.Error("trace file write failed, recording stopped", "error", r.err)
	}
}

// Close flushes the trace file and returns the first error seen.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Close(); r.err == nil {
		r.err = err
	}
	return r.err
}
