package process

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/log"
)

const MaxProcs = 1024

var ErrTooManyProcs = errors.New("process table full")

// Table owns pid assignment and the parent/child links of every live
// descriptor. Pids are never reused while the table lives.
type Table struct {
	mu    sync.Mutex
	procs map[int]*Process
	next  int
	max   int
}

func NewTable(max int) *Table {
	if max <= 0 {
		max = MaxProcs
	}
	return &Table{procs: make(map[int]*Process), next: 1, max: max}
}

// Spawn allocates a descriptor as a child of parent. A nil parent makes an orphan.
func (t *Table) Spawn(parent *Process, name string) (*Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs) >= t.max {
		return nil, errors.WithStack(ErrTooManyProcs)
	}
	p := newProcess(t.next, name)
	t.next++
	t.procs[p.Pid] = p
	if parent != nil && !parent.exited {
		p.parent = parent
		parent.children[p.Pid] = p
	}
	log.L.Debug("process-spawn", "pid", p.Pid, "name", name)
	return p, nil
}

// Attach publishes the command line and address space of a spawned process.
func (t *Table) Attach(p *Process, cmdline string, space *vm.AddressSpace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.Cmdline, p.Space = cmdline, space
}

// Snapshot describes a process at one instant, detached from the live
// descriptor.
type Snapshot struct {
	Pid      int
	Name     string
	Cmdline  string
	Parent   int
	Children []int
	Exited   bool
	Waited   bool
	// Status is only meaningful when HasStatus is set
	Status    int
	HasStatus bool
	Fds       []int
	// nil before the space is attached and after it is released
	Maps []string
}

// Snapshot copies the state of pid, or returns false if pid is not live.
func (t *Table) Snapshot(pid int) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.procs[pid]
	if p == nil {
		return Snapshot{}, false
	}
	s := Snapshot{
		Pid:     p.Pid,
		Name:    p.Name,
		Cmdline: p.Cmdline,
		Exited:  p.exited,
		Waited:  p.waited,
		Fds:     p.Files.Fds(),
	}
	if p.parent != nil {
		s.Parent = p.parent.Pid
	}
	for pid := range p.children {
		s.Children = append(s.Children, pid)
	}
	sort.Ints(s.Children)
	s.Status, s.HasStatus = p.Status()
	if p.Space != nil {
		for _, page := range p.Space.Pages() {
			s.Maps = append(s.Maps, page.String())
		}
	}
	return s, true
}

func (t *Table) Get(pid int) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.procs[pid]
}

// List returns every descriptor not yet reclaimed, ordered by pid.
func (t *Table) List() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pid < out[j].Pid })
	return out
}

// Snapshots returns a Snapshot of every live process, ordered by pid.
func (t *Table) Snapshots() []Snapshot {
	var out []Snapshot
	for _, p := range t.List() {
		if s, ok := t.Snapshot(p.Pid); ok {
			out = append(out, s)
		}
	}
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.procs)
}

// Parent returns the parent of p, or nil for orphans.
func (t *Table) Parent(p *Process) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return p.parent
}

// callers hold t.mu
func (t *Table) reap(p *Process) {
	delete(t.procs, p.Pid)
	log.L.Trace("process-reap", "pid", p.Pid)
}

func (t *Table) unlink(p *Process) {
	if p.parent != nil {
		delete(p.parent.children, p.Pid)
		p.parent = nil
	}
}

// Abort drops a descriptor that never started running.
func (t *Table) Abort(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unlink(p)
	t.reap(p)
}

// Exit finishes a process whose status is already recorded with SetExit
// and whose resources are released. Children become orphans, and the
// process is reclaimed now if nobody can wait for it anymore. Exactly one
// waiter is woken.
func (t *Table) Exit(p *Process) {
	t.mu.Lock()
	if p.exited {
		t.mu.Unlock()
		return
	}
	p.exited = true
	for _, c := range p.children {
		c.parent = nil
		if c.exited {
			t.reap(c)
		}
	}
	p.children = make(map[int]*Process)
	if p.parent == nil {
		t.reap(p)
	}
	t.mu.Unlock()
	p.done.Up()
}

// Wait blocks until the child pid of parent exits and returns its status.
// It returns Failed immediately if pid is not a child of parent or has
// already been waited for.
func (t *Table) Wait(parent *Process, pid int) int {
	t.mu.Lock()
	c, ok := parent.children[pid]
	if !ok || c.waited {
		t.mu.Unlock()
		return Failed
	}
	c.waited = true
	t.mu.Unlock()

	c.done.Down()
	status, ok := c.Status()
	if !ok {
		status = Failed
	}

	t.mu.Lock()
	t.unlink(c)
	t.reap(c)
	t.mu.Unlock()
	return status
}
