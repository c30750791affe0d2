package vm

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/lunixbochs/userprog/go/models/cpu"
)

var ErrNoFrames = errors.New("out of physical frames")

// PagePool hands out PAGE_SIZE physical frames from a fixed arena.
type PagePool struct {
	mu     sync.Mutex
	arena  []byte
	shared bool
	free   []int
	used   []bool
}

func NewPagePool(frames int) (*PagePool, error) {
	if frames <= 0 {
		return nil, errors.Errorf("invalid frame count %d", frames)
	}
	arena, shared, err := allocArena(frames * cpu.PAGE_SIZE)
	if err != nil {
		return nil, err
	}
	p := &PagePool{
		arena:  arena,
		shared: shared,
		free:   make([]int, frames),
		used:   make([]bool, frames),
	}
	// lowest frames are handed out first
	for i := range p.free {
		p.free[i] = frames - 1 - i
	}
	return p, nil
}

func (p *PagePool) frame(n int) []byte {
	off := n * cpu.PAGE_SIZE
	return p.arena[off : off+cpu.PAGE_SIZE : off+cpu.PAGE_SIZE]
}

// Get allocates a frame, zeroing it if asked.
func (p *PagePool) Get(zero bool) (int, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return -1, nil, errors.WithStack(ErrNoFrames)
	}
	n := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.used[n] = true
	data := p.frame(n)
	if zero {
		for i := range data {
			data[i] = 0
		}
	}
	return n, data, nil
}

// Put returns a frame to the pool. Freeing a frame twice is a kernel bug.
func (p *PagePool) Put(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n >= len(p.used) || !p.used[n] {
		panic(fmt.Sprintf("vm: bad frame free %d", n))
	}
	p.used[n] = false
	p.free = append(p.free, n)
}

// Free returns the number of unallocated frames.
func (p *PagePool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *PagePool) Size() int {
	return len(p.used)
}

// Shared reports whether frames live outside the Go heap and can be handed to C code.
func (p *PagePool) Shared() bool {
	return p.shared
}

func (p *PagePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.arena == nil {
		return nil
	}
	err := freeArena(p.arena, p.shared)
	p.arena, p.free = nil, nil
	return err
}
