package process

import "sync"

// Sema is a counting semaphore. An Up before the matching Down is never lost.
type Sema struct {
	mu    sync.Mutex
	cond  *sync.Cond
	value int
}

func NewSema(value int) *Sema {
	s := &Sema{value: value}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Sema) Down() {
	s.mu.Lock()
	for s.value == 0 {
		s.cond.Wait()
	}
	s.value--
	s.mu.Unlock()
}

// TryDown decrements without blocking and reports whether it could.
func (s *Sema) TryDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == 0 {
		return false
	}
	s.value--
	return true
}

func (s *Sema) Up() {
	s.mu.Lock()
	s.value++
	s.mu.Unlock()
	s.cond.Signal()
}
