package fiber

import "github.com/gammazero/deque"

// sema is a counting semaphore whose waiters are parked fibers.
type sema struct {
	noCopy noCopy
	v      uint32
	w      deque.Deque[Handle]
}

// acquire takes a permit, parking f until one is released if none is
// available.
func (s *sema) acquire(f Handle) {
	if s.v > 0 {
		s.v--
		return
	}

	s.w.PushBack(f)
	f.park(true)
	f.suspendz()
}

// release hands a permit directly to the longest waiting fiber and
// resumes it, or banks the permit if nobody is waiting.
func (s *sema) release() {
	if s.w.Len() == 0 {
		s.v++
		return
	}

	f := s.w.PopFront()
	f.park(false)
	f.runz()
}

func (s *sema) waiting() int {
	return s.w.Len()
}
