package fiber

// WaitGroup waits for a collection of fibers to finish. Unlike
// sync.WaitGroup, Wait parks the calling fiber instead of blocking the
// carrier goroutine, so it must only be used by fibers of a single
// Carrier.Run call.
type WaitGroup struct {
	noCopy noCopy
	v      int32
	w      uint32
	sema   sema
}

// Add adds delta to the counter. Waiters are resumed when it reaches
// zero. Add panics if the counter goes negative.
func (wg *WaitGroup) Add(delta int) {
	wg.v += int32(delta)

	if wg.v < 0 {
		panic("fiber: negative WaitGroup counter")
	}

	if wg.v > 0 || wg.w == 0 {
		return
	}

	for ; wg.w != 0; wg.w-- {
		wg.sema.release()
	}
}

// Done decrements the counter by one.
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait parks f until the counter is zero.
func (wg *WaitGroup) Wait(f Handle) {
	if wg.v == 0 {
		return
	}

	wg.w++
	wg.sema.acquire(f)
}

// Waiting returns the number of fibers parked in Wait.
func (wg *WaitGroup) Waiting() int {
	return wg.sema.waiting()
}
