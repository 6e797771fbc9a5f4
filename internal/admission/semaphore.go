// Package admission implements the gateway's global admission control: a
// counting semaphore sized to max_sessions with a non-blocking try-acquire.
//
// The source this gateway is modeled on checked `semaphore._value > 0`
// before acquiring, which races: two concurrent admissions can both
// observe a positive value and both proceed, one of them then blocking.
// TryAcquire here performs the check-and-decrement atomically via a
// buffered channel, so capacity exhaustion is always a non-blocking
// rejection rather than a wait (spec §9, Open Question).
package admission

import "sync/atomic"

// Semaphore is a counting semaphore with atomic, non-blocking acquisition.
type Semaphore struct {
	slots       chan struct{}
	outstanding int64
}

// New creates a semaphore with max permits available.
func New(max int) *Semaphore {
	s := &Semaphore{slots: make(chan struct{}, max)}
	for i := 0; i < max; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// TryAcquire attempts to take one permit without blocking. It reports
// whether a permit was obtained.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.slots:
		atomic.AddInt64(&s.outstanding, 1)
		return true
	default:
		return false
	}
}

// Release returns one permit. Releasing more permits than were acquired
// blocks, since every slot is already back in the channel; callers in this
// gateway only ever release a permit they successfully acquired.
func (s *Semaphore) Release() {
	atomic.AddInt64(&s.outstanding, -1)
	s.slots <- struct{}{}
}

// Outstanding reports the number of permits currently held, for the
// "permits == |sessions|" invariant (spec §3 invariant 2, §8 law 2).
func (s *Semaphore) Outstanding() int {
	return int(atomic.LoadInt64(&s.outstanding))
}
