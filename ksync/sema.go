// Package ksync implements the synchronization primitives spec.md section 4
// describes: semaphores, priority-donating locks, and Mesa-style condition
// variables, grounded in original_source/threads/synch.c.
package ksync

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/sched"
)

// Semaphore is a counting semaphore with a FIFO-ish waiter list, matching
// synch.c's struct semaphore. Unlike a raw sync.Mutex it must interoperate
// with the scheduler's block/unblock/yield primitives rather than Go's
// runtime scheduler directly, since a blocked thread here is a logical
// kernel thread, not necessarily a parked goroutine waiting on anything
// else.
type Semaphore struct {
	mu      sync.Mutex
	value   int
	waiters []*sched.Thread

	sch *sched.Scheduler
	log *zap.Logger
}

// NewSemaphore constructs a semaphore with the given initial value.
func NewSemaphore(sch *sched.Scheduler, value int, log *zap.Logger) *Semaphore {
	if log == nil {
		log = zap.NewNop()
	}
	return &Semaphore{value: value, sch: sch, log: log}
}

// Down waits for the semaphore to become positive, then decrements it.
// May not be called from interrupt context (sema_down's ASSERT
// (!intr_context())).
func (s *Semaphore) Down(cur *sched.Thread) {
	if s.sch.IntrContext() {
		panic("ksync: Down called from interrupt context")
	}
	old := s.sch.Disable()
	defer s.sch.SetLevel(old)
	for {
		s.mu.Lock()
		if s.value > 0 {
			s.value--
			s.mu.Unlock()
			return
		}
		s.waiters = append(s.waiters, cur)
		s.mu.Unlock()
		s.sch.Block(cur)
	}
}

// TryDown decrements the semaphore without blocking if it is already
// positive. Safe to call from interrupt context.
func (s *Semaphore) TryDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value > 0 {
		s.value--
		return true
	}
	return false
}

// Up increments the semaphore and wakes the highest-priority waiter, if
// any. Grounded in sema_up: the woken thread's priority is compared only
// against the releasing thread cur's priority, and only then does cur
// yield the CPU immediately (thread_yield_head) -- not a general
// reshuffle against the rest of the waiter set. Safe to call from
// interrupt context; cur may be nil when called from the alarm sweep or
// another interrupt-context caller with no logical "current thread".
func (s *Semaphore) Up(cur *sched.Thread) {
	s.mu.Lock()
	var woken *sched.Thread
	if len(s.waiters) > 0 {
		best := 0
		for i := 1; i < len(s.waiters); i++ {
			if s.waiters[i].Priority() > s.waiters[best].Priority() {
				best = i
			}
		}
		woken = s.waiters[best]
		s.waiters = append(s.waiters[:best], s.waiters[best+1:]...)
	}
	s.value++
	s.mu.Unlock()

	if woken != nil {
		s.sch.Unblock(woken)
	}

	if cur != nil && woken != nil && woken.Priority() > cur.Priority() {
		s.sch.YieldHead(cur)
	}
}
