package ksync

import (
	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/sched"
)

// Cond is a Mesa-style condition variable: signal and wait are not atomic,
// so a woken waiter must recheck its predicate after reacquiring the lock.
// Grounded in synch.c's struct condition / cond_wait / cond_signal, each
// waiter is a private one-shot semaphore ordered into the waiter list by
// descending priority at wait time (cond_priority / list_insert_ordered),
// so cond_signal always wakes the highest-priority waiter first.
type Cond struct {
	waiters []*waiterSlot

	sch *sched.Scheduler
	log *zap.Logger
}

type waiterSlot struct {
	sema *Semaphore
	prio func() int
}

// NewCond constructs an empty condition variable.
func NewCond(sch *sched.Scheduler, log *zap.Logger) *Cond {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cond{sch: sch, log: log}
}

// Wait atomically releases lock and blocks cur until Signal or Broadcast
// wakes it, then reacquires lock before returning. lock must already be
// held by cur.
func (c *Cond) Wait(cur *sched.Thread, lock *Lock) {
	if c.sch.IntrContext() {
		panic("ksync: Wait called from interrupt context")
	}
	if !lock.HeldByCurrentThread(cur) {
		panic("ksync: Wait called without holding the lock")
	}

	waiter := &waiterSlot{sema: NewSemaphore(c.sch, 0, c.log)}
	prio := cur.Priority()
	waiter.prio = func() int { return int(prio) }

	i := 0
	for ; i < len(c.waiters); i++ {
		if c.waiters[i].prio() < waiter.prio() {
			break
		}
	}
	c.waiters = append(c.waiters, nil)
	copy(c.waiters[i+1:], c.waiters[i:])
	c.waiters[i] = waiter

	lock.Release(cur)
	waiter.sema.Down(cur)
	lock.Acquire(cur)
}

// Signal wakes the highest-priority thread waiting on c, if any. lock must
// be held by the caller.
func (c *Cond) Signal(cur *sched.Thread, lock *Lock) {
	if c.sch.IntrContext() {
		panic("ksync: Signal called from interrupt context")
	}
	if !lock.HeldByCurrentThread(cur) {
		panic("ksync: Signal called without holding the lock")
	}
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.sema.Up(cur)
}

// Broadcast wakes every thread waiting on c. lock must be held by the
// caller.
func (c *Cond) Broadcast(cur *sched.Thread, lock *Lock) {
	for len(c.waiters) > 0 {
		c.Signal(cur, lock)
	}
}
