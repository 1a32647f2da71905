package ksync

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/sched"
)

// Lock is a specialization of a Semaphore with an initial value of 1 plus
// an owner and priority-donation bookkeeping, grounded in synch.c's struct
// lock. It implements sched.LockRef so the scheduler's donation walk can
// follow a chain of blocked-on-lock references without sched importing
// ksync.
type Lock struct {
	mu      sync.Mutex
	holder  *sched.Thread
	donated kdefs.Donation

	sema *Semaphore
	sch  *sched.Scheduler
	log  *zap.Logger
}

// NewLock constructs an unheld lock.
func NewLock(sch *sched.Scheduler, log *zap.Logger) *Lock {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lock{
		donated: kdefs.NoneDonated,
		sema:    NewSemaphore(sch, 1, log),
		sch:     sch,
		log:     log,
	}
}

// Holder implements sched.LockRef.
func (l *Lock) Holder() *sched.Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// DonatedPriority implements sched.LockRef.
func (l *Lock) DonatedPriority() kdefs.Donation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.donated
}

// RaiseDonation implements sched.LockRef.
func (l *Lock) RaiseDonation(prio kdefs.Prio) {
	l.mu.Lock()
	l.donated = l.donated.Raise(prio)
	l.mu.Unlock()
}

// HeldByCurrentThread reports whether cur currently holds l, the check
// lock_held_by_current_thread performs.
func (l *Lock) HeldByCurrentThread(cur *sched.Thread) bool {
	return l.Holder() == cur
}

// Acquire blocks cur until l becomes available, donating cur's priority
// transitively across any chain of locks the current holder (and its own
// blocker, and so on) is waiting on. Grounded in lock_acquire's donation
// walk: at each link, if the holder's priority is lower than cur's, raise
// the holder's effective priority and record the donation on the lock
// being waited on, then follow that holder's own blocked-on reference (if
// it too is blocked) to continue the walk; stop as soon as a link isn't
// blocked on anything.
func (l *Lock) Acquire(cur *sched.Thread) {
	if l.sch.IntrContext() {
		panic("ksync: Acquire called from interrupt context")
	}
	if l.HeldByCurrentThread(cur) {
		panic("ksync: Acquire called by thread already holding the lock")
	}
	old := l.sch.Disable()
	defer l.sch.SetLevel(old)

	cur.SetBlockedOn(l)

	var chain sched.LockRef = l
	thrd := l.Holder()
	for thrd != nil && thrd.Priority() < cur.Priority() {
		l.sch.SetDonated(thrd, true)
		l.sch.SetPriorityOther(thrd, cur.Priority(), false)
		chain.RaiseDonation(cur.Priority())
		l.log.Info("priority donated", zap.Int("donor", cur.ID()), zap.Int("holder", thrd.ID()), zap.Int("priority", int(cur.Priority())))

		if l.sch.ThreadStatus(thrd) == sched.StatusBlocked && thrd.BlockedOn() != nil {
			chain = thrd.BlockedOn()
			thrd = chain.Holder()
		} else {
			break
		}
	}

	l.sema.Down(cur)

	l.mu.Lock()
	l.holder = cur
	l.mu.Unlock()

	cur.SetBlockedOn(nil)
	cur.InsertHeldLockOrdered(l)
}

// TryAcquire acquires l without blocking if it is free. No donation walk
// is needed since nothing blocked.
func (l *Lock) TryAcquire(cur *sched.Thread) bool {
	if l.HeldByCurrentThread(cur) {
		panic("ksync: TryAcquire called by thread already holding the lock")
	}
	if !l.sema.TryDown() {
		return false
	}
	l.mu.Lock()
	l.holder = cur
	l.mu.Unlock()
	cur.AppendHeldLock(l)
	return true
}

// Release releases l, which must be held by cur, and restores cur's
// priority. Grounded in lock_release, with the REDESIGN SPEC_FULL.md
// records: instead of inspecting an arbitrary position in cur's held-lock
// list (the C source's ambiguous list_back read), this recomputes cur's
// post-release priority from the maximum DonatedPriority across every
// lock cur still holds, which is the only interpretation consistent with
// "no inversion observable while a lock is held".
func (l *Lock) Release(cur *sched.Thread) {
	if cur.BlockedOn() != nil {
		panic("ksync: Release called while thread is itself blocked on a lock")
	}
	if !l.HeldByCurrentThread(cur) {
		panic("ksync: Release called by thread that does not hold the lock")
	}

	l.mu.Lock()
	l.holder = nil
	l.mu.Unlock()

	l.sema.Up(cur)

	cur.RemoveHeldLock(l)
	l.mu.Lock()
	l.donated = kdefs.NoneDonated
	l.mu.Unlock()

	remaining := cur.HeldLocks()
	if len(remaining) == 0 {
		l.sch.SetDonated(cur, false)
		l.sch.SetPriority(cur, cur.BasePriority())
		return
	}

	maxDonated := kdefs.NoDonation
	any := false
	for _, held := range remaining {
		if p, ok := held.DonatedPriority().Get(); ok {
			any = true
			if p > maxDonated {
				maxDonated = p
			}
		}
	}
	if any {
		l.sch.SetPriorityOther(cur, maxDonated, false)
	} else {
		l.sch.SetDonated(cur, false)
		l.sch.SetPriority(cur, cur.BasePriority())
	}
}
