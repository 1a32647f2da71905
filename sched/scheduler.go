// Package sched implements the single-CPU, strict-priority thread model
// spec.md section 5 describes: one logical thread is "running" at a time,
// everything else is ready or blocked, and "atomic" means "interrupts
// disabled". There is no real preemption timer in this simulation --
// spec.md's Non-goals explicitly exclude fair scheduling beyond strict
// priority plus round-robin at equal priority, and SMP, so a single mutex
// standing in for "interrupts disabled on the one CPU" (exactly what
// Biscuit's runtime.Pushcli/Popcli pair does on real hardware in
// kernel/main.go's ap_entry) is sufficient.
package sched

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
)

// IntrLevel is the opaque token intr_disable returns and intr_set_level
// consumes, exactly mirroring the external interface spec.md section 6
// requires.
type IntrLevel struct{ wasOff bool }

// Scheduler is the process-wide singleton described in spec.md section 9:
// initialized at boot, never torn down. rawMu is the only real
// synchronization primitive in the package; it is held only across bounded
// bookkeeping mutations, never across a channel wait, so it can never
// deadlock against itself even when Disable/SetLevel nest (which
// lock_acquire's call into sema_down does routinely).
type Scheduler struct {
	rawMu sync.Mutex

	intrOff    bool
	inIntr     bool
	nextID     int
	current    *Thread
	readyQ     []*Thread
	threads    map[int]*Thread

	log *zap.Logger
}

// New constructs an idle scheduler. log may be zap.NewNop() in tests.
func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		threads: make(map[int]*Thread),
		log:     log,
	}
}

// Spawn creates a new thread at the given base priority and starts running
// fn on a dedicated goroutine once the scheduler picks it up. fn receives
// the Thread it is running as, standing in for thread_current() -- see
// DESIGN.md for why this core passes the current thread explicitly rather
// than reaching for goroutine-local storage.
func (s *Scheduler) Spawn(name string, prio kdefs.Prio, fn func(t *Thread)) *Thread {
	s.rawMu.Lock()
	s.nextID++
	t := newThread(s.nextID, name, prio.Clamp())
	s.threads[t.id] = t
	s.readyQ = append(s.readyQ, t)
	if s.current == nil {
		s.resched()
	}
	s.rawMu.Unlock()

	go func() {
		<-t.wakeCh
		fn(t)
		s.rawMu.Lock()
		t.status = StatusDying
		if s.current == t {
			s.resched()
		}
		delete(s.threads, t.id)
		s.rawMu.Unlock()
	}()
	return t
}

// Disable simulates intr_disable(): it is cheap and idempotent, matching
// real hardware's flag-flip semantics rather than a blocking lock
// acquisition, so nesting Disable/SetLevel pairs from the same logical
// flow of control (acquire's donation walk calling into sema_down, which
// disables again) never deadlocks.
func (s *Scheduler) Disable() IntrLevel {
	s.rawMu.Lock()
	old := s.intrOff
	s.intrOff = true
	s.rawMu.Unlock()
	return IntrLevel{wasOff: old}
}

// SetLevel restores the interrupt level intr_disable's caller observed
// before it disabled interrupts.
func (s *Scheduler) SetLevel(l IntrLevel) {
	s.rawMu.Lock()
	s.intrOff = l.wasOff
	s.rawMu.Unlock()
}

// IntrContext reports whether the scheduler is currently executing an
// interrupt handler (i.e. inside Tick's alarm sweep). sema_down, lock_*,
// and cond_* consult this to refuse interrupt-context invocation per
// spec.md section 5.
func (s *Scheduler) IntrContext() bool {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	return s.inIntr
}

// EnterIntrContext and LeaveIntrContext bracket the tick handler's alarm
// sweep; only the timer package calls these.
func (s *Scheduler) EnterIntrContext() { s.rawMu.Lock(); s.inIntr = true; s.rawMu.Unlock() }
func (s *Scheduler) LeaveIntrContext() { s.rawMu.Lock(); s.inIntr = false; s.rawMu.Unlock() }

// resched picks the highest-priority ready thread (ties broken FIFO) and
// hands it the CPU. Callers must hold rawMu.
func (s *Scheduler) resched() {
	if len(s.readyQ) == 0 {
		s.current = nil
		return
	}
	best := 0
	for i := 1; i < len(s.readyQ); i++ {
		if s.readyQ[i].prio > s.readyQ[best].prio {
			best = i
		}
	}
	next := s.readyQ[best]
	s.readyQ = append(s.readyQ[:best], s.readyQ[best+1:]...)
	next.status = StatusRunning
	s.current = next
	next.wakeCh <- struct{}{}
}

// hasHigherReady reports whether some ready thread outranks prio. Callers
// must hold rawMu.
func (s *Scheduler) hasHigherReady(prio kdefs.Prio) bool {
	for _, rt := range s.readyQ {
		if rt.prio > prio {
			return true
		}
	}
	return false
}

// Block transitions cur from running to blocked and parks its goroutine
// until some other code calls Unblock(cur). The caller must not be in
// interrupt context (spec.md section 5's suspension-point rule); callers
// are expected to already hold interrupts disabled, matching sema_down's
// contract.
func (s *Scheduler) Block(cur *Thread) {
	s.rawMu.Lock()
	cur.status = StatusBlocked
	if s.current == cur {
		s.resched()
	}
	s.rawMu.Unlock()
	<-cur.wakeCh
}

// Unblock makes t runnable again. Safe to call from interrupt context
// (spec.md section 4.2/4.1): the alarm sweep and sema_up both rely on
// this.
func (s *Scheduler) Unblock(t *Thread) {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	if t.status != StatusBlocked {
		return
	}
	t.status = StatusReady
	s.readyQ = append(s.readyQ, t)
	if s.current == nil {
		s.resched()
	}
}

// YieldHead puts cur back at the head of the ready queue and reschedules,
// the mechanism sema_up (spec.md section 4.2) uses to immediately hand the
// CPU to a higher-priority thread it just woke, without cur losing its
// place once it is runnable again.
func (s *Scheduler) YieldHead(cur *Thread) {
	s.rawMu.Lock()
	cur.status = StatusReady
	s.readyQ = append([]*Thread{cur}, s.readyQ...)
	if s.current == cur {
		s.resched()
	}
	s.rawMu.Unlock()
	<-cur.wakeCh
}

// SetPriorityOther raises or lowers some other thread's effective
// priority directly, the primitive the donation walk in lock_acquire uses
// (spec.md section 6's thread_set_priority_other). refresh is accepted for
// interface fidelity with the external primitive list; this scheduler
// always re-scans the ready queue for the maximum priority on every
// reschedule, so no separate ready-queue resort is needed.
func (s *Scheduler) SetPriorityOther(t *Thread, prio kdefs.Prio, refresh bool) {
	_ = refresh
	s.rawMu.Lock()
	t.setPrio(prio.Clamp())
	s.rawMu.Unlock()
}

// SetDonated flips a thread's donated flag; exported for the lock package.
func (s *Scheduler) SetDonated(t *Thread, v bool) {
	s.rawMu.Lock()
	t.setDonated(v)
	s.rawMu.Unlock()
}

// SetPriority sets the calling thread's own base priority -- the primitive
// behind thread_set_priority, used to restore a thread to its base once
// every lock it donated for has been released. It yields immediately if a
// now-higher-priority thread is ready, matching Pintos's own
// priority-donation project semantics.
func (s *Scheduler) SetPriority(cur *Thread, prio kdefs.Prio) {
	prio = prio.Clamp()
	s.rawMu.Lock()
	cur.setBasePrio(prio)
	if !cur.donated {
		cur.setPrio(prio)
	}
	shouldYield := s.hasHigherReady(cur.prio)
	s.rawMu.Unlock()
	if shouldYield {
		s.YieldHead(cur)
	}
}

// CurrentForTest is a convenience accessor for tests; it is not part of
// the synchronization primitives' contract (which pass the acting thread
// explicitly -- see DESIGN.md).
func (s *Scheduler) CurrentForTest() *Thread {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	return s.current
}

// ReadyLen reports the number of runnable-but-not-running threads, useful
// for tests asserting a scenario has quiesced.
func (s *Scheduler) ReadyLen() int {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	return len(s.readyQ)
}

// ThreadStatus reports a thread's current status, safe to call from any
// goroutine.
func (s *Scheduler) ThreadStatus(t *Thread) Status {
	s.rawMu.Lock()
	defer s.rawMu.Unlock()
	return t.status
}
