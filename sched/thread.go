package sched

import "github.com/justanotherdot/pintgo/kdefs"

// Status mirrors the four thread states spec.md section 3 requires a
// thread to expose: running, ready, blocked, dying.
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusBlocked
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	default:
		return "unknown"
	}
}

// LockRef is the borrowed, non-owning reference a Thread holds to the lock
// it is blocked on, and the reference the donation walk in Lock.Acquire
// follows across a chain of blocked waiters. Concrete locks (ksync.Lock)
// implement this; sched never imports ksync, breaking what would otherwise
// be an import cycle -- exactly the "interface abstraction" spec.md
// section 9's Design Notes call for in place of a raw C pointer back into
// the lock that owns a blocked thread.
type LockRef interface {
	// Holder returns the thread currently holding the lock, or nil.
	Holder() *Thread
	// DonatedPriority returns the lock's currently recorded donation.
	DonatedPriority() kdefs.Donation
	// RaiseDonation records that some waiter of priority prio wants this
	// lock, raising the lock's donated priority if prio is higher.
	RaiseDonation(prio kdefs.Prio)
}

// Alarm is the one-shot wakeup record described in spec.md section 3.
// Its storage lives inside the Thread it belongs to, reused across sleeps,
// matching the C source's "struct alarm" embedded directly in "struct
// thread".
type Alarm struct {
	WakeTick kdefs.Tick
	Armed    bool
}

// Thread is the external collaborator spec.md section 3 requires: current
// effective priority, base priority, status, a donated flag, a
// blocked-on-lock back-pointer, and its list of held locks.
type Thread struct {
	id       int
	name     string
	basePrio kdefs.Prio
	prio     kdefs.Prio
	status   Status
	donated  bool

	blockedOn LockRef
	held      []LockRef

	alarm Alarm

	wakeCh chan struct{}
}

func newThread(id int, name string, prio kdefs.Prio) *Thread {
	return &Thread{
		id:       id,
		name:     name,
		basePrio: prio,
		prio:     prio,
		status:   StatusReady,
		wakeCh:   make(chan struct{}, 1),
	}
}

func (t *Thread) ID() int              { return t.id }
func (t *Thread) Name() string         { return t.name }
func (t *Thread) Priority() kdefs.Prio { return t.prio }
func (t *Thread) BasePriority() kdefs.Prio {
	return t.basePrio
}
func (t *Thread) Status() Status    { return t.status }
func (t *Thread) Donated() bool     { return t.donated }
func (t *Thread) BlockedOn() LockRef { return t.blockedOn }

// Alarm exposes the thread's reused alarm record to the timer package.
func (t *Thread) Alarm() *Alarm { return &t.alarm }

// HeldLocks returns the locks currently held by this thread, in the order
// they were inserted (spec.md section 4.3 wants descending donated-priority
// order; callers that care use InsertHeldLockOrdered).
func (t *Thread) HeldLocks() []LockRef { return t.held }

// SetBlockedOn records the lock this thread is attempting to acquire (or
// nil once acquired/abandoned). Callers must hold the scheduler's
// interrupt-disabled region.
func (t *Thread) SetBlockedOn(l LockRef) { t.blockedOn = l }

// AppendHeldLock appends l to the held-locks list unconditionally, the
// semantics lock_try_acquire uses since no donation walk happened to
// establish ordering (spec.md section 4.3).
func (t *Thread) AppendHeldLock(l LockRef) { t.held = append(t.held, l) }

// InsertHeldLockOrdered inserts l keeping the list sorted by descending
// DonatedPriority, matching spec.md section 4.3's acquire-time contract.
func (t *Thread) InsertHeldLockOrdered(l LockRef) {
	d, _ := l.DonatedPriority().Get()
	i := 0
	for ; i < len(t.held); i++ {
		hd, _ := t.held[i].DonatedPriority().Get()
		if hd < d {
			break
		}
	}
	t.held = append(t.held, nil)
	copy(t.held[i+1:], t.held[i:])
	t.held[i] = l
}

// RemoveHeldLock removes l from the held-locks list.
func (t *Thread) RemoveHeldLock(l LockRef) {
	for i, hl := range t.held {
		if hl == l {
			t.held = append(t.held[:i], t.held[i+1:]...)
			return
		}
	}
}

func (t *Thread) setDonated(v bool)          { t.donated = v }
func (t *Thread) setPrio(p kdefs.Prio)       { t.prio = p }
func (t *Thread) setBasePrio(p kdefs.Prio)   { t.basePrio = p }
