// Package timer implements the tick source and one-shot alarm queue
// spec.md section 3 describes, grounded in original_source/threads/alarm.c
// and alarm.h. now_ticks() there is itself an external collaborator
// (timer_ticks(), driven by the PIT/APIC interrupt spec.md's Non-goals
// exclude); TickSource stands in for it.
package timer

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/sched"
)

// TickSource is the monotonic clock external collaborator spec.md section 6
// names as now_ticks(). Production code advances it from a real interrupt
// source; tests call Advance directly.
type TickSource struct {
	mu  sync.Mutex
	now kdefs.Tick
}

// NewTickSource starts a clock at tick 0, matching alarm_init's
// prev_ticks = timer_ticks() at boot.
func NewTickSource() *TickSource {
	return &TickSource{}
}

// Now returns the current tick count.
func (ts *TickSource) Now() kdefs.Tick {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.now
}

// Advance moves the clock forward by n ticks and returns the new value.
// Callers drive AlarmQueue.Sweep after advancing, mirroring the real timer
// interrupt handler calling alarm_check() once per tick.
func (ts *TickSource) Advance(n kdefs.Tick) kdefs.Tick {
	ts.mu.Lock()
	ts.now += n
	v := ts.now
	ts.mu.Unlock()
	return v
}

// AlarmQueue is the sleep queue described in spec.md section 3: a flat list
// of armed alarms, one per thread (a thread's Alarm record is reused across
// sleeps, exactly as alrm->thrd in alarm.c is embedded in struct thread
// rather than heap-allocated per call).
type AlarmQueue struct {
	mu     sync.Mutex
	waking []*sched.Thread

	clock *TickSource
	sched *sched.Scheduler
	log   *zap.Logger
}

// NewAlarmQueue constructs an empty alarm queue bound to clock and sch.
func NewAlarmQueue(clock *TickSource, sch *sched.Scheduler, log *zap.Logger) *AlarmQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlarmQueue{clock: clock, sched: sch, log: log}
}

// Sleep arms cur's alarm for t ticks from now and blocks it, matching
// set_alarm: a zero-tick sleep is a no-op (alarm.c's "if (t == 0) return;"),
// and the caller must already be the running thread (spec.md's suspension
// point rule -- Sleep may only be called from thread context, never from
// inside Sweep).
func (q *AlarmQueue) Sleep(cur *sched.Thread, t kdefs.Tick) {
	if t == 0 {
		return
	}
	if q.sched.IntrContext() {
		panic("timer: Sleep called from interrupt context")
	}
	old := q.sched.Disable()
	defer q.sched.SetLevel(old)

	wake := q.clock.Now() + t
	a := cur.Alarm()
	a.WakeTick = wake
	a.Armed = true

	q.mu.Lock()
	q.waking = append(q.waking, cur)
	q.mu.Unlock()

	q.log.Debug("alarm armed", zap.Int("thread", cur.ID()), zap.Uint64("wake_tick", uint64(wake)))

	q.sched.Block(cur)
}

// dismiss disarms alrm and unblocks its thread. Grounded in dismiss_alarm;
// unlike the original it does not also remove the element from the queue
// itself -- that's Sweep's job, and doing it in both places is exactly the
// double-remove bug spec.md section 9 flags. Callers must hold q.mu is NOT
// required here: scheduler unblock has its own locking, and the queue slice
// removal happens once, in Sweep, under q.mu.
func (q *AlarmQueue) dismiss(t *sched.Thread) {
	t.Alarm().Armed = false
	q.sched.Unblock(t)
}

// Sweep is called once per tick from interrupt context (the timer
// interrupt handler, matching alarm_check's caller). It wakes every thread
// whose alarm has expired, removing each exactly once.
func (q *AlarmQueue) Sweep() {
	q.sched.EnterIntrContext()
	defer q.sched.LeaveIntrContext()

	now := q.clock.Now()

	q.mu.Lock()
	remaining := q.waking[:0]
	var expired []*sched.Thread
	for _, t := range q.waking {
		if t.Alarm().Armed && t.Alarm().WakeTick <= now {
			expired = append(expired, t)
			continue
		}
		remaining = append(remaining, t)
	}
	q.waking = remaining
	q.mu.Unlock()

	for _, t := range expired {
		q.dismiss(t)
		q.log.Debug("alarm fired", zap.Int("thread", t.ID()), zap.Uint64("tick", uint64(now)))
	}
}

// Pending reports how many alarms are currently armed, useful for tests
// asserting a scenario's sleep set has fully drained.
func (q *AlarmQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waking)
}
