package sched_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/sched"
)

func TestSpawnRunsAndFinishes(t *testing.T) {
	sch := sched.New(zap.NewNop())
	done := make(chan struct{})
	sch.Spawn("only", kdefs.PriDefault, func(t *sched.Thread) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread never ran")
	}
}

// TestReschedPicksHighestPriority spawns a low-priority thread that parks on
// a plain Go channel (not Block, so the scheduler still considers it
// "running"), then spawns a higher-priority thread while the low one is
// still parked. High goes to the ready queue since it can't preempt a
// non-blocked current thread; once low finishes and the scheduler
// reschedules, high should be the next (and only remaining) thread run.
func TestReschedPicksHighestPriority(t *testing.T) {
	sch := sched.New(zap.NewNop())

	var order []string
	var wg sync.WaitGroup
	wg.Add(2)

	started := make(chan struct{})
	release := make(chan struct{})

	sch.Spawn("low", kdefs.Prio(10), func(cur *sched.Thread) {
		defer wg.Done()
		close(started)
		<-release
		order = append(order, "low")
	})
	<-started

	sch.Spawn("high", kdefs.Prio(40), func(cur *sched.Thread) {
		defer wg.Done()
		order = append(order, "high")
	})

	close(release)
	wg.Wait()

	require.Len(t, order, 2)
	assert.Equal(t, []string{"low", "high"}, order)
}

func TestBlockUnblock(t *testing.T) {
	sch := sched.New(zap.NewNop())

	blocked := make(chan *sched.Thread, 1)
	resumed := make(chan struct{})
	sch.Spawn("waiter", kdefs.PriDefault, func(t *sched.Thread) {
		blocked <- t
		sch.Block(t)
		close(resumed)
	})

	waiter := <-blocked
	require.Eventually(t, func() bool {
		return sch.ThreadStatus(waiter) == sched.StatusBlocked
	}, time.Second, time.Millisecond)

	sch.Unblock(waiter)
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("unblocked thread never resumed")
	}
}

func TestSetPriorityRestoresBaseWhenNotDonated(t *testing.T) {
	sch := sched.New(zap.NewNop())
	done := make(chan struct{})
	var observed kdefs.Prio
	sch.Spawn("t", kdefs.Prio(10), func(t *sched.Thread) {
		sch.SetPriority(t, kdefs.Prio(20))
		observed = t.Priority()
		close(done)
	})
	<-done
	assert.Equal(t, kdefs.Prio(20), observed)
}
