package ksync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/ksync"
	"github.com/justanotherdot/pintgo/sched"
)

// TestNestedDonation is spec.md scenario S1: L (10) holds A; M (20) holds B
// then blocks on A; H (30) blocks on B. L's effective priority should rise
// to 30, and both locks' donated priority should record 30.
func TestNestedDonation(t *testing.T) {
	sch := sched.New(zap.NewNop())
	lockA := ksync.NewLock(sch, zap.NewNop())
	lockB := ksync.NewLock(sch, zap.NewNop())

	lAcquired := make(chan struct{})
	mHoldsB := make(chan struct{})
	hBlockedOnB := make(chan struct{})
	// L waits on a semaphore rather than a plain channel so the scheduler
	// sees it blocked and hands the CPU to M and H.
	releaseA := ksync.NewSemaphore(sch, 0, zap.NewNop())
	mDone := make(chan struct{})
	hDone := make(chan struct{})

	var lowThread *sched.Thread
	sch.Spawn("L", kdefs.Prio(10), func(l *sched.Thread) {
		lowThread = l
		lockA.Acquire(l)
		close(lAcquired)
		releaseA.Down(l)
		lockA.Release(l)
	})
	<-lAcquired

	sch.Spawn("M", kdefs.Prio(20), func(m *sched.Thread) {
		lockB.Acquire(m)
		close(mHoldsB)
		lockA.Acquire(m)
		lockA.Release(m)
		lockB.Release(m)
		close(mDone)
	})
	<-mHoldsB

	sch.Spawn("H", kdefs.Prio(30), func(h *sched.Thread) {
		close(hBlockedOnB)
		lockB.Acquire(h)
		lockB.Release(h)
		close(hDone)
	})
	<-hBlockedOnB

	require.Eventually(t, func() bool {
		return lowThread.Priority() == kdefs.Prio(30)
	}, time.Second, time.Millisecond, "L's priority should rise to H's via transitive donation")

	assert.Equal(t, kdefs.Prio(30), mustDonation(t, lockA))
	assert.Equal(t, kdefs.Prio(30), mustDonation(t, lockB))

	releaseA.Up(nil)
	awaitClosed(t, mDone)
	awaitClosed(t, hDone)

	require.Eventually(t, func() bool {
		return lowThread.Priority() == kdefs.Prio(10)
	}, time.Second, time.Millisecond, "L's priority should fall back to base once donors depart")
}

// TestReleaseCascade is spec.md scenario S2: after low releases the lock,
// high should unblock, acquire it, and run to completion; low's priority
// falls to its base once it holds no more donated-to locks.
func TestReleaseCascade(t *testing.T) {
	sch := sched.New(zap.NewNop())
	lock := ksync.NewLock(sch, zap.NewNop())

	var low *sched.Thread
	lAcquired := make(chan struct{})
	releaseLock := ksync.NewSemaphore(sch, 0, zap.NewNop())
	highAcquired := make(chan struct{})

	sch.Spawn("low", kdefs.Prio(10), func(l *sched.Thread) {
		low = l
		lock.Acquire(l)
		close(lAcquired)
		releaseLock.Down(l)
		lock.Release(l)
	})
	<-lAcquired

	sch.Spawn("high", kdefs.Prio(30), func(h *sched.Thread) {
		lock.Acquire(h)
		close(highAcquired)
		lock.Release(h)
	})

	require.Eventually(t, func() bool {
		return low.Priority() == kdefs.Prio(30)
	}, time.Second, time.Millisecond)

	releaseLock.Up(nil)
	awaitClosed(t, highAcquired)

	require.Eventually(t, func() bool {
		return low.Priority() == kdefs.Prio(10)
	}, time.Second, time.Millisecond)
}

func TestTryAcquireNeverBlocks(t *testing.T) {
	sch := sched.New(zap.NewNop())
	lock := ksync.NewLock(sch, zap.NewNop())

	done := make(chan struct{})
	sch.Spawn("a", kdefs.PriDefault, func(a *sched.Thread) {
		require.True(t, lock.TryAcquire(a))
		close(done)
	})
	<-done

	done2 := make(chan struct{})
	sch.Spawn("b", kdefs.PriDefault, func(b *sched.Thread) {
		assert.False(t, lock.TryAcquire(b))
		close(done2)
	})
	<-done2
}

func TestReentrantAcquirePanics(t *testing.T) {
	sch := sched.New(zap.NewNop())
	lock := ksync.NewLock(sch, zap.NewNop())
	done := make(chan struct{})
	sch.Spawn("t", kdefs.PriDefault, func(cur *sched.Thread) {
		lock.Acquire(cur)
		assert.Panics(t, func() { lock.Acquire(cur) })
		close(done)
	})
	<-done
}

func TestReleaseWithoutOwnershipPanics(t *testing.T) {
	sch := sched.New(zap.NewNop())
	lock := ksync.NewLock(sch, zap.NewNop())
	done := make(chan struct{})
	sch.Spawn("t", kdefs.PriDefault, func(cur *sched.Thread) {
		assert.Panics(t, func() { lock.Release(cur) })
		close(done)
	})
	<-done
}

func mustDonation(t *testing.T, l *ksync.Lock) kdefs.Prio {
	t.Helper()
	p, ok := l.DonatedPriority().Get()
	require.True(t, ok, "expected a recorded donation")
	return p
}

func awaitClosed(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for goroutine to finish")
	}
}
