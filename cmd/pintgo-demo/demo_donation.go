package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/ksync"
	"github.com/justanotherdot/pintgo/sched"
)

// donationCmd reproduces spec.md section 8's scenarios S1 (nested
// donation), S2 (release cascade), and S3 (condition-variable signal
// order) against the real scheduler and lock implementations.
func donationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "donation",
		Short: "Run the nested priority donation, release cascade, and condvar signal scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel(cmd)
			runDonationScenario(k.Sched)
			runCondScenario(k.Sched)
			return nil
		},
	}
}

// runDonationScenario is S1/S2: L (10) holds A; M (20) holds B then
// blocks on A; H (30) blocks on B. L's effective priority should rise to
// 30, and releasing A should immediately hand the CPU to M.
func runDonationScenario(sch *sched.Scheduler) {
	lockA := ksync.NewLock(sch, nil)
	lockB := ksync.NewLock(sch, nil)

	lAcquired := make(chan struct{})
	mHoldsB := make(chan struct{})
	hBlockedOnB := make(chan struct{})
	// L waits on a semaphore rather than a plain channel so the scheduler
	// sees it blocked and hands the CPU to M and H.
	releaseA := ksync.NewSemaphore(sch, 0, nil)
	var wg sync.WaitGroup
	wg.Add(3)

	sch.Spawn("L", kdefs.Prio(10), func(l *sched.Thread) {
		defer wg.Done()
		lockA.Acquire(l)
		close(lAcquired)
		releaseA.Down(l)
		lockA.Release(l)
		fmt.Printf("L released A; effective priority now %d (expected 10)\n", l.Priority())
	})
	<-lAcquired
	fmt.Println("L acquired lock A")

	sch.Spawn("M", kdefs.Prio(20), func(m *sched.Thread) {
		defer wg.Done()
		lockB.Acquire(m)
		close(mHoldsB)
		lockA.Acquire(m)
		fmt.Printf("M acquired A; priority %d\n", m.Priority())
		lockA.Release(m)
		lockB.Release(m)
	})
	<-mHoldsB

	sch.Spawn("H", kdefs.Prio(30), func(h *sched.Thread) {
		defer wg.Done()
		close(hBlockedOnB)
		lockB.Acquire(h)
		fmt.Println("H acquired B after M released it")
		lockB.Release(h)
	})
	<-hBlockedOnB

	fmt.Println("H blocks on B (held by M); donation should raise M to 30 and, transitively, L to 30")
	releaseA.Up(nil)
	wg.Wait()
}

// runCondScenario is S3: three threads with priorities 10, 30, 20 wait on
// a condition in that order; signal must wake them highest-priority
// first regardless of wait order.
func runCondScenario(sch *sched.Scheduler) {
	lock := ksync.NewLock(sch, nil)
	cond := ksync.NewCond(sch, nil)

	type waiter struct {
		name string
		prio kdefs.Prio
	}
	waiters := []waiter{{"low", 10}, {"high", 30}, {"mid", 20}}

	ready := make(chan struct{}, len(waiters))
	var order []string
	var orderMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(waiters))

	for _, w := range waiters {
		w := w
		sch.Spawn(w.name, w.prio, func(t *sched.Thread) {
			defer wg.Done()
			lock.Acquire(t)
			ready <- struct{}{}
			cond.Wait(t, lock)
			orderMu.Lock()
			order = append(order, fmt.Sprintf("%s(%d)", w.name, w.prio))
			orderMu.Unlock()
			lock.Release(t)
		})
	}
	for range waiters {
		<-ready
	}

	signalDone := make(chan struct{})
	sch.Spawn("signaler", kdefs.PriMax, func(t *sched.Thread) {
		defer close(signalDone)
		for i := 0; i < len(waiters); i++ {
			lock.Acquire(t)
			cond.Signal(t, lock)
			lock.Release(t)
		}
	})
	<-signalDone
	wg.Wait()

	fmt.Println("condition signal order (expected high, mid, low):", order)
}
