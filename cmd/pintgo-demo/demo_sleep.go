package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/sched"
)

// sleepCmd reproduces spec.md section 8's S4: alarms armed for 50, 10, 30
// ticks at tick 100 must fire in deadline order (110, 130, 150) as the
// clock is advanced, not in arming order.
func sleepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sleep",
		Short: "Run the alarm-ordering scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel(cmd)

			k.Clock.Advance(100)

			var mu sync.Mutex
			var woke []string
			var wg sync.WaitGroup
			durations := []struct {
				name string
				t    kdefs.Tick
			}{{"fifty", 50}, {"ten", 10}, {"thirty", 30}}

			armed := make(chan struct{}, len(durations))
			wg.Add(len(durations))
			for _, d := range durations {
				d := d
				k.Sched.Spawn(d.name, kdefs.PriDefault, func(t *sched.Thread) {
					defer wg.Done()
					armed <- struct{}{}
					k.Alarms.Sleep(t, d.t)
					mu.Lock()
					woke = append(woke, fmt.Sprintf("%s at tick %d", d.name, k.Clock.Now()))
					mu.Unlock()
				})
			}
			for range durations {
				<-armed
			}

			for _, target := range []kdefs.Tick{110, 130, 150} {
				for k.Clock.Now() < target {
					k.Tick()
				}
				k.Tick()
			}

			wg.Wait()
			fmt.Println("wake order (expected ten, thirty, fifty):")
			for _, w := range woke {
				fmt.Println(" ", w)
			}
			return nil
		},
	}
}
