// Package kernel is the boot facade tying the scheduler, alarm queue, and
// virtual-memory core together, replacing Biscuit's kernel/main.go boot
// sequence (x86 APIC/IOAPIC bring-up, MP startup-IPI, IDE/keyboard
// interrupt stubs) with the pieces spec.md actually specifies -- none of
// that hardware bring-up is adaptable into any of this module's
// components (see DESIGN.md).
package kernel

import (
	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/sched"
	"github.com/justanotherdot/pintgo/timer"
	"github.com/justanotherdot/pintgo/vm"
)

// Config collects the tunables the original hard-codes as C macros,
// loaded from flags/env/config file by cmd/pintgo-demo via viper.
type Config struct {
	PriMin     kdefs.Prio
	PriDefault kdefs.Prio
	PriMax     kdefs.Prio
}

// DefaultConfig matches spec.md section 6's constants exactly.
func DefaultConfig() Config {
	return Config{
		PriMin:     kdefs.PriMin,
		PriDefault: kdefs.PriDefault,
		PriMax:     kdefs.PriMax,
	}
}

// Kernel is the process-wide facade booted once and never torn down,
// matching spec.md section 9's "process-wide singletons with fixed
// lifetime" note.
type Kernel struct {
	Config Config
	Sched  *sched.Scheduler
	Clock  *timer.TickSource
	Alarms *timer.AlarmQueue
	VM     *vm.Core

	log *zap.Logger
}

// Boot constructs and wires every subsystem in the dependency order
// original_source/threads/init.c establishes (thread_init before
// timer_init before the VM subsystems, since threads must exist before
// anything can block on an alarm or fault a page in): scheduler, then
// alarm queue, then the frame table, swap table, page-directory registry,
// and mmap manager (vm.Core bundles the latter four, matching vm_init's
// own internal ordering of vm_frame_init/vm_page_init/vm_swap_init/
// vm_mmap_init).
func Boot(cfg Config, fsDisk, swapDisk vm.Disk, log *zap.Logger) *Kernel {
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("booting scheduler")
	sch := sched.New(log)

	log.Info("booting alarm queue")
	clock := timer.NewTickSource()
	alarms := timer.NewAlarmQueue(clock, sch, log)

	log.Info("booting virtual memory core")
	core := vm.NewCore(fsDisk, swapDisk, log)

	return &Kernel{
		Config: cfg,
		Sched:  sch,
		Clock:  clock,
		Alarms: alarms,
		VM:     core,
		log:    log,
	}
}

// Tick advances the kernel's clock by one tick and runs the alarm sweep,
// the work a real timer interrupt handler performs each tick.
func (k *Kernel) Tick() {
	k.Clock.Advance(1)
	k.Alarms.Sweep()
}
