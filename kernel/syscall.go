package kernel

import (
	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/kerrors"
	"github.com/justanotherdot/pintgo/sched"
	"github.com/justanotherdot/pintgo/vm"
)

// Syscall is the numeric-code wire contract preserved at the interrupt
// boundary, grounded in userprog/syscall.c's SYS_* enum and its
// syscall_vec[SYS_X] = (handler)sys_x function-pointer dispatch table
// (spec.md section 9's design note: keep the numeric contract at the
// boundary, replace the cast-laden table with a tagged enum dispatched
// through a switch/map).
type Syscall int

const (
	SysMmap Syscall = iota
	SysMunmap
	SysSleepTicks
)

// Process is the minimal per-address-space context a syscall handler
// needs: its SPDE handle, its thread, and a small open-file table keyed
// by the file descriptors the demo hands out. A full process table (pid,
// exit status, exec/fork) is userprog/process.c material spec.md's
// Non-goals exclude; this is a thin demonstration surface only, per
// SPEC_FULL.md Supplemental Feature 5.
type Process struct {
	SPDE   *vm.SPDE
	Thread *sched.Thread
	Files  map[uintptr]vm.File
}

// SyscallHandler has the uniform 3-argument signature syscall.c's
// handler typedef requires, adapted to return a value-or-error pair
// instead of casting every handler to a common function-pointer type.
type SyscallHandler func(k *Kernel, proc *Process, args [3]uintptr) (uintptr, error)

// SyscallTable is the fixed dispatch map from Syscall to handler.
var SyscallTable = map[Syscall]SyscallHandler{
	SysMmap:       sysMmap,
	SysMunmap:     sysMunmap,
	SysSleepTicks: sysSleepTicks,
}

// sysMmap expects args = {fd, vaddr, unused}. Returns MAPID_ERROR's
// uintptr encoding on failure, matching the -1 wire convention
// MAPID_ERROR and open-class syscalls share per spec.md section 7.
func sysMmap(k *Kernel, proc *Process, args [3]uintptr) (uintptr, error) {
	errID := kdefs.MapIDError
	file, ok := proc.Files[args[0]]
	if !ok {
		return uintptr(errID), kerrors.ErrNotFound
	}
	id, err := k.VM.Mmap(proc.SPDE, file, args[1])
	if err != nil {
		return uintptr(errID), err
	}
	return uintptr(id), nil
}

func sysMunmap(k *Kernel, proc *Process, args [3]uintptr) (uintptr, error) {
	if err := k.VM.Munmap(kdefs.MapID(args[0])); err != nil {
		return 0, err
	}
	return 0, nil
}

func sysSleepTicks(k *Kernel, proc *Process, args [3]uintptr) (uintptr, error) {
	k.Alarms.Sleep(proc.Thread, kdefs.Tick(args[0]))
	return 0, nil
}
