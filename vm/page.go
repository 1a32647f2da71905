package vm

import (
	"sync"

	"github.com/justanotherdot/pintgo/kdefs"
)

// SPTE is the supplemental page table entry from spec.md section 4.7,
// grounded in vm.h's struct spte_t. upage is the page-aligned virtual
// address this entry covers.
type SPTE struct {
	upage   uintptr
	frame   *Frame
	swap    kdefs.SectorRef
	disk    Disk
	origin  Origin
	mmapped bool
	owner   *SPDE
}

// Upage returns the page-aligned virtual address this entry covers.
func (s *SPTE) Upage() uintptr { return s.upage }

// Frame returns the resident frame backing this entry, or nil if the page
// has no frame at the moment (swapped out, or never faulted in).
func (s *SPTE) Frame() *Frame { return s.frame }

// Resident reports whether the entry currently has a frame.
func (s *SPTE) Resident() bool { return s.frame != nil }

// SPDE is the supplemental page directory entry from spec.md section 4.7:
// one per address space, keyed in this implementation by the handle
// PagedirCreate returns rather than by a raw page-directory pointer (the
// C source's find_spde_by_pd linear scan collapses to direct handle
// passing in idiomatic Go -- see DESIGN.md).
type SPDE struct {
	pd      PageDir
	mu      sync.Mutex
	entries []*SPTE
}

func removeSPTE(entries []*SPTE, target *SPTE) []*SPTE {
	for i, e := range entries {
		if e == target {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
