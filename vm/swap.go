package vm

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/kerrors"
)

// SwapTable is the bitmap-backed swap-slot allocator from spec.md section
// 4.6, grounded in swap.c. It owns one physical disk exclusively (the
// "swap disk"); file-backed pages write back to their own file-system
// disk instead (see SwapOut).
type SwapTable struct {
	mu   sync.Mutex
	disk Disk
	free []bool // true = clear (available)
	log  *zap.Logger
}

// NewSwapTable sizes the free-slot bitmap to disk's sector count, matching
// vm_swap_init's bitmap_create(disk_size(swap)).
func NewSwapTable(disk Disk, log *zap.Logger) *SwapTable {
	if log == nil {
		log = zap.NewNop()
	}
	n := disk.SectorCount()
	free := make([]bool, n)
	for i := range free {
		free[i] = true
	}
	return &SwapTable{disk: disk, free: free, log: log}
}

// allocSlot scans for kdefs.SlotSize consecutive clear bits, flips them
// set, and returns the starting sector, matching find_free_slot's
// bitmap_scan_and_flip.
func (st *SwapTable) allocSlot() (uint64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for start := 0; start+kdefs.SlotSize <= len(st.free); start++ {
		ok := true
		for j := 0; j < kdefs.SlotSize; j++ {
			if !st.free[start+j] {
				ok = false
				break
			}
		}
		if ok {
			for j := 0; j < kdefs.SlotSize; j++ {
				st.free[start+j] = false
			}
			return uint64(start), nil
		}
	}
	return 0, kerrors.ErrOutOfSwap
}

// FreeSlot clears sector's SlotSize-wide range if it refers to a real
// allocation, returning the Unallocated sentinel either way, matching
// vm_free_slot.
func (st *SwapTable) FreeSlot(sector kdefs.SectorRef) kdefs.SectorRef {
	if s, ok := sector.On(); ok {
		st.mu.Lock()
		for j := 0; j < kdefs.SlotSize; j++ {
			st.free[int(s)+j] = true
		}
		st.mu.Unlock()
	}
	return kdefs.UnallocatedSector
}

// SwapOut evicts spte's resident frame to disk. Grounded in vm_swap_page,
// with the section 9 bug fixed: the original's condition
// `sector == SECTOR_ERROR && sector == SECTOR_ZERO` is structurally
// impossible (no sector value satisfies both), and the fix the spec
// records is OR -- expressed here as "no slot yet assigned at all",
// since the tagged SectorRef collapses both sentinel cases into exactly
// that check. A page that already has an On() sector (a file-backed page
// revisiting its own file sector) keeps writing back to that same sector
// instead of allocating a fresh swap slot, which is what keeps file pages
// off the swap disk entirely, per spec.md section 4.6.
func (st *SwapTable) SwapOut(spte *SPTE, ft *FrameTable, pd PageDir) error {
	if spte.swap.Unallocated() || spte.swap.ZeroFill() {
		sector, err := st.allocSlot()
		if err != nil {
			return err
		}
		spte.swap = kdefs.OnSector(sector)
		spte.disk = st.disk
	}
	sector, _ := spte.swap.On()

	st.mu.Lock()
	frame := spte.frame
	if pd.IsDirty(spte.upage) {
		if err := writeFramePages(spte.disk, sector, frame); err != nil {
			st.mu.Unlock()
			return err
		}
		st.log.Debug("page written out", zap.Uintptr("upage", spte.upage), zap.Uint64("sector", sector))
	}
	spte.frame = nil
	st.mu.Unlock()
	ft.Free(frame)

	pd.ClearPage(spte.upage)
	return nil
}

// Load brings spte's contents into frame (already allocated by the
// caller). Grounded in vm_load_page, with the section 9 argument-order bug
// fixed: the original's `memset(kpage, PGSIZE, 0)` zeroes zero bytes with
// fill value PGSIZE; this zeroes the full page.
func (st *SwapTable) Load(spte *SPTE, frame *Frame, pd PageDir) error {
	st.mu.Lock()
	if sector, ok := spte.swap.On(); ok {
		if err := readFramePages(spte.disk, sector, frame); err != nil {
			st.mu.Unlock()
			return err
		}
		st.log.Debug("page read in", zap.Uintptr("upage", spte.upage), zap.Uint64("sector", sector))
	} else {
		for i := range frame.bytes {
			frame.bytes[i] = 0
		}
	}
	st.mu.Unlock()

	spte.frame = frame
	pd.SetPage(spte.upage, frame, true)
	return nil
}

func writeFramePages(disk Disk, sector uint64, frame *Frame) error {
	for off := 0; off < kdefs.SlotSize; off++ {
		chunk := frame.bytes[off*kdefs.SectorSize : (off+1)*kdefs.SectorSize]
		if err := disk.Write(sector+uint64(off), chunk); err != nil {
			return err
		}
	}
	return nil
}

func readFramePages(disk Disk, sector uint64, frame *Frame) error {
	for off := 0; off < kdefs.SlotSize; off++ {
		chunk := frame.bytes[off*kdefs.SectorSize : (off+1)*kdefs.SectorSize]
		if err := disk.Read(sector+uint64(off), chunk); err != nil {
			return err
		}
	}
	return nil
}
