package vm

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/kerrors"
)

// Core is the process-wide virtual-memory singleton spec.md section 9
// describes: the frame table, swap table, pagedirs list, and mmap manager
// are module-level state with fixed lifetime, initialized at boot and
// never torn down. Grounded in vm.c's vm_init, which wires the four
// subsystems together in this same order.
//
// Locking order follows spec.md section 5 exactly: pagelock (mu) ->
// spde.mutex -> frame table's internal lock -> swap table's internal
// lock. No method here acquires spde.mu while already holding another
// SPDE's mu, and no method acquires mu while holding an spde.mu.
type Core struct {
	mu     sync.Mutex // "pagelock": guards the spdes registry only
	spdes  []*SPDE
	frames *FrameTable
	swap   *SwapTable
	mmap   *mmapManager
	fsDisk Disk
	log    *zap.Logger

	residentMu  sync.Mutex
	resident    []*SPTE
	evictCursor int
}

// NewCore wires the subsystems together: frame table, swap table (backed
// by swapDisk), and mmap manager (backed by fsDisk for file reads and
// dirty file-page writeback). fsDisk and swapDisk may be the same Disk in
// a minimal demo, mirroring how Biscuit's own disk abstraction can back
// both roles.
func NewCore(fsDisk, swapDisk Disk, log *zap.Logger) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	return &Core{
		frames: NewFrameTable(log),
		swap:   NewSwapTable(swapDisk, log),
		mmap:   newMmapManager(log),
		fsDisk: fsDisk,
		log:    log,
	}
}

// PagedirCreate registers a new address space and returns its SPDE
// handle, matching vm_pagedir_create.
func (c *Core) PagedirCreate(pd PageDir) *SPDE {
	spde := &SPDE{pd: pd}
	c.mu.Lock()
	c.spdes = append(c.spdes, spde)
	c.mu.Unlock()
	return spde
}

// PagedirDestroy tears down spde and every SPTE it owns, matching
// vm_pagedir_destroy's pop-back teardown loop.
func (c *Core) PagedirDestroy(spde *SPDE) {
	c.mu.Lock()
	for i, s := range c.spdes {
		if s == spde {
			c.spdes = append(c.spdes[:i], c.spdes[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	spde.mu.Lock()
	entries := append([]*SPTE(nil), spde.entries...)
	spde.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		c.PageDestroy(entries[i])
	}
}

// PageCreate allocates an SPTE in spde at upage. If sector is the
// ZeroFill sentinel the page materializes lazily on first LoadPage call
// (spec.md section 4.7); otherwise a frame is allocated (evicting a
// victim if the frame table is full) and installed immediately.
func (c *Core) PageCreate(spde *SPDE, upage uintptr, origin Origin, disk Disk, sector kdefs.SectorRef) (*SPTE, error) {
	spde.mu.Lock()
	defer spde.mu.Unlock()

	spte := &SPTE{upage: upage, owner: spde, origin: origin, disk: disk, swap: sector}

	if sector.ZeroFill() {
		spde.entries = append(spde.entries, spte)
		return spte, nil
	}

	frame, err := c.allocFrameOrEvict()
	if err != nil {
		return nil, kerrors.Wrap(err, "vm: page create")
	}
	if !spde.pd.SetPage(upage, frame, true) {
		c.frames.Free(frame)
		return nil, kerrors.Wrap(kerrors.ErrOutOfMemory, "vm: install page mapping")
	}
	spte.frame = frame
	spde.entries = append(spde.entries, spte)
	c.markResident(spte)
	return spte, nil
}

// PageDestroy clears spte's mapping, detaches it from its SPDE and any
// mmap region, writes back a dirty file-backed page, and releases its
// frame and swap slot, matching vm_page_destroy.
func (c *Core) PageDestroy(spte *SPTE) {
	spde := spte.owner

	spde.mu.Lock()
	if spte.mmapped && spte.frame != nil && spde.pd.IsDirty(spte.upage) {
		if sector, ok := spte.swap.On(); ok {
			_ = writeFramePages(spte.disk, sector, spte.frame)
		}
	}
	spde.pd.ClearPage(spte.upage)
	spde.entries = removeSPTE(spde.entries, spte)
	spde.mu.Unlock()

	if spte.mmapped {
		c.mmap.removePage(spte)
	}
	if spte.frame != nil {
		c.frames.Free(spte.frame)
		c.unmarkResident(spte)
		spte.frame = nil
	}
	spte.swap = c.swap.FreeSlot(spte.swap)
}

// FindByVaddr rounds vaddr down to its page boundary and linear-scans
// spde's entries, matching vm_page_find_by_vaddr.
func (c *Core) FindByVaddr(spde *SPDE, vaddr uintptr) (*SPTE, error) {
	upage := pageRoundDown(vaddr)

	spde.mu.Lock()
	defer spde.mu.Unlock()
	for _, e := range spde.entries {
		if e.upage == upage {
			return e, nil
		}
	}
	return nil, kerrors.ErrNotFound
}

// SwapOut evicts spte's resident frame to disk, matching vm_swap_page.
func (c *Core) SwapOut(spte *SPTE) error {
	if err := c.swap.SwapOut(spte, c.frames, spte.owner.pd); err != nil {
		return kerrors.Wrap(err, "vm: swap out")
	}
	c.unmarkResident(spte)
	return nil
}

// LoadPage faults spte's contents back into a fresh frame, evicting a
// victim if the frame table is full, matching vm_load_page.
func (c *Core) LoadPage(spte *SPTE) error {
	frame, err := c.allocFrameOrEvict()
	if err != nil {
		return kerrors.Wrap(err, "vm: load page")
	}
	if err := c.swap.Load(spte, frame, spte.owner.pd); err != nil {
		c.frames.Free(frame)
		return kerrors.Wrap(err, "vm: load page")
	}
	c.markResident(spte)
	return nil
}

// allocFrameOrEvict tries the frame table directly; on exhaustion it picks
// a round-robin victim from the resident set, swaps it out, and retries
// once, matching spec.md section 4.5's "eviction is initiated by the
// supplemental-page layer invoking swap_out on a victim SPTE before
// retrying" (victim policy is explicitly unspecified there; round-robin
// is named as acceptable).
func (c *Core) allocFrameOrEvict() (*Frame, error) {
	frame, err := c.frames.Alloc()
	if err == nil {
		return frame, nil
	}
	if !kerrors.Is(err, kerrors.ErrOutOfMemory) {
		return nil, err
	}

	victim := c.pickVictim()
	if victim == nil {
		return nil, err
	}
	c.log.Debug("evicting page to free a frame", zap.Uintptr("upage", victim.upage))
	if evictErr := c.swap.SwapOut(victim, c.frames, victim.owner.pd); evictErr != nil {
		return nil, evictErr
	}
	c.unmarkResident(victim)
	return c.frames.Alloc()
}

func (c *Core) markResident(spte *SPTE) {
	c.residentMu.Lock()
	c.resident = append(c.resident, spte)
	c.residentMu.Unlock()
}

func (c *Core) unmarkResident(spte *SPTE) {
	c.residentMu.Lock()
	for i, s := range c.resident {
		if s == spte {
			c.resident = append(c.resident[:i], c.resident[i+1:]...)
			break
		}
	}
	c.residentMu.Unlock()
}

func (c *Core) pickVictim() *SPTE {
	c.residentMu.Lock()
	defer c.residentMu.Unlock()
	if len(c.resident) == 0 {
		return nil
	}
	if c.evictCursor >= len(c.resident) {
		c.evictCursor = 0
	}
	v := c.resident[c.evictCursor]
	c.evictCursor++
	return v
}

// Mmap binds file's contents into spde starting at vaddr, eagerly reading
// every page from the file-system disk, matching vm_mmap.
func (c *Core) Mmap(spde *SPDE, file File, vaddr uintptr) (kdefs.MapID, error) {
	size := int(file.Length() / kdefs.PgSize)
	if file.Length()%kdefs.PgSize != 0 {
		size++
	}

	for i := 0; i < size; i++ {
		if c.mmap.alreadyMapped(spde, vaddr+uintptr(i*kdefs.PgSize)) {
			return kdefs.MapIDError, kerrors.ErrInvalidMapping
		}
	}

	sector := file.FirstSector()
	pages := make([]*SPTE, 0, size)
	for i := 0; i < size; i++ {
		spte, err := c.PageCreate(spde, vaddr, FileBackedOrigin(file, sector), c.fsDisk, kdefs.OnSector(sector))
		if err != nil {
			for _, p := range pages {
				c.PageDestroy(p)
			}
			return kdefs.MapIDError, err
		}
		if err := readFramePages(c.fsDisk, sector, spte.frame); err != nil {
			for _, p := range pages {
				c.PageDestroy(p)
			}
			c.PageDestroy(spte)
			return kdefs.MapIDError, kerrors.Wrap(err, "vm: mmap read")
		}
		spte.mmapped = true
		pages = append(pages, spte)

		vaddr += kdefs.PgSize
		sector += kdefs.SlotSize
	}

	return c.mmap.register(pages), nil
}

// Munmap destroys every SPTE in the region named by id, matching
// vm_munmap. Destruction writes back dirty pages (PageDestroy's
// responsibility) before removing them.
func (c *Core) Munmap(id kdefs.MapID) error {
	region := c.mmap.take(id)
	if region == nil {
		return kerrors.ErrNotFound
	}
	for i := len(region.pages) - 1; i >= 0; i-- {
		c.PageDestroy(region.pages[i])
	}
	return nil
}
