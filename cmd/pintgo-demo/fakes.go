package main

import (
	"sync"

	"github.com/justanotherdot/pintgo/vm"
)

// memDisk is an in-memory stand-in for the raw block device external
// collaborator spec.md section 6 names (disk_read/disk_write/disk_size).
// Production Pintos backs this with an IDE controller; this demo has no
// hardware to drive, so it's RAM.
type memDisk struct {
	mu      sync.Mutex
	sectors [][]byte
}

func newMemDisk(sectorCount int) *memDisk {
	sectors := make([][]byte, sectorCount)
	for i := range sectors {
		sectors[i] = make([]byte, 512)
	}
	return &memDisk{sectors: sectors}
}

func (d *memDisk) Read(sector uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(buf, d.sectors[sector])
	return nil
}

func (d *memDisk) Write(sector uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.sectors[sector], buf)
	return nil
}

func (d *memDisk) SectorCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.sectors))
}

// memFile is an in-memory stand-in for the byte-range file reader
// external collaborator (file_length/file_get_inode/inode_get_inumber).
type memFile struct {
	length      int64
	firstSector uint64
}

func (f *memFile) Length() int64       { return f.length }
func (f *memFile) FirstSector() uint64 { return f.firstSector }

// pageMapping records what a simulated page-directory entry points at.
type pageMapping struct {
	frame    *vm.Frame
	writable bool
	dirty    bool
}

// simplePageDir is an in-memory stand-in for the x86 MMU external
// collaborator (pagedir_set_page/pagedir_clear_page/pagedir_is_dirty).
// Real hardware sets the dirty bit on a CPU write; this demo exposes
// MarkDirty so scenario code can simulate "the user wrote to this page"
// explicitly.
type simplePageDir struct {
	mu      sync.Mutex
	entries map[uintptr]*pageMapping
}

func newSimplePageDir() *simplePageDir {
	return &simplePageDir{entries: make(map[uintptr]*pageMapping)}
}

func (p *simplePageDir) SetPage(upage uintptr, frame *vm.Frame, writable bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[upage] = &pageMapping{frame: frame, writable: writable}
	return true
}

func (p *simplePageDir) ClearPage(upage uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, upage)
}

func (p *simplePageDir) IsDirty(upage uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.entries[upage]
	if m == nil {
		return false
	}
	return m.dirty
}

// MarkDirty simulates a CPU write to upage's page, the dirty-bit side
// effect a real MMU performs transparently.
func (p *simplePageDir) MarkDirty(upage uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m := p.entries[upage]; m != nil {
		m.dirty = true
	}
}
