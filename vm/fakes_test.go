package vm_test

import (
	"sync"

	"github.com/justanotherdot/pintgo/vm"
)

// memDisk is a RAM-backed stand-in for the raw block device external
// collaborator (spec.md section 6), sized in 512-byte sectors.
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

// memFile is a fixed-content stand-in for the byte-range file reader
// external collaborator.
type memFile struct {
	length      int64
	firstSector uint64
}

func (f *memFile) Length() int64       { return f.length }
func (f *memFile) FirstSector() uint64 { return f.firstSector }

type pageMapping struct {
	frame    *vm.Frame
	writable bool
	dirty    bool
}

// simplePageDir is an in-memory stand-in for the x86 MMU external
// collaborator; MarkDirty simulates the dirty-bit side effect a real CPU
// write produces transparently.
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
	return m != nil && m.dirty
}

func (p *simplePageDir) MarkDirty(upage uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m := p.entries[upage]; m != nil {
		m.dirty = true
	}
}

func (p *simplePageDir) mapped(upage uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[upage]
	return ok
}
