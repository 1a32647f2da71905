package vm

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
)

// mmapRegion is a file-to-page-range binding, grounded in mmap.c's struct
// map_elem.
type mmapRegion struct {
	id    kdefs.MapID
	pages []*SPTE
}

// mmapManager tracks active mmap regions, grounded in mmap.c's static
// `maps` list.
type mmapManager struct {
	mu      sync.Mutex
	regions []*mmapRegion
	nextID  kdefs.MapID
	log     *zap.Logger
}

func newMmapManager(log *zap.Logger) *mmapManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &mmapManager{log: log}
}

func pageRoundDown(vaddr uintptr) uintptr {
	return vaddr &^ uintptr(kdefs.PgSize-1)
}

// alreadyMapped reports whether vaddr's page is either already installed
// in spde or already claimed by some existing mmap region, matching
// check_mapped.
func (m *mmapManager) alreadyMapped(spde *SPDE, vaddr uintptr) bool {
	round := pageRoundDown(vaddr)

	spde.mu.Lock()
	for _, e := range spde.entries {
		if e.upage == round {
			spde.mu.Unlock()
			return true
		}
	}
	spde.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		for _, p := range r.pages {
			if p.upage == round {
				return true
			}
		}
	}
	return false
}

func (m *mmapManager) register(pages []*SPTE) kdefs.MapID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.regions = append(m.regions, &mmapRegion{id: id, pages: pages})
	return id
}

// take removes and returns the region with the given id, or nil.
func (m *mmapManager) take(id kdefs.MapID) *mmapRegion {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.regions {
		if r.id == id {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return r
		}
	}
	return nil
}

// removePage detaches spte from whatever region currently holds it, used
// when an individual SPTE is destroyed outside of Munmap (e.g. address
// space teardown).
func (m *mmapManager) removePage(spte *SPTE) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		for i, p := range r.pages {
			if p == spte {
				r.pages = append(r.pages[:i], r.pages[i+1:]...)
				return
			}
		}
	}
}
