package vm

import (
	"sync"

	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/kerrors"
)

// Frame is one entry of the frame table: a physical page-size region of
// simulated kernel-accessible RAM. bytes is allocated lazily on first
// occupancy and retained afterward for reuse, matching vm_alloc_frame's
// "if (!_free->kpage) _free->kpage = palloc_get_page(...)".
type Frame struct {
	id       int
	bytes    []byte
	occupied bool
}

// ID returns the frame's table index, stable for its lifetime.
func (f *Frame) ID() int { return f.id }

// Bytes returns the frame's backing storage. Valid only while the frame is
// occupied by some SPTE.
func (f *Frame) Bytes() []byte { return f.bytes }

// FrameTable is the fixed-size pool described in spec.md section 4.5,
// grounded in frame.c's static array plus sentinel last slot.
type FrameTable struct {
	mu    sync.Mutex
	slots []*Frame
	log   *zap.Logger
}

// NewFrameTable constructs a table of kdefs.FrameTableSize frames; the
// final slot is the sentinel that terminates the free-slot scan and is
// never allocated, matching frame.c's PT_MAGIC terminator.
func NewFrameTable(log *zap.Logger) *FrameTable {
	if log == nil {
		log = zap.NewNop()
	}
	slots := make([]*Frame, kdefs.FrameTableSize)
	for i := range slots {
		slots[i] = &Frame{id: i}
	}
	return &FrameTable{slots: slots, log: log}
}

// Alloc returns the first unoccupied frame, binding a fresh backing buffer
// if this is the frame's first use. Returns kerrors.ErrOutOfMemory if the
// scan reaches the sentinel, meaning the caller must evict a victim and
// retry -- spec.md section 4.5 assigns that orchestration to the
// supplemental-page layer, not this table.
func (ft *FrameTable) Alloc() (*Frame, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	var free *Frame
	for i := 0; i < len(ft.slots)-1; i++ {
		if !ft.slots[i].occupied {
			free = ft.slots[i]
			break
		}
	}
	if free == nil {
		return nil, kerrors.ErrOutOfMemory
	}
	if free.bytes == nil {
		free.bytes = make([]byte, kdefs.PgSize)
	}
	free.occupied = true
	return free, nil
}

// Free clears the occupied bit; the backing buffer is retained for reuse
// within the table, matching vm_free_frame.
func (ft *FrameTable) Free(f *Frame) {
	ft.mu.Lock()
	f.occupied = false
	ft.mu.Unlock()
}
