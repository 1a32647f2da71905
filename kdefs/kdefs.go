// Package kdefs holds the constants and small value types shared across the
// scheduler, synchronization, timer, and virtual-memory packages, mirroring
// the role Biscuit's "common" package plays for the rest of its kernel.
package kdefs

// Prio is an effective or base thread priority.
type Prio int

const (
	PriMin     Prio = 0
	PriDefault Prio = 31
	PriMax     Prio = 63

	// NoDonation is Pintos's PRI_MIN-1 "no donation recorded" sentinel
	// value; lock state uses the Donation tagged variant below instead.
	NoDonation Prio = PriMin - 1
)

func (p Prio) Clamp() Prio {
	switch {
	case p < PriMin:
		return PriMin
	case p > PriMax:
		return PriMax
	default:
		return p
	}
}

// Tick is a single unit of the kernel's monotonic timer clock.
type Tick uint64

const (
	PgSize     = 4096
	SectorSize = 512
	SlotSize   = PgSize / SectorSize

	FrameTableSize = 1024

	// MapIDError is returned by Mmap on failure.
	MapIDError MapID = -1
)

// MapID identifies an active mmap region.
type MapID int64

// SectorRef is the tagged-variant replacement for the C source's
// SECTOR_ERROR / SECTOR_ZERO sentinel disk_sector_t values (spec.md section
// 9's design note: "a reimplementation should use tagged variants
// (Unallocated | ZeroFill | On(disk, sector))").
type SectorRef struct {
	kind   sectorKind
	sector uint64
}

type sectorKind uint8

const (
	sectorUnallocated sectorKind = iota
	sectorZeroFill
	sectorOn
)

// Unallocated reports whether no backing sector has been assigned yet.
func (s SectorRef) Unallocated() bool { return s.kind == sectorUnallocated }

// ZeroFill reports whether this page is the anonymous all-zero page with no
// backing store.
func (s SectorRef) ZeroFill() bool { return s.kind == sectorZeroFill }

// On reports whether a concrete disk sector backs this slot, returning it.
func (s SectorRef) On() (sector uint64, ok bool) {
	if s.kind != sectorOn {
		return 0, false
	}
	return s.sector, true
}

var (
	UnallocatedSector = SectorRef{kind: sectorUnallocated}
	ZeroFillSector    = SectorRef{kind: sectorZeroFill}
)

// OnSector builds a SectorRef referring to a concrete sector on some disk.
func OnSector(sector uint64) SectorRef {
	return SectorRef{kind: sectorOn, sector: sector}
}

// Donation is the tagged-variant replacement for a Lock's donated_priority
// field, which the C source multiplexes "no donation" into PRI_MIN-1.
type Donation struct {
	prio Prio
	set  bool
}

// NoneDonated is the zero-value Donation: nobody has donated to this lock.
var NoneDonated = Donation{}

// Raise records a donation of prio if it exceeds any previously recorded
// donation.
func (d Donation) Raise(prio Prio) Donation {
	if !d.set || prio > d.prio {
		return Donation{prio: prio, set: true}
	}
	return d
}

// Get returns the donated priority and whether any donation is recorded.
func (d Donation) Get() (Prio, bool) {
	return d.prio, d.set
}
