package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/kerrors"
	"github.com/justanotherdot/pintgo/vm"
)

// TestMmapNineThousandByteFile is spec.md scenario S6: a 9,000-byte file
// maps to exactly three pages, and munmap removes all three SPTEs so a
// subsequent lookup at any of those addresses faults (ErrNotFound).
func TestMmapNineThousandByteFile(t *testing.T) {
	core, _, spde := newTestCore(t)
	file := &memFile{length: 9000, firstSector: 16}
	const vaddr = uintptr(0x400000)

	id, err := core.Mmap(spde, file, vaddr)
	require.NoError(t, err)
	assert.NotEqual(t, kdefs.MapIDError, id)

	for i := 0; i < 3; i++ {
		page := vaddr + uintptr(i*kdefs.PgSize)
		spte, err := core.FindByVaddr(spde, page)
		require.NoError(t, err, "page %d should be resident after mmap", i)
		assert.True(t, spte.Resident())
	}

	require.NoError(t, core.Munmap(id))

	for i := 0; i < 3; i++ {
		page := vaddr + uintptr(i*kdefs.PgSize)
		_, err := core.FindByVaddr(spde, page)
		assert.ErrorIs(t, err, kerrors.ErrNotFound, "page %d should fault after munmap", i)
	}
}

// TestMmapRejectsOverlapWithExistingMapping checks spec.md 4.8's overlap
// check across the whole requested range, not just its first page.
func TestMmapRejectsOverlapWithExistingMapping(t *testing.T) {
	core, _, spde := newTestCore(t)
	fileA := &memFile{length: kdefs.PgSize * 2, firstSector: 16}
	const vaddrA = uintptr(0x500000)

	_, err := core.Mmap(spde, fileA, vaddrA)
	require.NoError(t, err)

	// fileB's first page sits just before fileA's mapping and is clear;
	// only its second page collides with fileA's first page, so the
	// overlap check must scan the whole requested range, not just the
	// first page.
	fileB := &memFile{length: kdefs.PgSize * 2, firstSector: 64}
	_, err = core.Mmap(spde, fileB, vaddrA-kdefs.PgSize)
	assert.ErrorIs(t, err, kerrors.ErrInvalidMapping)
}

func TestMmapRejectsOverlapWithAlreadyPresentPage(t *testing.T) {
	core, _, spde := newTestCore(t)
	const vaddr = uintptr(0x600000)
	_, err := core.PageCreate(spde, vaddr, vm.AnonymousOrigin(), nil, kdefs.ZeroFillSector)
	require.NoError(t, err)

	file := &memFile{length: kdefs.PgSize, firstSector: 16}
	_, err = core.Mmap(spde, file, vaddr)
	assert.ErrorIs(t, err, kerrors.ErrInvalidMapping)
}

func TestMunmapUnknownIDReturnsNotFound(t *testing.T) {
	core, _, _ := newTestCore(t)
	err := core.Munmap(kdefs.MapID(999))
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
}
