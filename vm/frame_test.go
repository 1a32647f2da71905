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

func TestFrameAllocFree(t *testing.T) {
	ft := vm.NewFrameTable(zap.NewNop())

	f1, err := ft.Alloc()
	require.NoError(t, err)
	assert.Len(t, f1.Bytes(), kdefs.PgSize)

	f2, err := ft.Alloc()
	require.NoError(t, err)
	assert.NotEqual(t, f1.ID(), f2.ID())

	ft.Free(f1)
	f3, err := ft.Alloc()
	require.NoError(t, err)
	assert.Equal(t, f1.ID(), f3.ID(), "freed frame should be reused before a fresh slot")
}

func TestFrameTableExhaustion(t *testing.T) {
	ft := vm.NewFrameTable(zap.NewNop())
	for i := 0; i < kdefs.FrameTableSize-1; i++ {
		_, err := ft.Alloc()
		require.NoError(t, err)
	}
	_, err := ft.Alloc()
	assert.ErrorIs(t, err, kerrors.ErrOutOfMemory)
}
