package nlmcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSysidAllocator(t *testing.T) {
	t.Run("RejectsMinBelowOne", func(t *testing.T) {
		_, err := NewSysidAllocator(0, 10)
		require.Error(t, err)
	})

	t.Run("RejectsMaxBelowMin", func(t *testing.T) {
		_, err := NewSysidAllocator(10, 5)
		require.Error(t, err)
	})

	t.Run("AcceptsValidRange", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 100)
		require.NoError(t, err)
		require.NotNil(t, a)
	})
}

func TestSysidAllocatorAlloc(t *testing.T) {
	t.Run("AllocatesSequentially", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 10)
		require.NoError(t, err)

		first := a.Alloc()
		second := a.Alloc()

		assert.NotEqual(t, NoSysid, first)
		assert.NotEqual(t, NoSysid, second)
		assert.NotEqual(t, first, second)
	})

	t.Run("NeverAllocatesZero", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 4)
		require.NoError(t, err)

		for i := 0; i < 4; i++ {
			id := a.Alloc()
			assert.NotEqual(t, NoSysid, id)
		}
	})

	t.Run("ReturnsNoSysidWhenExhausted", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 2)
		require.NoError(t, err)

		a.Alloc()
		a.Alloc()
		assert.Equal(t, NoSysid, a.Alloc())
	})

	t.Run("ReusesFreedID", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 2)
		require.NoError(t, err)

		first := a.Alloc()
		a.Alloc()
		require.NoError(t, a.Free(first))

		reused := a.Alloc()
		assert.Equal(t, first, reused)
	})
}

func TestSysidAllocatorFree(t *testing.T) {
	t.Run("RejectsFreeingZero", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 10)
		require.NoError(t, err)
		assert.Error(t, a.Free(0))
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 10)
		require.NoError(t, err)
		assert.Error(t, a.Free(11))
	})

	t.Run("AllowsDoubleFree", func(t *testing.T) {
		a, err := NewSysidAllocator(1, 10)
		require.NoError(t, err)

		id := a.Alloc()
		require.NoError(t, a.Free(id))
		assert.NoError(t, a.Free(id))
	})
}
