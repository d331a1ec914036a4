package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := IntToUint32(123)
		require.NoError(t, err)
		assert.Equal(t, uint32(123), got)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := IntToUint32(math.MaxUint32 + 1)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestIntToUint64(t *testing.T) {
	got, err := IntToUint64(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)

	_, err = IntToUint64(-7)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestUintToInt(t *testing.T) {
	got, err := Uint32ToInt(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, math.MaxUint32, got)

	got, err = Uint64ToInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulInt(t *testing.T) {
	got, err := MulInt(6, 7)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = MulInt(0, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = MulInt(math.MaxInt, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulInt(-1, 2)
	assert.ErrorIs(t, err, ErrOverflow)
}
