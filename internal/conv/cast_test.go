package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntToUint32(t *testing.T) {
	t.Run("valid zero", func(t *testing.T) {
		got, err := IntToUint32(0)
		assert.NoError(t, err)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("valid max int32", func(t *testing.T) {
		got, err := IntToUint32(math.MaxInt32)
		assert.NoError(t, err)
		assert.Equal(t, uint32(math.MaxInt32), got)
	})

	t.Run("invalid negative", func(t *testing.T) {
		_, err := IntToUint32(-1)
		assert.Error(t, err)
	})
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	assert.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.Error(t, err)
}

func TestMulInt(t *testing.T) {
	got, err := MulInt(100_000, 400)
	assert.NoError(t, err)
	assert.Equal(t, 40_000_000, got)

	_, err = MulInt(math.MaxInt, 2)
	assert.Error(t, err)

	_, err = MulInt(-1, 2)
	assert.Error(t, err)

	got, err = MulInt(0, math.MaxInt)
	assert.NoError(t, err)
	assert.Zero(t, got)
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 0, CeilDiv(0, 64))
	assert.Equal(t, 1, CeilDiv(1, 64))
	assert.Equal(t, 1, CeilDiv(64, 64))
	assert.Equal(t, 2, CeilDiv(65, 64))
}
