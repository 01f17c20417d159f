package scorer

import (
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/vectorstorage"
)

func newDense(t *testing.T, rows ...[]float32) *vectorstorage.Storage {
	t.Helper()
	s, err := vectorstorage.NewVolatileDense(vectorstorage.Config{Dim: len(rows[0]), Metric: distance.MetricDot, ChunkBytes: 1 << 12})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	for i, r := range rows {
		require.NoError(t, s.InsertVector(core.PointOffset(i), vectorstorage.Dense(r), nil))
	}
	return s
}

func TestPeekTopAll(t *testing.T) {
	s := newDense(t, []float32{1, 0}, []float32{3, 0}, []float32{2, 0}, []float32{0, 1})

	sc, err := New(vectorstorage.Dense([]float32{1, 0}), s, nil)
	require.NoError(t, err)

	top, err := sc.PeekTopAll(3, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.PointOffset{1, 2, 0}, IDs(top))
	assert.Equal(t, float32(3), top[0].Score)
}

func TestPeekTop_Filters(t *testing.T) {
	s := newDense(t, []float32{1}, []float32{2}, []float32{3}, []float32{4})
	_, err := s.DeleteVector(3)
	require.NoError(t, err)

	external := bitset.New(2)
	external.Replace(1, true)

	sc, err := New(vectorstorage.Dense([]float32{1}), s, external)
	require.NoError(t, err)

	top, err := sc.PeekTop(slices.Values([]core.PointOffset{0, 1, 2, 3, 9}), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.PointOffset{2, 0}, IDs(top))

	assert.True(t, sc.Excluded(1))
	assert.True(t, sc.Excluded(3))
	assert.True(t, sc.Excluded(9))
	assert.False(t, sc.Excluded(2))
}

func TestPeekTop_Stopped(t *testing.T) {
	s := newDense(t, []float32{1}, []float32{2})
	sc, err := New(vectorstorage.Dense([]float32{1}), s, nil)
	require.NoError(t, err)

	var stopped atomic.Bool
	stopped.Store(true)
	_, err = sc.PeekTopAll(1, &stopped)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestMultiDenseMaxSim(t *testing.T) {
	s, err := vectorstorage.NewVolatileMultiDense(vectorstorage.Config{Dim: 2, Metric: distance.MetricDot, ChunkBytes: 1 << 12})
	require.NoError(t, err)
	defer s.Close()

	a, err := vectorstorage.MultiDense([][]float32{{1, 0}, {0, 5}})
	require.NoError(t, err)
	b, err := vectorstorage.MultiDense([][]float32{{2, 0}})
	require.NoError(t, err)
	require.NoError(t, s.InsertVector(0, a, nil))
	require.NoError(t, s.InsertVector(1, b, nil))

	q, err := vectorstorage.MultiDense([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	sc, err := New(q, s, nil)
	require.NoError(t, err)

	score, ok := sc.Score(0)
	require.True(t, ok)
	assert.Equal(t, float32(6), score)

	top, err := sc.PeekTopAll(2, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.PointOffset{0, 1}, IDs(top))
}

func TestNew_DimMismatch(t *testing.T) {
	s := newDense(t, []float32{1, 2})
	_, err := New(vectorstorage.Dense([]float32{1}), s, nil)
	assert.ErrorIs(t, err, vectorstorage.ErrDimMismatch)
}
