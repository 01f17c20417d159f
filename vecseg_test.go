package vecseg

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
	"github.com/hupe1980/vecseg/internal/mapindex"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestValueIndex(t *testing.T) {
	for _, backend := range []Backend{BackendKV, BackendMmap} {
		t.Run(backend.String(), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			s, err := Open(dir)
			require.NoError(t, err)

			b, err := NewFieldBuilder(s, "color", KeywordKeys, backend)
			require.NoError(t, err)
			require.NoError(t, b.AddPoint(0, "red", "blue"))
			require.NoError(t, b.AddPoint(1, "red"))
			require.NoError(t, b.AddPoint(2, "green", "green"))
			require.NoError(t, b.AddPoint(3, "stale"))
			require.NoError(t, b.AddPoint(3, "blue"))

			idx, err := b.Finish(ctx)
			require.NoError(t, err)
			assert.Equal(t, backend == BackendKV, idx.IsKV())

			assert.Equal(t, 4, idx.IndexedPoints())
			assert.Equal(t, 3, idx.UniqueValuesCount())
			assert.Equal(t, 5, idx.ValuesCountTotal())
			assert.Equal(t, []PointOffset{0, 1}, idx.Points("red"))
			assert.Equal(t, []PointOffset{0, 3}, idx.Points("blue"))
			assert.Empty(t, idx.Points("stale"))
			assert.Equal(t, map[string]int{"red": 2, "blue": 2, "green": 1}, idx.CountsPerValue())

			vals, ok := idx.GetValues(0)
			require.True(t, ok)
			assert.ElementsMatch(t, []string{"red", "blue"}, vals)

			hw := NewHardwareCounter()
			assert.True(t, idx.CheckValuesAny(0, func(v string) bool { return v == "blue" }, hw))
			assert.Positive(t, hw.PayloadIndexIORead())

			require.NoError(t, idx.RemovePoint(ctx, 0))
			require.NoError(t, idx.RemovePoint(ctx, 0))
			assert.Equal(t, []PointOffset{1}, idx.Points("red"))
			assert.Equal(t, 3, idx.IndexedPoints())
			n, ok := idx.CountForValue("blue")
			require.True(t, ok)
			assert.Equal(t, 1, n)

			require.NoError(t, s.Flush(ctx))
			require.NoError(t, s.Close())

			s, err = Open(dir)
			require.NoError(t, err)
			defer s.Close()

			idx, err = OpenValueIndex(s, "color", KeywordKeys, backend)
			require.NoError(t, err)
			loaded, err := idx.Load(ctx)
			require.NoError(t, err)
			assert.True(t, loaded)
			assert.Equal(t, []PointOffset{1}, idx.Points("red"))
			assert.Equal(t, map[string][]PointOffset{"red": {1}, "blue": {3}, "green": {2}}, idx.ValuesMap())

			require.NoError(t, idx.Wipe(ctx))
			assert.Zero(t, idx.IndexedPoints())
		})
	}
}

func TestValueIndex_NotBuilt(t *testing.T) {
	s := openStore(t)
	for _, backend := range []Backend{BackendKV, BackendMmap} {
		idx, err := OpenValueIndex(s, "missing_"+backend.String(), IntKeys, backend)
		require.NoError(t, err)
		loaded, err := idx.Load(context.Background())
		require.NoError(t, err)
		assert.False(t, loaded)
		assert.Zero(t, idx.UniqueValuesCount())
		require.NoError(t, idx.Close())
	}
}

func TestValueIndex_AlreadyOpen(t *testing.T) {
	s := openStore(t)
	idx, err := OpenValueIndex(s, "f", IntKeys, BackendKV)
	require.NoError(t, err)

	_, err = OpenValueIndex(s, "f", IntKeys, BackendKV)
	assert.Error(t, err)

	require.NoError(t, idx.Close())
	_, err = OpenValueIndex(s, "f", IntKeys, BackendKV)
	assert.NoError(t, err)
}

func TestValueIndex_Closed(t *testing.T) {
	s := openStore(t)
	idx, err := OpenValueIndex(s, "f", IntKeys, BackendMmap)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Load(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, idx.RemovePoint(context.Background(), 1), ErrClosed)
}

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestVectorStorage(t *testing.T) {
	for _, backend := range []VectorBackend{VectorVolatile, VectorMmap, VectorLegacyKV} {
		t.Run(backend.String(), func(t *testing.T) {
			ctx := context.Background()
			mc := &BasicMetricsCollector{}
			s := openStore(t, WithChunkSize(1<<16), WithMetricsCollector(mc))

			vs, err := OpenVectorStorage(s, "image", VectorConfig{Dim: 4, Metric: distance.MetricDot, Multi: true, Backend: backend})
			require.NoError(t, err)

			for i := range 5 {
				v, err := MultiDense([][]float32{fill(4, float32(i)), fill(4, float32(i))})
				require.NoError(t, err)
				require.NoError(t, vs.InsertVector(ctx, PointOffset(i), v, nil))
			}
			assert.Equal(t, 5, vs.TotalCount())
			assert.Equal(t, 10, vs.InnerVectorCount())

			deleted, err := vs.DeleteVector(ctx, 2)
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = vs.DeleteVector(ctx, 2)
			require.NoError(t, err)
			assert.False(t, deleted)
			assert.Equal(t, 4, vs.AvailableCount())

			hits, err := vs.Search(ctx, Dense(fill(4, 1)), 3)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, []PointOffset{4, 3, 1}, []PointOffset{hits[0].ID, hits[1].ID, hits[2].ID})

			hits, err = vs.SearchCandidates(ctx, Dense(fill(4, 1)), []PointOffset{0, 2, 3}, 5)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, PointOffset(3), hits[0].ID)

			got, ok := vs.GetVector(3)
			require.True(t, ok)
			assert.Equal(t, 2, got.Count())

			require.NoError(t, s.Flush(ctx))

			stats := mc.GetStats()
			assert.Equal(t, int64(5), stats.InsertCount)
			assert.Equal(t, int64(1), stats.DeleteCount)
			assert.Equal(t, int64(1), stats.FlushCount)
		})
	}
}

func TestVectorStorage_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := VectorConfig{Dim: 2, Metric: distance.MetricL2, Backend: VectorMmap}

	s, err := Open(dir, WithChunkSize(1<<12))
	require.NoError(t, err)
	vs, err := OpenVectorStorage(s, "v", cfg)
	require.NoError(t, err)
	require.NoError(t, vs.InsertVector(ctx, 0, Dense([]float32{1, 2}), nil))
	require.NoError(t, vs.InsertVector(ctx, 1, Dense([]float32{3, 4}), nil))
	_, err = vs.DeleteVector(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close())

	s, err = Open(dir, WithChunkSize(1<<12))
	require.NoError(t, err)
	defer s.Close()
	vs, err = OpenVectorStorage(s, "v", cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, vs.TotalCount())
	assert.True(t, vs.IsDeleted(0))
	got, ok := vs.GetVector(1)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, got.Data)
	assert.NotEmpty(t, vs.Files())
}

func TestVectorStorage_UpdateFrom(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, WithChunkSize(1<<12), WithIOLimit(1<<20))

	src, err := OpenVectorStorage(s, "src", VectorConfig{Dim: 2, Metric: distance.MetricDot})
	require.NoError(t, err)
	dst, err := OpenVectorStorage(s, "dst", VectorConfig{Dim: 2, Metric: distance.MetricDot, Backend: VectorMmap})
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, src.InsertVector(ctx, PointOffset(i), Dense(fill(2, float32(i))), nil))
	}
	_, err = src.DeleteVector(ctx, 1)
	require.NoError(t, err)

	start, end, err := dst.UpdateFrom(ctx, src, nil)
	require.NoError(t, err)
	assert.Equal(t, PointOffset(0), start)
	assert.Equal(t, PointOffset(3), end)
	assert.Equal(t, 1, dst.DeletedCount())

	_, _, err = dst.UpdateFrom(ctx, dst, nil)
	assert.Error(t, err)

	other, err := OpenVectorStorage(s, "other", VectorConfig{Dim: 3})
	require.NoError(t, err)
	_, _, err = dst.UpdateFrom(ctx, other, nil)
	var dm *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestVectorStorage_UpdateFromBothDirections(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	const n = 1000
	a, err := OpenVectorStorage(s, "a", VectorConfig{Dim: 2, Metric: distance.MetricDot})
	require.NoError(t, err)
	b, err := OpenVectorStorage(s, "b", VectorConfig{Dim: 2, Metric: distance.MetricDot})
	require.NoError(t, err)

	ids := make([]PointOffset, n)
	for i := range n {
		ids[i] = PointOffset(i)
		require.NoError(t, a.InsertVector(ctx, ids[i], Dense(fill(2, 1)), nil))
		require.NoError(t, b.InsertVector(ctx, ids[i], Dense(fill(2, 2)), nil))
	}

	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			_, _, err := a.UpdateFrom(ctx, b, ids)
			return err
		})
		g.Go(func() error {
			_, _, err := b.UpdateFrom(ctx, a, ids)
			return err
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("merges between a and b did not finish")
	}

	assert.Equal(t, n, a.TotalCount())
	assert.Equal(t, n, b.TotalCount())
}

func TestVectorStorage_UpdateFromGap(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	src, err := OpenVectorStorage(s, "src", VectorConfig{Dim: 2, Metric: distance.MetricDot, Multi: true})
	require.NoError(t, err)
	dst, err := OpenVectorStorage(s, "dst", VectorConfig{Dim: 2, Metric: distance.MetricDot, Multi: true})
	require.NoError(t, err)

	v0, err := MultiDense([][]float32{{1, 1}})
	require.NoError(t, err)
	v2, err := MultiDense([][]float32{{2, 2}})
	require.NoError(t, err)
	require.NoError(t, src.InsertVector(ctx, 0, v0, nil))
	require.NoError(t, src.InsertVector(ctx, 2, v2, nil))

	_, _, err = dst.UpdateFrom(ctx, src, []PointOffset{10, 11, 12})
	require.NoError(t, err)

	got, ok := dst.GetVector(10)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1}, got.Data)
	_, ok = dst.GetVector(11)
	assert.False(t, ok)
	got, ok = dst.GetVector(12)
	require.True(t, ok)
	assert.Equal(t, []float32{2, 2}, got.Data)
}

func TestAccessorsDuringWrites(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	vs, err := OpenVectorStorage(s, "v", VectorConfig{Dim: 2, Metric: distance.MetricDot, Backend: VectorMmap})
	require.NoError(t, err)
	idx, err := OpenValueIndex(s, "color", KeywordKeys, BackendKV)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		for i := range 200 {
			if err := vs.InsertVector(ctx, PointOffset(i), Dense(fill(2, 1)), nil); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for range 200 {
			_ = vs.StorageType()
			_ = vs.ImmutableFiles()
			_ = idx.StorageType()
		}
		return nil
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, 200, vs.TotalCount())
	assert.True(t, vs.StorageType().OnDisk)
	assert.True(t, idx.IsKV())
}

func TestVectorStorage_Errors(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, WithChunkSize(1<<12), WithMaxMultivectorFlattenedLen(64))

	vs, err := OpenVectorStorage(s, "v", VectorConfig{Dim: 4, Multi: true})
	require.NoError(t, err)

	err = vs.InsertVector(ctx, 0, Dense([]float32{1, 2}), nil)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	big := Vector{Data: make([]float32, 4*100), Dim: 4}
	err = vs.InsertVector(ctx, 0, big, nil)
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.Contains(t, err.Error(), "too large")

	_, err = vs.Search(ctx, Dense(fill(4, 1)), 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, vs.InsertVector(ctx, 0, Dense(fill(4, 1)), nil))
	_, err = vs.Search(cancelled, Dense(fill(4, 1)), 1)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = OpenVectorStorage(s, "bad", VectorConfig{})
	assert.Error(t, err)
}

func TestVectorStorage_LegacyWritesDisabled(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	vs, err := OpenVectorStorage(s, "v", VectorConfig{Dim: 2, Backend: VectorLegacyKV})
	require.NoError(t, err)
	require.NoError(t, vs.InsertVector(ctx, 0, Dense([]float32{1, 2}), nil))
	require.NoError(t, s.Close())

	s, err = Open(dir, WithLegacyWritesDisabled())
	require.NoError(t, err)
	defer s.Close()
	vs, err = OpenVectorStorage(s, "v", VectorConfig{Dim: 2, Backend: VectorLegacyKV})
	require.NoError(t, err)

	got, ok := vs.GetVector(0)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got.Data)
	assert.Equal(t, core.StorageKV, vs.StorageType().Kind)

	err = vs.InsertVector(ctx, 1, Dense([]float32{3, 4}), nil)
	assert.ErrorIs(t, err, ErrServiceError)
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Flush(context.Background()), ErrClosed)
	_, err = OpenVectorStorage(s, "v", VectorConfig{Dim: 2})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_SharedDatabase(t *testing.T) {
	dir := t.TempDir()
	h := NewHandles()
	a, err := Open(dir, WithHandles(h))
	require.NoError(t, err)
	b, err := Open(dir, WithHandles(h))
	require.NoError(t, err)
	assert.Same(t, a.db, b.db)
	assert.Equal(t, 1, h.Open())

	idx, err := OpenValueIndex(a, "color", KeywordKeys, BackendKV)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, b.db.Flush())
	require.NoError(t, b.Close())
	assert.Equal(t, 0, h.Open())
	assert.NoError(t, idx.Close())

	c, err := Open(dir)
	require.NoError(t, err)
	assert.NotSame(t, b.db, c.db)
	require.NoError(t, c.Close())
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	err := translateError(&core.SizeLimitError{What: "vector", Size: 2, Limit: 1, Unit: "bytes"})
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.ErrorIs(t, err, core.ErrSizeLimit)

	err = translateError(core.WrongBackend("load", "mmap"))
	assert.ErrorIs(t, err, ErrServiceError)

	assert.ErrorIs(t, translateError(kvstore.ErrClosed), ErrClosed)
	assert.ErrorIs(t, translateError(mapindex.ErrCorrupt), ErrCorrupt)

	plain := errors.New("plain")
	assert.Same(t, plain, translateError(plain))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l.LogLoad(context.Background(), "color", true, nil)
	l.LogCacheClear(context.Background(), "color", errors.New("madvise failed"))
	l.LogCacheClear(context.Background(), "color", nil)

	out := buf.String()
	assert.Contains(t, out, "index loaded")
	assert.Contains(t, out, "failed to clear cache")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}

func TestVictoriaMetricsCollector(t *testing.T) {
	c := NewVictoriaMetricsCollector("")
	c.RecordLoad("color", 0, nil)
	c.RecordFlush(0, errors.New("boom"))
	c.RecordDeleteVector(false, nil)
	c.RecordDeleteVector(true, nil)

	var buf bytes.Buffer
	c.WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `vecseg_index_loads_total{field="color",status="ok"} 1`)
	assert.Contains(t, out, `vecseg_flushes_total{status="error"} 1`)
	assert.Contains(t, out, `vecseg_vector_deletes_total{status="ok"} 1`)
}
