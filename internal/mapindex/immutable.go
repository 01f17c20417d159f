package mapindex

import (
	"iter"
	"log/slog"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
)

// Option configures an ImmutableMapIndex.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for swallowed cache-clear failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// ImmutableMapIndex is the loaded, read-mostly index of one field. Points can
// only be removed; every removal is forwarded to the backing store.
//
// The index does no locking. Callers hold an exclusive lock for Load,
// RemovePoint and Wipe and a shared lock for everything else.
type ImmutableMapIndex[K comparable] struct {
	codec  Codec[K]
	logger *slog.Logger

	container     *Container[K]
	pointToValues *ImmutablePointToValues[K]
	// indexedPoints counts points with at least one live value.
	indexedPoints int
	valuesCount   int

	storage storage[K]
}

func newImmutable[K comparable](codec Codec[K], opts ...Option) *ImmutableMapIndex[K] {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return &ImmutableMapIndex[K]{
		codec:         codec,
		logger:        o.logger,
		container:     NewContainer[K](0),
		pointToValues: NewImmutablePointToValues[K](nil),
	}
}

// Load populates the in-memory structures from the backing store. It
// returns false when the store holds no index yet; the index is then empty.
func (idx *ImmutableMapIndex[K]) Load() (bool, error) {
	return idx.storage.load(idx)
}

func (idx *ImmutableMapIndex[K]) loadKV() (bool, error) {
	s, ok := idx.storage.(*kvStorage[K])
	if !ok {
		return false, core.WrongBackend("load index from kv store", "kv")
	}

	mutable := newMutable(s.kv, idx.codec)
	loaded, err := mutable.Load()
	if err != nil {
		return false, err
	}

	container := NewContainer[K](mutable.ValuesCount())
	for value, bm := range mutable.ValueToPoints() {
		container.Allocate(value, bm.ToArray())
	}

	idx.container = container
	idx.pointToValues = NewImmutablePointToValues(mutable.pointToValues)
	idx.indexedPoints = mutable.IndexedPoints()
	idx.valuesCount = mutable.ValuesCount()
	return loaded, nil
}

func (idx *ImmutableMapIndex[K]) loadMmap() (bool, error) {
	s, ok := idx.storage.(*mmapStorage[K])
	if !ok {
		return false, core.WrongBackend("load index from mmap", "mmap")
	}

	loaded, err := s.index.Load()
	if err != nil || !loaded {
		return false, err
	}

	type run struct {
		value K
		ids   []core.PointOffset
	}
	var (
		runs          []run
		pointToValues [][]K
		indexed       int
		valuesCount   int
	)
	for value, ids := range s.index.IterValueToPoints() {
		for _, id := range ids {
			for len(pointToValues) <= int(id) {
				pointToValues = append(pointToValues, nil)
			}
			if len(pointToValues[id]) == 0 {
				indexed++
			}
			pointToValues[id] = append(pointToValues[id], value)
			valuesCount++
		}
		runs = append(runs, run{value: value, ids: ids})
	}

	container := NewContainer[K](valuesCount)
	for _, r := range runs {
		container.Allocate(r.value, r.ids)
	}

	idx.container = container
	idx.pointToValues = NewImmutablePointToValues(pointToValues)
	idx.indexedPoints = indexed
	idx.valuesCount = valuesCount
	core.DebugAssert(indexed == s.index.IndexedPoints(), "indexed points %d != %d", indexed, s.index.IndexedPoints())

	// The data now lives in memory; the mapped pages are no longer needed.
	if err := s.index.ClearCache(); err != nil {
		idx.logger.Warn("failed to clear mmap cache of map index", "error", err)
	}
	return true, nil
}

// RemovePoint removes point from every value it has and forwards the
// removal to the backing store. Removing a point twice is a no-op.
func (idx *ImmutableMapIndex[K]) RemovePoint(point core.PointOffset) error {
	values, _ := idx.pointToValues.GetValues(point)
	if len(values) > 0 {
		for _, v := range values {
			idx.container.RemovePoint(v, point)
			if err := idx.storage.removePoint(v, point); err != nil {
				return core.ServiceErrorf("mapindex: remove point %d: %w", point, err)
			}
		}
		idx.indexedPoints--
		idx.valuesCount = max(0, idx.valuesCount-len(values))
	}
	idx.pointToValues.RemovePoint(point)
	return nil
}

// GetValues returns the values of point. ok is false for points beyond the
// index.
func (idx *ImmutableMapIndex[K]) GetValues(point core.PointOffset) ([]K, bool) {
	return idx.pointToValues.GetValues(point)
}

// ValuesCount returns the number of values of point.
func (idx *ImmutableMapIndex[K]) ValuesCount(point core.PointOffset) (int, bool) {
	return idx.pointToValues.ValuesCount(point)
}

// CheckValuesAny reports whether fn holds for any value of point. The
// stored size of each inspected value is charged to hw.
func (idx *ImmutableMapIndex[K]) CheckValuesAny(point core.PointOffset, fn func(K) bool, hw *core.HardwareCounter) bool {
	read := 0
	defer func() { hw.AddPayloadIndexIORead(read) }()
	return idx.pointToValues.CheckValuesAny(point, func(v K) bool {
		read += idx.codec.Size(v)
		return fn(v)
	})
}

// IndexedPoints returns the number of points with at least one value.
func (idx *ImmutableMapIndex[K]) IndexedPoints() int { return idx.indexedPoints }

// ValuesCountTotal returns the number of live (value, point) pairs.
func (idx *ImmutableMapIndex[K]) ValuesCountTotal() int { return idx.valuesCount }

// UniqueValuesCount returns the number of values with live points.
func (idx *ImmutableMapIndex[K]) UniqueValuesCount() int { return idx.container.Len() }

// GetCountForValue returns the live count of value.
func (idx *ImmutableMapIndex[K]) GetCountForValue(value K) (int, bool) {
	return idx.container.Count(value)
}

// IterCountsPerValue yields every value with its live count.
func (idx *ImmutableMapIndex[K]) IterCountsPerValue() iter.Seq2[K, int] {
	return idx.container.CountsPerValue()
}

// GetIterator yields the live points of value in ascending order.
func (idx *ImmutableMapIndex[K]) GetIterator(value K) iter.Seq[core.PointOffset] {
	return idx.container.Iterate(value)
}

// IterValues yields every value with live points, unordered.
func (idx *ImmutableMapIndex[K]) IterValues() iter.Seq[K] {
	return idx.container.Values()
}

// IterValuesMap yields every value with an ascending iterator over its
// live points.
func (idx *ImmutableMapIndex[K]) IterValuesMap() iter.Seq2[K, iter.Seq[core.PointOffset]] {
	return func(yield func(K, iter.Seq[core.PointOffset]) bool) {
		for v := range idx.container.Values() {
			if !yield(v, idx.container.Iterate(v)) {
				return
			}
		}
	}
}

// Flusher returns the backing store's persistence callback.
func (idx *ImmutableMapIndex[K]) Flusher() core.Flusher {
	return idx.storage.flusher()
}

// Wipe removes all backing storage of the field.
func (idx *ImmutableMapIndex[K]) Wipe() error {
	if err := idx.storage.wipe(); err != nil {
		return core.ServiceErrorf("mapindex: wipe: %w", err)
	}
	idx.container = NewContainer[K](0)
	idx.pointToValues = NewImmutablePointToValues[K](nil)
	idx.indexedPoints, idx.valuesCount = 0, 0
	return nil
}

// ClearCache drops the page cache of an mmap backend. The in-memory index
// is unaffected.
func (idx *ImmutableMapIndex[K]) ClearCache() error {
	return idx.storage.clearCache()
}

// Files lists backing files; the kv backend owns none.
func (idx *ImmutableMapIndex[K]) Files() []string {
	return idx.storage.files()
}

// ImmutableFiles lists backing files that never change.
func (idx *ImmutableMapIndex[K]) ImmutableFiles() []string {
	return idx.storage.immutableFiles()
}

// StorageType describes the backend.
func (idx *ImmutableMapIndex[K]) StorageType() core.StorageType {
	return idx.storage.storageType()
}

// IsKV reports whether the index is backed by the transactional store.
func (idx *ImmutableMapIndex[K]) IsKV() bool {
	_, ok := idx.storage.(*kvStorage[K])
	return ok
}

// KVColumn returns the scheduled-delete column of a kv-backed index.
func (idx *ImmutableMapIndex[K]) KVColumn() (*kvstore.ScheduledDeleteColumn, error) {
	s, ok := idx.storage.(*kvStorage[K])
	if !ok {
		return nil, core.WrongBackend("kv column", "kv")
	}
	return s.kv.column()
}

// MmapIndex returns the backing index of an mmap-backed index.
func (idx *ImmutableMapIndex[K]) MmapIndex() (*MmapMapIndex[K], error) {
	s, ok := idx.storage.(*mmapStorage[K])
	if !ok {
		return nil, core.WrongBackend("mmap index", "mmap")
	}
	return s.index, nil
}
