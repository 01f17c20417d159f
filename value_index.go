package vecseg

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
	"github.com/hupe1980/vecseg/internal/mapindex"
)

// PointOffset identifies a point within a segment.
type PointOffset = core.PointOffset

// HardwareCounter accumulates the IO and CPU cost of operations.
type HardwareCounter = core.HardwareCounter

// NewHardwareCounter returns a zeroed counter.
func NewHardwareCounter() *HardwareCounter { return core.NewHardwareCounter() }

// StorageType describes the backend of a component.
type StorageType = core.StorageType

// Backend selects where a value index lives.
type Backend uint8

const (
	// BackendKV keeps the index in the store's transactional database.
	BackendKV Backend = iota
	// BackendMmap keeps the index in memory-mapped files.
	BackendMmap
)

func (b Backend) String() string {
	switch b {
	case BackendKV:
		return "kv"
	case BackendMmap:
		return "mmap"
	default:
		return fmt.Sprintf("Backend(%d)", b)
	}
}

// Codec encodes index values. Encodings must sort like the values.
type Codec[K comparable] interface {
	mapindex.Codec[K]
}

// Built-in codecs.
var (
	IntKeys     Codec[int64]     = mapindex.IntCodec{}
	KeywordKeys Codec[string]    = mapindex.StringCodec{}
	UUIDKeys    Codec[uuid.UUID] = mapindex.UUIDCodec{}
)

// ValueIndex maps field values to points and points to values. It is safe
// for concurrent use.
type ValueIndex[K comparable] struct {
	store   *Store
	field   string
	name    string
	backend Backend
	db      *kvstore.DB // kv backend only

	mu     sync.RWMutex
	idx    *mapindex.ImmutableMapIndex[K]
	closed bool
}

func indexName(field string) string { return "index/" + field }

// OpenValueIndex binds the value index of field. Call Load before querying.
func OpenValueIndex[K comparable](s *Store, field string, codec Codec[K], backend Backend) (*ValueIndex[K], error) {
	logger := s.opts.logger.WithField(field).Logger
	var (
		idx *mapindex.ImmutableMapIndex[K]
		db  *kvstore.DB
	)
	switch backend {
	case BackendKV:
		var err error
		if db, err = s.acquireDB(); err != nil {
			return nil, err
		}
		idx = mapindex.OpenKV[K](db, field, codec, mapindex.WithLogger(logger))
	case BackendMmap:
		dir := filepath.Join(s.dir, indexDir, field)
		idx = mapindex.OpenMmapIndex(mapindex.OpenMmap[K](dir, codec, s.opts.onDisk, s.opts.fs), mapindex.WithLogger(logger))
	default:
		return nil, fmt.Errorf("vecseg: unknown backend %v", backend)
	}

	vi := &ValueIndex[K]{store: s, field: field, name: indexName(field), backend: backend, db: db, idx: idx}
	if err := s.register(vi.name, vi); err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return vi, nil
}

// Field returns the indexed field name.
func (v *ValueIndex[K]) Field() string { return v.field }

// Load reads the index from its backend. It returns false when nothing was
// persisted yet; the index is then empty.
func (v *ValueIndex[K]) Load(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, ErrClosed
	}

	start := time.Now()
	loaded, err := v.idx.Load()
	err = translateError(err)
	v.store.opts.metricsCollector.RecordLoad(v.field, time.Since(start), err)
	v.store.opts.logger.LogLoad(ctx, v.field, loaded, err)
	return loaded, err
}

// RemovePoint drops every value of point. Removing an absent point is a
// no-op.
func (v *ValueIndex[K]) RemovePoint(ctx context.Context, point PointOffset) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}

	err := translateError(v.idx.RemovePoint(point))
	v.store.opts.metricsCollector.RecordRemovePoint(v.field, err)
	v.store.opts.logger.LogRemovePoint(ctx, v.field, point, err)
	return err
}

// GetValues returns a copy of the values of point.
func (v *ValueIndex[K]) GetValues(point PointOffset) ([]K, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vals, ok := v.idx.GetValues(point)
	return slices.Clone(vals), ok
}

// ValuesCount returns the number of values of point.
func (v *ValueIndex[K]) ValuesCount(point PointOffset) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.ValuesCount(point)
}

// CheckValuesAny reports whether fn holds for any value of point. hw may be
// nil.
func (v *ValueIndex[K]) CheckValuesAny(point PointOffset, fn func(K) bool, hw *HardwareCounter) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.CheckValuesAny(point, fn, hw)
}

// IndexedPoints returns the number of points with at least one value.
func (v *ValueIndex[K]) IndexedPoints() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.IndexedPoints()
}

// ValuesCountTotal returns the number of live (value, point) pairs.
func (v *ValueIndex[K]) ValuesCountTotal() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.ValuesCountTotal()
}

// UniqueValuesCount returns the number of distinct values.
func (v *ValueIndex[K]) UniqueValuesCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.UniqueValuesCount()
}

// CountForValue returns the number of live points holding value.
func (v *ValueIndex[K]) CountForValue(value K) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.GetCountForValue(value)
}

// Points returns the live points of value in ascending order.
func (v *ValueIndex[K]) Points(value K) []PointOffset {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Collect(v.idx.GetIterator(value))
}

// Values returns every distinct value, unordered.
func (v *ValueIndex[K]) Values() []K {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Collect(v.idx.IterValues())
}

// CountsPerValue returns the live point count of every value.
func (v *ValueIndex[K]) CountsPerValue() map[K]int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[K]int, v.idx.UniqueValuesCount())
	for val, n := range v.idx.IterCountsPerValue() {
		out[val] = n
	}
	return out
}

// ValuesMap returns every value with its ascending live points.
func (v *ValueIndex[K]) ValuesMap() map[K][]PointOffset {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[K][]PointOffset, v.idx.UniqueValuesCount())
	for val, points := range v.idx.IterValuesMap() {
		out[val] = slices.Collect(points)
	}
	return out
}

// Flush persists pending removals.
func (v *ValueIndex[K]) Flush(ctx context.Context) error {
	err := translateError(v.flusher()())
	v.store.opts.logger.LogFlush(ctx, v.name, err)
	return err
}

func (v *ValueIndex[K]) flusher() core.Flusher {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return core.NoopFlusher
	}
	return v.idx.Flusher()
}

// Wipe deletes the persisted index and empties it.
func (v *ValueIndex[K]) Wipe(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	err := translateError(v.idx.Wipe())
	v.store.opts.logger.LogWipe(ctx, v.name, err)
	return err
}

// ClearCache evicts mapped pages of an mmap backend.
func (v *ValueIndex[K]) ClearCache(ctx context.Context) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	err := translateError(v.idx.ClearCache())
	v.store.opts.logger.LogCacheClear(ctx, v.name, err)
	return err
}

// Files lists the backing files.
func (v *ValueIndex[K]) Files() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.Files()
}

// ImmutableFiles lists backing files that never change.
func (v *ValueIndex[K]) ImmutableFiles() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.ImmutableFiles()
}

// StorageType describes the backend.
func (v *ValueIndex[K]) StorageType() StorageType {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.idx.StorageType()
}

// IsKV reports whether the index lives in the transactional database.
func (v *ValueIndex[K]) IsKV() bool { return v.backend == BackendKV }

// Close releases mapped files and detaches the index from its store. It
// does not flush.
func (v *ValueIndex[K]) Close() error {
	v.store.unregister(v.name)
	return translateError(v.close())
}

func (v *ValueIndex[K]) close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	if v.db != nil {
		return v.db.Close()
	}
	if m, err := v.idx.MmapIndex(); err == nil {
		return m.Close()
	}
	return nil
}

// FieldBuilder collects the values of one field and writes a value index.
// It is not safe for concurrent use.
type FieldBuilder[K comparable] struct {
	store   *Store
	field   string
	codec   Codec[K]
	backend Backend

	// kv backend
	mutable *mapindex.MutableMapIndex[K]

	// mmap backend
	valueToPoints map[K]*roaring.Bitmap
	pointValues   map[PointOffset][]K
}

// NewFieldBuilder starts a fresh index for field, discarding any previous
// one in the backend.
func NewFieldBuilder[K comparable](s *Store, field string, codec Codec[K], backend Backend) (*FieldBuilder[K], error) {
	b := &FieldBuilder[K]{store: s, field: field, codec: codec, backend: backend}
	switch backend {
	case BackendKV:
		b.mutable = mapindex.OpenMutable[K](s.db, field, codec)
		if err := b.mutable.Wipe(); err != nil {
			return nil, translateError(err)
		}
	case BackendMmap:
		b.valueToPoints = make(map[K]*roaring.Bitmap)
		b.pointValues = make(map[PointOffset][]K)
	default:
		return nil, fmt.Errorf("vecseg: unknown backend %v", backend)
	}
	return b, nil
}

// AddPoint sets the values of point, replacing earlier ones.
func (b *FieldBuilder[K]) AddPoint(point PointOffset, values ...K) error {
	if b.mutable != nil {
		return translateError(b.mutable.AddManyToPoint(point, values))
	}

	for _, old := range b.pointValues[point] {
		if bm := b.valueToPoints[old]; bm != nil {
			bm.Remove(point)
		}
	}
	delete(b.pointValues, point)

	var kept []K
	for _, val := range values {
		if slices.Contains(kept, val) {
			continue
		}
		kept = append(kept, val)
		bm := b.valueToPoints[val]
		if bm == nil {
			bm = roaring.New()
			b.valueToPoints[val] = bm
		}
		bm.Add(point)
	}
	if len(kept) > 0 {
		b.pointValues[point] = kept
	}
	return nil
}

// Finish persists the collected values and opens the loaded index.
func (b *FieldBuilder[K]) Finish(ctx context.Context) (*ValueIndex[K], error) {
	if b.mutable != nil {
		if err := b.mutable.Flusher()(); err != nil {
			return nil, translateError(err)
		}
	} else {
		dir := filepath.Join(b.store.dir, indexDir, b.field)
		if err := mapindex.BuildMmap(dir, b.codec, b.valueToPoints, b.store.opts.fs); err != nil {
			return nil, translateError(err)
		}
	}

	vi, err := OpenValueIndex(b.store, b.field, b.codec, b.backend)
	if err != nil {
		return nil, err
	}
	if _, err := vi.Load(ctx); err != nil {
		_ = vi.Close()
		return nil, err
	}
	return vi, nil
}
