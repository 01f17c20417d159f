package mapindex

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
)

// MutableMapIndex is the writable index over the transactional store. Every
// (value, point) pair is one key; the in-memory side keeps a roaring bitmap
// per value.
type MutableMapIndex[K comparable] struct {
	codec Codec[K]
	kv    *kvColumn

	valueToPoints map[K]*roaring.Bitmap
	pointToValues [][]K
	indexedPoints int
	valuesCount   int
}

// OpenMutable binds field's column family in db. Call Load to read it.
func OpenMutable[K comparable](db *kvstore.DB, field string, codec Codec[K]) *MutableMapIndex[K] {
	return newMutable(newKVColumn(db, field), codec)
}

func newMutable[K comparable](kv *kvColumn, codec Codec[K]) *MutableMapIndex[K] {
	return &MutableMapIndex[K]{
		codec:         codec,
		kv:            kv,
		valueToPoints: make(map[K]*roaring.Bitmap),
	}
}

// Load replays the column family. It returns false when the field has never
// been written.
func (m *MutableMapIndex[K]) Load() (bool, error) {
	ok, err := m.kv.exists()
	if err != nil {
		return false, core.ServiceErrorf("mapindex: load %s: %w", m.kv.name, err)
	}
	if !ok {
		return false, nil
	}
	col, err := m.kv.column()
	if err != nil {
		return false, core.ServiceErrorf("mapindex: load %s: %w", m.kv.name, err)
	}

	m.valueToPoints = make(map[K]*roaring.Bitmap)
	m.pointToValues = nil
	m.indexedPoints = 0
	m.valuesCount = 0

	err = col.Iterate(func(key, _ []byte) error {
		v, point, err := DecodeRecord(m.codec, key)
		if err != nil {
			return err
		}
		m.addInMemory(point, v)
		return nil
	})
	if err != nil {
		return false, core.ServiceErrorf("mapindex: load %s: %w", m.kv.name, err)
	}
	return true, nil
}

func (m *MutableMapIndex[K]) addInMemory(point core.PointOffset, v K) {
	for len(m.pointToValues) <= int(point) {
		m.pointToValues = append(m.pointToValues, nil)
	}
	if len(m.pointToValues[point]) == 0 {
		m.indexedPoints++
	}
	m.pointToValues[point] = append(m.pointToValues[point], v)
	m.valuesCount++

	bm, ok := m.valueToPoints[v]
	if !ok {
		bm = roaring.New()
		m.valueToPoints[v] = bm
	}
	bm.Add(point)
}

// AddManyToPoint replaces the values of point with values and persists the
// pairs in one transaction.
func (m *MutableMapIndex[K]) AddManyToPoint(point core.PointOffset, values []K) error {
	if err := m.RemovePoint(point); err != nil {
		return err
	}
	values = dedup(values)
	if len(values) == 0 {
		return nil
	}
	col, err := m.kv.column()
	if err != nil {
		return core.ServiceErrorf("mapindex: add point %d: %w", point, err)
	}
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = EncodeRecord(m.codec, v, point)
	}
	err = col.PutMany(keys, nil)
	if err != nil {
		return core.ServiceErrorf("mapindex: add point %d: %w", point, err)
	}
	for _, v := range values {
		m.addInMemory(point, v)
	}
	return nil
}

// RemovePoint drops every value of point and schedules the key deletes.
func (m *MutableMapIndex[K]) RemovePoint(point core.PointOffset) error {
	if int(point) >= len(m.pointToValues) {
		return nil
	}
	values := m.pointToValues[point]
	if len(values) == 0 {
		return nil
	}
	col, err := m.kv.column()
	if err != nil {
		return core.ServiceErrorf("mapindex: remove point %d: %w", point, err)
	}
	for _, v := range values {
		if bm, ok := m.valueToPoints[v]; ok {
			bm.Remove(point)
			if bm.IsEmpty() {
				delete(m.valueToPoints, v)
			}
		}
		if err := col.Remove(EncodeRecord(m.codec, v, point)); err != nil {
			return core.ServiceErrorf("mapindex: remove point %d: %w", point, err)
		}
	}
	m.indexedPoints--
	m.valuesCount -= len(values)
	m.pointToValues[point] = nil
	return nil
}

// GetValues returns the values of point.
func (m *MutableMapIndex[K]) GetValues(point core.PointOffset) []K {
	if int(point) >= len(m.pointToValues) {
		return nil
	}
	return m.pointToValues[point]
}

// GetIterator yields the points of value in ascending order.
func (m *MutableMapIndex[K]) GetIterator(value K) iter.Seq[core.PointOffset] {
	return func(yield func(core.PointOffset) bool) {
		bm, ok := m.valueToPoints[value]
		if !ok {
			return
		}
		it := bm.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// GetCountForValue returns the number of points with value.
func (m *MutableMapIndex[K]) GetCountForValue(value K) (int, bool) {
	bm, ok := m.valueToPoints[value]
	if !ok {
		return 0, false
	}
	return int(bm.GetCardinality()), true
}

// IndexedPoints returns the number of points with at least one value.
func (m *MutableMapIndex[K]) IndexedPoints() int { return m.indexedPoints }

// ValuesCount returns the number of (value, point) pairs.
func (m *MutableMapIndex[K]) ValuesCount() int { return m.valuesCount }

// UniqueValuesCount returns the number of distinct values.
func (m *MutableMapIndex[K]) UniqueValuesCount() int { return len(m.valueToPoints) }

// ValueToPoints exposes the value bitmaps for building other index forms.
// Callers must not modify the bitmaps.
func (m *MutableMapIndex[K]) ValueToPoints() map[K]*roaring.Bitmap {
	return m.valueToPoints
}

// Flusher applies scheduled deletes.
func (m *MutableMapIndex[K]) Flusher() core.Flusher {
	return m.kv.flusher()
}

// Wipe drops the column family.
func (m *MutableMapIndex[K]) Wipe() error {
	if err := m.kv.drop(); err != nil {
		return core.ServiceErrorf("mapindex: wipe %s: %w", m.kv.name, err)
	}
	m.valueToPoints = make(map[K]*roaring.Bitmap)
	m.pointToValues = nil
	m.indexedPoints, m.valuesCount = 0, 0
	return nil
}

func dedup[K comparable](values []K) []K {
	seen := make(map[K]struct{}, len(values))
	out := make([]K, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
