package mapindex

import (
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
)

// storage is the backing store of an ImmutableMapIndex. Exactly one variant
// is bound at construction.
type storage[K comparable] interface {
	load(idx *ImmutableMapIndex[K]) (bool, error)
	removePoint(value K, point core.PointOffset) error
	flusher() core.Flusher
	wipe() error
	clearCache() error
	files() []string
	immutableFiles() []string
	storageType() core.StorageType
}

type kvStorage[K comparable] struct {
	kv    *kvColumn
	codec Codec[K]
}

func (s *kvStorage[K]) load(idx *ImmutableMapIndex[K]) (bool, error) {
	return idx.loadKV()
}

func (s *kvStorage[K]) removePoint(value K, point core.PointOffset) error {
	// Only loaded indexes call this, and loading creates the column.
	col, err := s.kv.column()
	if err != nil {
		return err
	}
	return col.Remove(EncodeRecord(s.codec, value, point))
}

func (s *kvStorage[K]) flusher() core.Flusher { return s.kv.flusher() }
func (s *kvStorage[K]) wipe() error           { return s.kv.drop() }
func (s *kvStorage[K]) clearCache() error     { return nil }
func (s *kvStorage[K]) files() []string       { return nil }
func (s *kvStorage[K]) immutableFiles() []string {
	return nil
}

func (s *kvStorage[K]) storageType() core.StorageType {
	return core.StorageType{Kind: core.StorageKV}
}

type mmapStorage[K comparable] struct {
	index *MmapMapIndex[K]
}

func (s *mmapStorage[K]) load(idx *ImmutableMapIndex[K]) (bool, error) {
	return idx.loadMmap()
}

func (s *mmapStorage[K]) removePoint(_ K, point core.PointOffset) error {
	s.index.RemovePoint(point)
	return nil
}

func (s *mmapStorage[K]) flusher() core.Flusher    { return s.index.Flusher() }
func (s *mmapStorage[K]) wipe() error              { return s.index.Wipe() }
func (s *mmapStorage[K]) clearCache() error        { return s.index.ClearCache() }
func (s *mmapStorage[K]) files() []string          { return s.index.Files() }
func (s *mmapStorage[K]) immutableFiles() []string { return s.index.ImmutableFiles() }
func (s *mmapStorage[K]) storageType() core.StorageType {
	return core.StorageType{Kind: core.StorageMmap, OnDisk: s.index.IsOnDisk()}
}

// OpenKV binds field's column family in db. Call Load to populate.
func OpenKV[K comparable](db *kvstore.DB, field string, codec Codec[K], opts ...Option) *ImmutableMapIndex[K] {
	idx := newImmutable[K](codec, opts...)
	idx.storage = &kvStorage[K]{kv: newKVColumn(db, field), codec: codec}
	return idx
}

// OpenMmapIndex binds a memory-mapped index. Call Load to populate.
func OpenMmapIndex[K comparable](index *MmapMapIndex[K], opts ...Option) *ImmutableMapIndex[K] {
	idx := newImmutable[K](index.codec, opts...)
	idx.storage = &mmapStorage[K]{index: index}
	return idx
}
