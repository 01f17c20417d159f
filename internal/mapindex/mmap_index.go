package mapindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	farm "github.com/dgryski/go-farm"

	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/conv"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/mmap"
)

const (
	// ValuesFile holds the value → point-IDs table.
	ValuesFile = "values_to_points.bin"
	// DeletedFile holds the tombstone bits, one per point offset.
	DeletedFile = "deleted.bin"
	// MetaFile holds the checksum of ValuesFile and the key codec.
	MetaFile = "meta.dat"

	indexMagic   = 0x4d494458 // "MIDX"
	indexVersion = 1

	headerSize = 32
	entrySize  = 24
)

// MmapMapIndex is the memory-mapped backend of a field index.
//
// ValuesFile layout (little endian):
//
//	header:  magic u32 | version u32 | values u64 | ids u64 | points u64
//	entries: keyOff u64 | idsOff u64 | keyLen u32 | idsLen u32   (per value)
//	keys blob, padded to 4 bytes
//	ids:     u32 point offsets, sorted per value
//
// The values table is immutable once built. Deletions only set bits in
// DeletedFile, which is mapped writable.
type MmapMapIndex[K comparable] struct {
	dir    string
	codec  Codec[K]
	onDisk bool
	fsys   fs.FileSystem

	values     *mmap.Mapping
	deletedMap *mmap.Mapping
	deleted    *bitset.Slice

	numValues  int
	pointCount int
	live       *roaring.Bitmap
	loaded     bool
}

// BuildMmap writes a memory-mapped index for valueToPoints into dir,
// replacing any previous index there.
func BuildMmap[K comparable](dir string, codec Codec[K], valueToPoints map[K]*roaring.Bitmap, fsys fs.FileSystem) error {
	if fsys == nil {
		fsys = fs.Default
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return core.ServiceErrorf("mapindex: build %s: %w", dir, err)
	}

	type entry struct {
		key []byte
		ids []uint32
	}
	entries := make([]entry, 0, len(valueToPoints))
	totalIDs, pointCount := 0, 0
	for v, bm := range valueToPoints {
		if bm.IsEmpty() {
			continue
		}
		ids := bm.ToArray()
		totalIDs += len(ids)
		if last := int(ids[len(ids)-1]) + 1; last > pointCount {
			pointCount = last
		}
		entries = append(entries, entry{key: codec.Append(nil, v), ids: ids})
	}
	slices.SortFunc(entries, func(a, b entry) int { return bytes.Compare(a.key, b.key) })

	keysLen := 0
	for _, e := range entries {
		keysLen += len(e.key)
	}
	keysStart := headerSize + entrySize*len(entries)
	idsStart := (keysStart + keysLen + 3) &^ 3
	buf := make([]byte, idsStart+4*totalIDs)

	binary.LittleEndian.PutUint32(buf[0:], indexMagic)
	binary.LittleEndian.PutUint32(buf[4:], indexVersion)
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(entries)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(totalIDs))
	binary.LittleEndian.PutUint64(buf[24:], uint64(pointCount))

	keyOff, idsOff := keysStart, idsStart
	for i, e := range entries {
		keyLen, err := conv.IntToUint32(len(e.key))
		if err != nil {
			return fmt.Errorf("mapindex: value too long: %w", err)
		}
		ent := buf[headerSize+i*entrySize:]
		binary.LittleEndian.PutUint64(ent[0:], uint64(keyOff))
		binary.LittleEndian.PutUint64(ent[8:], uint64(idsOff))
		binary.LittleEndian.PutUint32(ent[16:], keyLen)
		binary.LittleEndian.PutUint32(ent[20:], uint32(len(e.ids)))
		keyOff += copy(buf[keyOff:], e.key)
		for _, id := range e.ids {
			binary.LittleEndian.PutUint32(buf[idsOff:], id)
			idsOff += 4
		}
	}

	if err := fs.WriteFileAtomic(fsys, filepath.Join(dir, ValuesFile), buf); err != nil {
		return core.ServiceErrorf("mapindex: write values: %w", err)
	}
	deleted := make([]byte, 8*max(1, bitset.WordsFor(pointCount)))
	if err := fs.WriteFileAtomic(fsys, filepath.Join(dir, DeletedFile), deleted); err != nil {
		return core.ServiceErrorf("mapindex: write deleted: %w", err)
	}
	if err := fs.WriteChecksummed(fsys, filepath.Join(dir, MetaFile), encodeMeta(codec.Name(), buf)); err != nil {
		return core.ServiceErrorf("mapindex: write meta: %w", err)
	}
	return fs.SyncDir(fsys, dir)
}

func encodeMeta(codec string, values []byte) []byte {
	meta := binary.LittleEndian.AppendUint64(nil, uint64(len(values)))
	meta = binary.LittleEndian.AppendUint64(meta, farm.Fingerprint64(values))
	return append(meta, codec...)
}

// OpenMmap binds the index directory dir. Nothing is mapped until Load.
// With onDisk false the pages are prefetched into RAM on load.
func OpenMmap[K comparable](dir string, codec Codec[K], onDisk bool, fsys fs.FileSystem) *MmapMapIndex[K] {
	if fsys == nil {
		fsys = fs.Default
	}
	return &MmapMapIndex[K]{dir: dir, codec: codec, onDisk: onDisk, fsys: fsys}
}

// Load maps the index. It returns false when no index was built in dir.
func (m *MmapMapIndex[K]) Load() (bool, error) {
	if m.loaded {
		return true, nil
	}
	meta, err := fs.ReadChecksummed(m.fsys, filepath.Join(m.dir, MetaFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, core.ServiceErrorf("mapindex: read meta: %w", err)
	}
	if len(meta) < 16 {
		return false, core.ServiceErrorf("%w: short meta file", ErrCorrupt)
	}
	if name := string(meta[16:]); name != m.codec.Name() {
		return false, core.ServiceErrorf("mapindex: index built with %q codec, opened with %q", name, m.codec.Name())
	}

	values, err := mmap.Open(filepath.Join(m.dir, ValuesFile))
	if err != nil {
		return false, core.ServiceErrorf("mapindex: map values: %w", err)
	}
	data := values.Bytes()
	if uint64(len(data)) != binary.LittleEndian.Uint64(meta[0:]) ||
		farm.Fingerprint64(data) != binary.LittleEndian.Uint64(meta[8:]) {
		_ = values.Close()
		return false, core.ServiceErrorf("%w: %s checksum mismatch", ErrCorrupt, ValuesFile)
	}
	if err := m.parseHeader(data); err != nil {
		_ = values.Close()
		return false, core.ServiceErrorf("mapindex: %w", err)
	}

	deletedMap, err := mmap.OpenWritable(filepath.Join(m.dir, DeletedFile))
	if err != nil {
		_ = values.Close()
		return false, core.ServiceErrorf("mapindex: map deleted: %w", err)
	}
	deleted, err := bitset.FromBytes(deletedMap.Bytes(), m.pointCount)
	if err != nil {
		_ = values.Close()
		_ = deletedMap.Close()
		return false, core.ServiceErrorf("mapindex: deleted bits: %w", err)
	}

	m.values, m.deletedMap, m.deleted = values, deletedMap, deleted
	m.live = roaring.New()
	_ = values.Advise(mmap.AccessSequential)
	for _, ids := range m.iterRaw() {
		for _, id := range ids {
			if !deleted.Get(int(id)) {
				m.live.Add(id)
			}
		}
	}
	if m.onDisk {
		_ = values.Advise(mmap.AccessRandom)
	} else {
		_ = values.Advise(mmap.AccessWillNeed)
		_ = deletedMap.Advise(mmap.AccessWillNeed)
	}
	m.loaded = true
	return true, nil
}

// parseHeader validates the header and every entry against the file size.
func (m *MmapMapIndex[K]) parseHeader(data []byte) error {
	if len(data) < headerSize ||
		binary.LittleEndian.Uint32(data[0:]) != indexMagic ||
		binary.LittleEndian.Uint32(data[4:]) != indexVersion {
		return fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	numValues := binary.LittleEndian.Uint64(data[8:])
	pointCount := binary.LittleEndian.Uint64(data[24:])
	if numValues > uint64(len(data)/entrySize) || pointCount > uint64(core.MaxPointOffset)+1 {
		return fmt.Errorf("%w: bad header counts", ErrCorrupt)
	}
	var err error
	if m.numValues, err = conv.Uint64ToInt(numValues); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if m.pointCount, err = conv.Uint64ToInt(pointCount); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	for i := 0; i < m.numValues; i++ {
		ent := data[headerSize+i*entrySize:]
		keyOff := binary.LittleEndian.Uint64(ent[0:])
		idsOff := binary.LittleEndian.Uint64(ent[8:])
		keyLen := uint64(binary.LittleEndian.Uint32(ent[16:]))
		idsLen := uint64(binary.LittleEndian.Uint32(ent[20:]))
		if keyOff+keyLen > uint64(len(data)) || idsOff+4*idsLen > uint64(len(data)) {
			return fmt.Errorf("%w: entry %d out of bounds", ErrCorrupt, i)
		}
		if _, err := m.codec.Decode(data[keyOff : keyOff+keyLen]); err != nil {
			return err
		}
	}
	return nil
}

// iterRaw yields every value with all its point IDs, deleted ones included.
func (m *MmapMapIndex[K]) iterRaw() iter.Seq2[K, []core.PointOffset] {
	return func(yield func(K, []core.PointOffset) bool) {
		data := m.values.Bytes()
		for i := 0; i < m.numValues; i++ {
			ent := data[headerSize+i*entrySize:]
			keyOff := binary.LittleEndian.Uint64(ent[0:])
			idsOff := binary.LittleEndian.Uint64(ent[8:])
			keyLen := uint64(binary.LittleEndian.Uint32(ent[16:]))
			idsLen := int(binary.LittleEndian.Uint32(ent[20:]))

			v, _ := m.codec.Decode(data[keyOff : keyOff+keyLen])
			ids := make([]core.PointOffset, idsLen)
			raw := data[idsOff:]
			for j := range ids {
				ids[j] = binary.LittleEndian.Uint32(raw[4*j:])
			}
			if !yield(v, ids) {
				return
			}
		}
	}
}

// IterValueToPoints yields every value with its point IDs that are not
// marked deleted. Values whose points are all deleted are still yielded,
// with an empty slice.
func (m *MmapMapIndex[K]) IterValueToPoints() iter.Seq2[K, []core.PointOffset] {
	return func(yield func(K, []core.PointOffset) bool) {
		if !m.loaded {
			return
		}
		for v, ids := range m.iterRaw() {
			ids = slices.DeleteFunc(ids, func(id core.PointOffset) bool {
				return m.deleted.Get(int(id))
			})
			if !yield(v, ids) {
				return
			}
		}
	}
}

// IsDeleted reports whether point is tombstoned.
func (m *MmapMapIndex[K]) IsDeleted(point core.PointOffset) bool {
	return m.loaded && m.deleted.Get(int(point))
}

// RemovePoint tombstones point in place.
func (m *MmapMapIndex[K]) RemovePoint(point core.PointOffset) {
	if !m.loaded {
		return
	}
	if m.live.CheckedRemove(point) {
		m.deleted.Replace(int(point), true)
	}
}

// IndexedPoints returns the number of live points with at least one value.
func (m *MmapMapIndex[K]) IndexedPoints() int {
	if !m.loaded {
		return 0
	}
	return int(m.live.GetCardinality())
}

// IsOnDisk reports whether pages are left on disk instead of prefetched.
func (m *MmapMapIndex[K]) IsOnDisk() bool {
	return m.onDisk
}

// Flusher returns a flusher that syncs the tombstone bits.
func (m *MmapMapIndex[K]) Flusher() core.Flusher {
	return func() error {
		if !m.loaded {
			return nil
		}
		if err := m.deletedMap.Flush(); err != nil {
			return core.ServiceErrorf("mapindex: flush deleted: %w", err)
		}
		return nil
	}
}

// ClearCache drops resident pages of both mappings.
func (m *MmapMapIndex[K]) ClearCache() error {
	if !m.loaded {
		return nil
	}
	return errors.Join(
		m.values.Advise(mmap.AccessDontNeed),
		m.deletedMap.Advise(mmap.AccessDontNeed),
	)
}

// Files lists every file of the index.
func (m *MmapMapIndex[K]) Files() []string {
	return []string{
		filepath.Join(m.dir, ValuesFile),
		filepath.Join(m.dir, DeletedFile),
		filepath.Join(m.dir, MetaFile),
	}
}

// ImmutableFiles lists the files that never change after the build.
func (m *MmapMapIndex[K]) ImmutableFiles() []string {
	return []string{
		filepath.Join(m.dir, ValuesFile),
		filepath.Join(m.dir, MetaFile),
	}
}

// Close unmaps the index.
func (m *MmapMapIndex[K]) Close() error {
	if !m.loaded {
		return nil
	}
	m.loaded = false
	return errors.Join(m.values.Close(), m.deletedMap.Close())
}

// Wipe unmaps the index and removes its directory.
func (m *MmapMapIndex[K]) Wipe() error {
	if err := m.Close(); err != nil {
		return core.ServiceErrorf("mapindex: wipe %s: %w", m.dir, err)
	}
	if err := m.fsys.RemoveAll(m.dir); err != nil {
		return core.ServiceErrorf("mapindex: wipe %s: %w", m.dir, err)
	}
	return nil
}
