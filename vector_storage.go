package vecseg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
	"github.com/hupe1980/vecseg/internal/scorer"
	"github.com/hupe1980/vecseg/internal/vectorstorage"
)

// Vector is a dense vector, or a multi-dense vector flattened into Data with
// Dim elements per sub-vector.
type Vector = vectorstorage.Vector

// Dense returns a single-vector Vector.
func Dense(data []float32) Vector { return vectorstorage.Dense(data) }

// MultiDense flattens equally sized sub-vectors into a Vector.
func MultiDense(subs [][]float32) (Vector, error) { return vectorstorage.MultiDense(subs) }

// ScoredPoint is a search hit. Higher scores are better.
type ScoredPoint = scorer.ScoredPoint

// VectorBackend selects where vectors live.
type VectorBackend uint8

const (
	// VectorVolatile keeps vectors in memory only.
	VectorVolatile VectorBackend = iota
	// VectorMmap appends vectors to memory-mapped chunk files.
	VectorMmap
	// VectorLegacyKV keeps vectors in the transactional database and mirrors
	// them in memory.
	VectorLegacyKV
)

func (b VectorBackend) String() string {
	switch b {
	case VectorVolatile:
		return "volatile"
	case VectorMmap:
		return "mmap"
	case VectorLegacyKV:
		return "legacy_kv"
	default:
		return fmt.Sprintf("VectorBackend(%d)", b)
	}
}

// VectorConfig describes a vector storage.
type VectorConfig struct {
	// Dim is the vector dimension; for multi-dense storages the sub-vector
	// dimension.
	Dim    int
	Metric distance.Metric
	// Multi selects multi-dense vectors.
	Multi   bool
	Backend VectorBackend
}

// VectorStorage stores one named vector per point. It is safe for
// concurrent use.
type VectorStorage struct {
	store *Store
	name  string
	cfg   VectorConfig
	db    *kvstore.DB // legacy kv backend only
	seq   uint64      // lock order between storages

	mu     sync.RWMutex
	s      *vectorstorage.Storage
	closed bool
}

var storageSeq atomic.Uint64

func vectorName(name string) string { return "vectors/" + name }

// LegacyColumn returns the column family of a legacy kv vector storage.
func LegacyColumn(name string) string { return "vectors_" + name }

// OpenVectorStorage opens (creating if needed) the vector storage name.
func OpenVectorStorage(s *Store, name string, cfg VectorConfig) (*VectorStorage, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("vecseg: invalid dimension %d", cfg.Dim)
	}
	vcfg := vectorstorage.Config{
		Dim:                  cfg.Dim,
		Metric:               cfg.Metric,
		ChunkBytes:           s.opts.chunkBytes,
		MaxFlattenedLen:      s.opts.maxFlattenedLen,
		Populate:             !s.opts.onDisk,
		LegacyWritesDisabled: s.opts.legacyWritesDisabled,
		Resources:            s.res,
		FS:                   s.opts.fs,
		Logger:               s.opts.logger.With("vectors", name),
	}

	var (
		st  *vectorstorage.Storage
		db  *kvstore.DB
		err error
	)
	switch cfg.Backend {
	case VectorVolatile:
		if cfg.Multi {
			st, err = vectorstorage.NewVolatileMultiDense(vcfg)
		} else {
			st, err = vectorstorage.NewVolatileDense(vcfg)
		}
	case VectorMmap:
		dir := filepath.Join(s.dir, vectorsDir, name)
		if cfg.Multi {
			st, err = vectorstorage.OpenAppendableMmapMultiDense(dir, vcfg)
		} else {
			st, err = vectorstorage.OpenAppendableMmapDense(dir, vcfg)
		}
	case VectorLegacyKV:
		if db, err = s.acquireDB(); err != nil {
			return nil, err
		}
		if cfg.Multi {
			st, err = vectorstorage.OpenLegacyKVMultiDense(db, LegacyColumn(name), vcfg)
		} else {
			st, err = vectorstorage.OpenLegacyKVDense(db, LegacyColumn(name), vcfg)
		}
	default:
		return nil, fmt.Errorf("vecseg: unknown vector backend %v", cfg.Backend)
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, translateError(err)
	}

	vs := &VectorStorage{store: s, name: name, cfg: cfg, s: st, db: db, seq: storageSeq.Add(1)}
	if err := s.register(vectorName(name), vs); err != nil {
		_ = vs.close()
		return nil, err
	}
	return vs, nil
}

// Name returns the storage name.
func (v *VectorStorage) Name() string { return v.name }

// Config returns the storage configuration.
func (v *VectorStorage) Config() VectorConfig { return v.cfg }

func (v *VectorStorage) checkDim(vec Vector) error {
	if vec.Dim != v.cfg.Dim {
		return &ErrDimensionMismatch{Expected: v.cfg.Dim, Actual: vec.Dim}
	}
	return nil
}

// InsertVector stores vec at id, replacing any previous vector. hw may be
// nil.
func (v *VectorStorage) InsertVector(ctx context.Context, id PointOffset, vec Vector, hw *HardwareCounter) error {
	start := time.Now()
	err := v.insert(id, vec, hw)
	v.store.opts.metricsCollector.RecordInsertVector(time.Since(start), err)
	v.store.opts.logger.LogInsertVector(ctx, v.name, id, vec.Dim, err)
	return err
}

func (v *VectorStorage) insert(id PointOffset, vec Vector, hw *HardwareCounter) error {
	if err := v.checkDim(vec); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	return translateError(v.s.InsertVector(id, vec, hw))
}

// GetVector returns a copy of the vector of id, deleted or not.
func (v *VectorStorage) GetVector(id PointOffset) (Vector, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vec, ok := v.s.GetVectorOpt(id)
	if !ok {
		return Vector{}, false
	}
	return vec.Clone(), true
}

// DeleteVector marks id deleted and reports whether it was live before.
func (v *VectorStorage) DeleteVector(_ context.Context, id PointOffset) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, ErrClosed
	}
	deleted, err := v.s.DeleteVector(id)
	err = translateError(err)
	v.store.opts.metricsCollector.RecordDeleteVector(deleted, err)
	return deleted, err
}

// IsDeleted reports whether id is deleted.
func (v *VectorStorage) IsDeleted(id PointOffset) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.IsDeletedVector(id)
}

// DeletedCount returns the number of deleted points.
func (v *VectorStorage) DeletedCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.DeletedVectorCount()
}

// TotalCount returns the number of point slots, deleted included.
func (v *VectorStorage) TotalCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.TotalVectorCount()
}

// AvailableCount returns the number of live points.
func (v *VectorStorage) AvailableCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.TotalVectorCount() - v.s.DeletedVectorCount()
}

// InnerVectorCount returns the number of stored (sub-)vectors.
func (v *VectorStorage) InnerVectorCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for range v.s.IterateInnerVectors() {
		n++
	}
	return n
}

// UpdateFrom copies every vector of src into v, keeping deleted flags. With
// idMap nil the vectors are appended; otherwise the vector at offset i of
// src is written to idMap[i]. It returns the range of written ids.
func (v *VectorStorage) UpdateFrom(ctx context.Context, src *VectorStorage, idMap []PointOffset) (PointOffset, PointOffset, error) {
	if src == v {
		return 0, 0, errors.New("vecseg: cannot update a storage from itself")
	}
	if src.cfg.Dim != v.cfg.Dim {
		return 0, 0, &ErrDimensionMismatch{Expected: v.cfg.Dim, Actual: src.cfg.Dim}
	}

	// Lock in seq order; merges run in both directions between a pair.
	if v.seq < src.seq {
		v.mu.Lock()
		src.mu.RLock()
	} else {
		src.mu.RLock()
		v.mu.Lock()
	}
	defer v.mu.Unlock()
	defer src.mu.RUnlock()
	if v.closed || src.closed {
		return 0, 0, ErrClosed
	}

	start, end, err := v.s.UpdateFrom(ctx, src.s.Records(), idMap)
	return start, end, translateError(err)
}

// Search scores every live point against query and returns the k best.
// Cancelling ctx stops the scan.
func (v *VectorStorage) Search(ctx context.Context, query Vector, k int) ([]ScoredPoint, error) {
	return v.search(ctx, query, k, nil)
}

// SearchCandidates is Search restricted to candidates.
func (v *VectorStorage) SearchCandidates(ctx context.Context, query Vector, candidates []PointOffset, k int) ([]ScoredPoint, error) {
	return v.search(ctx, query, k, candidates)
}

func (v *VectorStorage) search(ctx context.Context, query Vector, k int, candidates []PointOffset) ([]ScoredPoint, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := v.checkDim(query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var stopped atomic.Bool
	stop := context.AfterFunc(ctx, func() { stopped.Store(true) })
	defer stop()

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}
	sc, err := scorer.New(query, v.s, v.s.DeletedVectorBitSlice())
	if err != nil {
		return nil, translateError(err)
	}

	var hits []ScoredPoint
	if candidates == nil {
		hits, err = sc.PeekTopAll(k, &stopped)
	} else {
		hits, err = sc.PeekTop(slices.Values(candidates), k, &stopped)
	}
	if errors.Is(err, scorer.ErrStopped) {
		return nil, ctx.Err()
	}
	return hits, err
}

// Flush persists pending writes.
func (v *VectorStorage) Flush(ctx context.Context) error {
	err := translateError(v.flusher()())
	v.store.opts.logger.LogFlush(ctx, v.name, err)
	return err
}

func (v *VectorStorage) flusher() core.Flusher {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return core.NoopFlusher
	}
	return v.s.Flusher()
}

// ClearCache evicts mapped pages. Failures are logged, not returned.
func (v *VectorStorage) ClearCache() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.ClearCache()
}

// Files lists the backing files.
func (v *VectorStorage) Files() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.Files()
}

// ImmutableFiles lists backing files that never change.
func (v *VectorStorage) ImmutableFiles() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.ImmutableFiles()
}

// StorageType describes the backend.
func (v *VectorStorage) StorageType() StorageType {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s.StorageType()
}

// Close releases mappings and memory and detaches the storage from its
// store. It does not flush.
func (v *VectorStorage) Close() error {
	v.store.unregister(vectorName(v.name))
	return translateError(v.close())
}

func (v *VectorStorage) close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	err := v.s.Close()
	if v.db != nil {
		err = errors.Join(err, v.db.Close())
	}
	return err
}
