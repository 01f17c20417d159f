package vectorstorage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/chunked"
	"github.com/hupe1980/vecseg/internal/conv"
	"github.com/hupe1980/vecseg/internal/core"
)

// ErrDimMismatch is returned for vectors of the wrong dimension.
var ErrDimMismatch = errors.New("vectorstorage: dimension mismatch")

// Offsets record layout for multi-dense storages.
const (
	offStart = iota
	offCount
	offCapacity
	offsetsDim
)

// Storage is a dense or multi-dense vector storage.
//
// Storage does no locking of its own. Callers hold an exclusive lock for
// mutations and a shared lock for reads.
type Storage struct {
	cfg    Config
	multi  bool
	kind   core.StorageKind
	logger *slog.Logger

	// vectors holds dense vectors, or the sub-vectors of multi-dense ones.
	vectors *chunked.Vectors[float32]
	// offsets holds one (start, count, capacity) record per point; nil for
	// dense storages.
	offsets *chunked.Vectors[uint32]
	deleted deletedFlags
	legacy  *legacyKV

	deletedCount int
}

func newStorage(cfg Config, multi bool, kind core.StorageKind) *Storage {
	return &Storage{cfg: cfg, multi: multi, kind: kind, logger: cfg.Logger}
}

// initCounters derives the deleted counter once after opening.
func (s *Storage) initCounters() error {
	total := s.TotalVectorCount()
	if s.deleted.Len() < total {
		if err := s.deleted.SetLen(total); err != nil {
			return err
		}
	}
	s.deletedCount = s.deleted.Count()
	return nil
}

// Dim returns the (sub-)vector dimension.
func (s *Storage) Dim() int { return s.cfg.Dim }

// Metric returns the configured similarity.
func (s *Storage) Metric() distance.Metric { return s.cfg.Metric }

// IsMulti reports whether the storage holds multi-dense vectors.
func (s *Storage) IsMulti() bool { return s.multi }

// TotalVectorCount returns the number of point slots, deleted included.
func (s *Storage) TotalVectorCount() int {
	if s.multi {
		return s.offsets.Len()
	}
	return s.vectors.Len()
}

// DeletedVectorCount returns the number of deleted points.
func (s *Storage) DeletedVectorCount() int { return s.deletedCount }

// InsertVector stores v at point id, replacing any previous vector and
// clearing its deleted flag. A rejected vector leaves the storage unchanged.
func (s *Storage) InsertVector(id core.PointOffset, v Vector, hw *core.HardwareCounter) error {
	if s.legacy != nil && s.cfg.LegacyWritesDisabled {
		return core.ServiceErrorf("vectorstorage: writes to legacy kv storage are disabled")
	}
	if err := s.validate(v); err != nil {
		return err
	}
	if err := s.write(id, v); err != nil {
		return err
	}
	if err := s.setDeleted(id, false); err != nil {
		return err
	}
	if s.legacy != nil {
		if err := s.legacy.put(id, v.Data, false); err != nil {
			return err
		}
	}
	hw.AddVectorIOWrite(4 * len(v.Data))
	return nil
}

func (s *Storage) validate(v Vector) error {
	if v.Dim != s.cfg.Dim || len(v.Data) == 0 || len(v.Data)%s.cfg.Dim != 0 {
		return fmt.Errorf("%w: got %d elements of dim %d, storage dim %d", ErrDimMismatch, len(v.Data), v.Dim, s.cfg.Dim)
	}
	if !s.multi {
		if len(v.Data) != s.cfg.Dim {
			return fmt.Errorf("%w: dense storage takes one vector, got %d", ErrDimMismatch, v.Count())
		}
		return nil
	}
	if len(v.Data) > s.cfg.MaxFlattenedLen {
		return &core.SizeLimitError{What: "multi-vector", Size: len(v.Data), Limit: s.cfg.MaxFlattenedLen, Unit: "elements"}
	}
	if size := 4 * len(v.Data); size > s.cfg.ChunkBytes {
		return &core.SizeLimitError{What: "multi-vector", Size: size, Limit: s.cfg.ChunkBytes, Unit: "bytes"}
	}
	return nil
}

func (s *Storage) write(id core.PointOffset, v Vector) error {
	if !s.multi {
		return s.vectors.Insert(int(id), v.Data)
	}

	count := uint32(v.Count())
	if rec := s.offsets.Get(int(id)); rec != nil && rec[offCapacity] >= count && rec[offCapacity] > 0 {
		if err := s.vectors.InsertRun(int(rec[offStart]), v.Data); err != nil {
			return err
		}
		return s.offsets.Insert(int(id), []uint32{rec[offStart], count, rec[offCapacity]})
	}

	start, err := s.vectors.PushRun(v.Data)
	if err != nil {
		return err
	}
	start32, err := conv.IntToUint32(start)
	if err != nil {
		return core.ServiceErrorf("vectorstorage: multi-vector offset: %w", err)
	}
	return s.offsets.Insert(int(id), []uint32{start32, count, count})
}

func (s *Storage) setDeleted(id core.PointOffset, deleted bool) error {
	prev, err := s.deleted.Set(int(id), deleted)
	if err != nil {
		return err
	}
	switch {
	case deleted && !prev:
		s.deletedCount++
	case !deleted && prev:
		s.deletedCount--
	}
	return nil
}

// GetVector returns the vector of id. It panics if id holds no vector.
func (s *Storage) GetVector(id core.PointOffset) Vector {
	v, ok := s.GetVectorOpt(id)
	if !ok {
		panic(fmt.Sprintf("vectorstorage: no vector for point %d", id))
	}
	return v
}

// GetVectorOpt returns the vector of id. Deleted vectors are still
// returned. The data aliases storage memory.
func (s *Storage) GetVectorOpt(id core.PointOffset) (Vector, bool) {
	if !s.multi {
		data := s.vectors.Get(int(id))
		if data == nil {
			return Vector{}, false
		}
		return Vector{Data: data, Dim: s.cfg.Dim}, true
	}

	rec := s.offsets.Get(int(id))
	if rec == nil || rec[offCount] == 0 {
		return Vector{}, false
	}
	data := s.vectors.GetRun(int(rec[offStart]), int(rec[offCount]))
	if data == nil {
		return Vector{}, false
	}
	return Vector{Data: data, Dim: s.cfg.Dim}, true
}

// DeleteVector marks id deleted and reports whether it was live before.
// Ids beyond the storage are ignored.
func (s *Storage) DeleteVector(id core.PointOffset) (bool, error) {
	if int(id) >= s.TotalVectorCount() {
		return false, nil
	}
	if s.deleted.Get(int(id)) {
		return false, nil
	}
	if err := s.setDeleted(id, true); err != nil {
		return false, err
	}
	if s.legacy != nil {
		v, _ := s.GetVectorOpt(id)
		if err := s.legacy.put(id, v.Data, true); err != nil {
			return true, err
		}
	}
	return true, nil
}

// IsDeletedVector reports whether id is deleted.
func (s *Storage) IsDeletedVector(id core.PointOffset) bool {
	return s.deleted.Get(int(id))
}

// DeletedVectorBitSlice returns the deletion flags. For memory-mapped
// storages it is a snapshot.
func (s *Storage) DeletedVectorBitSlice() bitset.View {
	return s.deleted.View()
}

// IterateInnerVectors yields every stored sub-vector in point order,
// deleted points included.
func (s *Storage) IterateInnerVectors() iter.Seq[[]float32] {
	return func(yield func([]float32) bool) {
		for id := 0; id < s.TotalVectorCount(); id++ {
			v, ok := s.GetVectorOpt(core.PointOffset(id))
			if !ok {
				continue
			}
			for sub := range v.SubVectors() {
				if !yield(sub) {
					return
				}
			}
		}
	}
}

// Records yields every stored vector in offset order. Gaps of a multi-dense
// storage are skipped.
func (s *Storage) Records() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for i := range s.TotalVectorCount() {
			id := core.PointOffset(i)
			vec, ok := s.GetVectorOpt(id)
			if !ok {
				continue
			}
			if !yield(Record{ID: id, Vector: vec, Deleted: s.IsDeletedVector(id)}) {
				return
			}
		}
	}
}

// UpdateFrom merges records from another storage. A record is written to
// idMap[rec.ID] when idMap is given, and appended otherwise. Each record
// keeps its deleted flag. It returns the range [start, end) of written
// offsets.
func (s *Storage) UpdateFrom(ctx context.Context, records iter.Seq[Record], idMap []core.PointOffset) (core.PointOffset, core.PointOffset, error) {
	if s.legacy != nil && s.cfg.LegacyWritesDisabled {
		return 0, 0, core.ServiceErrorf("vectorstorage: writes to legacy kv storage are disabled")
	}

	next := core.PointOffset(s.TotalVectorCount())
	start, end := next, next
	first := true
	for rec := range records {
		if err := ctx.Err(); err != nil {
			return start, end, err
		}
		if err := s.cfg.Resources.AcquireIO(ctx, 4*len(rec.Vector.Data)); err != nil {
			return start, end, err
		}

		id := next
		if idMap != nil {
			if int(rec.ID) >= len(idMap) {
				return start, end, fmt.Errorf("vectorstorage: id mapping has %d entries, record %d given", len(idMap), rec.ID)
			}
			id = idMap[rec.ID]
		} else {
			next++
		}

		if err := s.InsertVector(id, rec.Vector, nil); err != nil {
			return start, end, err
		}
		if rec.Deleted {
			if _, err := s.DeleteVector(id); err != nil {
				return start, end, err
			}
		}

		if first || id < start {
			start = id
		}
		if first || id+1 > end {
			end = id + 1
		}
		first = false
	}
	return start, end, nil
}

// Flusher persists vectors before the records that point at them, then the
// deletion flags.
func (s *Storage) Flusher() core.Flusher {
	vectors := s.vectors.Flusher()
	offsets := core.NoopFlusher
	if s.multi {
		offsets = s.offsets.Flusher()
	}
	deleted := s.deleted.Flusher()
	legacy := core.NoopFlusher
	if s.legacy != nil {
		legacy = s.legacy.flusher()
	}
	return func() error {
		for _, f := range []core.Flusher{vectors, offsets, deleted, legacy} {
			if err := f(); err != nil {
				return err
			}
		}
		return nil
	}
}

// Files lists every backing file.
func (s *Storage) Files() []string {
	var files []string
	files = append(files, s.vectors.Files()...)
	if s.multi {
		files = append(files, s.offsets.Files()...)
	}
	return append(files, s.deleted.Files()...)
}

// ImmutableFiles lists backing files that never change. Appendable
// storages have none.
func (s *Storage) ImmutableFiles() []string {
	return nil
}

// ClearCache drops resident pages of mapped files. Failures are logged.
func (s *Storage) ClearCache() error {
	errs := []error{s.vectors.ClearCache(), s.deleted.ClearCache()}
	if s.multi {
		errs = append(errs, s.offsets.ClearCache())
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("failed to clear vector storage cache", "error", err)
	}
	return nil
}

// StorageType describes the backend.
func (s *Storage) StorageType() core.StorageType {
	if s.kind == core.StorageMmap {
		return core.StorageType{Kind: core.StorageMmap, OnDisk: !s.cfg.Populate}
	}
	return core.StorageType{Kind: s.kind}
}

// Close releases mappings and resident memory. It does not flush.
func (s *Storage) Close() error {
	errs := []error{s.vectors.Close(), s.deleted.Close()}
	if s.multi {
		errs = append(errs, s.offsets.Close())
	}
	return errors.Join(errs...)
}
