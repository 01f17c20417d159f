package vectorstorage

import (
	"path/filepath"

	"github.com/hupe1980/vecseg/internal/chunked"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/flags"
	"github.com/hupe1980/vecseg/internal/kvstore"
)

// Subdirectories of an appendable mmap storage.
const (
	vectorsDir = "vectors"
	offsetsDir = "offsets"
	deletedDir = "deleted"
)

// NewVolatileDense returns an in-memory dense storage.
func NewVolatileDense(cfg Config) (*Storage, error) {
	return newVolatile(cfg, false)
}

// NewVolatileMultiDense returns an in-memory multi-dense storage.
func NewVolatileMultiDense(cfg Config) (*Storage, error) {
	return newVolatile(cfg, true)
}

func newVolatile(cfg Config, multi bool) (*Storage, error) {
	cfg = cfg.withDefaults()
	s := newStorage(cfg, multi, core.StorageInRAM)
	if err := s.openResident(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) openResident() error {
	vectors, err := chunked.NewInRAM[float32](s.cfg.chunkConfig(s.cfg.Dim))
	if err != nil {
		return err
	}
	s.vectors = vectors
	if s.multi {
		if s.offsets, err = chunked.NewInRAM[uint32](s.cfg.chunkConfig(offsetsDim)); err != nil {
			return err
		}
	}
	s.deleted = newMemFlags()
	return nil
}

// OpenAppendableMmapDense opens or creates a dense storage in dir.
func OpenAppendableMmapDense(dir string, cfg Config) (*Storage, error) {
	return openMmap(dir, cfg, false)
}

// OpenAppendableMmapMultiDense opens or creates a multi-dense storage in dir.
func OpenAppendableMmapMultiDense(dir string, cfg Config) (*Storage, error) {
	return openMmap(dir, cfg, true)
}

func openMmap(dir string, cfg Config, multi bool) (_ *Storage, err error) {
	cfg = cfg.withDefaults()
	s := newStorage(cfg, multi, core.StorageMmap)

	var closers []func() error
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
		}
	}()

	if s.vectors, err = chunked.OpenMmap[float32](filepath.Join(dir, vectorsDir), cfg.chunkConfig(cfg.Dim)); err != nil {
		return nil, err
	}
	closers = append(closers, s.vectors.Close)

	if multi {
		if s.offsets, err = chunked.OpenMmap[uint32](filepath.Join(dir, offsetsDir), cfg.chunkConfig(offsetsDim)); err != nil {
			return nil, err
		}
		closers = append(closers, s.offsets.Close)
	}

	f, err := flags.Open(filepath.Join(dir, deletedDir), cfg.Populate, cfg.FS)
	if err != nil {
		return nil, err
	}
	s.deleted = mmapFlags{f}
	closers = append(closers, f.Close)

	if err = s.initCounters(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenLegacyKVDense opens a dense storage kept in column of db.
func OpenLegacyKVDense(db *kvstore.DB, column string, cfg Config) (*Storage, error) {
	return openLegacy(db, column, cfg, false)
}

// OpenLegacyKVMultiDense opens a multi-dense storage kept in column of db.
func OpenLegacyKVMultiDense(db *kvstore.DB, column string, cfg Config) (*Storage, error) {
	return openLegacy(db, column, cfg, true)
}

func openLegacy(db *kvstore.DB, column string, cfg Config, multi bool) (*Storage, error) {
	cfg = cfg.withDefaults()
	s := newStorage(cfg, multi, core.StorageKV)
	if err := s.openResident(); err != nil {
		return nil, err
	}

	col, err := db.Column(column)
	if err != nil {
		_ = s.Close()
		return nil, core.ServiceErrorf("vectorstorage: open legacy column %q: %w", column, err)
	}
	s.legacy = &legacyKV{col: col}
	if err := s.legacy.load(s); err != nil {
		_ = s.Close()
		return nil, core.ServiceErrorf("vectorstorage: load legacy column %q: %w", column, err)
	}
	if err := s.initCounters(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
