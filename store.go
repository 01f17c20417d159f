package vecseg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
	"github.com/hupe1980/vecseg/internal/resource"
)

// KVFile is the transactional database of a store directory.
const KVFile = "kv.db"

// Directory layout below a store directory.
const (
	indexDir   = "index"
	vectorsDir = "vectors"
)

// Handles shares reference-counted database handles between stores opened
// on the same directory. The zero value is not usable; use NewHandles.
type Handles struct {
	registry *kvstore.Registry
}

// NewHandles returns an empty handle set.
func NewHandles() *Handles {
	return &Handles{registry: kvstore.NewRegistry()}
}

// Open returns the number of open database handles.
func (h *Handles) Open() int { return h.registry.Len() }

// component is a value index or vector storage owned by a store.
type component interface {
	flusher() core.Flusher
	close() error
}

// Store is one segment directory. It owns the shared transactional database
// and every value index and vector storage opened through it.
type Store struct {
	dir     string
	opts    options
	res     *resource.Controller
	handles *Handles
	db      *kvstore.DB

	mu         sync.Mutex
	closed     bool
	components map[string]component
}

// Open opens (creating if needed) the segment directory dir.
func Open(dir string, optFns ...Option) (*Store, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, translateError(core.ServiceErrorf("vecseg: create %s: %w", dir, err))
	}
	handles := o.handles
	if handles == nil {
		handles = NewHandles()
	}
	db, err := handles.registry.Acquire(filepath.Join(dir, KVFile))
	if err != nil {
		return nil, translateError(core.ServiceErrorf("vecseg: open kv: %w", err))
	}

	s := &Store{
		dir:  dir,
		opts: o,
		res: resource.NewController(resource.Config{
			MemoryLimitBytes:   o.memoryLimit,
			IOLimitBytesPerSec: o.ioLimit,
		}),
		handles:    handles,
		db:         db,
		components: make(map[string]component),
	}
	o.logger.Info("store opened", "dir", dir)
	return s, nil
}

// Dir returns the segment directory.
func (s *Store) Dir() string { return s.dir }

// MemoryUsage returns the bytes of resident vector chunks.
func (s *Store) MemoryUsage() int64 { return s.res.MemoryUsage() }

// acquireDB takes an extra reference on the store's database for a
// component. The caller closes it when done.
func (s *Store) acquireDB() (*kvstore.DB, error) {
	db, err := s.handles.registry.Acquire(s.db.Path())
	if err != nil {
		return nil, translateError(core.ServiceErrorf("vecseg: acquire kv: %w", err))
	}
	return db, nil
}

func (s *Store) register(name string, c component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.components[name]; ok {
		return fmt.Errorf("vecseg: %s is already open", name)
	}
	s.components[name] = c
	return nil
}

func (s *Store) unregister(name string) {
	s.mu.Lock()
	delete(s.components, name)
	s.mu.Unlock()
}

// Flush persists every open component, then checkpoints the database.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	flushers := make([]core.Flusher, 0, len(s.components)+1)
	for _, c := range s.components {
		flushers = append(flushers, c.flusher())
	}
	s.mu.Unlock()

	start := time.Now()
	err := core.JoinFlushers(flushers...)()
	if err == nil {
		err = s.db.Flush()
	}
	err = translateError(err)
	s.opts.metricsCollector.RecordFlush(time.Since(start), err)
	s.opts.logger.LogFlush(ctx, s.dir, err)
	return err
}

// Close closes every open component and releases the database. It does not
// flush.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	components := s.components
	s.components = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range components {
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return translateError(core.ServiceErrorf("vecseg: close: %w", errors.Join(errs...)))
	}
	return nil
}
