package kvstore

import (
	"path/filepath"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry shares one DB handle per database path.
type Registry struct {
	handles *xsync.MapOf[string, *DB]
	opts    []Option
}

// NewRegistry creates an empty registry. opts apply to every handle it opens.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		handles: xsync.NewMapOf[string, *DB](),
		opts:    opts,
	}
}

// Acquire returns the shared handle for path, opening it on first use.
// Every Acquire must be matched by a Close on the returned handle.
func (r *Registry) Acquire(path string) (*DB, error) {
	key := filepath.Clean(path)

	var openErr error
	db, _ := r.handles.Compute(key, func(old *DB, loaded bool) (*DB, bool) {
		if loaded && !old.closed.Load() {
			old.refs.Add(1)
			return old, false
		}
		fresh, err := Open(key, r.opts...)
		if err != nil {
			openErr = err
			return nil, true
		}
		fresh.registry = r
		return fresh, false
	})
	if openErr != nil {
		return nil, openErr
	}
	return db, nil
}

// Len returns the number of open shared handles.
func (r *Registry) Len() int {
	return r.handles.Size()
}

func (r *Registry) release(d *DB) error {
	var closeNow bool
	r.handles.Compute(d.path, func(old *DB, loaded bool) (*DB, bool) {
		if d.refs.Add(-1) > 0 {
			return old, !loaded
		}
		closeNow = true
		// Only drop the entry if it still points at this handle.
		if loaded && old == d {
			return nil, true
		}
		return old, !loaded
	})
	if closeNow {
		return d.closeNow()
	}
	return nil
}
