package kvstore

import (
	"sync"

	"github.com/hupe1980/vecseg/internal/core"
)

// ScheduledDeleteColumn buffers deletes until the next flush.
//
// Reads through the wrapper hide keys with a pending delete, so callers see
// the logical state immediately while the physical delete is batched.
type ScheduledDeleteColumn struct {
	col *Column

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewScheduledDeleteColumn wraps col.
func NewScheduledDeleteColumn(col *Column) *ScheduledDeleteColumn {
	return &ScheduledDeleteColumn{col: col, pending: make(map[string]struct{})}
}

// Column returns the wrapped column.
func (s *ScheduledDeleteColumn) Column() *Column {
	return s.col
}

// Put writes through and cancels any pending delete of key.
func (s *ScheduledDeleteColumn) Put(key, value []byte) error {
	s.mu.Lock()
	delete(s.pending, string(key))
	s.mu.Unlock()
	return s.col.Put(key, value)
}

// PutMany writes all keys in one transaction and cancels their pending
// deletes. values may be nil, or hold one value per key.
func (s *ScheduledDeleteColumn) PutMany(keys, values [][]byte) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.pending, string(k))
	}
	s.mu.Unlock()
	return s.col.Update(func(b *Batch) error {
		for i, k := range keys {
			var v []byte
			if values != nil {
				v = values[i]
			}
			if err := b.Put(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove schedules key for deletion at the next flush.
func (s *ScheduledDeleteColumn) Remove(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[string(key)] = struct{}{}
	return nil
}

// PendingDeletes returns the number of scheduled deletes.
func (s *ScheduledDeleteColumn) PendingDeletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Iterate walks the column in key order, skipping keys pending deletion.
func (s *ScheduledDeleteColumn) Iterate(fn func(key, value []byte) error) error {
	s.mu.Lock()
	pending := make(map[string]struct{}, len(s.pending))
	for k := range s.pending {
		pending[k] = struct{}{}
	}
	s.mu.Unlock()

	return s.col.Iterate(func(k, v []byte) error {
		if _, ok := pending[string(k)]; ok {
			return nil
		}
		return fn(k, v)
	})
}

// Flusher returns a flusher that applies pending deletes in one transaction
// and checkpoints the database. Deletes scheduled while the flush runs are
// kept for the next flush.
func (s *ScheduledDeleteColumn) Flusher() core.Flusher {
	return func() error {
		s.mu.Lock()
		keys := make([]string, 0, len(s.pending))
		for k := range s.pending {
			keys = append(keys, k)
		}
		s.mu.Unlock()

		if len(keys) > 0 {
			err := s.col.Update(func(b *Batch) error {
				for _, k := range keys {
					if err := b.Remove([]byte(k)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			s.mu.Lock()
			for _, k := range keys {
				delete(s.pending, k)
			}
			s.mu.Unlock()
		}
		return s.col.db.Flush()
	}
}

// RemoveColumnFamily drops the column and forgets pending deletes.
func (s *ScheduledDeleteColumn) RemoveColumnFamily() error {
	s.mu.Lock()
	s.pending = make(map[string]struct{})
	s.mu.Unlock()
	return s.col.Drop()
}
