package mapindex

import (
	"sync"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
)

// ColumnName returns the column family that stores field's index.
func ColumnName(field string) string {
	return field + "_map"
}

// kvColumn is the field's column family, created on first write. Mutable and
// immutable indexes over the same field share one so scheduled deletes are
// seen by both.
type kvColumn struct {
	db   *kvstore.DB
	name string

	mu  sync.Mutex
	col *kvstore.ScheduledDeleteColumn
}

func newKVColumn(db *kvstore.DB, field string) *kvColumn {
	return &kvColumn{db: db, name: ColumnName(field)}
}

func (k *kvColumn) exists() (bool, error) {
	k.mu.Lock()
	created := k.col != nil
	k.mu.Unlock()
	if created {
		return true, nil
	}
	return k.db.HasColumn(k.name)
}

func (k *kvColumn) column() (*kvstore.ScheduledDeleteColumn, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.col != nil {
		return k.col, nil
	}
	col, err := k.db.Column(k.name)
	if err != nil {
		return nil, err
	}
	k.col = kvstore.NewScheduledDeleteColumn(col)
	return k.col, nil
}

func (k *kvColumn) flusher() core.Flusher {
	k.mu.Lock()
	col := k.col
	k.mu.Unlock()
	if col == nil {
		return k.db.Flush
	}
	return col.Flusher()
}

func (k *kvColumn) drop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.col != nil {
		err := k.col.RemoveColumnFamily()
		k.col = nil
		return err
	}
	return k.db.DropColumn(k.name)
}
