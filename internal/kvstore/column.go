package kvstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hupe1980/vecseg/internal/core"
)

// Column is one column family: an ordered map from byte keys to byte values.
type Column struct {
	db    *DB
	name  string
	table string
}

// Name returns the column family name.
func (c *Column) Name() string {
	return c.name
}

// DB returns the owning handle.
func (c *Column) DB() *DB {
	return c.db
}

// Put stores value under key, replacing any previous value.
func (c *Column) Put(key, value []byte) error {
	if c.db.closed.Load() {
		return ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	_, err := c.db.sql.Exec(fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, v) VALUES (?, ?)`, c.table), key, value)
	if err != nil {
		return fmt.Errorf("kvstore: put %s: %w", c.name, err)
	}
	return nil
}

// Get returns the value stored under key.
func (c *Column) Get(key []byte) ([]byte, bool, error) {
	if c.db.closed.Load() {
		return nil, false, ErrClosed
	}
	var v []byte
	err := c.db.sql.QueryRow(fmt.Sprintf(`SELECT v FROM %s WHERE k = ?`, c.table), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore: get %s: %w", c.name, err)
	}
	return v, true, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (c *Column) Remove(key []byte) error {
	if c.db.closed.Load() {
		return ErrClosed
	}
	if _, err := c.db.sql.Exec(fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, c.table), key); err != nil {
		return fmt.Errorf("kvstore: remove %s: %w", c.name, err)
	}
	return nil
}

// Iterate calls fn for every entry in ascending key order. The slices passed
// to fn are owned by fn. Returning an error stops the iteration.
func (c *Column) Iterate(fn func(key, value []byte) error) error {
	if c.db.closed.Load() {
		return ErrClosed
	}
	rows, err := c.db.sql.Query(fmt.Sprintf(`SELECT k, v FROM %s ORDER BY k`, c.table))
	if err != nil {
		return fmt.Errorf("kvstore: iterate %s: %w", c.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("kvstore: iterate %s: %w", c.name, err)
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Len returns the number of keys.
func (c *Column) Len() (int, error) {
	if c.db.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	if err := c.db.sql.QueryRow(fmt.Sprintf(`SELECT count(*) FROM %s`, c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("kvstore: count %s: %w", c.name, err)
	}
	return n, nil
}

// Batch applies a group of writes atomically.
type Batch struct {
	tx  *sql.Tx
	col *Column
}

// Put stages a put.
func (b *Batch) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := b.tx.Exec(fmt.Sprintf(`INSERT OR REPLACE INTO %s (k, v) VALUES (?, ?)`, b.col.table), key, value)
	return err
}

// Remove stages a delete.
func (b *Batch) Remove(key []byte) error {
	_, err := b.tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, b.col.table), key)
	return err
}

// Update runs fn inside one transaction; an error from fn rolls it back.
func (c *Column) Update(fn func(b *Batch) error) error {
	if c.db.closed.Load() {
		return ErrClosed
	}
	tx, err := c.db.sql.Begin()
	if err != nil {
		return fmt.Errorf("kvstore: begin %s: %w", c.name, err)
	}
	if err := fn(&Batch{tx: tx, col: c}); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("kvstore: batch %s: %w", c.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit %s: %w", c.name, err)
	}
	return nil
}

// Flusher returns a flusher that checkpoints the database.
func (c *Column) Flusher() core.Flusher {
	return c.db.Flush
}

// Drop removes the column family.
func (c *Column) Drop() error {
	return c.db.DropColumn(c.name)
}
