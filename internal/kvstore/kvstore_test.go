package kvstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestColumnCRUD(t *testing.T) {
	db := openTestDB(t)

	col, err := db.Column("field_map")
	require.NoError(t, err)
	assert.Equal(t, "field_map", col.Name())

	require.NoError(t, col.Put([]byte("b"), []byte("2")))
	require.NoError(t, col.Put([]byte("a"), nil))
	require.NoError(t, col.Put([]byte("c"), []byte("3")))

	v, ok, err := col.Get([]byte("b"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	_, ok, err = col.Get([]byte("zz"))
	require.NoError(t, err)
	assert.False(t, ok)

	var keys []string
	require.NoError(t, col.Iterate(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, col.Remove([]byte("b")))
	require.NoError(t, col.Remove([]byte("missing")))
	n, err := col.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestColumnIterateStops(t *testing.T) {
	db := openTestDB(t)
	col, err := db.Column("c")
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, col.Put([]byte(k), nil))
	}

	stop := errors.New("stop")
	seen := 0
	err = col.Iterate(func(_, _ []byte) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestColumnUpdateRollback(t *testing.T) {
	db := openTestDB(t)
	col, err := db.Column("c")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = col.Update(func(b *Batch) error {
		require.NoError(t, b.Put([]byte("x"), []byte("1")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := col.Get([]byte("x"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, col.Update(func(b *Batch) error {
		if err := b.Put([]byte("x"), []byte("1")); err != nil {
			return err
		}
		return b.Put([]byte("y"), []byte("2"))
	}))
	n, err := col.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestColumnFamilies(t *testing.T) {
	db := openTestDB(t)

	ok, err := db.HasColumn("weird\"name")
	require.NoError(t, err)
	assert.False(t, ok)

	col, err := db.Column("weird\"name")
	require.NoError(t, err)
	require.NoError(t, col.Put([]byte("k"), nil))

	ok, err = db.HasColumn("weird\"name")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, col.Drop())
	ok, err = db.HasColumn("weird\"name")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Flush())
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	db, err := Open(path)
	require.NoError(t, err)
	col, err := db.Column("c")
	require.NoError(t, err)
	require.NoError(t, col.Put([]byte("k"), []byte("v")))
	require.NoError(t, col.Flusher()())
	require.NoError(t, db.Close())

	_, err = db.Column("c")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, col.Put([]byte("k"), nil), ErrClosed)

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	col, err = db.Column("c")
	require.NoError(t, err)
	v, ok, err := col.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestRegistrySharesHandles(t *testing.T) {
	reg := NewRegistry()
	path := filepath.Join(t.TempDir(), "kv.db")

	a, err := reg.Acquire(path)
	require.NoError(t, err)
	b, err := reg.Acquire(path)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, a.Close())
	// still referenced by b
	_, err = b.Column("c")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, b.Close())
	assert.Equal(t, 0, reg.Len())
	_, err = b.Column("c")
	assert.ErrorIs(t, err, ErrClosed)

	c, err := reg.Acquire(path)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	require.NoError(t, c.Close())
}

func TestScheduledDeleteColumn(t *testing.T) {
	db := openTestDB(t)
	col, err := db.Column("c")
	require.NoError(t, err)
	s := NewScheduledDeleteColumn(col)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put([]byte(k), nil))
	}
	require.NoError(t, s.Remove([]byte("b")))
	assert.Equal(t, 1, s.PendingDeletes())

	collect := func() []string {
		var keys []string
		require.NoError(t, s.Iterate(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		}))
		return keys
	}
	assert.Equal(t, []string{"a", "c"}, collect())

	// still physically present until flush
	n, err := col.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Flusher()())
	assert.Equal(t, 0, s.PendingDeletes())
	n, err = col.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// a put cancels a pending delete
	require.NoError(t, s.Remove([]byte("a")))
	require.NoError(t, s.Put([]byte("a"), []byte("again")))
	require.NoError(t, s.Flusher()())
	assert.Equal(t, []string{"a", "c"}, collect())

	require.NoError(t, s.RemoveColumnFamily())
	ok, err := db.HasColumn("c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduledDeleteColumn_PutManyCancelsDeletes(t *testing.T) {
	db := openTestDB(t)
	col, err := db.Column("c")
	require.NoError(t, err)
	s := NewScheduledDeleteColumn(col)

	require.NoError(t, s.PutMany([][]byte{[]byte("a"), []byte("b")}, nil))
	require.NoError(t, s.Remove([]byte("a")))
	require.NoError(t, s.PutMany([][]byte{[]byte("a")}, [][]byte{[]byte("1")}))
	assert.Equal(t, 0, s.PendingDeletes())

	require.NoError(t, s.Flusher()())
	v, ok, err := col.Get([]byte("a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}
