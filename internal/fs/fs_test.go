package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())
	assert.NoError(t, f.Close())

	info, err := lfs.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.NoError(t, lfs.Truncate(fpath, 3))
	assert.NoError(t, lfs.RemoveAll(dir))
	ok, err := Exists(lfs, dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFileAtomic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "status.dat")

	require.NoError(t, WriteFileAtomic(Default, name, []byte("v1")))
	require.NoError(t, WriteFileAtomic(Default, name, []byte("v2")))

	data, err := ReadFile(Default, name)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	ok, err := Exists(Default, name+".tmp")
	require.NoError(t, err)
	assert.False(t, ok, "temporary file is renamed away")

	require.NoError(t, SyncDir(Default, filepath.Dir(name)))
}

func TestFaultyFS(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)

	custom := errors.New("sync broke")
	ffs.AddRule("status", Fault{FailOnSync: true, Err: custom})
	ffs.AddRule("locked", Fault{FailOnRemove: true})
	ffs.AddRule("missing", Fault{FailOnOpen: true})

	err := WriteFileAtomic(ffs, filepath.Join(tmp, "status.dat"), []byte("x"))
	assert.ErrorIs(t, err, custom)

	require.NoError(t, WriteFileAtomic(ffs, filepath.Join(tmp, "other.dat"), []byte("x")))

	locked := filepath.Join(tmp, "locked")
	require.NoError(t, ffs.MkdirAll(locked, 0o755))
	assert.ErrorIs(t, ffs.RemoveAll(locked), ErrInjected)

	_, err = ffs.OpenFile(filepath.Join(tmp, "missing"), os.O_CREATE|os.O_RDWR, 0o644)
	assert.ErrorIs(t, err, ErrInjected)

	ffs.ClearRules()
	assert.NoError(t, ffs.RemoveAll(locked))
}

func TestFaultyFS_WriteFault(t *testing.T) {
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("chunk", Fault{FailOnWrite: true})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "chunk_0"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("data"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrInjected)

	_, err = f.WriteAt([]byte("data"), 4)
	assert.ErrorIs(t, err, ErrInjected)
}

func TestChecksummed(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "status.dat")

	require.NoError(t, WriteChecksummed(Default, name, []byte("hello")))
	got, err := ReadChecksummed(Default, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	raw, err := os.ReadFile(name)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	require.NoError(t, os.WriteFile(name, raw, 0o644))

	_, err = ReadChecksummed(Default, name)
	assert.ErrorIs(t, err, ErrChecksum)

	require.NoError(t, os.WriteFile(name, []byte{1, 2}, 0o644))
	_, err = ReadChecksummed(Default, name)
	assert.ErrorIs(t, err, ErrChecksum)
}
