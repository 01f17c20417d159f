package flags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/fs"
)

func TestDynamicMmapFlags_SetGet(t *testing.T) {
	f, err := Open(t.TempDir(), false, nil)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Get(10))

	prev, err := f.Set(10, true)
	require.NoError(t, err)
	assert.False(t, prev)
	assert.Equal(t, 11, f.Len())
	assert.Equal(t, 1, f.Count())

	prev, err = f.Set(10, true)
	require.NoError(t, err)
	assert.True(t, prev)
	assert.Equal(t, 1, f.Count())

	prev, err = f.Set(10, false)
	require.NoError(t, err)
	assert.True(t, prev)
	assert.Equal(t, 0, f.Count())
}

func TestDynamicMmapFlags_Grow(t *testing.T) {
	f, err := Open(t.TempDir(), false, nil)
	require.NoError(t, err)
	defer f.Close()

	big := minCapacityBits*3 + 5
	_, err = f.Set(big, true)
	require.NoError(t, err)
	_, err = f.Set(7, true)
	require.NoError(t, err)

	assert.True(t, f.Get(big))
	assert.True(t, f.Get(7))
	assert.Equal(t, big+1, f.Len())
	assert.Equal(t, 2, f.Count())

	require.NoError(t, f.SetLen(8))
	assert.Equal(t, 1, f.Count())
	assert.False(t, f.Get(big))

	require.NoError(t, f.SetLen(big+1))
	assert.False(t, f.Get(big), "shrinking clears dropped bits")
}

func TestDynamicMmapFlags_Persistence(t *testing.T) {
	dir := t.TempDir()

	f, err := Open(dir, false, nil)
	require.NoError(t, err)
	for _, i := range []int{1, 3, 100} {
		_, err := f.Set(i, true)
		require.NoError(t, err)
	}
	require.NoError(t, f.Flusher()())

	// unflushed tail is discarded on reopen
	_, err = f.Set(500, true)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = Open(dir, true, nil)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 101, f.Len())
	assert.Equal(t, 3, f.Count())
	assert.True(t, f.Get(3))
	assert.False(t, f.Get(500))

	snap := f.Snapshot()
	assert.Equal(t, 101, snap.Len())
	assert.Equal(t, 3, snap.Count())

	assert.Equal(t, []string{
		filepath.Join(dir, DataFile),
		filepath.Join(dir, StatusFile),
	}, f.Files())
	require.NoError(t, f.ClearCache())
	assert.True(t, f.Get(100))
}

func TestDynamicMmapFlags_CorruptStatus(t *testing.T) {
	dir := t.TempDir()
	f, err := Open(dir, false, nil)
	require.NoError(t, err)
	_, err = f.Set(1, true)
	require.NoError(t, err)
	require.NoError(t, f.Flusher()())
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, StatusFile), []byte("garbage-garbage!"), 0o644))

	_, err = Open(dir, false, nil)
	assert.ErrorIs(t, err, core.ErrServiceError)
}

func TestDynamicMmapFlags_FlushFault(t *testing.T) {
	dir := t.TempDir()
	ffs := fs.NewFaultyFS(fs.Default)

	f, err := Open(dir, false, ffs)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Set(1, true)
	require.NoError(t, err)

	ffs.AddRule(StatusFile, fs.Fault{FailOnOpen: true})
	assert.ErrorIs(t, f.Flusher()(), core.ErrServiceError)

	ffs.ClearRules()
	assert.NoError(t, f.Flusher()())
}
