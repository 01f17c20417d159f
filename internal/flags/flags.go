// Package flags implements a growable, memory-mapped bit vector.
//
// The bits live in a sparse data file that is grown in large steps; the
// logical length lives in a small checksummed status file written on flush.
// After a crash the data file may hold bits beyond the last flushed length;
// they are cleared on open.
package flags

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/conv"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/mmap"
)

const (
	// DataFile holds the bit words.
	DataFile = "flags.mmap"
	// StatusFile holds the logical length.
	StatusFile = "flags_status.dat"

	// minCapacityBits is the smallest data file, 8 KiB.
	minCapacityBits = 64 * 1024

	statusMagic   = 0x464c4147 // "FLAG"
	statusVersion = 1
	statusSize    = 16
)

// DynamicMmapFlags is a bit vector persisted in a memory-mapped file.
type DynamicMmapFlags struct {
	dir      string
	fsys     fs.FileSystem
	populate bool

	mu      sync.RWMutex
	mapping *mmap.Mapping
	bits    *bitset.Slice // spans the whole capacity
	length  int
	count   int
}

// Open opens or creates the flags stored in dir. populate asks the kernel to
// prefetch the pages.
func Open(dir string, populate bool, fsys fs.FileSystem) (*DynamicMmapFlags, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f := &DynamicMmapFlags{dir: dir, fsys: fsys, populate: populate}

	length, err := f.readStatus()
	if err != nil {
		return nil, err
	}

	dataPath := filepath.Join(dir, DataFile)
	exists, err := fs.Exists(fsys, dataPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := f.remap(capacityFor(length), true); err != nil {
			return nil, err
		}
	} else if err := f.remap(0, false); err != nil {
		return nil, err
	}

	if length > f.bits.Len() {
		_ = f.mapping.Close()
		return nil, core.ServiceErrorf("flags: status length %d exceeds data capacity %d", length, f.bits.Len())
	}
	f.length = length

	// Bits past the flushed length are leftovers from an unflushed run.
	for i := length; i < f.bits.Len(); i++ {
		f.bits.Replace(i, false)
	}
	for i := 0; i < length; i++ {
		if f.bits.Get(i) {
			f.count++
		}
	}

	if populate {
		_ = f.mapping.Advise(mmap.AccessWillNeed)
	}
	return f, nil
}

func capacityFor(n int) int {
	c := minCapacityBits
	for c < n {
		c *= 2
	}
	return c
}

// remap (re)maps the data file. With create set, the file is resized to
// capacity bits first; existing content is preserved.
func (f *DynamicMmapFlags) remap(capacity int, create bool) error {
	dataPath := filepath.Join(f.dir, DataFile)
	if create {
		file, err := f.fsys.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		if err := file.Truncate(int64(bitset.WordsFor(capacity) * 8)); err != nil {
			_ = file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}

	if f.mapping != nil {
		if err := f.mapping.Flush(); err != nil {
			return err
		}
		if err := f.mapping.Close(); err != nil {
			return err
		}
	}

	m, err := mmap.OpenWritable(dataPath)
	if err != nil {
		return err
	}
	bits, err := bitset.FromBytes(m.Bytes(), m.Size()*8)
	if err != nil {
		_ = m.Close()
		return err
	}
	f.mapping = m
	f.bits = bits
	return nil
}

func (f *DynamicMmapFlags) readStatus() (int, error) {
	path := filepath.Join(f.dir, StatusFile)
	payload, err := fs.ReadChecksummed(f.fsys, path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, core.ServiceErrorf("flags: read status: %w", err)
	}
	if len(payload) != statusSize ||
		binary.LittleEndian.Uint32(payload[0:]) != statusMagic ||
		binary.LittleEndian.Uint32(payload[4:]) != statusVersion {
		return 0, core.ServiceErrorf("flags: malformed status file %s", path)
	}
	length, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(payload[8:]))
	if err != nil {
		return 0, core.ServiceErrorf("flags: status %s: %w", path, err)
	}
	return length, nil
}

func (f *DynamicMmapFlags) writeStatus(length int) error {
	payload := make([]byte, statusSize)
	binary.LittleEndian.PutUint32(payload[0:], statusMagic)
	binary.LittleEndian.PutUint32(payload[4:], statusVersion)
	binary.LittleEndian.PutUint64(payload[8:], uint64(length))
	return fs.WriteChecksummed(f.fsys, filepath.Join(f.dir, StatusFile), payload)
}

// Len returns the logical length in bits.
func (f *DynamicMmapFlags) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.length
}

// Count returns the number of set bits.
func (f *DynamicMmapFlags) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Get reports whether bit i is set. Positions past Len read as unset.
func (f *DynamicMmapFlags) Get(i int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i >= f.length {
		return false
	}
	return f.bits.Get(i)
}

// Set stores v at bit i, growing the vector if needed, and returns the
// previous value.
func (f *DynamicMmapFlags) Set(i int, v bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= f.length {
		if err := f.setLenLocked(i + 1); err != nil {
			return false, err
		}
	}
	prev := f.bits.Replace(i, v)
	switch {
	case v && !prev:
		f.count++
	case !v && prev:
		f.count--
	}
	return prev, nil
}

// SetLen changes the logical length. Shrinking clears the dropped bits.
func (f *DynamicMmapFlags) SetLen(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setLenLocked(n)
}

func (f *DynamicMmapFlags) setLenLocked(n int) error {
	if n < 0 {
		return fmt.Errorf("flags: negative length %d", n)
	}
	if n < f.length {
		for i := n; i < f.length; i++ {
			if f.bits.Replace(i, false) {
				f.count--
			}
		}
		f.length = n
		return nil
	}
	if n > f.bits.Len() {
		if err := f.remap(capacityFor(n), true); err != nil {
			return core.ServiceErrorf("flags: grow to %d: %w", n, err)
		}
	}
	f.length = n
	return nil
}

// Snapshot copies the first Len bits into a detached BitVec.
func (f *DynamicMmapFlags) Snapshot() *bitset.BitVec {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := bitset.New(f.length)
	for i := 0; i < f.length; i++ {
		if f.bits.Get(i) {
			out.Replace(i, true)
		}
	}
	return out
}

// Flusher returns a flusher that syncs the bits and then the status file,
// so the flushed length never covers unsynced bits.
func (f *DynamicMmapFlags) Flusher() core.Flusher {
	return func() error {
		f.mu.RLock()
		defer f.mu.RUnlock()
		if err := f.mapping.Flush(); err != nil {
			return core.ServiceErrorf("flags: flush data: %w", err)
		}
		if err := f.writeStatus(f.length); err != nil {
			return core.ServiceErrorf("flags: flush status: %w", err)
		}
		return nil
	}
}

// Files lists the files backing the flags.
func (f *DynamicMmapFlags) Files() []string {
	return []string{
		filepath.Join(f.dir, DataFile),
		filepath.Join(f.dir, StatusFile),
	}
}

// ClearCache drops resident pages; they fault back in on the next access.
func (f *DynamicMmapFlags) ClearCache() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mapping.Advise(mmap.AccessDontNeed)
}

// Close unmaps the data file without flushing.
func (f *DynamicMmapFlags) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mapping.Close()
}
