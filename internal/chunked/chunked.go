package chunked

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/hupe1980/vecseg/internal/conv"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/mem"
	"github.com/hupe1980/vecseg/internal/mmap"
	"github.com/hupe1980/vecseg/internal/resource"
)

// DefaultChunkBytes is the default chunk size, 32 MiB.
const DefaultChunkBytes = 32 << 20

// StatusFile holds the mmap container's shape and length.
const StatusFile = "status.dat"

const (
	statusMagic   = 0x43484e4b // "CHNK"
	statusVersion = 1
	statusSize    = 32
)

// ErrDimMismatch is returned when a record has the wrong number of elements
// or a reopened container was created with another dimension.
var ErrDimMismatch = errors.New("chunked: dimension mismatch")

// Config describes a container.
type Config struct {
	// Dim is the number of elements per record.
	Dim int
	// ChunkBytes is the chunk size; DefaultChunkBytes if zero.
	ChunkBytes int
	// Resources is charged for resident chunks. Optional.
	Resources *resource.Controller
	// FS is used for the status file. Defaults to fs.Default.
	FS fs.FileSystem
	// Populate prefetches mapped chunks.
	Populate bool
}

type chunk[T mem.Elem] struct {
	data    []T
	mapping *mmap.Mapping // nil for resident chunks
	dirty   bool
}

// Vectors is a chunked container of fixed-size records.
type Vectors[T mem.Elem] struct {
	dim         int
	recordBytes int
	perChunk    int
	chunkBytes  int

	dir  string // empty for the in-RAM backend
	fsys fs.FileSystem
	res  *resource.Controller
	cfg  Config

	mu     sync.RWMutex
	chunks []*chunk[T]
	length int
}

func newVectors[T mem.Elem](cfg Config) (*Vectors[T], error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("chunked: invalid dimension %d", cfg.Dim)
	}
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = DefaultChunkBytes
	}
	if cfg.FS == nil {
		cfg.FS = fs.Default
	}
	var zero T
	recordBytes, err := conv.MulInt(cfg.Dim, int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	if recordBytes > cfg.ChunkBytes {
		return nil, &core.SizeLimitError{What: "vector", Size: recordBytes, Limit: cfg.ChunkBytes, Unit: "bytes"}
	}
	perChunk := cfg.ChunkBytes / recordBytes
	return &Vectors[T]{
		dim:         cfg.Dim,
		recordBytes: recordBytes,
		perChunk:    perChunk,
		chunkBytes:  perChunk * recordBytes,
		fsys:        cfg.FS,
		res:         cfg.Resources,
		cfg:         cfg,
	}, nil
}

// NewInRAM returns an empty resident container.
func NewInRAM[T mem.Elem](cfg Config) (*Vectors[T], error) {
	return newVectors[T](cfg)
}

// OpenMmap opens or creates a memory-mapped container in dir.
func OpenMmap[T mem.Elem](dir string, cfg Config) (*Vectors[T], error) {
	v, err := newVectors[T](cfg)
	if err != nil {
		return nil, err
	}
	v.dir = dir
	if err := v.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	length, err := v.readStatus()
	if err != nil {
		return nil, err
	}
	need := conv.CeilDiv(length, v.perChunk)
	for i := 0; i < need; i++ {
		if _, err := v.mapChunk(i, false); err != nil {
			_ = v.Close()
			return nil, core.ServiceErrorf("chunked: open chunk %d: %w", i, err)
		}
	}
	v.length = length
	return v, nil
}

// Dim returns the number of elements per record.
func (v *Vectors[T]) Dim() int { return v.dim }

// RecordsPerChunk returns how many records fit in one chunk.
func (v *Vectors[T]) RecordsPerChunk() int { return v.perChunk }

// IsMmap reports whether chunks are file-backed.
func (v *Vectors[T]) IsMmap() bool { return v.dir != "" }

// Len returns the number of records.
func (v *Vectors[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.length
}

// Get returns record i, or nil if i is out of range. The slice aliases the
// container memory.
func (v *Vectors[T]) Get(i int) []T {
	return v.GetRun(i, 1)
}

// GetRun returns count consecutive records starting at i as one flat slice.
// It returns nil if the run is out of range or crosses a chunk boundary.
func (v *Vectors[T]) GetRun(i, count int) []T {
	if i < 0 || count <= 0 {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if i+count > v.length {
		return nil
	}
	c, off := i/v.perChunk, i%v.perChunk
	if off+count > v.perChunk {
		return nil
	}
	ch := v.chunks[c]
	if ch == nil {
		return nil
	}
	return ch.data[off*v.dim : (off+count)*v.dim]
}

// Insert writes record i, growing the container as needed.
func (v *Vectors[T]) Insert(i int, rec []T) error {
	if len(rec) != v.dim {
		return fmt.Errorf("%w: got %d elements, want %d", ErrDimMismatch, len(rec), v.dim)
	}
	return v.InsertRun(i, rec)
}

// InsertRun writes len(data)/Dim consecutive records starting at i. The run
// must fit inside one chunk.
func (v *Vectors[T]) InsertRun(i int, data []T) error {
	count, err := v.runLen(data)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if off := i % v.perChunk; off+count > v.perChunk {
		return fmt.Errorf("chunked: run of %d records at %d crosses a chunk boundary", count, i)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writeLocked(i, count, data)
}

func (v *Vectors[T]) runLen(data []T) (int, error) {
	if len(data)%v.dim != 0 {
		return 0, fmt.Errorf("%w: %d elements is not a multiple of %d", ErrDimMismatch, len(data), v.dim)
	}
	count := len(data) / v.dim
	if count > v.perChunk {
		return 0, v.runTooLarge(count)
	}
	return count, nil
}

func (v *Vectors[T]) writeLocked(i, count int, data []T) error {
	ch, err := v.chunkFor(i / v.perChunk)
	if err != nil {
		return err
	}
	copy(ch.data[(i%v.perChunk)*v.dim:], data)
	ch.dirty = true
	if end := i + count; end > v.length {
		v.length = end
	}
	return nil
}

func (v *Vectors[T]) runTooLarge(count int) error {
	return &core.SizeLimitError{
		What:  "multi-vector",
		Size:  count * v.recordBytes,
		Limit: v.chunkBytes,
		Unit:  "bytes",
	}
}

// Push appends one record and returns its index.
func (v *Vectors[T]) Push(rec []T) (int, error) {
	if len(rec) != v.dim {
		return 0, fmt.Errorf("%w: got %d elements, want %d", ErrDimMismatch, len(rec), v.dim)
	}
	return v.PushRun(rec)
}

// PushRun appends len(data)/Dim records as one run and returns the index of
// the first. If the run does not fit in the remainder of the last chunk, it
// starts at the next chunk boundary.
func (v *Vectors[T]) PushRun(data []T) (int, error) {
	count, err := v.runLen(data)
	if err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	start := v.length
	if off := start % v.perChunk; off+count > v.perChunk {
		start += v.perChunk - off
	}
	if count == 0 {
		return start, nil
	}
	return start, v.writeLocked(start, count, data)
}

// chunkFor returns chunk c, allocating it and any gap before it. Caller
// holds the write lock.
func (v *Vectors[T]) chunkFor(c int) (*chunk[T], error) {
	for len(v.chunks) <= c {
		if v.dir != "" {
			if _, err := v.mapChunk(len(v.chunks), true); err != nil {
				return nil, core.ServiceErrorf("chunked: create chunk: %w", err)
			}
			continue
		}
		ch, err := v.allocChunk()
		if err != nil {
			return nil, err
		}
		v.chunks = append(v.chunks, ch)
	}
	return v.chunks[c], nil
}

func (v *Vectors[T]) allocChunk() (*chunk[T], error) {
	if err := v.res.AcquireMemory(int64(v.chunkBytes)); err != nil {
		return nil, fmt.Errorf("chunked: allocate chunk: %w", err)
	}
	return &chunk[T]{data: mem.AllocSlice[T](v.perChunk * v.dim)}, nil
}

func (v *Vectors[T]) chunkPath(idx int) string {
	return filepath.Join(v.dir, fmt.Sprintf("chunk_%d.mmap", idx))
}

// mapChunk maps chunk idx and appends it. With create set the file is
// (re)created zeroed.
func (v *Vectors[T]) mapChunk(idx int, create bool) (*chunk[T], error) {
	var (
		m   *mmap.Mapping
		err error
	)
	if create {
		m, err = mmap.Create(v.chunkPath(idx), v.chunkBytes)
	} else {
		m, err = mmap.OpenWritable(v.chunkPath(idx))
	}
	if err != nil {
		return nil, err
	}
	if m.Size() < v.chunkBytes {
		_ = m.Close()
		return nil, core.ServiceErrorf("chunked: chunk %d is %d bytes, want %d", idx, m.Size(), v.chunkBytes)
	}
	if v.cfg.Populate {
		_ = m.Advise(mmap.AccessWillNeed)
	} else {
		_ = m.Advise(mmap.AccessRandom)
	}
	ch := &chunk[T]{data: mem.View[T](m.Bytes()[:v.chunkBytes]), mapping: m}
	v.chunks = append(v.chunks, ch)
	return ch, nil
}

func (v *Vectors[T]) readStatus() (int, error) {
	payload, err := fs.ReadChecksummed(v.fsys, filepath.Join(v.dir, StatusFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, core.ServiceErrorf("chunked: read status: %w", err)
	}
	if len(payload) != statusSize ||
		binary.LittleEndian.Uint32(payload[0:]) != statusMagic ||
		binary.LittleEndian.Uint32(payload[4:]) != statusVersion {
		return 0, core.ServiceErrorf("chunked: malformed status in %s", v.dir)
	}
	dim := int(binary.LittleEndian.Uint64(payload[8:]))
	chunkBytes := int(binary.LittleEndian.Uint64(payload[16:]))
	if dim != v.dim {
		return 0, fmt.Errorf("%w: stored %d, configured %d", ErrDimMismatch, dim, v.dim)
	}
	if chunkBytes != v.chunkBytes {
		return 0, core.ServiceErrorf("chunked: stored chunk size %d, configured %d", chunkBytes, v.chunkBytes)
	}
	length, err := conv.Uint64ToInt(binary.LittleEndian.Uint64(payload[24:]))
	if err != nil {
		return 0, core.ServiceErrorf("chunked: status in %s: %w", v.dir, err)
	}
	return length, nil
}

func (v *Vectors[T]) writeStatus(length int) error {
	payload := make([]byte, statusSize)
	binary.LittleEndian.PutUint32(payload[0:], statusMagic)
	binary.LittleEndian.PutUint32(payload[4:], statusVersion)
	binary.LittleEndian.PutUint64(payload[8:], uint64(v.dim))
	binary.LittleEndian.PutUint64(payload[16:], uint64(v.chunkBytes))
	binary.LittleEndian.PutUint64(payload[24:], uint64(length))
	return fs.WriteChecksummed(v.fsys, filepath.Join(v.dir, StatusFile), payload)
}

// Flusher returns a flusher that syncs dirty chunks and then the status file.
// The in-RAM backend has nothing to flush.
func (v *Vectors[T]) Flusher() core.Flusher {
	if v.dir == "" {
		return core.NoopFlusher
	}
	return func() error {
		v.mu.Lock()
		var dirty []*chunk[T]
		for _, ch := range v.chunks {
			if ch.dirty {
				dirty = append(dirty, ch)
				ch.dirty = false
			}
		}
		length := v.length
		v.mu.Unlock()

		for _, ch := range dirty {
			if err := ch.mapping.Flush(); err != nil {
				v.markDirty(dirty)
				return core.ServiceErrorf("chunked: flush chunk: %w", err)
			}
		}
		if err := v.writeStatus(length); err != nil {
			return core.ServiceErrorf("chunked: flush status: %w", err)
		}
		return nil
	}
}

func (v *Vectors[T]) markDirty(chunks []*chunk[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ch := range chunks {
		ch.dirty = true
	}
}

// Files lists the files of the mmap backend.
func (v *Vectors[T]) Files() []string {
	if v.dir == "" {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	files := make([]string, 0, len(v.chunks)+1)
	for i := range v.chunks {
		files = append(files, v.chunkPath(i))
	}
	return append(files, filepath.Join(v.dir, StatusFile))
}

// ClearCache drops resident pages of mapped chunks.
func (v *Vectors[T]) ClearCache() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var errs []error
	for _, ch := range v.chunks {
		if ch.mapping != nil {
			errs = append(errs, ch.mapping.Advise(mmap.AccessDontNeed))
		}
	}
	return errors.Join(errs...)
}

// Close unmaps file-backed chunks and releases resident memory.
func (v *Vectors[T]) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	var errs []error
	for _, ch := range v.chunks {
		if ch.mapping != nil {
			errs = append(errs, ch.mapping.Close())
		} else {
			v.res.ReleaseMemory(int64(v.chunkBytes))
		}
	}
	v.chunks = nil
	v.length = 0
	return errors.Join(errs...)
}
