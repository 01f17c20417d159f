package vecseg

import (
	"github.com/hupe1980/vecseg/internal/chunked"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/vectorstorage"
)

type options struct {
	logger               *Logger
	metricsCollector     MetricsCollector
	chunkBytes           int
	maxFlattenedLen      int
	memoryLimit          int64
	ioLimit              int64
	fs                   fs.FileSystem
	legacyWritesDisabled bool
	onDisk               bool
	handles              *Handles
}

func defaultOptions() options {
	return options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		chunkBytes:       chunked.DefaultChunkBytes,
		maxFlattenedLen:  vectorstorage.DefaultMaxMultivectorFlattenedLen,
		fs:               fs.Default,
		onDisk:           true,
	}
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the logger. Nil keeps the default, which discards output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics sink.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithChunkSize sets the vector chunk size in bytes. A single vector or
// multi-vector must fit in one chunk.
func WithChunkSize(bytes int) Option {
	return func(o *options) {
		if bytes > 0 {
			o.chunkBytes = bytes
		}
	}
}

// WithMaxMultivectorFlattenedLen bounds the total number of elements of one
// multi-vector.
func WithMaxMultivectorFlattenedLen(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFlattenedLen = n
		}
	}
}

// WithMemoryLimit caps the memory of resident vector chunks. Zero means
// unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles bulk merges to bytes per second. Zero means
// unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithFileSystem replaces the file system used for checksummed status and
// index files.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithLegacyWritesDisabled makes vector storages on the legacy kv backend
// read-only.
func WithLegacyWritesDisabled() Option {
	return func(o *options) {
		o.legacyWritesDisabled = true
	}
}

// WithHandles shares database handles with other stores using the same
// Handles. By default every store gets its own.
func WithHandles(h *Handles) Option {
	return func(o *options) {
		o.handles = h
	}
}

// WithOnDisk controls whether memory-mapped files are left on disk (true,
// the default) or populated into memory on open (false).
func WithOnDisk(onDisk bool) Option {
	return func(o *options) {
		o.onDisk = onDisk
	}
}
