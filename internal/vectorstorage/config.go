package vectorstorage

import (
	"log/slog"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/chunked"
	"github.com/hupe1980/vecseg/internal/fs"
	"github.com/hupe1980/vecseg/internal/resource"
)

// DefaultMaxMultivectorFlattenedLen bounds the total elements of one
// multi-vector (4 MiB of float32).
const DefaultMaxMultivectorFlattenedLen = 1 << 20

// Config describes a vector storage.
type Config struct {
	// Dim is the (sub-)vector dimension.
	Dim int
	// Metric is the similarity the vectors are compared with.
	Metric distance.Metric
	// ChunkBytes is the chunk size; chunked.DefaultChunkBytes if zero.
	ChunkBytes int
	// MaxFlattenedLen bounds the elements of one multi-vector;
	// DefaultMaxMultivectorFlattenedLen if zero.
	MaxFlattenedLen int
	// Populate prefetches mapped files.
	Populate bool
	// LegacyWritesDisabled rejects inserts into legacy kv storages.
	LegacyWritesDisabled bool

	Resources *resource.Controller
	FS        fs.FileSystem
	Logger    *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ChunkBytes == 0 {
		c.ChunkBytes = chunked.DefaultChunkBytes
	}
	if c.MaxFlattenedLen == 0 {
		c.MaxFlattenedLen = DefaultMaxMultivectorFlattenedLen
	}
	if c.FS == nil {
		c.FS = fs.Default
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) chunkConfig(dim int) chunked.Config {
	return chunked.Config{
		Dim:        dim,
		ChunkBytes: c.ChunkBytes,
		Resources:  c.Resources,
		FS:         c.FS,
		Populate:   c.Populate,
	}
}
