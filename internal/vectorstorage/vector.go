package vectorstorage

import (
	"fmt"
	"iter"
	"slices"

	"github.com/hupe1980/vecseg/internal/core"
)

// Vector is a dense vector (one sub-vector) or a multi-dense vector stored
// flattened: Data holds len(Data)/Dim sub-vectors of Dim elements.
type Vector struct {
	Data []float32
	Dim  int
}

// Dense returns a single-vector Vector.
func Dense(data []float32) Vector {
	return Vector{Data: data, Dim: len(data)}
}

// MultiDense flattens sub-vectors into a Vector. All sub-vectors must have
// the same non-zero length.
func MultiDense(subs [][]float32) (Vector, error) {
	if len(subs) == 0 {
		return Vector{}, fmt.Errorf("vectorstorage: empty multi-vector")
	}
	dim := len(subs[0])
	if dim == 0 {
		return Vector{}, fmt.Errorf("vectorstorage: empty sub-vector")
	}
	data := make([]float32, 0, dim*len(subs))
	for i, s := range subs {
		if len(s) != dim {
			return Vector{}, fmt.Errorf("vectorstorage: sub-vector %d has %d elements, want %d", i, len(s), dim)
		}
		data = append(data, s...)
	}
	return Vector{Data: data, Dim: dim}, nil
}

// Count returns the number of sub-vectors.
func (v Vector) Count() int {
	if v.Dim == 0 {
		return 0
	}
	return len(v.Data) / v.Dim
}

// SubVectors yields each sub-vector.
func (v Vector) SubVectors() iter.Seq[[]float32] {
	return func(yield func([]float32) bool) {
		for i := 0; i+v.Dim <= len(v.Data) && v.Dim > 0; i += v.Dim {
			if !yield(v.Data[i : i+v.Dim]) {
				return
			}
		}
	}
}

// Clone returns a copy that does not alias storage memory.
func (v Vector) Clone() Vector {
	return Vector{Data: slices.Clone(v.Data), Dim: v.Dim}
}

// Record is one source entry of a bulk merge. ID is the offset of the
// entry in its source storage.
type Record struct {
	ID      core.PointOffset
	Vector  Vector
	Deleted bool
}
