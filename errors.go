package vecseg

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecseg/internal/chunked"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
	"github.com/hupe1980/vecseg/internal/mapindex"
	"github.com/hupe1980/vecseg/internal/mmap"
	"github.com/hupe1980/vecseg/internal/vectorstorage"
)

var (
	// ErrServiceError is a storage failure: I/O errors, corrupt files, or an
	// operation issued against the wrong backend.
	ErrServiceError = errors.New("vecseg: service error")
	// ErrSizeLimit is returned when a vector does not fit a storage chunk or
	// exceeds the multi-vector length limit.
	ErrSizeLimit = errors.New("vecseg: size limit exceeded")
	// ErrClosed is returned by operations on a closed store or component.
	ErrClosed = errors.New("vecseg: closed")
	// ErrCorrupt is returned when persisted data fails validation.
	ErrCorrupt = errors.New("vecseg: corrupt data")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("vecseg: k must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	if e.Expected == 0 && e.Actual == 0 && e.cause != nil {
		return "dimension mismatch: " + e.cause.Error()
	}
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrServiceError) || errors.Is(err, ErrSizeLimit) || errors.Is(err, ErrClosed) || errors.Is(err, ErrCorrupt) {
		return err
	}

	// Size limits keep their "too large" message.
	if errors.Is(err, core.ErrSizeLimit) {
		return fmt.Errorf("%w: %w", ErrSizeLimit, err)
	}
	if errors.Is(err, kvstore.ErrClosed) || errors.Is(err, mmap.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, mapindex.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if errors.Is(err, vectorstorage.ErrDimMismatch) || errors.Is(err, chunked.ErrDimMismatch) {
		return &ErrDimensionMismatch{cause: err}
	}
	if errors.Is(err, core.ErrServiceError) {
		return fmt.Errorf("%w: %w", ErrServiceError, err)
	}

	return err
}
