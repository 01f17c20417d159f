package core

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceError is the generic service error. Backend mismatches and
	// wrapped I/O failures from load, flush and wipe unwrap to it.
	ErrServiceError = errors.New("service error")

	// ErrSizeLimit is wrapped by every SizeLimitError.
	ErrSizeLimit = errors.New("size limit exceeded")
)

// ServiceErrorf returns an error that unwraps to ErrServiceError and to any
// error passed with the %w verb.
func ServiceErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrServiceError, fmt.Errorf(format, args...))
}

// WrongBackend reports a call against the wrong backend variant.
func WrongBackend(op, want string) error {
	return ServiceErrorf("%s: using different storage backend, expected %s", op, want)
}

// SizeLimitError reports a payload that exceeds a configured limit.
type SizeLimitError struct {
	// What names the rejected payload, e.g. "vector" or "multi-vector".
	What string
	// Size is the offending size, in Unit.
	Size int
	// Limit is the configured maximum, in Unit.
	Limit int
	// Unit is "bytes" or "elements".
	Unit string
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s is too large: %d %s exceeds limit of %d %s", e.What, e.Size, e.Unit, e.Limit, e.Unit)
}

func (e *SizeLimitError) Unwrap() error { return ErrSizeLimit }
