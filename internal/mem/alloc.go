package mem

import (
	"unsafe"
)

// Alignment is the byte alignment of every buffer handed out by this package.
const Alignment = 64

// AllocAligned returns a zeroed byte slice of length size whose first byte
// sits on an Alignment boundary. It returns nil for size <= 0.
func AllocAligned(size int) []byte {
	if size <= 0 {
		return nil
	}

	buf := make([]byte, size+Alignment)
	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // alignment probe
	offset := int((Alignment - (addr & (Alignment - 1))) & (Alignment - 1))

	return buf[offset : offset+size : offset+size]
}

// Elem is the set of element types a chunk may hold.
type Elem interface {
	~float32 | ~uint32 | ~uint64 | ~int64 | ~uint8
}

// AllocSlice returns a zeroed, aligned slice of n elements of T.
func AllocSlice[T Elem](n int) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	raw := AllocAligned(n * int(unsafe.Sizeof(zero)))
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n) //nolint:gosec // aligned above
}

// Bytes reinterprets a slice of T as its backing bytes.
func Bytes[T Elem](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero))) //nolint:gosec // same backing array
}

// View reinterprets b as a slice of T. b must be aligned for T and its length
// a multiple of the element size; trailing bytes are ignored.
func View[T Elem](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n) //nolint:gosec // caller guarantees alignment
}
