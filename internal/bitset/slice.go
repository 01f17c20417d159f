package bitset

import (
	"errors"
	"math/bits"
	"unsafe"
)

// ErrUnaligned is returned when a byte buffer cannot be viewed as words.
var ErrUnaligned = errors.New("bitset: buffer is not 8-byte aligned")

// WordsFor returns the number of uint64 words needed to hold n bits.
func WordsFor(n int) int {
	return (n + 63) / 64
}

// Slice is a fixed-length bit view over externally owned words.
type Slice struct {
	words []uint64
	size  int
}

// NewSlice wraps words as a bit slice of length size.
// It panics if words cannot hold size bits.
func NewSlice(words []uint64, size int) *Slice {
	if len(words) < WordsFor(size) {
		panic("bitset: slice too short")
	}
	return &Slice{words: words, size: size}
}

// FromBytes views buf as a bit slice of length size without copying.
// Writes through the slice modify buf.
func FromBytes(buf []byte, size int) (*Slice, error) {
	n := WordsFor(size)
	if len(buf) < n*8 {
		return nil, errors.New("bitset: buffer too short")
	}
	if n == 0 {
		return &Slice{size: size}, nil
	}
	if uintptr(unsafe.Pointer(&buf[0]))%8 != 0 { //nolint:gosec // unsafe is required for mmap access
		return nil, ErrUnaligned
	}
	words := unsafe.Slice((*uint64)(unsafe.Pointer(&buf[0])), n) //nolint:gosec // unsafe is required for mmap access
	return &Slice{words: words, size: size}, nil
}

// Len returns the length in bits.
func (s *Slice) Len() int {
	return s.size
}

// Get reports whether bit i is set. Out-of-range positions read as unset.
func (s *Slice) Get(i int) bool {
	if i < 0 || i >= s.size {
		return false
	}
	return s.words[i/64]&(1<<(i%64)) != 0
}

// Replace stores v at bit i and returns the previous value.
// Out-of-range positions are ignored and report false.
func (s *Slice) Replace(i int, v bool) bool {
	if i < 0 || i >= s.size {
		return false
	}
	mask := uint64(1) << (i % 64)
	w := &s.words[i/64]
	prev := *w&mask != 0
	if v {
		*w |= mask
	} else {
		*w &^= mask
	}
	return prev
}

// Count returns the number of set bits within Len.
func (s *Slice) Count() int {
	n := 0
	full := s.size / 64
	for _, w := range s.words[:full] {
		n += bits.OnesCount64(w)
	}
	if rem := s.size % 64; rem != 0 {
		n += bits.OnesCount64(s.words[full] & (1<<rem - 1))
	}
	return n
}

// Clone copies the slice into a BitVec detached from the backing words.
func (s *Slice) Clone() *BitVec {
	b := New(s.size)
	for i := 0; i < s.size; i++ {
		if s.words[i/64] == 0 {
			i += 63 - i%64
			continue
		}
		if s.Get(i) {
			b.Replace(i, true)
		}
	}
	return b
}
