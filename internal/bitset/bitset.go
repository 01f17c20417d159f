package bitset

import "math/bits"

const (
	// segmentBits determines the size of each segment.
	// 16 bits = 65536 bits per segment.
	segmentBits = 16
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1

	wordsPerSegment = segmentSize / 64
)

type segment [wordsPerSegment]uint64

// BitVec is a growth-only bit-vector. Positions at or beyond Len read as unset.
// The zero value is an empty vector ready to use.
type BitVec struct {
	segments []*segment
	size     int
}

// New returns a BitVec of the given length with all bits unset.
func New(size int) *BitVec {
	b := &BitVec{}
	b.Resize(size)
	return b
}

// Len returns the length in bits.
func (b *BitVec) Len() int {
	return b.size
}

// Resize grows the vector to size bits. Smaller sizes are ignored.
func (b *BitVec) Resize(size int) {
	if size <= b.size {
		return
	}
	need := (size + segmentSize - 1) >> segmentBits
	for len(b.segments) < need {
		b.segments = append(b.segments, nil)
	}
	b.size = size
}

// Get reports whether bit i is set.
func (b *BitVec) Get(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	seg := b.segments[i>>segmentBits]
	if seg == nil {
		return false
	}
	off := i & segmentMask
	return seg[off/64]&(1<<(off%64)) != 0
}

// Replace stores v at bit i, growing the vector if needed, and returns the
// previous value.
func (b *BitVec) Replace(i int, v bool) bool {
	if i < 0 {
		return false
	}
	if i >= b.size {
		if !v {
			return false
		}
		b.Resize(i + 1)
	}
	segIdx := i >> segmentBits
	seg := b.segments[segIdx]
	if seg == nil {
		if !v {
			return false
		}
		seg = new(segment)
		b.segments[segIdx] = seg
	}
	off := i & segmentMask
	mask := uint64(1) << (off % 64)
	word := &seg[off/64]
	prev := *word&mask != 0
	if v {
		*word |= mask
	} else {
		*word &^= mask
	}
	return prev
}

// Count returns the number of set bits.
func (b *BitVec) Count() int {
	n := 0
	for _, seg := range b.segments {
		if seg == nil {
			continue
		}
		for _, w := range seg {
			n += bits.OnesCount64(w)
		}
	}
	return n
}

// Clear drops all bits and resets the length to zero.
func (b *BitVec) Clear() {
	b.segments = nil
	b.size = 0
}

// View is the read-only surface shared by BitVec and Slice.
type View interface {
	Len() int
	Get(i int) bool
	Count() int
}

var (
	_ View = (*BitVec)(nil)
	_ View = (*Slice)(nil)
)
