package mapindex

import (
	"iter"
	"slices"

	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/core"
)

// ContainerSegment is one value's range [Start, End) in the flat container
// and the number of live point IDs in it.
type ContainerSegment struct {
	Start uint32
	End   uint32
	Count uint32
}

// Len returns the range length, live or not.
func (s ContainerSegment) Len() int {
	return int(s.End - s.Start)
}

// Container keeps a sorted run of point IDs per value inside one flat slice.
//
// Removal flags slots in a growth-only tombstone vector. Ranges are never
// compacted or reclaimed; dead space is dropped only by rebuilding the
// container from its backing store.
type Container[K comparable] struct {
	segments map[K]ContainerSegment
	points   []core.PointOffset
	deleted  *bitset.BitVec
}

// NewContainer returns an empty container with room for capacity point IDs.
func NewContainer[K comparable](capacity int) *Container[K] {
	return &Container[K]{
		segments: make(map[K]ContainerSegment),
		points:   make([]core.PointOffset, 0, capacity),
		deleted:  bitset.New(0),
	}
}

// Allocate appends points as the run of value and sorts the run.
// Allocating an empty run records nothing.
func (c *Container[K]) Allocate(value K, points []core.PointOffset) ContainerSegment {
	core.DebugAssert(!c.has(value), "value allocated twice")
	if len(points) == 0 {
		return ContainerSegment{}
	}
	start := uint32(len(c.points))
	c.points = append(c.points, points...)
	run := c.points[start:]
	slices.Sort(run)

	seg := ContainerSegment{Start: start, End: uint32(len(c.points))}
	seg.Count = uint32(seg.Len())
	c.segments[value] = seg
	return seg
}

func (c *Container[K]) has(value K) bool {
	_, ok := c.segments[value]
	return ok
}

// ShrinkRange decrements the live count of value and reports whether it
// reached zero, in which case the value entry is dropped.
func (c *Container[K]) ShrinkRange(value K) bool {
	seg, ok := c.segments[value]
	if !ok {
		return false
	}
	if seg.Count > 0 {
		seg.Count--
	}
	if seg.Count == 0 {
		delete(c.segments, value)
		return true
	}
	c.segments[value] = seg
	return false
}

// PointIDsSlice returns the full run of value, tombstoned slots included,
// and its absolute start. ok is false when value has no live points.
func (c *Container[K]) PointIDsSlice(value K) (ids []core.PointOffset, offset int, ok bool) {
	seg, found := c.segments[value]
	if !found || seg.Count == 0 {
		return nil, 0, false
	}
	return c.points[seg.Start:seg.End], int(seg.Start), true
}

// RemovePoint tombstones point in the run of value. It reports whether a
// live slot was flagged; removing a missing or already removed point
// changes nothing.
func (c *Container[K]) RemovePoint(value K, point core.PointOffset) bool {
	ids, offset, ok := c.PointIDsSlice(value)
	if !ok {
		core.DebugAssert(false, "value not found in container")
		return false
	}

	local, found := slices.BinarySearch(ids, point)
	if !found {
		return false
	}
	pos := offset + local
	if c.deleted.Len() < pos+1 {
		c.deleted.Resize(pos + 1)
	}
	if c.deleted.Replace(pos, true) {
		return false
	}
	c.ShrinkRange(value)
	return true
}

// Iterate yields the live point IDs of value in ascending order.
func (c *Container[K]) Iterate(value K) iter.Seq[core.PointOffset] {
	return func(yield func(core.PointOffset) bool) {
		seg, ok := c.segments[value]
		if !ok {
			return
		}
		for pos := int(seg.Start); pos < int(seg.End); pos++ {
			// Positions past the tombstone length read as live.
			if c.deleted.Get(pos) {
				continue
			}
			if !yield(c.points[pos]) {
				return
			}
		}
	}
}

// Count returns the live count of value.
func (c *Container[K]) Count(value K) (int, bool) {
	seg, ok := c.segments[value]
	if !ok {
		return 0, false
	}
	return int(seg.Count), true
}

// Segment returns the bookkeeping entry of value.
func (c *Container[K]) Segment(value K) (ContainerSegment, bool) {
	seg, ok := c.segments[value]
	return seg, ok
}

// Len returns the number of values with live points.
func (c *Container[K]) Len() int {
	return len(c.segments)
}

// Values yields every value with live points, in no particular order.
func (c *Container[K]) Values() iter.Seq[K] {
	return func(yield func(K) bool) {
		for v := range c.segments {
			if !yield(v) {
				return
			}
		}
	}
}

// CountsPerValue yields every value with its live count.
func (c *Container[K]) CountsPerValue() iter.Seq2[K, int] {
	return func(yield func(K, int) bool) {
		for v, seg := range c.segments {
			if !yield(v, int(seg.Count)) {
				return
			}
		}
	}
}

// Size returns the flat container length, dead slots included.
func (c *Container[K]) Size() int {
	return len(c.points)
}
