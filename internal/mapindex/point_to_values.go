package mapindex

import "github.com/hupe1980/vecseg/internal/core"

type valueRange struct {
	start, end uint32
}

// ImmutablePointToValues maps a point to its values. It is built once and
// only supports clearing a point afterwards.
type ImmutablePointToValues[K comparable] struct {
	ranges []valueRange
	values []K
}

// NewImmutablePointToValues flattens src, indexed by point offset.
func NewImmutablePointToValues[K comparable](src [][]K) *ImmutablePointToValues[K] {
	total := 0
	for _, vs := range src {
		total += len(vs)
	}
	p := &ImmutablePointToValues[K]{
		ranges: make([]valueRange, len(src)),
		values: make([]K, 0, total),
	}
	for i, vs := range src {
		start := uint32(len(p.values))
		p.values = append(p.values, vs...)
		p.ranges[i] = valueRange{start: start, end: uint32(len(p.values))}
	}
	return p
}

// Len returns the number of point slots.
func (p *ImmutablePointToValues[K]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ranges)
}

// GetValues returns the values of point. ok is false when point is beyond
// the map; a removed point has ok and no values.
func (p *ImmutablePointToValues[K]) GetValues(point core.PointOffset) ([]K, bool) {
	if int(point) >= p.Len() {
		return nil, false
	}
	r := p.ranges[point]
	return p.values[r.start:r.end:r.end], true
}

// ValuesCount returns the number of values of point.
func (p *ImmutablePointToValues[K]) ValuesCount(point core.PointOffset) (int, bool) {
	if int(point) >= p.Len() {
		return 0, false
	}
	r := p.ranges[point]
	return int(r.end - r.start), true
}

// CheckValuesAny reports whether fn holds for any value of point.
func (p *ImmutablePointToValues[K]) CheckValuesAny(point core.PointOffset, fn func(K) bool) bool {
	values, _ := p.GetValues(point)
	for _, v := range values {
		if fn(v) {
			return true
		}
	}
	return false
}

// RemovePoint clears the values of point. The backing array is untouched.
func (p *ImmutablePointToValues[K]) RemovePoint(point core.PointOffset) {
	if int(point) >= p.Len() {
		return
	}
	r := &p.ranges[point]
	r.end = r.start
}
