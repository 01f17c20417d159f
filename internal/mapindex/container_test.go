package mapindex

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/internal/core"
)

func TestContainer_AllocateSorts(t *testing.T) {
	c := NewContainer[string](8)

	a := c.Allocate("a", []core.PointOffset{5, 1, 3})
	b := c.Allocate("b", []core.PointOffset{9, 2})
	c.Allocate("empty", nil)

	assert.Equal(t, ContainerSegment{Start: 0, End: 3, Count: 3}, a)
	assert.Equal(t, ContainerSegment{Start: 3, End: 5, Count: 2}, b)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 5, c.Size())

	ids, off, ok := c.PointIDsSlice("b")
	require.True(t, ok)
	assert.Equal(t, []core.PointOffset{2, 9}, ids)
	assert.Equal(t, 3, off)

	assert.Equal(t, []core.PointOffset{1, 3, 5}, slices.Collect(c.Iterate("a")))
	assert.Empty(t, slices.Collect(c.Iterate("missing")))
}

func TestContainer_RemovePoint(t *testing.T) {
	c := NewContainer[string](0)
	c.Allocate("a", []core.PointOffset{4, 0, 2, 3, 1})
	c.Allocate("b", []core.PointOffset{7})

	assert.True(t, c.RemovePoint("a", 3))
	assert.False(t, c.RemovePoint("a", 3), "second removal is a no-op")
	assert.False(t, c.RemovePoint("a", 42), "missing point")

	n, ok := c.Count("a")
	require.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, []core.PointOffset{0, 1, 2, 4}, slices.Collect(c.Iterate("a")))

	// the backing run keeps its order and its tombstoned slot
	ids, _, _ := c.PointIDsSlice("a")
	assert.Equal(t, []core.PointOffset{0, 1, 2, 3, 4}, ids)

	// b is unaffected
	assert.Equal(t, []core.PointOffset{7}, slices.Collect(c.Iterate("b")))

	assert.True(t, c.RemovePoint("b", 7))
	_, ok = c.Count("b")
	assert.False(t, ok, "value with no live points is dropped")
	_, _, ok = c.PointIDsSlice("b")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestContainer_ShrinkRange(t *testing.T) {
	c := NewContainer[int64](0)
	c.Allocate(1, []core.PointOffset{1, 2})

	assert.False(t, c.ShrinkRange(1))
	assert.True(t, c.ShrinkRange(1))
	assert.False(t, c.ShrinkRange(1), "unknown value")
}

func TestContainer_CountsPerValue(t *testing.T) {
	c := NewContainer[string](0)
	c.Allocate("x", []core.PointOffset{1, 2, 3})
	c.Allocate("y", []core.PointOffset{4})
	c.RemovePoint("x", 2)

	got := map[string]int{}
	for v, n := range c.CountsPerValue() {
		got[v] = n
	}
	assert.Equal(t, map[string]int{"x": 2, "y": 1}, got)

	values := slices.Sorted(c.Values())
	assert.Equal(t, []string{"x", "y"}, values)
}

func TestImmutablePointToValues(t *testing.T) {
	p := NewImmutablePointToValues([][]string{{"a", "b"}, nil, {"c"}})
	assert.Equal(t, 3, p.Len())

	v, ok := p.GetValues(0)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)

	v, ok = p.GetValues(1)
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok = p.GetValues(9)
	assert.False(t, ok)

	n, ok := p.ValuesCount(2)
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	assert.True(t, p.CheckValuesAny(0, func(s string) bool { return s == "b" }))
	assert.False(t, p.CheckValuesAny(0, func(s string) bool { return s == "c" }))

	p.RemovePoint(0)
	p.RemovePoint(99)
	v, ok = p.GetValues(0)
	assert.True(t, ok)
	assert.Empty(t, v)
	v, _ = p.GetValues(2)
	assert.Equal(t, []string{"c"}, v)
}
