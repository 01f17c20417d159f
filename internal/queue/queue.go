// Package queue provides the bounded top-k heap used to rank scored points.
package queue

import "slices"

// Item is a scored point.
type Item struct {
	ID    uint32
	Score float32
}

// TopK keeps the k highest-scoring items seen so far. Internally it is a
// min-heap on Score, so the weakest kept item is at the root.
type TopK struct {
	k     int
	items []Item
}

// NewTopK returns an empty queue keeping at most k items.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, max(k, 0))}
}

// Len returns the number of kept items.
func (q *TopK) Len() int { return len(q.items) }

// Push offers an item and reports whether it was kept.
func (q *TopK) Push(item Item) bool {
	if q.k <= 0 {
		return false
	}
	if len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if !better(item, q.items[0]) {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Threshold returns the weakest kept score once the queue is full.
func (q *TopK) Threshold() (float32, bool) {
	if len(q.items) < q.k || q.k <= 0 {
		return 0, false
	}
	return q.items[0].Score, true
}

// Sorted returns the kept items, best first. Equal scores are ordered by
// ascending ID.
func (q *TopK) Sorted() []Item {
	out := slices.Clone(q.items)
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case better(a, b):
			return -1
		case better(b, a):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Reset empties the queue for reuse.
func (q *TopK) Reset() {
	q.items = q.items[:0]
}

// better orders by score, then by lower ID.
func better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// weaker is the heap order: the root is the item every other beats.
func (q *TopK) weaker(i, j int) bool {
	return better(q.items[j], q.items[i])
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.weaker(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		weakest := l
		if r := l + 1; r < n && q.weaker(r, l) {
			weakest = r
		}
		if !q.weaker(weakest, i) {
			return
		}
		q.items[i], q.items[weakest] = q.items[weakest], q.items[i]
		i = weakest
	}
}
