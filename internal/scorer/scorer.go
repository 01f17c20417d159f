// Package scorer ranks stored vectors against a query by brute force.
package scorer

import (
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/queue"
	"github.com/hupe1980/vecseg/internal/vectorstorage"
)

// ErrStopped is returned when the stop flag was raised during scoring.
var ErrStopped = errors.New("scorer: stopped")

// Source is the vector storage view a scorer reads.
type Source interface {
	Dim() int
	Metric() distance.Metric
	IsMulti() bool
	TotalVectorCount() int
	IsDeletedVector(id core.PointOffset) bool
	GetVectorOpt(id core.PointOffset) (vectorstorage.Vector, bool)
}

// ScoredPoint is a point with its similarity to the query. Higher is better.
type ScoredPoint struct {
	ID    core.PointOffset
	Score float32
}

// FilteredScorer scores points that are live both in the storage and in an
// optional external deletion view.
type FilteredScorer struct {
	query   vectorstorage.Vector
	src     Source
	deleted bitset.View
	sim     distance.Func
}

// New returns a scorer for query. deletedPoints may be nil.
func New(query vectorstorage.Vector, src Source, deletedPoints bitset.View) (*FilteredScorer, error) {
	if query.Dim != src.Dim() || query.Count() == 0 {
		return nil, fmt.Errorf("%w: query dim %d, storage dim %d", vectorstorage.ErrDimMismatch, query.Dim, src.Dim())
	}
	if !src.IsMulti() && query.Count() != 1 {
		return nil, fmt.Errorf("%w: dense storage takes a single query vector", vectorstorage.ErrDimMismatch)
	}
	sim, err := distance.Similarity(src.Metric())
	if err != nil {
		return nil, err
	}
	return &FilteredScorer{query: query, src: src, deleted: deletedPoints, sim: sim}, nil
}

// Excluded reports whether id is filtered out.
func (s *FilteredScorer) Excluded(id core.PointOffset) bool {
	if int(id) >= s.src.TotalVectorCount() || s.src.IsDeletedVector(id) {
		return true
	}
	return s.deleted != nil && int(id) < s.deleted.Len() && s.deleted.Get(int(id))
}

// Score returns the similarity of id to the query, ignoring filters. ok is
// false when id holds no vector.
func (s *FilteredScorer) Score(id core.PointOffset) (float32, bool) {
	v, ok := s.src.GetVectorOpt(id)
	if !ok {
		return 0, false
	}
	if s.src.IsMulti() {
		return distance.MaxSim(s.sim, s.query.Data, v.Data, s.query.Dim), true
	}
	return s.sim(s.query.Data, v.Data), true
}

// PeekTop returns the k best live candidates, best first. It checks stopped
// before each candidate.
func (s *FilteredScorer) PeekTop(candidates iter.Seq[core.PointOffset], k int, stopped *atomic.Bool) ([]ScoredPoint, error) {
	top := queue.NewTopK(k)
	for id := range candidates {
		if stopped != nil && stopped.Load() {
			return nil, ErrStopped
		}
		if s.Excluded(id) {
			continue
		}
		score, ok := s.Score(id)
		if !ok {
			continue
		}
		top.Push(queue.Item{ID: id, Score: score})
	}

	items := top.Sorted()
	out := make([]ScoredPoint, len(items))
	for i, it := range items {
		out[i] = ScoredPoint{ID: it.ID, Score: it.Score}
	}
	return out, nil
}

// PeekTopAll runs PeekTop over every point of the storage.
func (s *FilteredScorer) PeekTopAll(k int, stopped *atomic.Bool) ([]ScoredPoint, error) {
	total := s.src.TotalVectorCount()
	return s.PeekTop(func(yield func(core.PointOffset) bool) {
		for id := 0; id < total; id++ {
			if !yield(core.PointOffset(id)) {
				return
			}
		}
	}, k, stopped)
}

// IDs returns the point ids of scored points in order.
func IDs(points []ScoredPoint) []core.PointOffset {
	ids := make([]core.PointOffset, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids
}
