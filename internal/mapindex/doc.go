// Package mapindex implements the value index of a payload field: a
// value → point-set multimap with a point → values reverse map.
//
// # Layout
//
// Loaded indexes ([ImmutableMapIndex]) keep every value's point IDs in one
// shared flat container. A [ContainerSegment] records each value's range and
// its live count. Each range is sorted so removal can binary search it;
// removal flags the slot in a growth-only tombstone bit vector and never
// moves entries, so the ranges stay sorted for the lifetime of the load.
//
// # Backends
//
// The index is loaded from exactly one backend, fixed at construction:
//
//   - the transactional store (internal/kvstore), where every (value, point)
//     pair is one key in the field's column family, read through
//     [MutableMapIndex];
//   - a memory-mapped index directory ([MmapMapIndex]) holding a value →
//     point-IDs table and a tombstone bit vector.
//
// Deletions are forwarded to the backend so they survive a reload.
package mapindex
