// Package bitset provides the tombstone bit-vectors used by the storage layer.
//
// Architecture:
//   - BitVec: growth-only, segmented (64K bits per segment), lazily allocated.
//     It never shrinks within a load generation; Clear rebuilds it.
//   - Slice: fixed-length view over persisted uint64 words (e.g. a mapped file).
//
// Neither type synchronizes internally. Callers hold an exclusive lock for
// mutations and a shared lock for reads.
package bitset
