package core

// PointOffset is a dense, zero-based identifier of a point within a segment.
// It indexes every flat per-point structure (reverse maps, vector slots,
// tombstone flags) and stays stable for the lifetime of a segment generation.
type PointOffset = uint32

// MaxPointOffset is the largest representable point offset.
const MaxPointOffset = ^PointOffset(0)
