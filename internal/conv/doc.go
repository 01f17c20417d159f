// Package conv provides checked integer conversions for values read from or
// written to on-disk headers, status files and offset records.
//
// Plain casts remain fine where the range is bounded by construction, such
// as loop indices below a known length.
package conv
