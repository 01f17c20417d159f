// Package resource governs the two shared resources of the storage layer.
//
//   - Memory: resident (in-RAM) vector chunks reserve their size before they
//     are allocated. AcquireMemory never blocks; it fails fast with
//     ErrMemoryLimitExceeded so the caller can reject the insert.
//   - IO: bulk merges (UpdateFrom) pass the bytes they copy through a token
//     bucket so background consolidation does not starve foreground readers.
//
// All methods are safe for concurrent use and treat a nil *Controller as
// "unlimited".
package resource
