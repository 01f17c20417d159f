// Package core holds the small vocabulary shared by the storage packages:
// point identifiers, flushers, the storage-type descriptor, the hardware
// counter sink and the error taxonomy.
//
// # Error taxonomy
//
//   - [ErrServiceError]: backend mismatch and wrapped I/O failures. A backend
//     mismatch always indicates a construction bug, never user input.
//   - [SizeLimitError]: a payload does not fit the configured limits. The point
//     is not inserted and storage state is unchanged.
//   - Invariant violations are checked with [DebugAssert], which only panics
//     when the module is built with the vecsegdebug tag.
package core
