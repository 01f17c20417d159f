// Package vectorstorage stores one dense vector, or one multi-dense vector
// (several sub-vectors of the same dimension), per point.
//
// Every storage has the same contract regardless of backend:
//
//   - volatile: chunks and deletion flags live in process memory;
//   - appendable mmap: chunk files plus a memory-mapped flag file, persisted
//     by the flusher;
//   - legacy kv: records in a transactional store column family, loaded into
//     memory on open. Kept for existing data; new writes can be disabled.
//
// Deletion is logical. A deleted vector stays readable, is reported by
// IsDeletedVector and must be skipped by candidate generation.
//
// A multi-dense vector is stored as a run of sub-vectors in one chunk plus
// an (offset, count, capacity) record per point. Updating a point in place
// reuses its run when the new vector fits; otherwise a new run is appended.
package vectorstorage
