// Package chunked stores fixed-size records in a list of equally sized chunks.
//
// A record is Dim elements. A chunk holds ChunkBytes / (Dim * elemSize)
// records, so a record never straddles two chunks and a record pointer stays
// valid for the lifetime of the container: chunks are allocated once and
// never moved.
//
// Two backends are provided. [NewInRAM] keeps chunks in aligned heap
// buffers charged against a resource controller. [OpenMmap] stores every
// chunk in its own file (chunk_<n>.mmap) and keeps the logical length in a
// checksummed status file written on flush.
//
// Runs of records (the sub-vectors of one multi-vector) can be placed with
// [Vectors.PushRun]; a run always lands inside one chunk.
package chunked
