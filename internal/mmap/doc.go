// Package mmap provides memory-mapped file access for zero-copy I/O.
//
// # Usage
//
//	m, err := mmap.OpenWritable("chunk_0.mmap")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()     // writes go to the page cache
//	err = m.Flush()       // msync the dirty pages
//	_ = m.Advise(mmap.AccessDontNeed) // drop resident pages
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2), madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile, FlushViewOfFile (advise is a no-op)
//
// # Thread Safety
//
// Close is idempotent. Callers must ensure no goroutine touches Bytes() after
// Close returns.
package mmap
