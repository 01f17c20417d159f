// Package kvstore is the transactional key-value backend.
//
// The store is treated as an ordered byte-string store with column families.
// It is implemented on SQLite (modernc.org/sqlite, pure Go): each column
// family is one WITHOUT ROWID table with a BLOB primary key, so iteration is
// ordered by key bytes.
//
// # Shared handles
//
// Every field of a segment talks to the same database file. A [Registry]
// hands out reference-counted [DB] handles keyed by path; the underlying
// connection pool is closed when the last holder calls Close.
//
// # Scheduled deletes
//
// [ScheduledDeleteColumn] decouples logical deletes from physical removal:
// Remove only records the key, and the flusher applies all pending deletes in
// one transaction.
package kvstore
