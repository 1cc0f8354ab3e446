// Package document implements versioned paragraph documents on top of a
// store.Store.
//
// A document is an ordered list of (paragraph id, content hash) entries.
// Every mutation writes a new immutable version and one changelog entry:
//
//	add, insert, delete   (M, m) -> (M+1, 0)
//	modify                (M, m) -> (M, m+1)
//
// Mutations run under the per-document lock from package lock. A Batch
// holds the lock across several mutations; each mutation inside it still
// commits its own version, so a failing batch leaves the versions it
// already wrote in place.
//
// Reads never take the lock. A Document caches the paragraph list and the
// merged settings of the version it last read and reloads when the version
// moves.
package document
