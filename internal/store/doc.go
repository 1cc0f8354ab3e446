// Package store defines the persistence contract of the document engine and
// the records every backend shares.
//
// Three backends implement Store:
//   - filestore: plain files, the reference layout (version files, newest-first
//     changelog, one file per paragraph content hash plus a "current" pointer)
//   - sqlstore: SQLite tables with the same logical shape
//   - kvstore: Badger keys with the same logical shape
//
// The storetest package holds the conformance suite all three run.
//
// # Logical contract
//
//   - Paragraph content is immutable per (doc id, paragraph id, hash)
//   - One mutable latest pointer per paragraph id
//   - One immutable version chain per document; a version is an ordered
//     list of (paragraph id, hash) entries
//   - A newest-first changelog per document
//
// Backends never coordinate writers themselves. The document layer holds
// the per-document lock around every read-modify-write of the version chain.
package store
