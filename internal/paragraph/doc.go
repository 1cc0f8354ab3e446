// Package paragraph provides the paragraph value type: identity, content
// hash, attributes, properties and the kind derived from the attributes.
//
// This package imports only docerr. Every other internal package builds on
// it, so it stays free of storage and resolution concerns.
//
// Key constraints:
//   - A Paragraph is immutable; With* methods return copies
//   - Hash(markdown, attrs) is part of the storage format and never changes
//     for the same inputs
//   - Ids are 12 characters, the last one a checksum of the first eleven
package paragraph
