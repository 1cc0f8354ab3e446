package store

import (
	"context"

	"github.com/roach88/pardoc/internal/paragraph"
)

// Store persists paragraph content and document version chains.
//
// Paragraph content is content-addressed by (doc id, paragraph id, hash)
// with one mutable "latest" pointer per paragraph id. Each document owns an
// immutable chain of versions and a newest-first changelog.
//
// Implementations are safe for concurrent use. They do not serialize
// read-modify-write sequences across calls; callers hold the per-document
// lock (package lock) around version bumps.
type Store interface {
	// GetParagraph loads one content version. NotFound if it was never stored.
	GetParagraph(ctx context.Context, docID int, parID, hash string) (paragraph.Paragraph, error)

	// LatestParagraph loads the content the latest pointer names.
	// NotFound if the paragraph id is unknown.
	LatestParagraph(ctx context.Context, docID int, parID string) (paragraph.Paragraph, error)

	// PutParagraph stores p under (p.DocID(), p.ID(), p.Hash()). Storing an
	// existing content version is a no-op and keeps its links.
	PutParagraph(ctx context.Context, p paragraph.Paragraph) error

	// SetLatest points the paragraph id at hash. The content must exist.
	SetLatest(ctx context.Context, docID int, parID, hash string) error

	// DeleteParagraph garbage-collects one content version. It fails InUse
	// while links remain, or while hash is the latest of several versions.
	// Deleting the last version reclaims the paragraph id.
	DeleteParagraph(ctx context.Context, docID int, parID, hash string) error

	// AddLink records that linkDocID references the content version.
	AddLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error

	// RemoveLink forgets a reference recorded by AddLink. Unknown links are ignored.
	RemoveLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error

	// CreateDocument registers a document with version (0,0).
	// AlreadyExists if it is registered.
	CreateDocument(ctx context.Context, docID int) error

	// DocumentExists reports whether the document is registered.
	DocumentExists(ctx context.Context, docID int) (bool, error)

	// RemoveDocument deletes the document's versions, changelog and
	// paragraphs. NotFound if it is not registered.
	RemoveDocument(ctx context.Context, docID int) error

	// NextFreeID returns one more than the largest registered document id.
	NextFreeID(ctx context.Context) (int, error)

	// LatestVersion returns the newest version, (0,0) if none was written.
	LatestVersion(ctx context.Context, docID int) (Version, error)

	// ReadVersion returns the entries of one version. Version (0,0) is
	// always empty. NotFound for unknown versions.
	ReadVersion(ctx context.Context, docID int, v Version) ([]Entry, error)

	// WriteVersion writes a new version. AlreadyExists if it was written
	// before, which signals a lost race with another writer.
	WriteVersion(ctx context.Context, docID int, v Version, entries []Entry) error

	// DeleteVersion removes a version. Used only to roll back a version whose
	// changelog entry could not be written.
	DeleteVersion(ctx context.Context, docID int, v Version) error

	// AppendChangelog records one mutation.
	AppendChangelog(ctx context.Context, docID int, e ChangelogEntry) error

	// Changelog returns up to max entries, newest first. max <= 0 means all.
	Changelog(ctx context.Context, docID int, max int) ([]ChangelogEntry, error)

	// Close releases the backend.
	Close() error
}
