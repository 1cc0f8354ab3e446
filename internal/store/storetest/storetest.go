// Package storetest provides the conformance suite every store.Store
// backend runs from its own tests:
//
//	func TestConformance(t *testing.T) {
//		storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
//	}
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
)

// Factory opens a fresh, empty store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"PutGetParagraph", testPutGetParagraph},
		{"PutIsIdempotent", testPutIsIdempotent},
		{"GetMissing", testGetMissing},
		{"LatestPointer", testLatestPointer},
		{"SetLatestRequiresContent", testSetLatestRequiresContent},
		{"Links", testLinks},
		{"DeleteLinkedFails", testDeleteLinkedFails},
		{"DeleteLatestWithOlderVersionsFails", testDeleteLatestWithOlderVersions},
		{"DeleteLastVersionReclaimsSlot", testDeleteLastVersionReclaimsSlot},
		{"CreateDocument", testCreateDocument},
		{"RemoveDocument", testRemoveDocument},
		{"NextFreeID", testNextFreeID},
		{"Versions", testVersions},
		{"WriteVersionTwiceFails", testWriteVersionTwice},
		{"WriteVersionUnknownDocument", testWriteVersionUnknownDocument},
		{"DeleteVersion", testDeleteVersion},
		{"ChangelogNewestFirst", testChangelogNewestFirst},
		{"ConcurrentLinks", testConcurrentLinks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func newPar(t *testing.T, docID int, md string, id string) paragraph.Paragraph {
	t.Helper()
	p, err := paragraph.New(docID, md, paragraph.Attrs{"k": md}, nil, id)
	require.NoError(t, err)
	return p
}

// =============================================================================
// Paragraph content
// =============================================================================

func testPutGetParagraph(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "hello", "")
	require.NoError(t, s.PutParagraph(ctx, p))

	got, err := s.GetParagraph(ctx, 1, p.ID(), p.Hash())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), got.ID())
	assert.Equal(t, 1, got.DocID())
	assert.Equal(t, "hello", got.Markdown())
	assert.True(t, p.Equal(got))
	assert.Empty(t, got.Links())
}

func testPutIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "hello", "")
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.AddLink(ctx, 1, p.ID(), p.Hash(), 5))

	// Re-putting the same content must not clobber its links.
	require.NoError(t, s.PutParagraph(ctx, p))
	got, err := s.GetParagraph(ctx, 1, p.ID(), p.Hash())
	require.NoError(t, err)
	assert.Equal(t, []int{5}, got.Links())
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "x", "")

	_, err := s.GetParagraph(ctx, 1, p.ID(), p.Hash())
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)

	_, err = s.LatestParagraph(ctx, 1, p.ID())
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)
}

func testLatestPointer(t *testing.T, s store.Store) {
	ctx := context.Background()
	v1 := newPar(t, 1, "one", "")
	v2 := v1.WithMarkdown("two")
	require.NoError(t, s.PutParagraph(ctx, v1))
	require.NoError(t, s.PutParagraph(ctx, v2))

	require.NoError(t, s.SetLatest(ctx, 1, v1.ID(), v1.Hash()))
	got, err := s.LatestParagraph(ctx, 1, v1.ID())
	require.NoError(t, err)
	assert.Equal(t, "one", got.Markdown())

	require.NoError(t, s.SetLatest(ctx, 1, v1.ID(), v2.Hash()))
	got, err = s.LatestParagraph(ctx, 1, v1.ID())
	require.NoError(t, err)
	assert.Equal(t, "two", got.Markdown())

	// An empty hash means latest.
	got, err = s.GetParagraph(ctx, 1, v1.ID(), "")
	require.NoError(t, err)
	assert.Equal(t, v2.Hash(), got.Hash())

	// Old content stays addressable.
	old, err := s.GetParagraph(ctx, 1, v1.ID(), v1.Hash())
	require.NoError(t, err)
	assert.Equal(t, "one", old.Markdown())
}

func testSetLatestRequiresContent(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "x", "")
	err := s.SetLatest(ctx, 1, p.ID(), p.Hash())
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)
}

func testLinks(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "x", "")
	require.NoError(t, s.PutParagraph(ctx, p))

	require.NoError(t, s.AddLink(ctx, 1, p.ID(), p.Hash(), 3))
	require.NoError(t, s.AddLink(ctx, 1, p.ID(), p.Hash(), 2))
	require.NoError(t, s.AddLink(ctx, 1, p.ID(), p.Hash(), 3))

	got, err := s.GetParagraph(ctx, 1, p.ID(), p.Hash())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, got.Links())

	require.NoError(t, s.RemoveLink(ctx, 1, p.ID(), p.Hash(), 3))
	require.NoError(t, s.RemoveLink(ctx, 1, p.ID(), p.Hash(), 99))
	got, err = s.GetParagraph(ctx, 1, p.ID(), p.Hash())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, got.Links())

	err = s.AddLink(ctx, 1, paragraph.NewID(), p.Hash(), 3)
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)
}

func testDeleteLinkedFails(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "x", "")
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.SetLatest(ctx, 1, p.ID(), p.Hash()))
	require.NoError(t, s.AddLink(ctx, 1, p.ID(), p.Hash(), 2))

	err := s.DeleteParagraph(ctx, 1, p.ID(), p.Hash())
	require.Error(t, err)
	assert.True(t, docerr.IsInUse(err), "got %v", err)

	require.NoError(t, s.RemoveLink(ctx, 1, p.ID(), p.Hash(), 2))
	require.NoError(t, s.DeleteParagraph(ctx, 1, p.ID(), p.Hash()))
}

func testDeleteLatestWithOlderVersions(t *testing.T, s store.Store) {
	ctx := context.Background()
	v1 := newPar(t, 1, "one", "")
	v2 := v1.WithMarkdown("two")
	require.NoError(t, s.PutParagraph(ctx, v1))
	require.NoError(t, s.PutParagraph(ctx, v2))
	require.NoError(t, s.SetLatest(ctx, 1, v1.ID(), v2.Hash()))

	err := s.DeleteParagraph(ctx, 1, v1.ID(), v2.Hash())
	require.Error(t, err)
	assert.True(t, docerr.IsInUse(err), "got %v", err)

	// The superseded version can go.
	require.NoError(t, s.DeleteParagraph(ctx, 1, v1.ID(), v1.Hash()))
	_, err = s.GetParagraph(ctx, 1, v1.ID(), v1.Hash())
	assert.True(t, docerr.IsNotFound(err), "got %v", err)

	latest, err := s.LatestParagraph(ctx, 1, v1.ID())
	require.NoError(t, err)
	assert.Equal(t, "two", latest.Markdown())
}

func testDeleteLastVersionReclaimsSlot(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "x", "")
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.SetLatest(ctx, 1, p.ID(), p.Hash()))

	require.NoError(t, s.DeleteParagraph(ctx, 1, p.ID(), p.Hash()))

	_, err := s.LatestParagraph(ctx, 1, p.ID())
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)

	// The id can be reused from scratch.
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.SetLatest(ctx, 1, p.ID(), p.Hash()))
}

// =============================================================================
// Documents and versions
// =============================================================================

func testCreateDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	ok, err := s.DocumentExists(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateDocument(ctx, 4))
	ok, err = s.DocumentExists(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.CreateDocument(ctx, 4)
	require.Error(t, err)
	assert.True(t, docerr.IsAlreadyExists(err), "got %v", err)

	v, err := s.LatestVersion(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, store.Version{}, v)

	entries, err := s.ReadVersion(ctx, 4, v)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testRemoveDocument(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, 1))
	p := newPar(t, 1, "x", "")
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.SetLatest(ctx, 1, p.ID(), p.Hash()))
	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 1}, []store.Entry{{ParID: p.ID(), Hash: p.Hash()}}))
	require.NoError(t, s.AppendChangelog(ctx, 1, store.ChangelogEntry{ParID: p.ID(), Op: store.OpAdded, Ver: store.Version{Major: 1}}))

	require.NoError(t, s.RemoveDocument(ctx, 1))

	ok, err := s.DocumentExists(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.LatestVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.Version{}, v)

	log, err := s.Changelog(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, log)

	_, err = s.LatestParagraph(ctx, 1, p.ID())
	assert.True(t, docerr.IsNotFound(err), "got %v", err)

	err = s.RemoveDocument(ctx, 1)
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)

	// Fresh lifecycle after removal.
	require.NoError(t, s.CreateDocument(ctx, 1))
}

func testNextFreeID(t *testing.T, s store.Store) {
	ctx := context.Background()
	next, err := s.NextFreeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	require.NoError(t, s.CreateDocument(ctx, 2))
	require.NoError(t, s.CreateDocument(ctx, 10))
	require.NoError(t, s.CreateDocument(ctx, 9))

	next, err = s.NextFreeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, next)
}

func testVersions(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, 1))

	a := store.Entry{ParID: paragraph.NewID(), Hash: "h1"}
	b := store.Entry{ParID: paragraph.NewID(), Hash: "h2"}

	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 1}, []store.Entry{a}))
	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 2}, []store.Entry{a, b}))
	b2 := store.Entry{ParID: b.ParID, Hash: "h3"}
	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 2, Minor: 1}, []store.Entry{a, b2}))
	// Minor numbers beyond 9 must still order numerically.
	for minor := 2; minor <= 11; minor++ {
		require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 2, Minor: minor}, []store.Entry{a, b2}))
	}

	v, err := s.LatestVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.Version{Major: 2, Minor: 11}, v)

	entries, err := s.ReadVersion(ctx, 1, store.Version{Major: 1})
	require.NoError(t, err)
	assert.Equal(t, []store.Entry{a}, entries)

	entries, err = s.ReadVersion(ctx, 1, store.Version{Major: 2, Minor: 1})
	require.NoError(t, err)
	assert.Equal(t, []store.Entry{a, b2}, entries)

	_, err = s.ReadVersion(ctx, 1, store.Version{Major: 7})
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)
}

func testWriteVersionTwice(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, 1))
	v := store.Version{Major: 1}
	require.NoError(t, s.WriteVersion(ctx, 1, v, nil))

	err := s.WriteVersion(ctx, 1, v, []store.Entry{{ParID: "x", Hash: "y"}})
	require.Error(t, err)
	assert.True(t, docerr.IsAlreadyExists(err), "got %v", err)

	entries, err := s.ReadVersion(ctx, 1, v)
	require.NoError(t, err)
	assert.Empty(t, entries, "the first write must survive")
}

func testWriteVersionUnknownDocument(t *testing.T, s store.Store) {
	err := s.WriteVersion(context.Background(), 77, store.Version{Major: 1}, nil)
	require.Error(t, err)
	assert.True(t, docerr.IsNotFound(err), "got %v", err)
}

func testDeleteVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, 1))
	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 1}, nil))
	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 2}, nil))

	require.NoError(t, s.DeleteVersion(ctx, 1, store.Version{Major: 2}))
	v, err := s.LatestVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.Version{Major: 1}, v)

	err = s.DeleteVersion(ctx, 1, store.Version{Major: 2})
	assert.True(t, docerr.IsNotFound(err), "got %v", err)
}

func testChangelogNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, 1))

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendChangelog(ctx, 1, store.ChangelogEntry{
			GroupID:  0,
			ParID:    fmt.Sprintf("p%d", i),
			Op:       store.OpAdded,
			OpParams: map[string]string{store.ParamBeforeID: "x"},
			Ver:      store.Version{Major: i},
			Time:     "2026-01-01 00:00:00",
		}))
	}

	all, err := s.Changelog(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "p5", all[0].ParID)
	assert.Equal(t, "p1", all[4].ParID)
	assert.Equal(t, store.Version{Major: 5}, all[0].Ver)
	assert.Equal(t, "x", all[0].OpParams[store.ParamBeforeID])

	two, err := s.Changelog(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, two, 2)
	assert.Equal(t, "p5", two[0].ParID)
	assert.Equal(t, "p4", two[1].ParID)

	other, err := s.Changelog(ctx, 2, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func testConcurrentLinks(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := newPar(t, 1, "shared", "")
	require.NoError(t, s.PutParagraph(ctx, p))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(doc int) {
			defer wg.Done()
			errs <- s.AddLink(ctx, 1, p.ID(), p.Hash(), doc)
		}(i + 10)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetParagraph(ctx, 1, p.ID(), p.Hash())
	require.NoError(t, err)
	assert.Len(t, got.Links(), writers)
}
