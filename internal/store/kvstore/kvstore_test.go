package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
	"github.com/roach88/pardoc/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestOpen_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, s.CreateDocument(ctx, 8))
	p, err := paragraph.New(8, "kept", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.SetLatest(ctx, 8, p.ID(), p.Hash()))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.DocumentExists(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := s.LatestParagraph(ctx, 8, p.ID())
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Markdown())
}

func TestKeysOrderNumerically(t *testing.T) {
	assert.Less(t, string(versionKey(1, store.Version{Major: 2, Minor: 9})), string(versionKey(1, store.Version{Major: 2, Minor: 10})))
	assert.Less(t, string(docKey(9)), string(docKey(10)))
	assert.Less(t, string(logKey(1, 99)), string(logKey(1, 100)))
}

func TestRejectsSlashInIDs(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetParagraph(context.Background(), 1, "a/b", "h")
	require.Error(t, err)
	assert.True(t, docerr.IsValidation(err), "got %v", err)
}
