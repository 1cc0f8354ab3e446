package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
	"github.com/roach88/pardoc/internal/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pardoc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

// =============================================================================
// Pragmas and schema
// =============================================================================

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestOpen_SchemaVersion(t *testing.T) {
	s := openTestStore(t)
	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_RefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pardoc.db")

	s, err := Open(path)
	require.NoError(t, err)
	p, err := paragraph.New(1, "persisted", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, s.CreateDocument(ctx, 1))
	require.NoError(t, s.PutParagraph(ctx, p))
	require.NoError(t, s.SetLatest(ctx, 1, p.ID(), p.Hash()))
	require.NoError(t, s.WriteVersion(ctx, 1, store.Version{Major: 1}, []store.Entry{{ParID: p.ID(), Hash: p.Hash()}}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LatestParagraph(ctx, 1, p.ID())
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Markdown())

	v, err := s.LatestVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.Version{Major: 1}, v)
}

func TestRemoveDocument_CascadesVersionsAndChangelog(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateDocument(ctx, 3))
	require.NoError(t, s.WriteVersion(ctx, 3, store.Version{Major: 1}, nil))
	require.NoError(t, s.AppendChangelog(ctx, 3, store.ChangelogEntry{ParID: "x", Op: store.OpAdded}))

	require.NoError(t, s.RemoveDocument(ctx, 3))

	for _, table := range []string{"versions", "changelog"} {
		var n int
		require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE doc_id = 3`).Scan(&n))
		assert.Zero(t, n, table)
	}
}
