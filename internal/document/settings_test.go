package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/settings"
)

func settingsMarkdown(t *testing.T, values map[string]any) string {
	t.Helper()
	md, err := settings.New(values).Markdown()
	require.NoError(t, err)
	return md
}

func requireSetting(t *testing.T, doc *Document, key string, want any) {
	t.Helper()
	s, err := doc.Settings(context.Background())
	require.NoError(t, err)
	got, ok := s.Get(key)
	require.True(t, ok, "setting %q missing", key)
	assert.Equal(t, want, got)
}

func TestSettings_EmptyDocument(t *testing.T) {
	lib, _ := newTestLibrary(t)
	doc := newTestDocument(t, lib, 1)

	s, err := doc.Settings(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestSettings_LaterBlocksOverride(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	doc := newTestDocument(t, lib, 1)
	attrs := paragraph.Attrs{paragraph.AttrSettings: ""}

	_, err := doc.AddParagraph(ctx, settingsMarkdown(t, map[string]any{"lang": "fi", "theme": "dark"}), attrs, "")
	require.NoError(t, err)
	_, err = doc.AddParagraph(ctx, settingsMarkdown(t, map[string]any{"lang": "en"}), attrs, "")
	require.NoError(t, err)
	_, err = doc.AddParagraph(ctx, "text", nil, "")
	require.NoError(t, err)
	// Settings after content do not count.
	_, err = doc.AddParagraph(ctx, settingsMarkdown(t, map[string]any{"lang": "sv"}), attrs, "")
	require.NoError(t, err)

	requireSetting(t, doc, "lang", "en")
	requireSetting(t, doc, "theme", "dark")
}

func TestSettings_BrokenBlockIsIgnored(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	doc := newTestDocument(t, lib, 1)
	_, err := doc.AddParagraph(ctx, "```\n: [\n```", paragraph.Attrs{paragraph.AttrSettings: ""}, "")
	require.NoError(t, err)

	s, err := doc.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
}

func TestSetSettings_Placement(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)

	t.Run("empty document adds", func(t *testing.T) {
		doc := newTestDocument(t, lib, 1)
		_, err := doc.SetSettings(ctx, settings.New(map[string]any{"lang": "fi"}))
		require.NoError(t, err)
		requireVersion(t, doc, 1, 0)
		requireSetting(t, doc, "lang", "fi")
	})

	t.Run("content only inserts first", func(t *testing.T) {
		doc := newTestDocument(t, lib, 2)
		_, err := doc.AddParagraph(ctx, "text", nil, "")
		require.NoError(t, err)

		p, err := doc.SetSettings(ctx, settings.New(map[string]any{"lang": "fi"}))
		require.NoError(t, err)
		pars, err := doc.Paragraphs(ctx)
		require.NoError(t, err)
		require.Len(t, pars, 2)
		assert.Equal(t, p.ID(), pars[0].ID())
		assert.True(t, pars[0].IsSetting())
		requireVersion(t, doc, 2, 0)
	})

	t.Run("existing block is modified", func(t *testing.T) {
		doc := newTestDocument(t, lib, 3)
		first, err := doc.SetSettings(ctx, settings.New(map[string]any{"lang": "fi"}))
		require.NoError(t, err)
		second, err := doc.SetSettings(ctx, settings.New(map[string]any{"lang": "en"}))
		require.NoError(t, err)

		assert.Equal(t, first.ID(), second.ID())
		requireVersion(t, doc, 1, 1)
		requireSetting(t, doc, "lang", "en")
	})
}

func TestAddSetting_KeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	doc := newTestDocument(t, lib, 1)

	_, err := doc.SetSettings(ctx, settings.New(map[string]any{"lang": "fi"}))
	require.NoError(t, err)
	_, err = doc.AddSetting(ctx, "theme", "dark")
	require.NoError(t, err)

	requireSetting(t, doc, "lang", "fi")
	requireSetting(t, doc, "theme", "dark")

	pars, err := doc.Paragraphs(ctx)
	require.NoError(t, err)
	assert.Len(t, pars, 1)
}

func TestSettings_ReferenceWithExplicitDocument(t *testing.T) {
	ctx := context.Background()
	lib, _ := newTestLibrary(t)
	shared := newTestDocument(t, lib, 1)
	src, err := shared.SetSettings(ctx, settings.New(map[string]any{"lang": "sv"}))
	require.NoError(t, err)

	doc := newTestDocument(t, lib, 2)
	_, err = doc.AddParagraph(ctx, "", paragraph.Attrs{
		paragraph.AttrSettings: "",
		paragraph.AttrRefDoc:   "1",
		paragraph.AttrRefPar:   src.ID(),
	}, "")
	require.NoError(t, err)
	requireSetting(t, doc, "lang", "sv")

	// A plain block after the reference is inserted, not the reference
	// rewritten.
	_, err = doc.SetSettings(ctx, settings.New(map[string]any{"theme": "dark"}))
	require.NoError(t, err)
	pars, err := doc.Paragraphs(ctx)
	require.NoError(t, err)
	require.Len(t, pars, 2)
	assert.True(t, pars[0].IsReference())
	assert.False(t, pars[1].IsReference())
	requireSetting(t, doc, "lang", "sv")
	requireSetting(t, doc, "theme", "dark")
}
