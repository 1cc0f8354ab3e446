package merge

import (
	"context"
	"strings"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/docparser"
	"github.com/roach88/pardoc/internal/document"
	"github.com/roach88/pardoc/internal/metrics"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
	"github.com/roach88/pardoc/internal/store/filestore"
	"github.com/roach88/pardoc/internal/testutil"
)

// =============================================================================
// Helpers
// =============================================================================

var (
	idA = testutil.ParID(1)
	idB = testutil.ParID(2)
	idC = testutil.ParID(3)
	idD = testutil.ParID(4)
	idX = testutil.ParID(5)
	idY = testutil.ParID(6)
)

func newLibrary(t *testing.T) *document.Library {
	t.Helper()
	s, err := filestore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return document.NewLibrary(s, document.WithClock(testutil.NewStepClock(0).Now))
}

// block is one paragraph of a test document: id and markdown.
type block struct {
	id string
	md string
}

func newDocument(t *testing.T, blocks ...block) *document.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := newLibrary(t).Create(ctx, 1, false)
	require.NoError(t, err)
	for _, b := range blocks {
		_, err := doc.AddParagraph(ctx, b.md, nil, b.id)
		require.NoError(t, err)
	}
	return doc
}

func text(t *testing.T, blocks ...block) string {
	t.Helper()
	pars := make([]paragraph.Paragraph, len(blocks))
	for i, b := range blocks {
		p, err := paragraph.New(1, b.md, nil, nil, b.id)
		require.NoError(t, err)
		pars[i] = p
	}
	return docparser.Text(pars, docparser.WriteOptions{})
}

func export(t *testing.T, doc *document.Document) string {
	t.Helper()
	s, err := doc.ExportMarkdown(context.Background(), false)
	require.NoError(t, err)
	return s
}

func requireState(t *testing.T, doc *document.Document, want ...block) {
	t.Helper()
	pars, err := doc.Paragraphs(context.Background())
	require.NoError(t, err)
	got := make([]block, len(pars))
	for i, p := range pars {
		got[i] = block{id: p.ID(), md: p.Markdown()}
	}
	require.Equal(t, want, got)
}

func requireVersion(t *testing.T, doc *document.Document, major, minor int) {
	t.Helper()
	v, err := doc.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, store.Version{Major: major, Minor: minor}, v)
}

func idsOf(pars []paragraph.Paragraph) []string {
	return ids(pars)
}

var (
	a = block{idA, "alpha"}
	b = block{idB, "bravo"}
	c = block{idC, "charlie"}
	d = block{idD, "delta"}
	x = block{idX, "x-ray"}
	y = block{idY, "yankee"}
)

// =============================================================================
// UpdateWhole
// =============================================================================

func TestUpdateWhole_ReplaceMiddle(t *testing.T) {
	ctx := context.Background()
	doc := newDocument(t, a, b, c)
	original := export(t, doc)
	m := metrics.New()

	res, err := New(WithMetrics(m)).UpdateWhole(ctx, doc, text(t, a, x, c), original, true)
	require.NoError(t, err)

	assert.Equal(t, []string{idB}, idsOf(res.Deleted))
	assert.Equal(t, []string{idX}, idsOf(res.Added))
	assert.Empty(t, res.Changed)
	assert.Equal(t, idA, res.FirstID)
	assert.Equal(t, idC, res.LastID)
	requireState(t, doc, a, x, c)
	// One structural version per paragraph operation.
	requireVersion(t, doc, 5, 0)

	expected := `
# HELP pardoc_merge_paragraphs_total Paragraphs touched by text updates
# TYPE pardoc_merge_paragraphs_total counter
pardoc_merge_paragraphs_total{change="added"} 1
pardoc_merge_paragraphs_total{change="changed"} 0
pardoc_merge_paragraphs_total{change="deleted"} 1
`
	require.NoError(t, promtestutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pardoc_merge_paragraphs_total"))
}

func TestUpdateWhole_Edits(t *testing.T) {
	tests := []struct {
		name    string
		start   []block
		edited  []block
		want    []block
		added   int
		changed int
		deleted int
		major   int
		minor   int
	}{
		{
			name:    "modify in place",
			start:   []block{a, b, c},
			edited:  []block{a, {idB, "bravo two"}, c},
			want:    []block{a, {idB, "bravo two"}, c},
			changed: 1,
			major:   3,
			minor:   1,
		},
		{
			name:   "insert at start and end",
			start:  []block{b},
			edited: []block{a, b, c},
			want:   []block{a, b, c},
			added:  2,
			major:  3,
		},
		{
			name:    "delete everything",
			start:   []block{a, b},
			edited:  nil,
			want:    []block{},
			deleted: 2,
			major:   4,
		},
		{
			name:   "fill empty document",
			start:  nil,
			edited: []block{a, b},
			want:   []block{a, b},
			added:  2,
			major:  2,
		},
		{
			name:    "move paragraph",
			start:   []block{a, b, c},
			edited:  []block{b, c, a},
			want:    []block{b, c, a},
			added:   1,
			deleted: 1,
			major:   5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			doc := newDocument(t, tt.start...)

			res, err := New().UpdateWhole(ctx, doc, text(t, tt.edited...), export(t, doc), true)
			require.NoError(t, err)
			assert.Len(t, res.Added, tt.added)
			assert.Len(t, res.Changed, tt.changed)
			assert.Len(t, res.Deleted, tt.deleted)
			requireState(t, doc, tt.want...)
			requireVersion(t, doc, tt.major, tt.minor)
		})
	}
}

func TestUpdateWhole_RoundTripIsNoop(t *testing.T) {
	ctx := context.Background()
	doc := newDocument(t, a, b, c)
	_, err := doc.AddParagraph(ctx, "tagged", paragraph.Attrs{"classes": "note", "lang": "fi"}, idD)
	require.NoError(t, err)
	exported := export(t, doc)

	res, err := New().UpdateWhole(ctx, doc, exported, exported, true)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	requireVersion(t, doc, 4, 0)
	assert.Equal(t, exported, export(t, doc))
}

func TestUpdateWhole_NewIDAlreadyInDocument(t *testing.T) {
	ctx := context.Background()
	doc := newDocument(t, a, b)
	original := export(t, doc)
	// Someone else adds c after the editor loaded the text.
	_, err := doc.AddParagraph(ctx, c.md, nil, c.id)
	require.NoError(t, err)

	_, err = New().UpdateWhole(ctx, doc, text(t, a, b, block{idC, "pasted"}), original, true)
	require.Error(t, err)
	assert.True(t, docerr.IsValidation(err))
	assert.Contains(t, err.Error(), idC)

	requireState(t, doc, a, b, c)
	requireVersion(t, doc, 3, 0)
}

func TestUpdateWhole_InvalidInput(t *testing.T) {
	unclosedArea := text(t, a) + "\n#- {area=\"X\"}\n"
	duplicate := text(t, a, a)

	tests := []struct {
		name    string
		newText string
		strict  bool
		wantErr bool
	}{
		{"unclosed area strict", unclosedArea, true, true},
		{"unclosed area lenient", unclosedArea, false, false},
		{"duplicate id strict", duplicate, true, true},
		{"duplicate id lenient", duplicate, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDocument(t, a)
			_, err := New().UpdateWhole(context.Background(), doc, tt.newText, export(t, doc), tt.strict)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, docerr.IsValidation(err))
			assert.False(t, docerr.IsCorruptOriginal(err))
			requireVersion(t, doc, 1, 0)
		})
	}
}

func TestUpdateWhole_CorruptOriginal(t *testing.T) {
	doc := newDocument(t, a)
	corrupt := "#- {id=\"nope\"}\nalpha\n"

	_, err := New().UpdateWhole(context.Background(), doc, text(t, a, b), corrupt, false)
	require.Error(t, err)
	assert.True(t, docerr.IsCorruptOriginal(err))
	assert.True(t, docerr.IsValidation(err))
	requireVersion(t, doc, 1, 0)
}

func TestUpdateWhole_StaleOriginalFallsBackToInsert(t *testing.T) {
	ctx := context.Background()
	doc := newDocument(t, a, b, c)
	original := export(t, doc)
	require.NoError(t, doc.DeleteParagraph(ctx, idC))

	res, err := New().UpdateWhole(ctx, doc, text(t, a, b, block{idC, "charlie two"}), original, true)
	require.NoError(t, err)
	assert.Equal(t, []string{idC}, idsOf(res.Added))
	requireState(t, doc, a, b, block{idC, "charlie two"})
}

// =============================================================================
// UpdateSection
// =============================================================================

func TestUpdateSection(t *testing.T) {
	tests := []struct {
		name    string
		start   []block
		first   string
		last    string
		edited  []block
		want    []block
		firstID string
		lastID  string
	}{
		{
			name:    "replace inside",
			start:   []block{a, b, c, d},
			first:   idB,
			last:    idC,
			edited:  []block{x, {idC, "charlie two"}},
			want:    []block{a, x, {idC, "charlie two"}, d},
			firstID: idX,
			lastID:  idC,
		},
		{
			name:    "append at end of document",
			start:   []block{a, b},
			first:   idB,
			last:    idB,
			edited:  []block{b, y},
			want:    []block{a, b, y},
			firstID: idB,
			lastID:  idY,
		},
		{
			name:    "replace before following paragraph",
			start:   []block{a, b, c},
			first:   idA,
			last:    idA,
			edited:  []block{x, y},
			want:    []block{x, y, b, c},
			firstID: idX,
			lastID:  idY,
		},
		{
			name:   "bounds in reverse order",
			start:  []block{a, b, c},
			first:  idC,
			last:   idB,
			edited: []block{},
			want:   []block{a},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDocument(t, tt.start...)
			res, err := New().UpdateSection(context.Background(), doc, text(t, tt.edited...), tt.first, tt.last, true)
			require.NoError(t, err)
			requireState(t, doc, tt.want...)
			assert.Equal(t, tt.firstID, res.FirstID)
			assert.Equal(t, tt.lastID, res.LastID)
		})
	}
}

func TestUpdateSection_IDFromOutsideSection(t *testing.T) {
	doc := newDocument(t, a, b, c)

	_, err := New().UpdateSection(context.Background(), doc, text(t, b, block{idC, "copy"}), idA, idB, false)
	require.Error(t, err)
	assert.True(t, docerr.IsValidation(err))
	assert.Contains(t, err.Error(), idC)
	requireState(t, doc, a, b, c)
	requireVersion(t, doc, 3, 0)
}

func TestUpdateSection_Strictness(t *testing.T) {
	unclosedArea := text(t, x) + "\n#- {area=\"X\"}\n"

	doc := newDocument(t, a, b)
	_, err := New().UpdateSection(context.Background(), doc, unclosedArea, idB, idB, true)
	require.Error(t, err)
	assert.True(t, docerr.IsValidation(err))
	requireState(t, doc, a, b)
	requireVersion(t, doc, 2, 0)

	res, err := New().UpdateSection(context.Background(), doc, unclosedArea, idB, idB, false)
	require.NoError(t, err)
	assert.Equal(t, idX, res.FirstID)
	pars, err := doc.Paragraphs(context.Background())
	require.NoError(t, err)
	require.Len(t, pars, 3)
	assert.Equal(t, []string{idA, idX}, []string{pars[0].ID(), pars[1].ID()})
	assert.Equal(t, "X", pars[2].Attrs()[paragraph.AttrArea])
}

func TestUpdateSection_MissingBound(t *testing.T) {
	doc := newDocument(t, a, b)

	_, err := New().UpdateSection(context.Background(), doc, text(t, a), idA, idX, false)
	assert.True(t, docerr.IsNotFound(err))
	requireVersion(t, doc, 2, 0)
}

// =============================================================================
// Diff
// =============================================================================

func pars(t *testing.T, blocks ...block) []paragraph.Paragraph {
	t.Helper()
	out := make([]paragraph.Paragraph, len(blocks))
	for i, bl := range blocks {
		p, err := paragraph.New(1, bl.md, nil, nil, bl.id)
		require.NoError(t, err)
		out[i] = p
	}
	return out
}

func kinds(changes []Change) []ChangeKind {
	out := make([]ChangeKind, len(changes))
	for i, c := range changes {
		out[i] = c.Kind
	}
	return out
}

func TestDiff(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		assert.Empty(t, Diff(pars(t, a, b), pars(t, a, b)))
	})

	t.Run("replace and change", func(t *testing.T) {
		changes := Diff(pars(t, a, b, c), pars(t, a, x, block{idC, "charlie two"}))
		require.Equal(t, []ChangeKind{ChangeReplace, ChangeModify}, kinds(changes))
		assert.Equal(t, idB, changes[0].StartID)
		assert.Equal(t, idC, changes[0].EndID)
		assert.Equal(t, []string{idX}, idsOf(changes[0].Content))
		assert.Equal(t, idC, changes[1].ID)
		assert.Equal(t, "charlie two", changes[1].Content[0].Markdown())
	})

	t.Run("insert at start", func(t *testing.T) {
		changes := Diff(pars(t, b), pars(t, a, b))
		require.Equal(t, []ChangeKind{ChangeInsert}, kinds(changes))
		assert.Empty(t, changes[0].AfterID)
	})

	t.Run("insert after", func(t *testing.T) {
		changes := Diff(pars(t, a), pars(t, a, b))
		require.Equal(t, []ChangeKind{ChangeInsert}, kinds(changes))
		assert.Equal(t, idA, changes[0].AfterID)
	})

	t.Run("delete tail", func(t *testing.T) {
		changes := Diff(pars(t, a, b, c), pars(t, a))
		require.Equal(t, []ChangeKind{ChangeDelete}, kinds(changes))
		assert.Equal(t, idB, changes[0].StartID)
		assert.Empty(t, changes[0].EndID)
	})
}
