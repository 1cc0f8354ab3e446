package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/docerr"
)

func TestParse_FencedBlock(t *testing.T) {
	s, err := Parse("```\nsource_document: 12\nmacros:\n  course: ITKP102\n```")
	require.NoError(t, err)

	doc, ok := s.SourceDocument()
	require.True(t, ok)
	assert.Equal(t, 12, doc)
	assert.Equal(t, map[string]any{"course": "ITKP102"}, s.Macros())
	assert.Equal(t, DefaultMacroDelimiter, s.MacroDelimiter())
}

func TestParse_Unfenced(t *testing.T) {
	s, err := Parse("auto_number_headings: true\nmacro_delimiter: '¤'")
	require.NoError(t, err)
	assert.True(t, s.AutoNumberHeadings())
	assert.Equal(t, "¤", s.MacroDelimiter())
}

func TestParse_Empty(t *testing.T) {
	s, err := Parse("```\n```")
	require.NoError(t, err)
	assert.True(t, s.IsEmpty())
	_, ok := s.SourceDocument()
	assert.False(t, ok)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("```\n- just\n- a list\n```")
	require.Error(t, err)
	assert.True(t, docerr.IsValidation(err))
}

func TestSourceDocument_StringValue(t *testing.T) {
	s := New(map[string]any{KeySourceDocument: "42"})
	doc, ok := s.SourceDocument()
	require.True(t, ok)
	assert.Equal(t, 42, doc)

	bad := New(map[string]any{KeySourceDocument: "abc"})
	_, ok = bad.SourceDocument()
	assert.False(t, ok)
}

func TestMerge_RecursiveOverlay(t *testing.T) {
	base := New(map[string]any{
		"macros": map[string]any{"a": 1, "b": 2},
		"keep":   "yes",
		"drop":   "me",
	})
	overlay := New(map[string]any{
		"macros": map[string]any{"b": 3, "c": 4},
		"drop":   nil,
	})

	merged := base.Merge(overlay)
	assert.Equal(t, map[string]any{
		"macros": map[string]any{"a": 1, "b": 3, "c": 4},
		"keep":   "yes",
	}, merged.Values())

	// Inputs are untouched.
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, base.Macros())
}

func TestWith(t *testing.T) {
	s := New(nil).With("x", 1)
	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	s = s.With("x", nil)
	_, ok = s.Get("x")
	assert.False(t, ok)
}

func TestMarkdown_RoundTrip(t *testing.T) {
	s := New(map[string]any{"source_document": 3, "macros": map[string]any{"m": "v"}})
	md, err := s.Markdown()
	require.NoError(t, err)
	assert.True(t, len(md) > 6)
	assert.Equal(t, "```\n", md[:4])

	back, err := Parse(md)
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
}

func TestValues_IsDeepCopy(t *testing.T) {
	s := New(map[string]any{"macros": map[string]any{"a": 1}})
	v := s.Values()
	v["macros"].(map[string]any)["a"] = 99
	assert.Equal(t, map[string]any{"a": 1}, s.Macros())
}
