package docparser

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/testutil"
)

// =============================================================================
// Parse
// =============================================================================

func TestParse_MarkedBlocks(t *testing.T) {
	text := `#- {id="` + testutil.ParID(1) + `" t="abc" .note #task1 plugin=mmcq title="a \"b\" \\ c"}
First paragraph
spanning lines

#-
Second

#- {area=intro}
`
	blocks := Parse(text, Options{})
	require.Len(t, blocks, 3)

	b := blocks[0]
	assert.Equal(t, testutil.ParID(1), b.ID)
	assert.Equal(t, "abc", b.Hash)
	assert.Equal(t, "First paragraph\nspanning lines", b.Markdown)
	assert.Equal(t, paragraph.Attrs{
		paragraph.AttrClasses: "note",
		paragraph.AttrTaskID:  "task1",
		paragraph.AttrPlugin:  "mmcq",
		"title":               `a "b" \ c`,
	}, b.Attrs)
	assert.Equal(t, 1, b.Line)
	assert.True(t, b.Marked)

	assert.Empty(t, blocks[1].ID)
	assert.Equal(t, "Second", blocks[1].Markdown)
	assert.Equal(t, 5, blocks[1].Line)

	assert.Equal(t, "", blocks[2].Markdown)
	assert.Equal(t, "intro", blocks[2].Attrs[paragraph.AttrArea])
}

func TestParse_MarkerInsideFenceIsText(t *testing.T) {
	text := "#-\n```\n#- not a marker\n```\n"
	blocks := Parse(text, DefaultOptions())
	require.Len(t, blocks, 1)
	assert.Equal(t, "```\n#- not a marker\n```", blocks[0].Markdown)
}

func TestParse_BreakOnElements(t *testing.T) {
	text := "# Title\nIntro text\n\n```\ncode\n```\nafter\n"

	blocks := Parse(text, DefaultOptions())
	var mds []string
	for _, b := range blocks {
		mds = append(mds, b.Markdown)
		assert.False(t, b.Marked)
	}
	assert.Equal(t, []string{"# Title", "Intro text", "```\ncode\n```", "after"}, mds)

	blocks = Parse(text, Options{})
	require.Len(t, blocks, 1)
	assert.Equal(t, "# Title\nIntro text\n\n```\ncode\n```\nafter", blocks[0].Markdown)
}

func TestParse_MarkedBlocksAreNotSplit(t *testing.T) {
	text := "#-\nIntro\n# Heading\ntext\n"
	blocks := Parse(text, DefaultOptions())
	require.Len(t, blocks, 1)
	assert.Equal(t, "Intro\n# Heading\ntext", blocks[0].Markdown)
}

func TestParse_TextBeforeFirstMarker(t *testing.T) {
	blocks := Parse("\n\npreamble\n#- {id=\""+testutil.ParID(2)+"\"}\nbody", Options{})
	require.Len(t, blocks, 2)
	assert.Equal(t, "preamble", blocks[0].Markdown)
	assert.Equal(t, 3, blocks[0].Line)
	assert.False(t, blocks[0].Marked)
	assert.Equal(t, testutil.ParID(2), blocks[1].ID)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse("", DefaultOptions()))
	assert.Empty(t, Parse("\n\n  \n", DefaultOptions()))
}

func TestParse_CRLF(t *testing.T) {
	blocks := Parse("#- {a=\"1\"}\r\nline one\r\nline two\r\n", Options{})
	require.Len(t, blocks, 1)
	assert.Equal(t, "line one\nline two", blocks[0].Markdown)
}

func TestParseAttrList_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no brace", "plain"},
		{"unterminated list", `{id="x"`},
		{"unterminated quote", `{k="x}`},
		{"missing value", `{k}`},
		{"trailing text", `{k=v} extra`},
		{"empty class", `{.}`},
		{"empty task", `{# }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAttrList(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestParseAttrList_ClassesCombine(t *testing.T) {
	al, err := parseAttrList(`{classes="a b" .c}`)
	require.NoError(t, err)
	assert.Equal(t, "a b c", al.attrs[paragraph.AttrClasses])
}

// =============================================================================
// AssignMissing
// =============================================================================

func TestAssignMissing(t *testing.T) {
	blocks := Parse("#- {id=\""+testutil.ParID(1)+"\" t=\"stale\"}\none\n#-\ntwo\n", Options{})
	out := AssignMissing(blocks)
	require.Len(t, out, 2)

	assert.Equal(t, testutil.ParID(1), out[0].ID)
	assert.Equal(t, paragraph.Hash("one", paragraph.Attrs{}), out[0].Hash)
	assert.True(t, paragraph.IsValidID(out[1].ID))
	assert.Equal(t, paragraph.Hash("two", paragraph.Attrs{}), out[1].Hash)

	// Input is untouched.
	assert.Empty(t, blocks[1].ID)
	assert.Equal(t, "stale", blocks[0].Hash)
}

func TestParagraphs(t *testing.T) {
	blocks := AssignMissing(Parse("#- {.x}\nhello", Options{}))
	pars, err := Paragraphs(4, blocks)
	require.NoError(t, err)
	require.Len(t, pars, 1)
	assert.Equal(t, 4, pars[0].DocID())
	assert.Equal(t, blocks[0].ID, pars[0].ID())
	assert.Equal(t, blocks[0].Hash, pars[0].Hash())
	assert.Equal(t, []string{blocks[0].ID}, IDs(blocks))
}

// =============================================================================
// Validate
// =============================================================================

func codes(r *Result) []string {
	var out []string
	for _, i := range r.Issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidate_Clean(t *testing.T) {
	text := "#- {settings=\"\"}\n```\na: 1\n```\n#- {area=x}\nin\n#-\nmiddle\n#- {area_end=x}\n"
	r := Validate(AssignMissing(Parse(text, Options{})))
	assert.Empty(t, r.Issues)
	assert.NoError(t, r.Err(true))
}

func TestValidate_Issues(t *testing.T) {
	id := testutil.ParID(1)
	tests := []struct {
		name     string
		text     string
		code     string
		critical bool
	}{
		{"duplicate id", `#- {id="` + id + `"}` + "\na\n" + `#- {id="` + id + `"}` + "\nb\n", ErrDuplicateID, true},
		{"invalid id", "#- {id=\"abc\"}\nx\n", ErrInvalidID, true},
		{"attribute syntax", "#- {id=\"x\"\nx\n", ErrAttributeSyntax, true},
		{"bad reference", "#- {rp=\"a\" ra=\"b\"}\n", ErrInvalidReference, true},
		{"rd without target", "#- {rd=\"3\"}\n", ErrInvalidReference, true},
		{"unterminated fence", "#-\n```\ncode\n", ErrUnterminatedFence, false},
		{"area reopened", "#- {area=a}\n#- {area=a}\n#- {area_end=a}\n", ErrAreaReopened, false},
		{"area not closed", "#- {area=a}\ntext\n", ErrAreaNotClosed, false},
		{"area not opened", "#- {area_end=a}\n", ErrAreaNotOpened, false},
		{"settings after content", "#-\ntext\n#- {settings=\"\"}\n", ErrSettingsNotFirst, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(Parse(tt.text, Options{}))
			require.Contains(t, codes(r), tt.code)
			assert.Equal(t, tt.critical, r.HasCritical())

			strictErr := r.Err(true)
			require.Error(t, strictErr)
			assert.True(t, docerr.IsValidation(strictErr))
			assert.Contains(t, strictErr.Error(), tt.code)

			if tt.critical {
				assert.Error(t, r.Err(false))
			} else {
				assert.NoError(t, r.Err(false))
			}
		})
	}
}

func TestDuplicateIDs(t *testing.T) {
	blocks := []Block{{ID: "a"}, {ID: "b"}, {ID: "a"}, {ID: "a"}, {}}
	assert.Equal(t, []string{"a"}, DuplicateIDs(blocks))
}

func TestIssue_Error(t *testing.T) {
	assert.Equal(t, "[E101] line 3: dup", Issue{Code: ErrDuplicateID, Message: "dup", Line: 3}.Error())
	assert.Equal(t, "[E105] open", Issue{Code: ErrUnterminatedFence, Message: "open"}.Error())
}

// =============================================================================
// Write
// =============================================================================

func exportFixture(t *testing.T) []paragraph.Paragraph {
	t.Helper()
	specs := []struct {
		md    string
		attrs paragraph.Attrs
	}{
		{"```\nmacros:\n  x: 1\n```", paragraph.Attrs{paragraph.AttrSettings: ""}},
		{"# Heading\n\nSome text.", paragraph.Attrs{paragraph.AttrClasses: "note wide", paragraph.AttrTaskID: "t1"}},
		{"", paragraph.Attrs{paragraph.AttrRefKind: "tr", paragraph.AttrRefDoc: "7", paragraph.AttrRefPar: testutil.ParID(8)}},
		{`He said "hi"`, paragraph.Attrs{"lang": "en", "title": `He said "hi"`}},
	}
	pars := make([]paragraph.Paragraph, len(specs))
	for i, s := range specs {
		p, err := paragraph.New(1, s.md, s.attrs, nil, testutil.ParID(i+1))
		require.NoError(t, err)
		pars[i] = p
	}
	return pars
}

func TestWrite_Golden(t *testing.T) {
	out := Text(exportFixture(t), WriteOptions{})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export", []byte(out))
}

func TestWrite_RoundTrip(t *testing.T) {
	pars := exportFixture(t)
	for _, hashes := range []bool{false, true} {
		text := Text(pars, WriteOptions{Hashes: hashes})
		blocks := Parse(text, DefaultOptions())
		require.Len(t, blocks, len(pars))
		assert.Empty(t, Validate(blocks).Issues)

		for i, b := range AssignMissing(blocks) {
			assert.Equal(t, pars[i].ID(), b.ID)
			assert.Equal(t, pars[i].Markdown(), b.Markdown)
			assert.Equal(t, pars[i].Attrs(), b.Attrs)
			assert.Equal(t, pars[i].Hash(), b.Hash)
		}
	}
}

func TestWrite_HashesOnMarker(t *testing.T) {
	pars := exportFixture(t)[:1]
	text := Text(pars, WriteOptions{Hashes: true})
	assert.Contains(t, text, `t="`+pars[0].Hash()+`"`)
}

func TestWrite_IrregularClassesRoundTrip(t *testing.T) {
	p, err := paragraph.New(1, "x", paragraph.Attrs{paragraph.AttrClasses: " a  b"}, nil, testutil.ParID(5))
	require.NoError(t, err)
	blocks := Parse(Text([]paragraph.Paragraph{p}, WriteOptions{}), Options{})
	require.Len(t, blocks, 1)
	assert.Equal(t, " a  b", blocks[0].Attrs[paragraph.AttrClasses])
}

func TestWrite_ControlCharactersRoundTrip(t *testing.T) {
	attrs := paragraph.Attrs{
		"title":              "line one\nline two",
		"path":               `C:\new\table`,
		"cell":               "a\tb\r\n",
		paragraph.AttrTaskID: "t\n1",
	}
	p, err := paragraph.New(1, "body", attrs, nil, testutil.ParID(6))
	require.NoError(t, err)

	text := Text([]paragraph.Paragraph{p}, WriteOptions{})
	marker, _, ok := strings.Cut(text, "\n")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(marker, "#- {"))
	assert.True(t, strings.HasSuffix(marker, "}"))

	blocks := Parse(text, DefaultOptions())
	require.Len(t, blocks, 1)
	assert.Empty(t, Validate(blocks).Issues)
	assert.Equal(t, attrs, blocks[0].Attrs)
	assert.Equal(t, "body", blocks[0].Markdown)
	assert.Equal(t, p.Hash(), AssignMissing(blocks)[0].Hash)
}
