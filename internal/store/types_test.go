package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pardoc/internal/docerr"
)

// =============================================================================
// Version
// =============================================================================

func TestVersion_Next(t *testing.T) {
	v := Version{Major: 3, Minor: 2}
	assert.Equal(t, Version{Major: 4}, v.Next(true))
	assert.Equal(t, Version{Major: 3, Minor: 3}, v.Next(false))
	assert.Equal(t, Version{Major: 1}, Version{}.Next(true))
}

func TestVersion_Less(t *testing.T) {
	assert.True(t, Version{Major: 1, Minor: 9}.Less(Version{Major: 2}))
	assert.True(t, Version{Major: 2, Minor: 1}.Less(Version{Major: 2, Minor: 10}))
	assert.False(t, Version{Major: 2}.Less(Version{Major: 2}))
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"3.1", Version{Major: 3, Minor: 1}},
		{"4", Version{Major: 4}},
		{" 0.0 ", Version{}},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "a.b", "1.", "-1.0", "1.-2"} {
		_, err := ParseVersion(bad)
		assert.True(t, docerr.IsValidation(err), bad)
	}
}

func TestVersion_JSON(t *testing.T) {
	data, err := json.Marshal(Version{Major: 4, Minor: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `[4,1]`, string(data))

	var v Version
	require.NoError(t, json.Unmarshal([]byte(`[7, 0]`), &v))
	assert.Equal(t, Version{Major: 7}, v)
	assert.Equal(t, "7.0", v.String())

	assert.Error(t, json.Unmarshal([]byte(`"7.0"`), &v))
}

// =============================================================================
// Version entries
// =============================================================================

func TestEntries_EncodeDecode(t *testing.T) {
	entries := []Entry{{ParID: "a", Hash: "1"}, {ParID: "b", Hash: "2"}}
	encoded := EncodeEntries(entries)
	assert.Equal(t, "a/1\nb/2\n", encoded)
	assert.Equal(t, entries, DecodeEntries(encoded))
}

func TestDecodeEntries_LegacyAndBlankLines(t *testing.T) {
	got := DecodeEntries("\n a \nb/2\r\n\n")
	assert.Equal(t, []Entry{{ParID: "a"}, {ParID: "b", Hash: "2"}}, got)
	assert.Empty(t, DecodeEntries(""))
}

func TestIndexOf(t *testing.T) {
	entries := []Entry{{ParID: "a"}, {ParID: "b"}}
	assert.Equal(t, 1, IndexOf(entries, "b"))
	assert.Equal(t, -1, IndexOf(entries, "z"))
}

// =============================================================================
// Changelog
// =============================================================================

func TestChangelogEntry_Wire(t *testing.T) {
	e := ChangelogEntry{
		GroupID:  0,
		ParID:    "p1",
		Op:       OpModified,
		OpParams: map[string]string{ParamOldHash: "h1", ParamNewHash: "h2"},
		Ver:      Version{Major: 2, Minor: 1},
		Time:     "2026-03-01 10:00:00",
	}
	line, err := EncodeChangelogEntry(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"group_id": 0,
		"par_id": "p1",
		"op": "Modified",
		"op_params": {"old_hash": "h1", "new_hash": "h2"},
		"ver": [2, 1],
		"time": "2026-03-01 10:00:00"
	}`, string(line))

	back, err := DecodeChangelogEntry(line)
	require.NoError(t, err)
	assert.Equal(t, e, back)

	_, err = DecodeChangelogEntry([]byte("{"))
	assert.Error(t, err)
}

func TestErrorBuilders(t *testing.T) {
	assert.True(t, docerr.IsNotFound(ErrParagraphNotFound(1, "p", "")))
	assert.True(t, docerr.IsNotFound(ErrDocumentNotFound(1)))
	assert.True(t, docerr.IsNotFound(ErrVersionNotFound(1, Version{Major: 1})))
	assert.True(t, docerr.IsAlreadyExists(ErrVersionExists(1, Version{Major: 1})))
	assert.True(t, docerr.IsInUse(ErrLatestInUse(1, "p", "h")))
	assert.True(t, docerr.IsInUse(ErrLinked(1, "p", "h", []int{2})))
}
