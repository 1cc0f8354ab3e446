package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/pardoc/internal/docerr"
)

// Version is a document revision: Major counts structural changes, Minor
// in-place content changes since the last structural one.
type Version struct {
	Major int
	Minor int
}

// Next returns the version after v. Structural changes bump Major and reset
// Minor; content changes bump Minor.
func (v Version) Next(structural bool) Version {
	if structural {
		return Version{Major: v.Major + 1}
	}
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// Less orders versions lexicographically.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// IsZero reports whether v is the empty initial version.
func (v Version) IsZero() bool { return v.Major == 0 && v.Minor == 0 }

// String formats v as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses "major.minor". A bare "major" means minor 0.
func ParseVersion(s string) (Version, error) {
	major, minor, hasMinor := strings.Cut(strings.TrimSpace(s), ".")
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(major); err != nil || v.Major < 0 {
		return Version{}, docerr.Validation("invalid version %q", s)
	}
	if hasMinor {
		if v.Minor, err = strconv.Atoi(minor); err != nil || v.Minor < 0 {
			return Version{}, docerr.Validation("invalid version %q", s)
		}
	}
	return v, nil
}

// MarshalJSON encodes v as [major, minor].
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{v.Major, v.Minor})
}

// UnmarshalJSON decodes [major, minor].
func (v *Version) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	v.Major, v.Minor = pair[0], pair[1]
	return nil
}

// Entry is one line of a version: a paragraph id and the content hash it
// had in that version. An empty Hash means "latest".
type Entry struct {
	ParID string
	Hash  string
}

// String formats e as a version file line.
func (e Entry) String() string {
	if e.Hash == "" {
		return e.ParID
	}
	return e.ParID + "/" + e.Hash
}

// EncodeEntries renders entries one "id/hash" per line.
func EncodeEntries(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// DecodeEntries parses the output of EncodeEntries. Blank lines are
// skipped; a line without "/" is an entry pointing at the latest hash.
func DecodeEntries(data string) []Entry {
	lines := strings.Split(data, "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, hash, _ := strings.Cut(line, "/")
		entries = append(entries, Entry{ParID: id, Hash: hash})
	}
	return entries
}

// IndexOf returns the position of parID in entries, or -1.
func IndexOf(entries []Entry, parID string) int {
	for i, e := range entries {
		if e.ParID == parID {
			return i
		}
	}
	return -1
}

// Changelog operations.
const (
	OpAdded    = "Added"
	OpInserted = "Inserted"
	OpModified = "Modified"
	OpDeleted  = "Deleted"
)

// Operation parameter keys.
const (
	ParamBeforeID = "before_id"
	ParamAfterID  = "after_id"
	ParamOldHash  = "old_hash"
	ParamNewHash  = "new_hash"
)

// ChangelogEntry records one document mutation.
type ChangelogEntry struct {
	GroupID  int               `json:"group_id"`
	ParID    string            `json:"par_id"`
	Op       string            `json:"op"`
	OpParams map[string]string `json:"op_params,omitempty"`
	Ver      Version           `json:"ver"`
	Time     string            `json:"time"`
}

// TimeFormat is the changelog timestamp layout.
const TimeFormat = "2006-01-02 15:04:05"

// EncodeChangelogEntry renders e as one JSON line without the newline.
func EncodeChangelogEntry(e ChangelogEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode changelog entry: %w", err)
	}
	return data, nil
}

// DecodeChangelogEntry parses one JSON changelog line.
func DecodeChangelogEntry(line []byte) (ChangelogEntry, error) {
	var e ChangelogEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return ChangelogEntry{}, fmt.Errorf("decode changelog entry: %w", err)
	}
	return e, nil
}

// ErrParagraphNotFound builds the NotFound error every backend returns for a
// missing content version or paragraph id.
func ErrParagraphNotFound(docID int, parID, hash string) error {
	if hash == "" {
		return docerr.NotFound("paragraph %s does not exist", parID).WithDoc(docID).WithPar(parID)
	}
	return docerr.NotFound("paragraph %s has no content %s", parID, hash).WithDoc(docID).WithPar(parID)
}

// ErrDocumentNotFound builds the NotFound error for an unregistered document.
func ErrDocumentNotFound(docID int) error {
	return docerr.NotFound("document %d does not exist", docID).WithDoc(docID)
}

// ErrVersionNotFound builds the NotFound error for an unknown version.
func ErrVersionNotFound(docID int, v Version) error {
	return docerr.NotFound("version %s does not exist", v).WithDoc(docID)
}

// ErrVersionExists builds the AlreadyExists error for a version written twice.
func ErrVersionExists(docID int, v Version) error {
	return docerr.AlreadyExists("version %s already exists", v).WithDoc(docID)
}

// ErrLatestInUse builds the InUse error for deleting the latest content of
// a paragraph that still has older versions.
func ErrLatestInUse(docID int, parID, hash string) error {
	return docerr.InUse("content %s is the latest version of paragraph %s", hash, parID).WithDoc(docID).WithPar(parID)
}

// ErrLinked builds the InUse error for deleting referenced content.
func ErrLinked(docID int, parID, hash string, links []int) error {
	return docerr.InUse("content %s of paragraph %s is referenced by documents %v", hash, parID, links).WithDoc(docID).WithPar(parID)
}
