package merge

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/pardoc/internal/paragraph"
)

// ChangeKind classifies one Change.
type ChangeKind string

const (
	ChangeInsert  ChangeKind = "insert"
	ChangeReplace ChangeKind = "replace"
	ChangeDelete  ChangeKind = "delete"
	ChangeModify  ChangeKind = "change"
)

// Change is one step turning an old paragraph list into a new one.
type Change struct {
	Kind ChangeKind `json:"type"`

	// AfterID is the old paragraph an insert follows; empty at the start.
	AfterID string `json:"after_id,omitempty"`

	// StartID is the first old paragraph a replace or delete covers. EndID
	// is the old paragraph right after the range, empty at the end.
	StartID string `json:"start_id,omitempty"`
	EndID   string `json:"end_id,omitempty"`

	// ID is the paragraph whose content changed.
	ID string `json:"id,omitempty"`

	Content []paragraph.Paragraph `json:"-"`
}

// Diff compares two paragraph lists by id and content. Paragraphs kept in
// place whose hash or attributes differ are reported as ChangeModify.
func Diff(from, to []paragraph.Paragraph) []Change {
	oldIDs := ids(from)
	ops := difflib.NewMatcher(oldIDs, ids(to)).GetOpCodes()

	endID := func(i int) string {
		if i < len(oldIDs) {
			return oldIDs[i]
		}
		return ""
	}

	var changes []Change
	for _, op := range ops {
		switch op.Tag {
		case tagInsert:
			after := ""
			if op.I2 > 0 {
				after = oldIDs[op.I2-1]
			}
			changes = append(changes, Change{Kind: ChangeInsert, AfterID: after, Content: to[op.J1:op.J2]})
		case tagReplace:
			changes = append(changes, Change{
				Kind:    ChangeReplace,
				StartID: oldIDs[op.I1],
				EndID:   endID(op.I2),
				Content: to[op.J1:op.J2],
			})
		case tagDelete:
			changes = append(changes, Change{Kind: ChangeDelete, StartID: oldIDs[op.I1], EndID: endID(op.I2)})
		case tagEqual:
			for k := 0; k < op.I2-op.I1; k++ {
				o, n := from[op.I1+k], to[op.J1+k]
				if !o.Equal(n) {
					changes = append(changes, Change{Kind: ChangeModify, ID: o.ID(), Content: []paragraph.Paragraph{n}})
				}
			}
		}
	}
	return changes
}
