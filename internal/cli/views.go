package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/pardoc/internal/document"
	"github.com/roach88/pardoc/internal/merge"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/resolver"
	"github.com/roach88/pardoc/internal/store"
)

// ParagraphView is the JSON form of a paragraph in command output.
type ParagraphView struct {
	DocID    int             `json:"doc_id"`
	ID       string          `json:"id"`
	Hash     string          `json:"t"`
	Kind     string          `json:"kind"`
	Markdown string          `json:"md"`
	Attrs    paragraph.Attrs `json:"attrs,omitempty"`
}

func paragraphView(p paragraph.Paragraph) ParagraphView {
	attrs := p.Attrs()
	if len(attrs) == 0 {
		attrs = nil
	}
	return ParagraphView{
		DocID:    p.DocID(),
		ID:       p.ID(),
		Hash:     p.Hash(),
		Kind:     p.Kind().String(),
		Markdown: p.Markdown(),
		Attrs:    attrs,
	}
}

func paragraphViews(pars []paragraph.Paragraph) []ParagraphView {
	out := make([]ParagraphView, 0, len(pars))
	for _, p := range pars {
		out = append(out, paragraphView(p))
	}
	return out
}

// ParagraphResult is the output of single-paragraph edits.
type ParagraphResult struct {
	Paragraph ParagraphView `json:"paragraph"`
	Version   store.Version `json:"version"`
}

// DocumentView is a full document listing.
type DocumentView struct {
	DocID      int             `json:"doc_id"`
	Version    store.Version   `json:"version"`
	Paragraphs []ParagraphView `json:"paragraphs"`
}

// EditResultView summarizes a multi-paragraph edit by paragraph id.
type EditResultView struct {
	Version store.Version `json:"version"`
	FirstID string        `json:"first_id,omitempty"`
	LastID  string        `json:"last_id,omitempty"`
	Added   []string      `json:"added"`
	Changed []string      `json:"changed"`
	Deleted []string      `json:"deleted"`
}

func editResultView(r document.EditResult, v store.Version) EditResultView {
	return EditResultView{
		Version: v,
		FirstID: r.FirstID,
		LastID:  r.LastID,
		Added:   idsOf(r.Added),
		Changed: idsOf(r.Changed),
		Deleted: idsOf(r.Deleted),
	}
}

func (v EditResultView) String() string {
	if len(v.Added)+len(v.Changed)+len(v.Deleted) == 0 {
		return fmt.Sprintf("No changes (version %s)", v.Version)
	}
	return fmt.Sprintf("Added %d, changed %d, deleted %d (version %s)",
		len(v.Added), len(v.Changed), len(v.Deleted), v.Version)
}

// ResolvedView is one dereferenced paragraph.
type ResolvedView struct {
	Paragraph   ParagraphView `json:"paragraph"`
	SourceDocID int           `json:"source_doc_id"`
	SourceParID string        `json:"source_par_id"`
	Deleted     bool          `json:"deleted,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func resolvedViews(items []resolver.Resolved) []ResolvedView {
	out := make([]ResolvedView, 0, len(items))
	for _, r := range items {
		v := ResolvedView{
			Paragraph:   paragraphView(r.Paragraph),
			SourceDocID: r.SourceDocID,
			SourceParID: r.SourceParID,
			Deleted:     r.Deleted,
		}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		out = append(out, v)
	}
	return out
}

// ChangeView is a diff step with the ids of its new paragraphs.
type ChangeView struct {
	merge.Change
	IDs []string `json:"ids,omitempty"`
}

func changeViews(changes []merge.Change) []ChangeView {
	out := make([]ChangeView, 0, len(changes))
	for _, c := range changes {
		out = append(out, ChangeView{Change: c, IDs: idsOf(c.Content)})
	}
	return out
}

func (c ChangeView) String() string {
	switch c.Kind {
	case merge.ChangeInsert:
		after := c.AfterID
		if after == "" {
			after = "(start)"
		}
		return fmt.Sprintf("insert after %s: %s", after, strings.Join(c.IDs, " "))
	case merge.ChangeReplace:
		return fmt.Sprintf("replace %s: %s", rangeOf(c.StartID, c.EndID), strings.Join(c.IDs, " "))
	case merge.ChangeDelete:
		return fmt.Sprintf("delete %s", rangeOf(c.StartID, c.EndID))
	default:
		return fmt.Sprintf("change %s", c.ID)
	}
}

func rangeOf(start, end string) string {
	if end == "" {
		end = "(end)"
	}
	return start + ".." + end
}

func idsOf(pars []paragraph.Paragraph) []string {
	out := make([]string, 0, len(pars))
	for _, p := range pars {
		out = append(out, p.ID())
	}
	return out
}
