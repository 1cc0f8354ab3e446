package document

import (
	"context"
	"slices"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
)

// EditResult summarizes a multi-paragraph edit.
type EditResult struct {
	// FirstID and LastID bound the edited range in the new text. Both are
	// empty when the range ended up empty.
	FirstID string
	LastID  string

	Added   []paragraph.Paragraph
	Changed []paragraph.Paragraph
	Deleted []paragraph.Paragraph
}

// Empty reports whether the edit touched nothing.
func (r EditResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Changed) == 0 && len(r.Deleted) == 0
}

// sectionOf returns the inclusive range between startID and endID in pars.
func (d *Document) sectionOf(pars []paragraph.Paragraph, startID, endID string) ([]paragraph.Paragraph, error) {
	if startID == "" && endID == "" {
		return []paragraph.Paragraph{}, nil
	}
	if startID == "" || endID == "" {
		return nil, docerr.Validation("section needs both a start and an end paragraph").WithDoc(d.id)
	}
	indexOf := func(id string) int {
		return slices.IndexFunc(pars, func(p paragraph.Paragraph) bool { return p.ID() == id })
	}
	start := indexOf(startID)
	if start < 0 {
		return nil, d.errParNotFound(startID)
	}
	end := indexOf(endID)
	if end < 0 {
		return nil, d.errParNotFound(endID)
	}
	if end < start {
		start, end = end, start
	}
	return slices.Clone(pars[start : end+1]), nil
}

// Section returns the paragraphs from startID to endID inclusive. Bounds
// given in reverse order are swapped. Both empty yields an empty section.
func (d *Document) Section(ctx context.Context, startID, endID string) ([]paragraph.Paragraph, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.sectionOf(pars, startID, endID)
}

// NamedSection returns the area called name: the paragraph opening it, its
// members and the paragraph closing it. InvalidArea if either marker is
// missing.
func (d *Document) NamedSection(ctx context.Context, name string) ([]paragraph.Paragraph, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out []paragraph.Paragraph
	started := false
	for _, p := range pars {
		if v, ok := p.Attr(paragraph.AttrArea); ok && v == name {
			started = true
		}
		if started {
			out = append(out, p)
		}
		if v, ok := p.Attr(paragraph.AttrAreaEnd); ok && v == name && started {
			return out, nil
		}
	}
	return nil, docerr.InvalidArea(name).WithDoc(d.id)
}

// NamedSectionExists reports whether an area called name is opened.
func (d *Document) NamedSectionExists(ctx context.Context, name string) (bool, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range pars {
		if v, ok := p.Attr(paragraph.AttrArea); ok && v == name {
			return true, nil
		}
	}
	return false, nil
}

// DeleteSection deletes every paragraph from startID to endID inclusive.
func (d *Document) DeleteSection(ctx context.Context, startID, endID string) (EditResult, error) {
	var res EditResult
	err := d.edit(ctx, "delete_section", func(e *Editor) error {
		_, pars, err := d.snapshot(ctx)
		if err != nil {
			return err
		}
		section, err := d.sectionOf(pars, startID, endID)
		if err != nil {
			return err
		}
		for _, p := range section {
			deleted, err := e.Delete(ctx, p.ID())
			if err != nil {
				return err
			}
			res.Deleted = append(res.Deleted, deleted)
		}
		return nil
	})
	return res, err
}
