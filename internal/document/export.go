package document

import (
	"context"

	"github.com/roach88/pardoc/internal/docparser"
	"github.com/roach88/pardoc/internal/paragraph"
)

// ExportMarkdown renders the current version in the block text format.
// With hashes every marker line also carries the content hash.
func (d *Document) ExportMarkdown(ctx context.Context, hashes bool) (string, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return "", err
	}
	return docparser.Text(pars, docparser.WriteOptions{Hashes: hashes}), nil
}

// ExportSection renders the section from startID to endID.
func (d *Document) ExportSection(ctx context.Context, startID, endID string, hashes bool) (string, error) {
	section, err := d.Section(ctx, startID, endID)
	if err != nil {
		return "", err
	}
	return docparser.Text(section, docparser.WriteOptions{Hashes: hashes}), nil
}

// TextToParagraphs parses text into paragraphs of this document without
// storing them. Blocks without an id get a new one. Critical syntax issues
// fail with a validation error.
func (d *Document) TextToParagraphs(text string, breakOnElements bool) ([]paragraph.Paragraph, error) {
	blocks := docparser.AssignMissing(docparser.Parse(text, docparser.Options{BreakOnElements: breakOnElements}))
	if err := docparser.Validate(blocks).Err(false); err != nil {
		return nil, err
	}
	return docparser.Paragraphs(d.id, blocks)
}

// AddText parses text and appends every block as a new paragraph, all
// under one lock.
func (d *Document) AddText(ctx context.Context, text string) ([]paragraph.Paragraph, error) {
	pars, err := d.TextToParagraphs(text, false)
	if err != nil {
		return nil, err
	}
	out := make([]paragraph.Paragraph, 0, len(pars))
	err = d.edit(ctx, "add_text", func(e *Editor) error {
		for _, p := range pars {
			added, err := e.Add(ctx, p)
			if err != nil {
				return err
			}
			out = append(out, added)
		}
		return nil
	})
	return out, err
}
