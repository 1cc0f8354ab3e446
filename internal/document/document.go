package document

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/resolver"
	"github.com/roach88/pardoc/internal/settings"
	"github.com/roach88/pardoc/internal/store"
)

// Position names the neighbour a paragraph is inserted next to. BeforeID
// wins when both are set; neither means append.
type Position struct {
	BeforeID string
	AfterID  string
}

// Document is a handle to one document of a Library. Handles are cheap;
// each caches what it last read.
type Document struct {
	lib *Library
	id  int

	mu    sync.Mutex
	cache snapshot
}

var _ resolver.Source = (*Document)(nil)

// snapshot is the cached state of one version.
type snapshot struct {
	valid    bool
	ver      store.Version
	pars     []paragraph.Paragraph
	settings *settings.Settings
}

// ID returns the document id.
func (d *Document) ID() int { return d.id }

// Exists reports whether the document is registered.
func (d *Document) Exists(ctx context.Context) (bool, error) {
	return d.lib.store.DocumentExists(ctx, d.id)
}

// Create registers the document. See Library.Create.
func (d *Document) Create(ctx context.Context, ignoreExists bool) error {
	_, err := d.lib.Create(ctx, d.id, ignoreExists)
	return err
}

// Version returns the current version, (0,0) for a new document.
func (d *Document) Version(ctx context.Context) (store.Version, error) {
	return d.lib.store.LatestVersion(ctx, d.id)
}

// Changelog returns up to max entries, newest first.
func (d *Document) Changelog(ctx context.Context, max int) ([]store.ChangelogEntry, error) {
	return d.lib.store.Changelog(ctx, d.id, max)
}

func (d *Document) errParNotFound(parID string) error {
	return docerr.NotFound("document %d: paragraph not found: %s", d.id, parID).WithDoc(d.id).WithPar(parID)
}

// current reads the latest version and its entries straight from the store.
func (d *Document) current(ctx context.Context) (store.Version, []store.Entry, error) {
	v, err := d.lib.store.LatestVersion(ctx, d.id)
	if err != nil {
		return store.Version{}, nil, err
	}
	entries, err := d.lib.store.ReadVersion(ctx, d.id, v)
	if err != nil {
		return store.Version{}, nil, err
	}
	return v, entries, nil
}

// entryParagraph loads the content an entry names. Entries without a hash
// name the latest content.
func (d *Document) entryParagraph(ctx context.Context, e store.Entry) (paragraph.Paragraph, error) {
	if e.Hash == "" {
		return d.lib.store.LatestParagraph(ctx, d.id, e.ParID)
	}
	return d.lib.store.GetParagraph(ctx, d.id, e.ParID, e.Hash)
}

func (d *Document) load(ctx context.Context, v store.Version) ([]paragraph.Paragraph, error) {
	entries, err := d.lib.store.ReadVersion(ctx, d.id, v)
	if err != nil {
		return nil, err
	}
	pars := make([]paragraph.Paragraph, 0, len(entries))
	for _, e := range entries {
		p, err := d.entryParagraph(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("load document %d version %s: %w", d.id, v, err)
		}
		pars = append(pars, p)
	}
	return pars, nil
}

// snapshot returns the paragraphs of the current version, from cache when
// the version has not moved. The returned slice is shared; do not modify.
func (d *Document) snapshot(ctx context.Context) (store.Version, []paragraph.Paragraph, error) {
	v, err := d.lib.store.LatestVersion(ctx, d.id)
	if err != nil {
		return store.Version{}, nil, err
	}
	d.mu.Lock()
	if d.cache.valid && d.cache.ver == v {
		pars := d.cache.pars
		d.mu.Unlock()
		return v, pars, nil
	}
	d.mu.Unlock()

	pars, err := d.load(ctx, v)
	if err != nil {
		return store.Version{}, nil, err
	}
	d.mu.Lock()
	d.cache = snapshot{valid: true, ver: v, pars: pars}
	d.mu.Unlock()
	return v, pars, nil
}

func (d *Document) invalidate() {
	d.mu.Lock()
	d.cache = snapshot{}
	d.mu.Unlock()
}

// Paragraphs returns the paragraphs of the current version in order.
func (d *Document) Paragraphs(ctx context.Context) ([]paragraph.Paragraph, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(pars), nil
}

// ParagraphsAt returns the paragraphs of a historical version.
func (d *Document) ParagraphsAt(ctx context.Context, v store.Version) ([]paragraph.Paragraph, error) {
	return d.load(ctx, v)
}

// ParIDs returns the paragraph ids of the current version in order.
func (d *Document) ParIDs(ctx context.Context) ([]string, error) {
	_, entries, err := d.current(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ParID
	}
	return ids, nil
}

// HasParagraph reports whether parID is in the current version.
func (d *Document) HasParagraph(ctx context.Context, parID string) (bool, error) {
	_, entries, err := d.current(ctx)
	if err != nil {
		return false, err
	}
	return store.IndexOf(entries, parID) >= 0, nil
}

// GetParagraph returns parID as it is in the current version.
func (d *Document) GetParagraph(ctx context.Context, parID string) (paragraph.Paragraph, error) {
	_, entries, err := d.current(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	i := store.IndexOf(entries, parID)
	if i < 0 {
		return paragraph.Paragraph{}, d.errParNotFound(parID)
	}
	return d.entryParagraph(ctx, entries[i])
}

// LatestParagraph returns the latest content of parID, whether or not it is
// still part of the document.
func (d *Document) LatestParagraph(ctx context.Context, parID string) (paragraph.Paragraph, error) {
	return d.lib.store.LatestParagraph(ctx, d.id, parID)
}

// Dereferenced returns the current paragraphs with every reference
// expanded. Paragraphs whose references fail become placeholders with Err
// set.
func (d *Document) Dereferenced(ctx context.Context) ([]resolver.Resolved, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return d.lib.resolver.Dereference(ctx, pars), nil
}

// ReferencedDocumentIDs returns the ids of the documents the current
// version borrows content from, sorted. References that fail to resolve
// are skipped.
func (d *Document) ReferencedDocumentIDs(ctx context.Context) ([]int, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, p := range pars {
		if !p.IsReference() {
			continue
		}
		res, err := d.lib.resolver.Resolve(ctx, p)
		if err != nil {
			continue
		}
		for _, r := range res {
			ids = append(ids, r.SourceDocID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// ParagraphByTask finds the paragraph whose taskId is taskID, looking into
// resolved references as well. Broken references are skipped.
func (d *Document) ParagraphByTask(ctx context.Context, taskID string) (paragraph.Paragraph, error) {
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	for _, p := range pars {
		if v, ok := p.Attr(paragraph.AttrTaskID); ok && v == taskID {
			return p, nil
		}
		if !p.IsReference() {
			continue
		}
		res, err := d.lib.resolver.Resolve(ctx, p)
		if err != nil {
			continue
		}
		for _, r := range res {
			if v, ok := r.Paragraph.Attr(paragraph.AttrTaskID); ok && v == taskID {
				return r.Paragraph, nil
			}
		}
	}
	return paragraph.Paragraph{}, docerr.NotFound("task not found in document %d: %s", d.id, taskID).WithDoc(d.id)
}
