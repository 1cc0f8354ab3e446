package document

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
)

// Editor performs mutations while a Batch holds the document lock. It must
// not be used after the batch function returns.
type Editor struct {
	doc    *Document
	closed bool
}

// Document returns the document being edited. Its read methods are safe to
// call inside the batch; its mutating methods are not, they would wait for
// the lock the batch holds.
func (e *Editor) Document() *Document { return e.doc }

func (e *Editor) check() error {
	if e.closed {
		return errors.New("document editor used after its batch ended")
	}
	return nil
}

// Batch runs fn while holding the document lock. Each mutation fn makes
// through the Editor commits its own version; an error from fn does not
// roll back versions already written.
func (d *Document) Batch(ctx context.Context, fn func(*Editor) error) error {
	return d.edit(ctx, "batch", fn)
}

func (d *Document) edit(ctx context.Context, op string, fn func(*Editor) error) (err error) {
	start := time.Now()
	defer func() {
		d.lib.metrics.OperationDone(op, err, time.Since(start))
	}()

	unlock, err := d.lib.lock(ctx, d.id)
	if err != nil {
		return fmt.Errorf("lock document %d: %w", d.id, err)
	}
	defer func() {
		if uerr := unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock document %d: %w", d.id, uerr)
		}
	}()

	ok, err := d.lib.store.DocumentExists(ctx, d.id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrDocumentNotFound(d.id)
	}

	e := &Editor{doc: d}
	defer func() { e.closed = true }()
	return fn(e)
}

// change describes one committed mutation.
type change struct {
	op         string
	parID      string
	params     map[string]string
	structural bool
}

// commit writes entries as the version after from and records the
// changelog entry. If the changelog write fails the version is deleted
// again so the two never disagree.
func (d *Document) commit(ctx context.Context, from store.Version, entries []store.Entry, c change) (store.Version, error) {
	st := d.lib.store
	v := from.Next(c.structural)
	if err := st.WriteVersion(ctx, d.id, v, entries); err != nil {
		return store.Version{}, err
	}
	entry := store.ChangelogEntry{
		GroupID:  d.lib.group,
		ParID:    c.parID,
		Op:       c.op,
		OpParams: c.params,
		Ver:      v,
		Time:     d.lib.now().Format(store.TimeFormat),
	}
	if err := st.AppendChangelog(ctx, d.id, entry); err != nil {
		if derr := st.DeleteVersion(ctx, d.id, v); derr != nil {
			d.lib.logger.Error("version rollback failed",
				"doc", d.id,
				"version", v.String(),
				"error", derr,
			)
			return store.Version{}, errors.Join(err, derr)
		}
		d.lib.logger.Warn("version rolled back",
			"doc", d.id,
			"version", v.String(),
			"error", err,
		)
		return store.Version{}, err
	}

	d.invalidate()
	d.lib.resolver.Invalidate()
	d.lib.metrics.VersionWritten(c.structural)
	d.lib.logger.Debug("version written",
		"doc", d.id,
		"op", c.op,
		"par", c.parID,
		"version", v.String(),
	)
	return v, nil
}

// storeContent persists p and makes it the latest content of its id.
func (d *Document) storeContent(ctx context.Context, p paragraph.Paragraph) error {
	if err := d.lib.store.PutParagraph(ctx, p); err != nil {
		return err
	}
	return d.lib.store.SetLatest(ctx, d.id, p.ID(), p.Hash())
}

// Add appends p to the document.
func (e *Editor) Add(ctx context.Context, p paragraph.Paragraph) (paragraph.Paragraph, error) {
	if err := e.check(); err != nil {
		return paragraph.Paragraph{}, err
	}
	d := e.doc
	p = p.WithDocID(d.id)
	v, entries, err := d.current(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	if store.IndexOf(entries, p.ID()) >= 0 {
		return paragraph.Paragraph{}, d.errDuplicate(p.ID())
	}
	if p, err = d.pin(ctx, p); err != nil {
		return paragraph.Paragraph{}, err
	}
	if err := d.storeContent(ctx, p); err != nil {
		return paragraph.Paragraph{}, err
	}
	next := append(slices.Clone(entries), store.Entry{ParID: p.ID(), Hash: p.Hash()})
	if _, err := d.commit(ctx, v, next, change{op: store.OpAdded, parID: p.ID(), structural: true}); err != nil {
		return paragraph.Paragraph{}, err
	}
	d.relink(ctx, paragraph.Paragraph{}, p)
	return p, nil
}

// Insert places p next to the paragraph pos names. The neighbour must be in
// the current version.
func (e *Editor) Insert(ctx context.Context, p paragraph.Paragraph, pos Position) (paragraph.Paragraph, error) {
	if pos.BeforeID == "" && pos.AfterID == "" {
		return e.Add(ctx, p)
	}
	if err := e.check(); err != nil {
		return paragraph.Paragraph{}, err
	}
	d := e.doc
	p = p.WithDocID(d.id)
	v, entries, err := d.current(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	if store.IndexOf(entries, p.ID()) >= 0 {
		return paragraph.Paragraph{}, d.errDuplicate(p.ID())
	}

	var at int
	var params map[string]string
	if pos.BeforeID != "" {
		at = store.IndexOf(entries, pos.BeforeID)
		if at < 0 {
			return paragraph.Paragraph{}, d.errParNotFound(pos.BeforeID)
		}
		params = map[string]string{store.ParamBeforeID: pos.BeforeID}
	} else {
		at = store.IndexOf(entries, pos.AfterID)
		if at < 0 {
			return paragraph.Paragraph{}, d.errParNotFound(pos.AfterID)
		}
		at++
		params = map[string]string{store.ParamAfterID: pos.AfterID}
	}

	if p, err = d.pin(ctx, p); err != nil {
		return paragraph.Paragraph{}, err
	}
	if err := d.storeContent(ctx, p); err != nil {
		return paragraph.Paragraph{}, err
	}
	next := slices.Insert(slices.Clone(entries), at, store.Entry{ParID: p.ID(), Hash: p.Hash()})
	c := change{op: store.OpInserted, parID: p.ID(), params: params, structural: true}
	if _, err := d.commit(ctx, v, next, c); err != nil {
		return paragraph.Paragraph{}, err
	}
	d.relink(ctx, paragraph.Paragraph{}, p)
	return p, nil
}

// Modify replaces the content of parID in place. A nil attrs keeps the
// current attributes. Properties are kept.
func (e *Editor) Modify(ctx context.Context, parID, markdown string, attrs paragraph.Attrs) (paragraph.Paragraph, error) {
	if err := e.check(); err != nil {
		return paragraph.Paragraph{}, err
	}
	d := e.doc
	v, entries, err := d.current(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	i := store.IndexOf(entries, parID)
	if i < 0 {
		return paragraph.Paragraph{}, d.errParNotFound(parID)
	}
	old, err := d.entryParagraph(ctx, entries[i])
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	if attrs == nil {
		attrs = old.Attrs()
	}
	p, err := paragraph.New(d.id, markdown, attrs, old.Properties(), parID)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	if p, err = d.pin(ctx, p); err != nil {
		return paragraph.Paragraph{}, err
	}

	if err := d.storeContent(ctx, p); err != nil {
		return paragraph.Paragraph{}, err
	}
	next := slices.Clone(entries)
	next[i] = store.Entry{ParID: parID, Hash: p.Hash()}
	c := change{
		op:    store.OpModified,
		parID: parID,
		params: map[string]string{
			store.ParamOldHash: old.Hash(),
			store.ParamNewHash: p.Hash(),
		},
	}
	if _, err := d.commit(ctx, v, next, c); err != nil {
		return paragraph.Paragraph{}, err
	}
	d.relink(ctx, old, p)
	return p, nil
}

// Delete removes parID from the document and returns the removed content.
// The content itself stays in the store.
func (e *Editor) Delete(ctx context.Context, parID string) (paragraph.Paragraph, error) {
	if err := e.check(); err != nil {
		return paragraph.Paragraph{}, err
	}
	d := e.doc
	v, entries, err := d.current(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	i := store.IndexOf(entries, parID)
	if i < 0 {
		return paragraph.Paragraph{}, d.errParNotFound(parID)
	}
	old, err := d.entryParagraph(ctx, entries[i])
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	next := slices.Delete(slices.Clone(entries), i, i+1)
	if _, err := d.commit(ctx, v, next, change{op: store.OpDeleted, parID: parID, structural: true}); err != nil {
		return paragraph.Paragraph{}, err
	}
	d.relink(ctx, old, paragraph.Paragraph{})
	return old, nil
}

func (d *Document) errDuplicate(parID string) error {
	return docerr.AlreadyExists("document %d already contains paragraph %s", d.id, parID).WithDoc(d.id).WithPar(parID)
}

// =============================================================================
// Convenience mutations, each in its own batch
// =============================================================================

// AddParagraph appends a new paragraph. An empty id generates one.
func (d *Document) AddParagraph(ctx context.Context, markdown string, attrs paragraph.Attrs, id string) (paragraph.Paragraph, error) {
	p, err := paragraph.New(d.id, markdown, attrs, nil, id)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	var out paragraph.Paragraph
	err = d.edit(ctx, "add", func(e *Editor) error {
		out, err = e.Add(ctx, p)
		return err
	})
	return out, err
}

// InsertParagraph inserts a new paragraph at pos.
func (d *Document) InsertParagraph(ctx context.Context, markdown string, attrs paragraph.Attrs, id string, pos Position) (paragraph.Paragraph, error) {
	p, err := paragraph.New(d.id, markdown, attrs, nil, id)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	var out paragraph.Paragraph
	err = d.edit(ctx, "insert", func(e *Editor) error {
		out, err = e.Insert(ctx, p, pos)
		return err
	})
	return out, err
}

// ModifyParagraph replaces the content of parID. A nil attrs keeps the
// current attributes.
func (d *Document) ModifyParagraph(ctx context.Context, parID, markdown string, attrs paragraph.Attrs) (paragraph.Paragraph, error) {
	var out paragraph.Paragraph
	err := d.edit(ctx, "modify", func(e *Editor) error {
		var err error
		out, err = e.Modify(ctx, parID, markdown, attrs)
		return err
	})
	return out, err
}

// DeleteParagraph removes parID from the document.
func (d *Document) DeleteParagraph(ctx context.Context, parID string) error {
	return d.edit(ctx, "delete", func(e *Editor) error {
		_, err := e.Delete(ctx, parID)
		return err
	})
}

// =============================================================================
// Links
// =============================================================================

// linkTarget is the content version a paragraph reference pins.
type linkTarget struct {
	doc  int
	par  string
	hash string
}

// pin stamps rt with the target's latest hash on a cross-document paragraph
// reference that has none, so the back-link stays on one content version
// when the target changes later.
func (d *Document) pin(ctx context.Context, p paragraph.Paragraph) (paragraph.Paragraph, error) {
	ref, ok := p.Reference()
	if !ok || ref.Hash != "" {
		return p, nil
	}
	t, ok := d.linkTargetOf(ctx, p)
	if !ok {
		return p, nil
	}
	return p.WithAttr(paragraph.AttrRefHash, t.hash)
}

// linkTargetOf returns the content a cross-document paragraph reference
// points at: the rt hash when present, else the target's latest content.
func (d *Document) linkTargetOf(ctx context.Context, p paragraph.Paragraph) (linkTarget, bool) {
	if !p.IsParReference() {
		return linkTarget{}, false
	}
	ref, _ := p.Reference()
	docID, err := strconv.Atoi(strings.TrimSpace(ref.Doc))
	if err != nil || docID <= 0 || docID == d.id {
		return linkTarget{}, false
	}
	t := linkTarget{doc: docID, par: ref.Par, hash: ref.Hash}
	if t.hash == "" {
		latest, err := d.lib.store.LatestParagraph(ctx, docID, ref.Par)
		if err != nil {
			return linkTarget{}, false
		}
		t.hash = latest.Hash()
	}
	return t, true
}

// relink moves this document's link from the content old referenced to the
// content p references. Either may be the zero Paragraph. Failures are
// logged; a missing link only weakens garbage collection.
func (d *Document) relink(ctx context.Context, old, p paragraph.Paragraph) {
	from, hadFrom := d.linkTargetOf(ctx, old)
	to, hasTo := d.linkTargetOf(ctx, p)
	if hadFrom && hasTo && from == to {
		return
	}
	st := d.lib.store
	if hadFrom {
		if err := st.RemoveLink(ctx, from.doc, from.par, from.hash, d.id); err != nil {
			d.lib.logger.Warn("remove link failed",
				"doc", d.id,
				"target_doc", from.doc,
				"target_par", from.par,
				"error", err,
			)
		}
	}
	if hasTo {
		if err := st.AddLink(ctx, to.doc, to.par, to.hash, d.id); err != nil {
			d.lib.logger.Warn("add link failed",
				"doc", d.id,
				"target_doc", to.doc,
				"target_par", to.par,
				"error", err,
			)
		}
	}
	if hadFrom || hasTo {
		d.lib.resolver.Invalidate()
	}
}
