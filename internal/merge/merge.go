// Package merge applies edited document text to a stored document.
//
// The incoming text is parsed into paragraphs and aligned against the old
// paragraph ids with a sequence matcher. Ids, not content, are the alignment
// key. Opcodes are applied in two passes: every deleted or replaced old
// paragraph is removed first, then new paragraphs are inserted and aligned
// paragraphs whose content changed are modified. Deleting first keeps ids
// unique in every intermediate version.
//
// Each paragraph operation commits its own version. The whole update runs
// inside one Document.Batch, so no other writer can interleave, but an
// error part way leaves the earlier operations committed.
package merge

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/docparser"
	"github.com/roach88/pardoc/internal/document"
	"github.com/roach88/pardoc/internal/metrics"
	"github.com/roach88/pardoc/internal/paragraph"
)

// Opcode tags produced by difflib.
const (
	tagEqual   = 'e'
	tagReplace = 'r'
	tagDelete  = 'd'
	tagInsert  = 'i'
)

// Engine applies text edits to documents.
type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateWhole replaces the content of doc with newText. originalText is
// the text the editor started from; it decides which ids in newText are
// new. A new id that is already in the document fails with a validation
// error before anything is written.
//
// In strict mode every structural issue in newText aborts; otherwise only
// critical ones do. If originalText itself no longer parses the error is
// CorruptOriginal.
func (e *Engine) UpdateWhole(ctx context.Context, doc *document.Document, newText, originalText string, strict bool) (document.EditResult, error) {
	newPars, err := parse(doc.ID(), newText, strict)
	if err != nil {
		return document.EditResult{}, err
	}
	oldPars, err := parse(doc.ID(), originalText, false)
	if err != nil {
		if docerr.IsValidation(err) {
			return document.EditResult{}, docerr.CorruptOriginal(err).WithDoc(doc.ID())
		}
		return document.EditResult{}, err
	}

	original := make(map[string]bool, len(oldPars))
	for _, p := range oldPars {
		original[p.ID()] = true
	}

	var res document.EditResult
	err = doc.Batch(ctx, func(ed *document.Editor) error {
		current, err := doc.ParIDs(ctx)
		if err != nil {
			return err
		}
		var conflicts []string
		for _, p := range newPars {
			if !original[p.ID()] && slices.Contains(current, p.ID()) {
				conflicts = append(conflicts, p.ID())
			}
		}
		if len(conflicts) > 0 {
			return errDuplicate(doc.ID(), conflicts)
		}
		res, err = e.apply(ctx, ed, oldPars, newPars, "")
		return err
	})
	e.done(doc.ID(), "update", res, err)
	return res, err
}

// UpdateSection replaces the paragraphs from startID to endID inclusive
// with newText. Ids in newText must not appear in the document outside the
// section. strict works as in UpdateWhole.
func (e *Engine) UpdateSection(ctx context.Context, doc *document.Document, newText, startID, endID string, strict bool) (document.EditResult, error) {
	newPars, err := parse(doc.ID(), newText, strict)
	if err != nil {
		return document.EditResult{}, err
	}

	var res document.EditResult
	err = doc.Batch(ctx, func(ed *document.Editor) error {
		pars, err := doc.Paragraphs(ctx)
		if err != nil {
			return err
		}
		start, end, err := sectionBounds(doc.ID(), pars, startID, endID)
		if err != nil {
			return err
		}

		inSection := make(map[string]bool, end-start+1)
		for _, p := range pars[start : end+1] {
			inSection[p.ID()] = true
		}
		outside := make(map[string]bool, len(pars))
		for _, p := range pars {
			if !inSection[p.ID()] {
				outside[p.ID()] = true
			}
		}
		var conflicts []string
		for _, p := range newPars {
			if outside[p.ID()] {
				conflicts = append(conflicts, p.ID())
			}
		}
		if len(conflicts) > 0 {
			return errDuplicate(doc.ID(), conflicts)
		}

		lastParID := ""
		if end+1 < len(pars) {
			lastParID = pars[end+1].ID()
		}
		res, err = e.apply(ctx, ed, pars[start:end+1], newPars, lastParID)
		return err
	})
	e.done(doc.ID(), "update_section", res, err)
	return res, err
}

// parse turns text into paragraphs of docID, assigning ids to blocks that
// have none.
func parse(docID int, text string, strict bool) ([]paragraph.Paragraph, error) {
	blocks := docparser.AssignMissing(docparser.Parse(text, docparser.DefaultOptions()))
	if err := docparser.Validate(blocks).Err(strict); err != nil {
		return nil, err
	}
	return docparser.Paragraphs(docID, blocks)
}

func sectionBounds(docID int, pars []paragraph.Paragraph, startID, endID string) (int, int, error) {
	indexOf := func(id string) int {
		return slices.IndexFunc(pars, func(p paragraph.Paragraph) bool { return p.ID() == id })
	}
	start := indexOf(startID)
	if start < 0 {
		return 0, 0, docerr.NotFound("document %d: section start not found: %s", docID, startID).WithDoc(docID).WithPar(startID)
	}
	end := indexOf(endID)
	if end < 0 {
		return 0, 0, docerr.NotFound("document %d: section end not found: %s", docID, endID).WithDoc(docID).WithPar(endID)
	}
	if end < start {
		start, end = end, start
	}
	return start, end, nil
}

func errDuplicate(docID int, ids []string) error {
	sort.Strings(ids)
	ids = slices.Compact(ids)
	err := docerr.Validation("duplicate paragraph id(s): %s", strings.Join(ids, ", ")).WithDoc(docID)
	err.Details = map[string]string{"ids": strings.Join(ids, ",")}
	return err
}

// apply aligns oldPars with newPars and performs the edit through ed.
// lastParID is the paragraph following the edited range, empty when the
// range runs to the end of the document.
func (e *Engine) apply(ctx context.Context, ed *document.Editor, oldPars, newPars []paragraph.Paragraph, lastParID string) (document.EditResult, error) {
	var res document.EditResult
	doc := ed.Document()
	oldIDs := ids(oldPars)
	newIDs := ids(newPars)
	ops := difflib.NewMatcher(oldIDs, newIDs).GetOpCodes()

	for _, op := range ops {
		if op.Tag != tagDelete && op.Tag != tagReplace {
			continue
		}
		for _, id := range oldIDs[op.I1:op.I2] {
			deleted, err := ed.Delete(ctx, id)
			if docerr.IsNotFound(err) {
				e.logger.Debug("paragraph already gone", "doc", doc.ID(), "par", id)
				continue
			}
			if err != nil {
				return res, err
			}
			res.Deleted = append(res.Deleted, deleted)
		}
	}

	// anchor returns the first old paragraph at or after index i that is
	// still in the document.
	anchor := func(i int) (string, error) {
		for ; i < len(oldIDs); i++ {
			ok, err := doc.HasParagraph(ctx, oldIDs[i])
			if err != nil {
				return "", err
			}
			if ok {
				return oldIDs[i], nil
			}
		}
		return lastParID, nil
	}
	insert := func(p paragraph.Paragraph, at int) error {
		before, err := anchor(at)
		if err != nil {
			return err
		}
		added, err := ed.Insert(ctx, p, document.Position{BeforeID: before})
		if err != nil {
			return err
		}
		res.Added = append(res.Added, added)
		return nil
	}

	for _, op := range ops {
		switch op.Tag {
		case tagReplace, tagInsert:
			for _, p := range newPars[op.J1:op.J2] {
				if err := insert(p, op.I2); err != nil {
					return res, err
				}
			}
		case tagEqual:
			for k := 0; k < op.I2-op.I1; k++ {
				old, p := oldPars[op.I1+k], newPars[op.J1+k]
				if old.Equal(p) {
					continue
				}
				ok, err := doc.HasParagraph(ctx, old.ID())
				if err != nil {
					return res, err
				}
				if !ok {
					if err := insert(p, op.I1+k+1); err != nil {
						return res, err
					}
					continue
				}
				attrs := p.Attrs()
				if attrs == nil {
					attrs = paragraph.Attrs{}
				}
				changed, err := ed.Modify(ctx, old.ID(), p.Markdown(), attrs)
				if err != nil {
					return res, err
				}
				res.Changed = append(res.Changed, changed)
			}
		}
	}

	if len(newIDs) > 0 {
		res.FirstID, res.LastID = newIDs[0], newIDs[len(newIDs)-1]
	}
	return res, nil
}

func (e *Engine) done(docID int, op string, res document.EditResult, err error) {
	if err != nil {
		e.logger.Warn("document update failed",
			"doc", docID,
			"op", op,
			"added", len(res.Added),
			"changed", len(res.Changed),
			"deleted", len(res.Deleted),
			"error", err,
		)
		return
	}
	e.metrics.MergeApplied(len(res.Added), len(res.Changed), len(res.Deleted))
	e.logger.Info("document updated",
		"doc", docID,
		"op", op,
		"added", len(res.Added),
		"changed", len(res.Changed),
		"deleted", len(res.Deleted),
	)
}

func ids(pars []paragraph.Paragraph) []string {
	out := make([]string, len(pars))
	for i, p := range pars {
		out[i] = p.ID()
	}
	return out
}
