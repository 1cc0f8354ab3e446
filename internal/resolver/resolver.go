// Package resolver expands reference paragraphs into the paragraphs they
// borrow content from.
//
// A paragraph reference (rp) yields the latest content of one paragraph in
// the target document; an area reference (ra) yields every member of a
// named area. Targets that are references themselves are expanded
// recursively. The referencing paragraph's attributes and properties win
// over the target's, the reference attributes are stripped, and a
// translation (r="tr") keeps its own markdown when it has any.
//
// Each result keeps the id and document of the paragraph that supplied the
// content, so a rendered reference looks like the original paragraph.
package resolver

import (
	"context"
	"html"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/metrics"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/settings"
)

// DefaultMaxDepth bounds reference chains when Options.MaxDepth is zero.
const DefaultMaxDepth = 64

// Source is the read-only view of a document the resolver needs.
type Source interface {
	// ID returns the document id.
	ID() int

	// HasParagraph reports whether parID is in the current version.
	HasParagraph(ctx context.Context, parID string) (bool, error)

	// LatestParagraph returns the latest content of parID, whether or not
	// it is still in the current version.
	LatestParagraph(ctx context.Context, parID string) (paragraph.Paragraph, error)

	// NamedSection returns the paragraphs of area name, markers included.
	NamedSection(ctx context.Context, name string) ([]paragraph.Paragraph, error)

	// Settings returns the document settings.
	Settings(ctx context.Context) (settings.Settings, error)
}

// Loader opens documents by id. A missing document is a NotFound error.
type Loader interface {
	Load(ctx context.Context, docID int) (Source, error)
}

// Renderer turns markdown into HTML using the settings of the document the
// markdown came from.
type Renderer interface {
	Render(ctx context.Context, markdown string, s settings.Settings) (string, error)
}

// Options configures a Resolver.
type Options struct {
	// SetHTML renders every result with Renderer. A nil Renderer leaves
	// HTML empty.
	SetHTML bool

	Renderer Renderer

	// DefaultSource is used for references without rd when the referencing
	// document has no source_document setting. Zero means none.
	DefaultSource int

	// AllAreaTranslations keeps every member of a translated area instead
	// of only the first one.
	AllAreaTranslations bool

	// MaxDepth bounds the length of a reference chain.
	MaxDepth int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Resolved is one effective paragraph produced by resolution.
type Resolved struct {
	// Paragraph is the merged paragraph. Its id and document are those of
	// the paragraph that supplied the content.
	Paragraph paragraph.Paragraph

	SourceDocID int
	SourceParID string

	// Deleted is set when the referenced paragraph is no longer part of its
	// document. The paragraph also carries the "deleted" class.
	Deleted bool

	// HTML is set when Options.SetHTML is on.
	HTML string

	// Err is set on placeholders produced by Dereference.
	Err error

	// mdDoc is the document whose settings apply to the markdown.
	mdDoc int
}

type cacheKey struct {
	doc  int
	par  string
	hash string
}

// Resolver expands references. It is safe for concurrent use.
type Resolver struct {
	loader Loader
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey][]Resolved
}

// New creates a resolver reading documents through loader.
func New(loader Loader, opts Options) *Resolver {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		loader: loader,
		opts:   opts,
		logger: logger,
		cache:  make(map[cacheKey][]Resolved),
	}
}

// Invalidate drops every cached resolution. Call it after any mutation that
// may change what a reference points to.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// Resolve returns the effective paragraphs for p. A plain paragraph
// resolves to itself. Errors are CyclicReference for loops, Reference for
// missing targets or an over-long chain, and Validation for a malformed rd.
func (r *Resolver) Resolve(ctx context.Context, p paragraph.Paragraph) ([]Resolved, error) {
	if !p.IsReference() {
		out := []Resolved{direct(p)}
		if err := r.render(ctx, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	key := cacheKey{doc: p.DocID(), par: p.ID(), hash: p.Hash()}
	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		r.opts.Metrics.ReferenceResolved(metrics.OutcomeCached, 0)
		return append([]Resolved(nil), cached...), nil
	}

	start := time.Now()
	var c chain
	out, err := r.resolve(ctx, p, &c)
	if err == nil {
		err = r.render(ctx, out)
	}
	if err != nil {
		r.opts.Metrics.ReferenceResolved(metrics.OutcomeError, time.Since(start))
		return nil, err
	}
	r.opts.Metrics.ReferenceResolved(metrics.OutcomeOK, time.Since(start))

	r.mu.Lock()
	r.cache[key] = out
	r.mu.Unlock()
	return append([]Resolved(nil), out...), nil
}

// Dereference resolves every paragraph of pars in order and flattens the
// results. It never fails: a paragraph that cannot be resolved becomes a
// placeholder with the referencing paragraph's id and Err set.
func (r *Resolver) Dereference(ctx context.Context, pars []paragraph.Paragraph) []Resolved {
	out := make([]Resolved, 0, len(pars))
	for _, p := range pars {
		res, err := r.Resolve(ctx, p)
		if err != nil {
			r.logger.Warn("reference resolution failed",
				"doc", p.DocID(),
				"par", p.ID(),
				"error", err,
			)
			out = append(out, r.placeholder(p, err))
			continue
		}
		out = append(out, res...)
	}
	return out
}

func (r *Resolver) placeholder(p paragraph.Paragraph, err error) Resolved {
	res := Resolved{
		Paragraph:   p,
		SourceDocID: p.DocID(),
		SourceParID: p.ID(),
		Err:         err,
		mdDoc:       p.DocID(),
	}
	if r.opts.SetHTML {
		res.HTML = `<div class="error">` + html.EscapeString(err.Error()) + `</div>`
	}
	return res
}

func direct(p paragraph.Paragraph) Resolved {
	return Resolved{
		Paragraph:   p,
		SourceDocID: p.DocID(),
		SourceParID: p.ID(),
		mdDoc:       p.DocID(),
	}
}

// resolve expands reference paragraph p. c holds the references currently
// being expanded.
func (r *Resolver) resolve(ctx context.Context, p paragraph.Paragraph, c *chain) ([]Resolved, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref, _ := p.Reference()
	if err := c.push(node{doc: p.DocID(), par: p.ID()}, r.opts.MaxDepth); err != nil {
		return nil, err
	}
	defer c.pop()

	targetID, err := r.targetDocument(ctx, p, ref)
	if err != nil {
		return nil, err
	}
	src, err := r.loader.Load(ctx, targetID)
	if err != nil {
		if docerr.IsNotFound(err) {
			e := docerr.Reference("the referenced document %d does not exist", targetID).WithDoc(p.DocID()).WithPar(p.ID())
			e.Err = err
			return nil, e
		}
		return nil, err
	}

	var items []Resolved
	if ref.Par != "" {
		items, err = r.resolveParagraph(ctx, p, src, ref.Par, c)
	} else {
		items, err = r.resolveArea(ctx, p, src, ref, c)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Resolved, 0, len(items))
	for _, it := range items {
		out = append(out, merge(p, it))
	}
	return out, nil
}

// targetDocument picks the referenced document: the rd attribute, then the
// referencing document's source_document setting, then the default source.
func (r *Resolver) targetDocument(ctx context.Context, p paragraph.Paragraph, ref paragraph.Ref) (int, error) {
	if ref.Doc != "" {
		id, err := strconv.Atoi(strings.TrimSpace(ref.Doc))
		if err != nil || id <= 0 {
			return 0, docerr.Validation("invalid reference document id %q", ref.Doc).WithDoc(p.DocID()).WithPar(p.ID())
		}
		return id, nil
	}

	own, err := r.loader.Load(ctx, p.DocID())
	switch {
	case err == nil:
		s, err := own.Settings(ctx)
		if err != nil {
			return 0, err
		}
		if id, ok := s.SourceDocument(); ok && id > 0 {
			return id, nil
		}
	case !docerr.IsNotFound(err):
		return 0, err
	}

	if r.opts.DefaultSource > 0 {
		return r.opts.DefaultSource, nil
	}
	return 0, docerr.Reference("the source document for reference %s is not specified", p.ID()).WithDoc(p.DocID()).WithPar(p.ID())
}

func (r *Resolver) resolveParagraph(ctx context.Context, p paragraph.Paragraph, src Source, parID string, c *chain) ([]Resolved, error) {
	target, err := src.LatestParagraph(ctx, parID)
	if err != nil {
		if docerr.IsNotFound(err) {
			e := docerr.Reference("the referenced paragraph %s does not exist in document %d", parID, src.ID()).WithDoc(p.DocID()).WithPar(p.ID())
			e.Err = err
			return nil, e
		}
		return nil, err
	}
	present, err := src.HasParagraph(ctx, parID)
	if err != nil {
		return nil, err
	}

	var items []Resolved
	if target.IsReference() {
		items, err = r.resolve(ctx, target, c)
		if err != nil {
			return nil, err
		}
	} else {
		items = []Resolved{direct(target)}
	}
	if !present {
		for i := range items {
			items[i].Deleted = true
		}
	}
	return items, nil
}

func (r *Resolver) resolveArea(ctx context.Context, p paragraph.Paragraph, src Source, ref paragraph.Ref, c *chain) ([]Resolved, error) {
	section, err := src.NamedSection(ctx, ref.Area)
	if err != nil {
		if docerr.IsInvalidArea(err) || docerr.IsNotFound(err) {
			e := docerr.Reference("the referenced area %s does not exist in document %d", ref.Area, src.ID()).WithDoc(p.DocID()).WithPar(p.ID())
			e.Err = err
			return nil, e
		}
		return nil, err
	}

	var items []Resolved
	for _, member := range section {
		if !member.IsReference() {
			items = append(items, direct(member))
			continue
		}
		inner, err := r.resolve(ctx, member, c)
		if err != nil {
			return nil, err
		}
		items = append(items, inner...)
	}
	if ref.Translation && !r.opts.AllAreaTranslations && len(items) > 1 {
		items = items[:1]
	}
	return items, nil
}

// merge combines referencing paragraph ref with one resolved target.
func merge(ref paragraph.Paragraph, it Resolved) Resolved {
	src := it.Paragraph

	attrs := src.Attrs()
	maps.Copy(attrs, ref.Attrs())
	for _, k := range paragraph.ReferenceAttrs {
		delete(attrs, k)
	}
	props := src.Properties()
	maps.Copy(props, ref.Properties())

	md, mdDoc := src.Markdown(), it.mdDoc
	if ref.IsTranslation() && ref.Markdown() != "" {
		md, mdDoc = ref.Markdown(), ref.DocID()
	}

	merged := paragraph.FromRecord(src.DocID(), paragraph.Record{
		ID:       src.ID(),
		Markdown: md,
		Attrs:    attrs,
		Props:    props,
	})
	if it.Deleted {
		merged = merged.WithClass(paragraph.ClassDeleted)
	}
	return Resolved{
		Paragraph:   merged,
		SourceDocID: it.SourceDocID,
		SourceParID: it.SourceParID,
		Deleted:     it.Deleted,
		mdDoc:       mdDoc,
	}
}

// render fills HTML for every item when enabled.
func (r *Resolver) render(ctx context.Context, items []Resolved) error {
	if !r.opts.SetHTML || r.opts.Renderer == nil {
		return nil
	}
	byDoc := make(map[int]settings.Settings)
	for i := range items {
		s, ok := byDoc[items[i].mdDoc]
		if !ok {
			var err error
			s, err = r.settingsOf(ctx, items[i].mdDoc)
			if err != nil {
				return err
			}
			byDoc[items[i].mdDoc] = s
		}
		out, err := r.opts.Renderer.Render(ctx, items[i].Paragraph.Markdown(), s)
		if err != nil {
			return err
		}
		items[i].HTML = out
	}
	return nil
}

func (r *Resolver) settingsOf(ctx context.Context, docID int) (settings.Settings, error) {
	src, err := r.loader.Load(ctx, docID)
	if docerr.IsNotFound(err) {
		return settings.Settings{}, nil
	}
	if err != nil {
		return settings.Settings{}, err
	}
	return src.Settings(ctx)
}
