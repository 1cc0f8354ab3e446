package document

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/lock"
	"github.com/roach88/pardoc/internal/metrics"
	"github.com/roach88/pardoc/internal/resolver"
	"github.com/roach88/pardoc/internal/store"
)

// maxCreateAttempts bounds CreateNext retries after losing an id to a
// concurrent creator.
const maxCreateAttempts = 5

// Library opens documents that share one store, lock directory and
// reference resolver. It is safe for concurrent use.
type Library struct {
	store    store.Store
	locker   lock.Locker
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	group    int
	resolver *resolver.Resolver
}

var _ resolver.Loader = (*Library)(nil)

// Option configures a Library.
type Option func(*libraryConfig)

type libraryConfig struct {
	locker   lock.Locker
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	group    int
	resolver resolver.Options
}

// WithLocker sets the document locker. The default is an in-process
// MemoryLocker, which does not protect against other processes.
func WithLocker(l lock.Locker) Option {
	return func(c *libraryConfig) { c.locker = l }
}

// WithClock sets the changelog time source.
func WithClock(now func() time.Time) Option {
	return func(c *libraryConfig) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *libraryConfig) { c.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *libraryConfig) { c.metrics = m }
}

// WithModifierGroup sets the group id written to changelog entries.
func WithModifierGroup(id int) Option {
	return func(c *libraryConfig) { c.group = id }
}

// WithResolverOptions configures the reference resolver. Logger and Metrics
// default to the library's own.
func WithResolverOptions(opts resolver.Options) Option {
	return func(c *libraryConfig) { c.resolver = opts }
}

// NewLibrary creates a library over s.
func NewLibrary(s store.Store, opts ...Option) *Library {
	cfg := libraryConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.locker == nil {
		cfg.locker = lock.NewMemoryLocker()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.resolver.Logger == nil {
		cfg.resolver.Logger = cfg.logger
	}
	if cfg.resolver.Metrics == nil {
		cfg.resolver.Metrics = cfg.metrics
	}

	l := &Library{
		store:   s,
		locker:  cfg.locker,
		now:     cfg.now,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		group:   cfg.group,
	}
	l.resolver = resolver.New(l, cfg.resolver)
	return l
}

// Resolver returns the reference resolver bound to this library.
func (l *Library) Resolver() *resolver.Resolver {
	return l.resolver
}

// Store returns the underlying store.
func (l *Library) Store() store.Store {
	return l.store
}

// Open returns a handle for docID without checking that it exists.
func (l *Library) Open(docID int) *Document {
	return &Document{lib: l, id: docID}
}

// Load implements resolver.Loader. Missing documents are NotFound.
func (l *Library) Load(ctx context.Context, docID int) (resolver.Source, error) {
	ok, err := l.store.DocumentExists(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrDocumentNotFound(docID)
	}
	return l.Open(docID), nil
}

// Exists reports whether docID is registered.
func (l *Library) Exists(ctx context.Context, docID int) (bool, error) {
	return l.store.DocumentExists(ctx, docID)
}

// Create registers document docID. With ignoreExists an existing document
// is returned as is instead of failing AlreadyExists.
func (l *Library) Create(ctx context.Context, docID int, ignoreExists bool) (*Document, error) {
	if docID <= 0 {
		return nil, docerr.Validation("document id must be positive, got %d", docID)
	}
	err := l.store.CreateDocument(ctx, docID)
	if err != nil && !(ignoreExists && docerr.IsAlreadyExists(err)) {
		return nil, err
	}
	if err == nil {
		l.logger.Info("document created", "doc", docID)
	}
	return l.Open(docID), nil
}

// CreateNext registers a document under the next free id.
func (l *Library) CreateNext(ctx context.Context) (*Document, error) {
	var err error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		var id int
		id, err = l.store.NextFreeID(ctx)
		if err != nil {
			return nil, err
		}
		var doc *Document
		doc, err = l.Create(ctx, id, false)
		if err == nil {
			return doc, nil
		}
		if !docerr.IsAlreadyExists(err) {
			return nil, err
		}
	}
	return nil, err
}

// Remove deletes document docID with all its versions, changelog and
// paragraphs. With ignoreMissing a missing document is not an error.
func (l *Library) Remove(ctx context.Context, docID int, ignoreMissing bool) error {
	unlock, err := l.lock(ctx, docID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := l.store.RemoveDocument(ctx, docID); err != nil {
		if ignoreMissing && docerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	l.resolver.Invalidate()
	l.logger.Info("document removed", "doc", docID)
	return nil
}

func (l *Library) lock(ctx context.Context, docID int) (lock.Unlock, error) {
	start := time.Now()
	unlock, err := l.locker.Lock(ctx, docID)
	if err != nil {
		return nil, err
	}
	l.metrics.LockWaited(time.Since(start))
	return unlock, nil
}
