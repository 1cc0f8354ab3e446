package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/pardoc/internal/config"
	"github.com/roach88/pardoc/internal/document"
	"github.com/roach88/pardoc/internal/lock"
	"github.com/roach88/pardoc/internal/logging"
	"github.com/roach88/pardoc/internal/merge"
	"github.com/roach88/pardoc/internal/metrics"
	"github.com/roach88/pardoc/internal/resolver"
	"github.com/roach88/pardoc/internal/store"
	"github.com/roach88/pardoc/internal/store/filestore"
	"github.com/roach88/pardoc/internal/store/kvstore"
	"github.com/roach88/pardoc/internal/store/sqlstore"
)

// SQLiteFile and BadgerDir name the backend files under the data root.
const (
	SQLiteFile = "pardoc.db"
	BadgerDir  = "badger"
)

// App is the engine a command runs against.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Store   store.Store
	Library *document.Library
	Merge   *merge.Engine
}

// OpenStore opens the backend cfg selects.
func OpenStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		s, err := filestore.Open(cfg.Root)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", cfg.Root, err)
		}
		s, err := sqlstore.Open(filepath.Join(cfg.Root, SQLiteFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendBadger:
		s, err := kvstore.Open(kvstore.Config{
			Path:   filepath.Join(cfg.Root, BadgerDir),
			Logger: logger.With("component", "badger"),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewApp wires the engine for cfg. Logs go to logOut.
func NewApp(cfg config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	locker, err := lock.NewFileLocker(cfg.LockDir, lock.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, err
	}

	m := metrics.New()
	lib := document.NewLibrary(st,
		document.WithLocker(locker),
		document.WithLogger(logger),
		document.WithMetrics(m),
		document.WithModifierGroup(cfg.ModifierGroup),
		document.WithResolverOptions(resolver.Options{MaxDepth: cfg.MaxReferenceDepth}),
	)

	logger.Debug("engine ready", "root", cfg.Root, "backend", cfg.Backend)
	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Store:   st,
		Library: lib,
		Merge:   merge.New(merge.WithLogger(logger), merge.WithMetrics(m)),
	}, nil
}

// Document returns a handle for docID. NotFound if it is not registered.
func (a *App) Document(ctx context.Context, docID int) (*document.Document, error) {
	ok, err := a.Library.Exists(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrDocumentNotFound(docID)
	}
	return a.Library.Open(docID), nil
}

// Close releases the store and writes the metrics file if one is configured.
func (a *App) Close() error {
	err := a.Store.Close()
	if a.Config.MetricsFile != "" {
		err = errors.Join(err, a.Metrics.WriteTextfile(a.Config.MetricsFile))
	}
	return err
}

// withApp opens the engine, runs fn and closes the engine again. Errors
// from fn are classified by classify; message prefixes them.
func (o *RootOptions) withApp(cmd *cobra.Command, message string, fn func(ctx context.Context, app *App) error) (err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open document store", err)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close document store", cerr)
		}
	}()

	if err := fn(cmd.Context(), app); err != nil {
		return classify(message, err)
	}
	return nil
}
