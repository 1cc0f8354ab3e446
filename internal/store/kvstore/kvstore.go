// Package kvstore implements store.Store on BadgerDB.
//
// Key layout (document ids, versions and sequence numbers are zero padded
// so lexical order equals numeric order):
//
//	doc/<doc>                     document marker
//	ver/<doc>/<major>/<minor>     version entries
//	log/<doc>/<seq>               changelog entry JSON
//	par/<doc>/<par>/<hash>        paragraph record JSON (links included)
//	cur/<doc>/<par>               latest hash
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/store"
)

// maxConflictRetries bounds retries of optimistic transactions that lost a
// conflict with another writer on the same database.
const maxConflictRetries = 5

// Config holds configuration for a Badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// Store is a Badger-backed store.Store.
type Store struct {
	db *badger.DB

	// writeMu serializes read-modify-write transactions in this process.
	writeMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Keys
// =============================================================================

func pad(n int) string { return fmt.Sprintf("%020d", n) }

func docKey(docID int) []byte { return []byte("doc/" + pad(docID)) }

func versionPrefix(docID int) []byte { return []byte("ver/" + pad(docID) + "/") }

func versionKey(docID int, v store.Version) []byte {
	return []byte("ver/" + pad(docID) + "/" + pad(v.Major) + "/" + pad(v.Minor))
}

func logPrefix(docID int) []byte { return []byte("log/" + pad(docID) + "/") }

func logKey(docID int, seq int) []byte { return []byte("log/" + pad(docID) + "/" + pad(seq)) }

func docParPrefix(docID int) []byte { return []byte("par/" + pad(docID) + "/") }

func parPrefix(docID int, parID string) []byte {
	return []byte("par/" + pad(docID) + "/" + parID + "/")
}

func parKey(docID int, parID, hash string) []byte {
	return []byte("par/" + pad(docID) + "/" + parID + "/" + hash)
}

func docCurPrefix(docID int) []byte { return []byte("cur/" + pad(docID) + "/") }

func curKey(docID int, parID string) []byte {
	return []byte("cur/" + pad(docID) + "/" + parID)
}

// checkKeyPart rejects ids that would break the key layout.
func checkKeyPart(kind, s string) error {
	if s == "" || strings.Contains(s, "/") {
		return docerr.Validation("invalid %s %q", kind, s)
	}
	return nil
}

// =============================================================================
// Transactions
// =============================================================================

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// lastKey returns the greatest key under prefix.
func lastKey(txn *badger.Txn, prefix []byte) ([]byte, bool) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append(append([]byte{}, prefix...), 0xFF)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return nil, false
	}
	return it.Item().KeyCopy(nil), true
}

// keysWithPrefix lists every key under prefix in ascending order.
func keysWithPrefix(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func documentExists(txn *badger.Txn, docID int) (bool, error) {
	_, ok, err := getValue(txn, docKey(docID))
	return ok, err
}
