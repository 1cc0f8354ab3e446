package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/store"
)

// CreateDocument implements store.Store.
func (s *Store) CreateDocument(ctx context.Context, docID int) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		ok, err := documentExists(txn, docID)
		if err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if ok {
			return docerr.AlreadyExists("document %d already exists", docID).WithDoc(docID)
		}
		return txn.Set(docKey(docID), nil)
	})
}

// DocumentExists implements store.Store.
func (s *Store) DocumentExists(ctx context.Context, docID int) (bool, error) {
	var ok bool
	err := s.view(func(txn *badger.Txn) error {
		var err error
		ok, err = documentExists(txn, docID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("document exists: %w", err)
	}
	return ok, nil
}

// RemoveDocument implements store.Store.
func (s *Store) RemoveDocument(ctx context.Context, docID int) error {
	exists, err := s.DocumentExists(ctx, docID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrDocumentNotFound(docID)
	}
	prefixes := [][]byte{
		docKey(docID),
		versionPrefix(docID),
		logPrefix(docID),
		docParPrefix(docID),
		docCurPrefix(docID),
	}
	var keys [][]byte
	err = s.view(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			keys = append(keys, keysWithPrefix(txn, prefix)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove document: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("remove document: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	return nil
}

// NextFreeID implements store.Store.
func (s *Store) NextFreeID(ctx context.Context) (int, error) {
	next := 1
	err := s.view(func(txn *badger.Txn) error {
		key, ok := lastKey(txn, []byte("doc/"))
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(string(key[len("doc/"):]))
		if err != nil {
			return fmt.Errorf("malformed document key %q", key)
		}
		next = n + 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("next free id: %w", err)
	}
	return next, nil
}

func parseVersionKey(key, prefix []byte) (store.Version, error) {
	rest := key[len(prefix):]
	major, minor, ok := bytes.Cut(rest, []byte("/"))
	if !ok {
		return store.Version{}, fmt.Errorf("malformed version key %q", key)
	}
	ma, err := strconv.Atoi(string(major))
	if err != nil {
		return store.Version{}, fmt.Errorf("malformed version key %q", key)
	}
	mi, err := strconv.Atoi(string(minor))
	if err != nil {
		return store.Version{}, fmt.Errorf("malformed version key %q", key)
	}
	return store.Version{Major: ma, Minor: mi}, nil
}

// LatestVersion implements store.Store.
func (s *Store) LatestVersion(ctx context.Context, docID int) (store.Version, error) {
	var v store.Version
	err := s.view(func(txn *badger.Txn) error {
		prefix := versionPrefix(docID)
		key, ok := lastKey(txn, prefix)
		if !ok {
			return nil
		}
		var err error
		v, err = parseVersionKey(key, prefix)
		return err
	})
	if err != nil {
		return store.Version{}, fmt.Errorf("latest version: %w", err)
	}
	return v, nil
}

// ReadVersion implements store.Store.
func (s *Store) ReadVersion(ctx context.Context, docID int, v store.Version) ([]store.Entry, error) {
	if v.IsZero() {
		return []store.Entry{}, nil
	}
	var entries []store.Entry
	err := s.view(func(txn *badger.Txn) error {
		val, ok, err := getValue(txn, versionKey(docID, v))
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrVersionNotFound(docID, v)
		}
		entries = store.DecodeEntries(string(val))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	return entries, nil
}

// WriteVersion implements store.Store.
func (s *Store) WriteVersion(ctx context.Context, docID int, v store.Version, entries []store.Entry) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		ok, err := documentExists(txn, docID)
		if err != nil {
			return fmt.Errorf("write version: %w", err)
		}
		if !ok {
			return store.ErrDocumentNotFound(docID)
		}
		key := versionKey(docID, v)
		if _, exists, err := getValue(txn, key); err != nil {
			return fmt.Errorf("write version: %w", err)
		} else if exists {
			return store.ErrVersionExists(docID, v)
		}
		return txn.Set(key, []byte(store.EncodeEntries(entries)))
	})
}

// DeleteVersion implements store.Store.
func (s *Store) DeleteVersion(ctx context.Context, docID int, v store.Version) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		key := versionKey(docID, v)
		if _, ok, err := getValue(txn, key); err != nil {
			return fmt.Errorf("delete version: %w", err)
		} else if !ok {
			return store.ErrVersionNotFound(docID, v)
		}
		return txn.Delete(key)
	})
}

// AppendChangelog implements store.Store.
func (s *Store) AppendChangelog(ctx context.Context, docID int, e store.ChangelogEntry) error {
	line, err := store.EncodeChangelogEntry(e)
	if err != nil {
		return err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		prefix := logPrefix(docID)
		seq := 1
		if key, ok := lastKey(txn, prefix); ok {
			n, err := strconv.Atoi(string(key[len(prefix):]))
			if err != nil {
				return fmt.Errorf("malformed changelog key %q", key)
			}
			seq = n + 1
		}
		return txn.Set(logKey(docID, seq), line)
	})
	if err != nil {
		return fmt.Errorf("append changelog: %w", err)
	}
	return nil
}

// Changelog implements store.Store.
func (s *Store) Changelog(ctx context.Context, docID int, max int) ([]store.ChangelogEntry, error) {
	entries := []store.ChangelogEntry{}
	err := s.view(func(txn *badger.Txn) error {
		prefix := logPrefix(docID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if max > 0 && len(entries) >= max {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := store.DecodeChangelogEntry(val)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	return entries, nil
}
