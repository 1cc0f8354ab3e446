package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/store"
)

// CreateDocument implements store.Store.
func (s *Store) CreateDocument(ctx context.Context, docID int) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id) VALUES (?)
		ON CONFLICT DO NOTHING
	`, docID)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if n == 0 {
		return docerr.AlreadyExists("document %d already exists", docID).WithDoc(docID)
	}
	return nil
}

func documentExists(ctx context.Context, q querier, docID int) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE doc_id = ?`, docID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DocumentExists implements store.Store.
func (s *Store) DocumentExists(ctx context.Context, docID int) (bool, error) {
	ok, err := documentExists(ctx, s.db, docID)
	if err != nil {
		return false, fmt.Errorf("document exists: %w", err)
	}
	return ok, nil
}

// RemoveDocument implements store.Store. Versions and changelog cascade;
// paragraph rows are keyed by doc id without a foreign key and are deleted
// explicitly.
func (s *Store) RemoveDocument(ctx context.Context, docID int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
		if err != nil {
			return fmt.Errorf("remove document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove document: %w", err)
		}
		if n == 0 {
			return store.ErrDocumentNotFound(docID)
		}
		for _, table := range []string{"latest", "paragraph_links", "paragraphs"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE doc_id = ?`, docID); err != nil {
				return fmt.Errorf("remove document %s: %w", table, err)
			}
		}
		return nil
	})
}

// NextFreeID implements store.Store.
func (s *Store) NextFreeID(ctx context.Context) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(doc_id), 0) + 1 FROM documents`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next free id: %w", err)
	}
	return next, nil
}

// LatestVersion implements store.Store.
func (s *Store) LatestVersion(ctx context.Context, docID int) (store.Version, error) {
	var v store.Version
	err := s.db.QueryRowContext(ctx, `
		SELECT major, minor FROM versions
		WHERE doc_id = ?
		ORDER BY major DESC, minor DESC
		LIMIT 1
	`, docID).Scan(&v.Major, &v.Minor)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Version{}, nil
	}
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
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT entries FROM versions WHERE doc_id = ? AND major = ? AND minor = ?
	`, docID, v.Major, v.Minor).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrVersionNotFound(docID, v)
	}
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	return store.DecodeEntries(raw), nil
}

// WriteVersion implements store.Store.
func (s *Store) WriteVersion(ctx context.Context, docID int, v store.Version, entries []store.Entry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := documentExists(ctx, tx, docID)
		if err != nil {
			return fmt.Errorf("write version: %w", err)
		}
		if !ok {
			return store.ErrDocumentNotFound(docID)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO versions (doc_id, major, minor, entries)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, docID, v.Major, v.Minor, store.EncodeEntries(entries))
		if err != nil {
			return fmt.Errorf("write version: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("write version: %w", err)
		}
		if n == 0 {
			return store.ErrVersionExists(docID, v)
		}
		return nil
	})
}

// DeleteVersion implements store.Store.
func (s *Store) DeleteVersion(ctx context.Context, docID int, v store.Version) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM versions WHERE doc_id = ? AND major = ? AND minor = ?
	`, docID, v.Major, v.Minor)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	if n == 0 {
		return store.ErrVersionNotFound(docID, v)
	}
	return nil
}

// AppendChangelog implements store.Store.
func (s *Store) AppendChangelog(ctx context.Context, docID int, e store.ChangelogEntry) error {
	line, err := store.EncodeChangelogEntry(e)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO changelog (doc_id, entry) VALUES (?, ?)
	`, docID, string(line)); err != nil {
		return fmt.Errorf("append changelog: %w", err)
	}
	return nil
}

// Changelog implements store.Store.
func (s *Store) Changelog(ctx context.Context, docID int, max int) ([]store.ChangelogEntry, error) {
	limit := max
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry FROM changelog
		WHERE doc_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, docID, limit)
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	defer rows.Close()

	entries := []store.ChangelogEntry{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("read changelog: %w", err)
		}
		e, err := store.DecodeChangelogEntry([]byte(raw))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	return entries, nil
}
