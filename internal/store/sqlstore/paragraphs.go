package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadParagraph(ctx context.Context, q querier, docID int, parID, hash string) (paragraph.Paragraph, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT record FROM paragraphs
		WHERE doc_id = ? AND par_id = ? AND hash = ?
	`, docID, parID, hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return paragraph.Paragraph{}, store.ErrParagraphNotFound(docID, parID, hash)
	}
	if err != nil {
		return paragraph.Paragraph{}, err
	}

	var rec paragraph.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("decode paragraph %s/%s: %w", parID, hash, err)
	}
	rec.Hash = hash

	links, err := loadLinks(ctx, q, docID, parID, hash)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	rec.Links = links
	return paragraph.FromRecord(docID, rec), nil
}

func loadLinks(ctx context.Context, q querier, docID int, parID, hash string) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT link_doc_id FROM paragraph_links
		WHERE doc_id = ? AND par_id = ? AND hash = ?
		ORDER BY link_doc_id ASC
	`, docID, parID, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []int{}
	for rows.Next() {
		var l int
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func latestHash(ctx context.Context, q querier, docID int, parID string) (string, error) {
	var hash string
	err := q.QueryRowContext(ctx, `
		SELECT hash FROM latest WHERE doc_id = ? AND par_id = ?
	`, docID, parID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrParagraphNotFound(docID, parID, "")
	}
	return hash, err
}

func contentExists(ctx context.Context, q querier, docID int, parID, hash string) error {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM paragraphs WHERE doc_id = ? AND par_id = ? AND hash = ?
	`, docID, parID, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrParagraphNotFound(docID, parID, hash)
	}
	return err
}

// GetParagraph implements store.Store.
func (s *Store) GetParagraph(ctx context.Context, docID int, parID, hash string) (paragraph.Paragraph, error) {
	if hash == "" {
		return s.LatestParagraph(ctx, docID, parID)
	}
	p, err := loadParagraph(ctx, s.db, docID, parID, hash)
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("get paragraph: %w", err)
	}
	return p, nil
}

// LatestParagraph implements store.Store.
func (s *Store) LatestParagraph(ctx context.Context, docID int, parID string) (paragraph.Paragraph, error) {
	hash, err := latestHash(ctx, s.db, docID, parID)
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("latest paragraph: %w", err)
	}
	p, err := loadParagraph(ctx, s.db, docID, parID, hash)
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("latest paragraph: %w", err)
	}
	return p, nil
}

// PutParagraph implements store.Store. Uses ON CONFLICT DO NOTHING so a
// repeated put keeps the stored record and its links.
func (s *Store) PutParagraph(ctx context.Context, p paragraph.Paragraph) error {
	rec := p.Record()
	rec.Links = nil
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("put paragraph: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paragraphs (doc_id, par_id, hash, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, p.DocID(), p.ID(), p.Hash(), string(data))
	if err != nil {
		return fmt.Errorf("put paragraph: %w", err)
	}
	return nil
}

// SetLatest implements store.Store.
func (s *Store) SetLatest(ctx context.Context, docID int, parID, hash string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := contentExists(ctx, tx, docID, parID, hash); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO latest (doc_id, par_id, hash) VALUES (?, ?, ?)
			ON CONFLICT(doc_id, par_id) DO UPDATE SET hash = excluded.hash
		`, docID, parID, hash)
		return err
	})
	if err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	return nil
}

// DeleteParagraph implements store.Store.
func (s *Store) DeleteParagraph(ctx context.Context, docID int, parID, hash string) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		links, err := loadLinks(ctx, tx, docID, parID, hash)
		if err != nil {
			return err
		}
		if err := contentExists(ctx, tx, docID, parID, hash); err != nil {
			return err
		}
		if len(links) > 0 {
			return store.ErrLinked(docID, parID, hash, links)
		}

		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM paragraphs WHERE doc_id = ? AND par_id = ?
		`, docID, parID).Scan(&count); err != nil {
			return err
		}

		if count > 1 {
			latest, err := latestHash(ctx, tx, docID, parID)
			if err == nil && latest == hash {
				return store.ErrLatestInUse(docID, parID, hash)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM latest WHERE doc_id = ? AND par_id = ?
			`, docID, parID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM paragraphs WHERE doc_id = ? AND par_id = ? AND hash = ?
		`, docID, parID, hash)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete paragraph: %w", err)
	}
	return nil
}

// AddLink implements store.Store.
func (s *Store) AddLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := contentExists(ctx, tx, docID, parID, hash); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO paragraph_links (doc_id, par_id, hash, link_doc_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, docID, parID, hash, linkDocID)
		return err
	})
	if err != nil {
		return fmt.Errorf("add link: %w", err)
	}
	return nil
}

// RemoveLink implements store.Store.
func (s *Store) RemoveLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := contentExists(ctx, tx, docID, parID, hash); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM paragraph_links
			WHERE doc_id = ? AND par_id = ? AND hash = ? AND link_doc_id = ?
		`, docID, parID, hash, linkDocID)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	return nil
}
