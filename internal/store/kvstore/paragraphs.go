package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
)

func checkParagraphKey(parID, hash string) error {
	if err := checkKeyPart("paragraph id", parID); err != nil {
		return err
	}
	if hash != "" {
		return checkKeyPart("hash", hash)
	}
	return nil
}

func readRecord(txn *badger.Txn, docID int, parID, hash string) (paragraph.Record, error) {
	val, ok, err := getValue(txn, parKey(docID, parID, hash))
	if err != nil {
		return paragraph.Record{}, err
	}
	if !ok {
		return paragraph.Record{}, store.ErrParagraphNotFound(docID, parID, hash)
	}
	var rec paragraph.Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return paragraph.Record{}, fmt.Errorf("decode paragraph %s/%s: %w", parID, hash, err)
	}
	rec.Hash = hash
	return rec, nil
}

func writeRecord(txn *badger.Txn, docID int, rec paragraph.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(parKey(docID, rec.ID, rec.Hash), data)
}

func latestHash(txn *badger.Txn, docID int, parID string) (string, error) {
	val, ok, err := getValue(txn, curKey(docID, parID))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", store.ErrParagraphNotFound(docID, parID, "")
	}
	return string(val), nil
}

// GetParagraph implements store.Store.
func (s *Store) GetParagraph(ctx context.Context, docID int, parID, hash string) (paragraph.Paragraph, error) {
	if err := checkParagraphKey(parID, hash); err != nil {
		return paragraph.Paragraph{}, err
	}
	if hash == "" {
		return s.LatestParagraph(ctx, docID, parID)
	}
	var rec paragraph.Record
	err := s.view(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, docID, parID, hash)
		return err
	})
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("get paragraph: %w", err)
	}
	return paragraph.FromRecord(docID, rec), nil
}

// LatestParagraph implements store.Store.
func (s *Store) LatestParagraph(ctx context.Context, docID int, parID string) (paragraph.Paragraph, error) {
	if err := checkParagraphKey(parID, ""); err != nil {
		return paragraph.Paragraph{}, err
	}
	var rec paragraph.Record
	err := s.view(func(txn *badger.Txn) error {
		hash, err := latestHash(txn, docID, parID)
		if err != nil {
			return err
		}
		rec, err = readRecord(txn, docID, parID, hash)
		return err
	})
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("latest paragraph: %w", err)
	}
	return paragraph.FromRecord(docID, rec), nil
}

// PutParagraph implements store.Store.
func (s *Store) PutParagraph(ctx context.Context, p paragraph.Paragraph) error {
	if err := checkParagraphKey(p.ID(), p.Hash()); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		_, ok, err := getValue(txn, parKey(p.DocID(), p.ID(), p.Hash()))
		if err != nil || ok {
			return err
		}
		return writeRecord(txn, p.DocID(), p.Record())
	})
	if err != nil {
		return fmt.Errorf("put paragraph: %w", err)
	}
	return nil
}

// SetLatest implements store.Store.
func (s *Store) SetLatest(ctx context.Context, docID int, parID, hash string) error {
	if err := checkParagraphKey(parID, hash); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		_, ok, err := getValue(txn, parKey(docID, parID, hash))
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrParagraphNotFound(docID, parID, hash)
		}
		return txn.Set(curKey(docID, parID), []byte(hash))
	})
	if err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	return nil
}

// DeleteParagraph implements store.Store.
func (s *Store) DeleteParagraph(ctx context.Context, docID int, parID, hash string) error {
	if err := checkParagraphKey(parID, hash); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := readRecord(txn, docID, parID, hash)
		if err != nil {
			return err
		}
		if len(rec.Links) > 0 {
			return store.ErrLinked(docID, parID, hash, rec.Links)
		}
		versions := keysWithPrefix(txn, parPrefix(docID, parID))
		if len(versions) > 1 {
			if latest, err := latestHash(txn, docID, parID); err == nil && latest == hash {
				return store.ErrLatestInUse(docID, parID, hash)
			}
		} else if err := txn.Delete(curKey(docID, parID)); err != nil {
			return err
		}
		return txn.Delete(parKey(docID, parID, hash))
	})
	if err != nil {
		return fmt.Errorf("delete paragraph: %w", err)
	}
	return nil
}

func (s *Store) updateLinks(ctx context.Context, docID int, parID, hash string, update func([]int) []int) error {
	if err := checkParagraphKey(parID, hash); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		rec, err := readRecord(txn, docID, parID, hash)
		if err != nil {
			return err
		}
		p := paragraph.FromRecord(docID, rec).WithLinks(update(slices.Clone(rec.Links)))
		return writeRecord(txn, docID, p.Record())
	})
}

// AddLink implements store.Store.
func (s *Store) AddLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error {
	err := s.updateLinks(ctx, docID, parID, hash, func(links []int) []int {
		return append(links, linkDocID)
	})
	if err != nil {
		return fmt.Errorf("add link: %w", err)
	}
	return nil
}

// RemoveLink implements store.Store.
func (s *Store) RemoveLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error {
	err := s.updateLinks(ctx, docID, parID, hash, func(links []int) []int {
		return slices.DeleteFunc(links, func(l int) bool { return l == linkDocID })
	})
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	return nil
}
