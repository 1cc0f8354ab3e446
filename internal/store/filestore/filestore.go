// Package filestore implements store.Store on plain files.
//
// Layout under the root directory:
//
//	docs/<doc>/<major>/<minor>    version files, one "par_id/hash" line per paragraph
//	docs/<doc>/changelog          JSON lines, newest first
//	pars/<doc>/<par>/<hash>       paragraph content records (JSON)
//	pars/<doc>/<par>/current      hash of the latest content
//	tmp/                          staging area for atomic writes
//
// Files are written to tmp/ first and then renamed (pointers, changelog) or
// hard-linked (content, versions) into place, so readers never observe a
// partially written file and a version is never overwritten.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/store"
)

const (
	docsDir       = "docs"
	parsDir       = "pars"
	tmpDir        = "tmp"
	currentFile   = "current"
	changelogFile = "changelog"
)

// Store is a filesystem-backed store.Store.
type Store struct {
	root string

	// mu serializes read-modify-write of paragraph records (links) and the
	// changelog within this process.
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open prepares root for use, creating the directory skeleton if needed.
func Open(root string) (*Store, error) {
	for _, dir := range []string{docsDir, parsDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Close is a no-op; files are not held open between calls.
func (s *Store) Close() error { return nil }

// =============================================================================
// Paths
// =============================================================================

func (s *Store) docPath(docID int) string {
	return filepath.Join(s.root, docsDir, strconv.Itoa(docID))
}

func (s *Store) versionPath(docID int, v store.Version) string {
	return filepath.Join(s.docPath(docID), strconv.Itoa(v.Major), strconv.Itoa(v.Minor))
}

func (s *Store) parDir(docID int, parID string) string {
	return filepath.Join(s.root, parsDir, strconv.Itoa(docID), parID)
}

// checkName rejects ids and hashes that would escape their directory.
func checkName(kind, name string) error {
	if name == "" || name == "." || name == ".." || name == currentFile ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return docerr.Validation("invalid %s %q", kind, name)
	}
	return nil
}

func checkParagraphKey(parID, hash string) error {
	if err := checkName("paragraph id", parID); err != nil {
		return err
	}
	if hash != "" {
		return checkName("hash", hash)
	}
	return nil
}

// =============================================================================
// Atomic writes
// =============================================================================

func (s *Store) stage(data []byte) (string, error) {
	tmp := filepath.Join(s.root, tmpDir, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	return tmp, nil
}

// replaceFile atomically replaces path with data.
func (s *Store) replaceFile(path string, data []byte) error {
	tmp, err := s.stage(data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// createFile atomically creates path with data. It returns fs.ErrExist if
// path already exists.
func (s *Store) createFile(path string, data []byte) error {
	tmp, err := s.stage(data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, path)
}

// =============================================================================
// Paragraphs
// =============================================================================

func (s *Store) readRecord(docID int, parID, hash string) (paragraph.Record, error) {
	data, err := os.ReadFile(filepath.Join(s.parDir(docID, parID), hash))
	if errors.Is(err, fs.ErrNotExist) {
		return paragraph.Record{}, store.ErrParagraphNotFound(docID, parID, hash)
	}
	if err != nil {
		return paragraph.Record{}, err
	}
	var rec paragraph.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return paragraph.Record{}, fmt.Errorf("decode paragraph %s/%s: %w", parID, hash, err)
	}
	if rec.Hash == "" {
		rec.Hash = hash
	}
	return rec, nil
}

func (s *Store) writeRecord(docID int, rec paragraph.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.replaceFile(filepath.Join(s.parDir(docID, rec.ID), rec.Hash), data)
}

// GetParagraph implements store.Store.
func (s *Store) GetParagraph(ctx context.Context, docID int, parID, hash string) (paragraph.Paragraph, error) {
	if err := checkParagraphKey(parID, hash); err != nil {
		return paragraph.Paragraph{}, err
	}
	if hash == "" {
		return s.LatestParagraph(ctx, docID, parID)
	}
	rec, err := s.readRecord(docID, parID, hash)
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("get paragraph: %w", err)
	}
	return paragraph.FromRecord(docID, rec), nil
}

func (s *Store) latestHash(docID int, parID string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.parDir(docID, parID), currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", store.ErrParagraphNotFound(docID, parID, "")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// LatestParagraph implements store.Store.
func (s *Store) LatestParagraph(ctx context.Context, docID int, parID string) (paragraph.Paragraph, error) {
	if err := checkParagraphKey(parID, ""); err != nil {
		return paragraph.Paragraph{}, err
	}
	hash, err := s.latestHash(docID, parID)
	if err != nil {
		return paragraph.Paragraph{}, fmt.Errorf("latest paragraph: %w", err)
	}
	rec, err := s.readRecord(docID, parID, hash)
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
	dir := s.parDir(p.DocID(), p.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("put paragraph: %w", err)
	}
	data, err := json.Marshal(p.Record())
	if err != nil {
		return fmt.Errorf("put paragraph: %w", err)
	}
	err = s.createFile(filepath.Join(dir, p.Hash()), data)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("put paragraph: %w", err)
	}
	return nil
}

// SetLatest implements store.Store.
func (s *Store) SetLatest(ctx context.Context, docID int, parID, hash string) error {
	if err := checkParagraphKey(parID, hash); err != nil {
		return err
	}
	dir := s.parDir(docID, parID)
	if _, err := os.Stat(filepath.Join(dir, hash)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("set latest: %w", store.ErrParagraphNotFound(docID, parID, hash))
		}
		return fmt.Errorf("set latest: %w", err)
	}
	if err := s.replaceFile(filepath.Join(dir, currentFile), []byte(hash)); err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	return nil
}

func (s *Store) hashes(docID int, parID string) ([]string, error) {
	entries, err := os.ReadDir(s.parDir(docID, parID))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() != currentFile && !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// DeleteParagraph implements store.Store.
func (s *Store) DeleteParagraph(ctx context.Context, docID int, parID, hash string) error {
	if err := checkParagraphKey(parID, hash); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord(docID, parID, hash)
	if err != nil {
		return fmt.Errorf("delete paragraph: %w", err)
	}
	if len(rec.Links) > 0 {
		return store.ErrLinked(docID, parID, hash, rec.Links)
	}
	hashes, err := s.hashes(docID, parID)
	if err != nil {
		return fmt.Errorf("delete paragraph: %w", err)
	}
	if len(hashes) <= 1 {
		if err := os.RemoveAll(s.parDir(docID, parID)); err != nil {
			return fmt.Errorf("delete paragraph: %w", err)
		}
		return nil
	}
	if latest, err := s.latestHash(docID, parID); err == nil && latest == hash {
		return store.ErrLatestInUse(docID, parID, hash)
	}
	if err := os.Remove(filepath.Join(s.parDir(docID, parID), hash)); err != nil {
		return fmt.Errorf("delete paragraph: %w", err)
	}
	return nil
}

func (s *Store) updateLinks(docID int, parID, hash string, update func([]int) []int) error {
	if err := checkParagraphKey(parID, hash); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord(docID, parID, hash)
	if err != nil {
		return err
	}
	p := paragraph.FromRecord(docID, rec).WithLinks(update(rec.Links))
	return s.writeRecord(docID, p.Record())
}

// AddLink implements store.Store.
func (s *Store) AddLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error {
	err := s.updateLinks(docID, parID, hash, func(links []int) []int {
		return append(links, linkDocID)
	})
	if err != nil {
		return fmt.Errorf("add link: %w", err)
	}
	return nil
}

// RemoveLink implements store.Store.
func (s *Store) RemoveLink(ctx context.Context, docID int, parID, hash string, linkDocID int) error {
	err := s.updateLinks(docID, parID, hash, func(links []int) []int {
		out := links[:0:0]
		for _, l := range links {
			if l != linkDocID {
				out = append(out, l)
			}
		}
		return out
	})
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	return nil
}
