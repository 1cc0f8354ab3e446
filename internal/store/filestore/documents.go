package filestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/store"
)

// maxChangelogLine bounds a single changelog JSON line when scanning.
const maxChangelogLine = 1 << 20

// CreateDocument implements store.Store.
func (s *Store) CreateDocument(ctx context.Context, docID int) error {
	err := os.Mkdir(s.docPath(docID), 0o755)
	if errors.Is(err, fs.ErrExist) {
		return docerr.AlreadyExists("document %d already exists", docID).WithDoc(docID)
	}
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// DocumentExists implements store.Store.
func (s *Store) DocumentExists(ctx context.Context, docID int) (bool, error) {
	info, err := os.Stat(s.docPath(docID))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("document exists: %w", err)
	}
	return info.IsDir(), nil
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
	if err := os.RemoveAll(s.docPath(docID)); err != nil {
		return fmt.Errorf("remove document: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(s.root, parsDir, strconv.Itoa(docID))); err != nil {
		return fmt.Errorf("remove document paragraphs: %w", err)
	}
	return nil
}

// NextFreeID implements store.Store.
func (s *Store) NextFreeID(ctx context.Context) (int, error) {
	ids, err := numericEntries(filepath.Join(s.root, docsDir), true)
	if err != nil {
		return 0, fmt.Errorf("next free id: %w", err)
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}

// numericEntries lists the entries of dir whose names are non-negative
// integers, sorted ascending. A missing dir has no entries.
func numericEntries(dir string, dirs bool) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() != dirs {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// LatestVersion implements store.Store. Empty major directories, left by an
// interrupted write, are skipped.
func (s *Store) LatestVersion(ctx context.Context, docID int) (store.Version, error) {
	majors, err := numericEntries(s.docPath(docID), true)
	if err != nil {
		return store.Version{}, fmt.Errorf("latest version: %w", err)
	}
	for i := len(majors) - 1; i >= 0; i-- {
		dir := filepath.Join(s.docPath(docID), strconv.Itoa(majors[i]))
		minors, err := numericEntries(dir, false)
		if err != nil {
			return store.Version{}, fmt.Errorf("latest version: %w", err)
		}
		if len(minors) > 0 {
			return store.Version{Major: majors[i], Minor: minors[len(minors)-1]}, nil
		}
	}
	return store.Version{}, nil
}

// ReadVersion implements store.Store.
func (s *Store) ReadVersion(ctx context.Context, docID int, v store.Version) ([]store.Entry, error) {
	if v.IsZero() {
		return []store.Entry{}, nil
	}
	data, err := os.ReadFile(s.versionPath(docID, v))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrVersionNotFound(docID, v)
	}
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	return store.DecodeEntries(string(data)), nil
}

// WriteVersion implements store.Store.
func (s *Store) WriteVersion(ctx context.Context, docID int, v store.Version, entries []store.Entry) error {
	exists, err := s.DocumentExists(ctx, docID)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrDocumentNotFound(docID)
	}
	path := s.versionPath(docID, v)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	err = s.createFile(path, []byte(store.EncodeEntries(entries)))
	if errors.Is(err, fs.ErrExist) {
		return store.ErrVersionExists(docID, v)
	}
	if err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return nil
}

// DeleteVersion implements store.Store.
func (s *Store) DeleteVersion(ctx context.Context, docID int, v store.Version) error {
	path := s.versionPath(docID, v)
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.ErrVersionNotFound(docID, v)
	}
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	// Fails harmlessly when other minors remain.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

// AppendChangelog implements store.Store. The new line is prepended so the
// file stays newest-first.
func (s *Store) AppendChangelog(ctx context.Context, docID int, e store.ChangelogEntry) error {
	line, err := store.EncodeChangelogEntry(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.docPath(docID), changelogFile)
	old, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("append changelog: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(line) + 1 + len(old))
	buf.Write(line)
	buf.WriteByte('\n')
	buf.Write(old)
	if err := s.replaceFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("append changelog: %w", err)
	}
	return nil
}

// Changelog implements store.Store.
func (s *Store) Changelog(ctx context.Context, docID int, max int) ([]store.ChangelogEntry, error) {
	f, err := os.Open(filepath.Join(s.docPath(docID), changelogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []store.ChangelogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	defer f.Close()

	entries := []store.ChangelogEntry{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxChangelogLine)
	for sc.Scan() {
		if max > 0 && len(entries) >= max {
			break
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := store.DecodeChangelogEntry(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	return entries, nil
}
