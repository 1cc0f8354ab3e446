package document

import (
	"context"
	"sort"

	"github.com/roach88/pardoc/internal/docerr"
	"github.com/roach88/pardoc/internal/store"
)

// CollectResult reports a garbage collection run.
type CollectResult struct {
	// Deleted counts removed content versions.
	Deleted int

	// Kept counts content versions that are still referenced from another
	// document and were left alone.
	Kept int
}

// Collect removes every content version that historical versions of the
// document used but the current version does not. The latest content of a
// paragraph id is never removed, so references to deleted paragraphs still
// resolve. Historical versions that need removed content can no longer be
// loaded afterwards. Content linked from other documents is kept.
func (d *Document) Collect(ctx context.Context) (CollectResult, error) {
	var res CollectResult
	err := d.edit(ctx, "collect", func(e *Editor) error {
		used, err := d.usedContent(ctx)
		if err != nil {
			return err
		}
		_, current, err := d.current(ctx)
		if err != nil {
			return err
		}
		keep := make(map[store.Entry]bool, len(current))
		for _, entry := range current {
			keep[d.resolveEntry(ctx, entry)] = true
		}

		byPar := make(map[string][]string)
		for entry := range used {
			if !keep[entry] {
				byPar[entry.ParID] = append(byPar[entry.ParID], entry.Hash)
			}
		}
		parIDs := make([]string, 0, len(byPar))
		for id := range byPar {
			parIDs = append(parIDs, id)
		}
		sort.Strings(parIDs)

		for _, parID := range parIDs {
			deleted, kept, err := d.collectParagraph(ctx, parID, byPar[parID])
			res.Deleted += deleted
			res.Kept += kept
			if err != nil {
				return err
			}
		}
		return nil
	})
	if res.Deleted > 0 {
		d.invalidate()
		d.lib.resolver.Invalidate()
	}
	if err == nil {
		d.lib.logger.Info("garbage collected",
			"doc", d.id,
			"deleted", res.Deleted,
			"kept", res.Kept,
		)
	}
	return res, err
}

// collectParagraph deletes the given hashes of one paragraph, skipping the
// latest one.
func (d *Document) collectParagraph(ctx context.Context, parID string, hashes []string) (deleted, kept int, err error) {
	latest := ""
	if p, err := d.lib.store.LatestParagraph(ctx, d.id, parID); err == nil {
		latest = p.Hash()
	}
	sort.Strings(hashes)
	for _, h := range hashes {
		if h == latest {
			continue
		}
		err := d.lib.store.DeleteParagraph(ctx, d.id, parID, h)
		switch {
		case err == nil:
			deleted++
		case docerr.IsInUse(err), docerr.IsNotFound(err):
			kept++
		default:
			return deleted, kept, err
		}
	}
	return deleted, kept, nil
}

// usedContent returns every (paragraph, hash) any version of the document
// names.
func (d *Document) usedContent(ctx context.Context) (map[store.Entry]bool, error) {
	latest, err := d.lib.store.LatestVersion(ctx, d.id)
	if err != nil {
		return nil, err
	}
	used := make(map[store.Entry]bool)
	for major := 1; major <= latest.Major; major++ {
		for minor := 0; ; minor++ {
			v := store.Version{Major: major, Minor: minor}
			if latest.Less(v) {
				break
			}
			entries, err := d.lib.store.ReadVersion(ctx, d.id, v)
			if docerr.IsNotFound(err) {
				break
			}
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				used[d.resolveEntry(ctx, e)] = true
			}
		}
	}
	return used, nil
}

// resolveEntry fills in the hash of a legacy entry from the latest pointer.
func (d *Document) resolveEntry(ctx context.Context, e store.Entry) store.Entry {
	if e.Hash != "" {
		return e
	}
	if p, err := d.lib.store.LatestParagraph(ctx, d.id, e.ParID); err == nil {
		e.Hash = p.Hash()
	}
	return e
}
