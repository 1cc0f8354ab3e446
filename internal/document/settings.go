package document

import (
	"context"

	"github.com/roach88/pardoc/internal/paragraph"
	"github.com/roach88/pardoc/internal/settings"
)

// leadingSettings returns the run of settings paragraphs at the start of
// pars.
func leadingSettings(pars []paragraph.Paragraph) []paragraph.Paragraph {
	n := 0
	for n < len(pars) && pars[n].IsSetting() {
		n++
	}
	return pars[:n]
}

// settingsOf parses one settings paragraph. A reference with an explicit
// rd is resolved first. Unusable blocks yield empty settings and a warning.
func (d *Document) settingsOf(ctx context.Context, p paragraph.Paragraph) settings.Settings {
	empty := settings.New(nil)
	if p.IsReference() {
		ref, _ := p.Reference()
		if ref.Doc == "" {
			return empty
		}
		res, err := d.lib.resolver.Resolve(ctx, p)
		if err != nil || len(res) == 0 {
			d.lib.logger.Warn("settings reference ignored",
				"doc", d.id,
				"par", p.ID(),
				"error", err,
			)
			return empty
		}
		p = res[0].Paragraph
	}
	s, err := settings.Parse(p.Markdown())
	if err != nil {
		d.lib.logger.Warn("settings block ignored",
			"doc", d.id,
			"par", p.ID(),
			"error", err,
		)
		return empty
	}
	return s
}

// Settings returns the merged settings of the leading settings paragraphs.
// Later blocks override earlier ones.
func (d *Document) Settings(ctx context.Context) (settings.Settings, error) {
	v, pars, err := d.snapshot(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	d.mu.Lock()
	if d.cache.valid && d.cache.ver == v && d.cache.settings != nil {
		s := *d.cache.settings
		d.mu.Unlock()
		return s, nil
	}
	d.mu.Unlock()

	merged := settings.New(nil)
	for _, p := range leadingSettings(pars) {
		merged = merged.Merge(d.settingsOf(ctx, p))
	}

	d.mu.Lock()
	if d.cache.valid && d.cache.ver == v {
		d.cache.settings = &merged
	}
	d.mu.Unlock()
	return merged, nil
}

func newSettingsParagraph(docID int, s settings.Settings) (paragraph.Paragraph, error) {
	md, err := s.Markdown()
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	return paragraph.New(docID, md, paragraph.Attrs{paragraph.AttrSettings: ""}, nil, "")
}

// SetSettings writes s as the document settings. Without paragraphs the
// block is added; without settings paragraphs it is inserted first; a
// plain last settings paragraph is modified in place; after a reference it
// is inserted behind it.
func (e *Editor) SetSettings(ctx context.Context, s settings.Settings) (paragraph.Paragraph, error) {
	if err := e.check(); err != nil {
		return paragraph.Paragraph{}, err
	}
	d := e.doc
	p, err := newSettingsParagraph(d.id, s)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	if len(pars) == 0 {
		return e.Add(ctx, p)
	}
	lead := leadingSettings(pars)
	if len(lead) == 0 {
		return e.Insert(ctx, p, Position{BeforeID: pars[0].ID()})
	}
	last := lead[len(lead)-1]
	if !last.IsReference() {
		return e.Modify(ctx, last.ID(), p.Markdown(), p.Attrs())
	}
	return e.Insert(ctx, p, Position{AfterID: last.ID()})
}

// AddSetting sets one key in the last settings block, keeping its other
// keys.
func (e *Editor) AddSetting(ctx context.Context, key string, value any) (paragraph.Paragraph, error) {
	if err := e.check(); err != nil {
		return paragraph.Paragraph{}, err
	}
	d := e.doc
	_, pars, err := d.snapshot(ctx)
	if err != nil {
		return paragraph.Paragraph{}, err
	}
	current := settings.New(nil)
	if lead := leadingSettings(pars); len(lead) > 0 {
		current = d.settingsOf(ctx, lead[len(lead)-1])
	}
	return e.SetSettings(ctx, current.With(key, value))
}

// SetSettings writes s as the document settings. See Editor.SetSettings.
func (d *Document) SetSettings(ctx context.Context, s settings.Settings) (paragraph.Paragraph, error) {
	var out paragraph.Paragraph
	err := d.edit(ctx, "set_settings", func(e *Editor) error {
		var err error
		out, err = e.SetSettings(ctx, s)
		return err
	})
	return out, err
}

// AddSetting sets one key in the document settings.
func (d *Document) AddSetting(ctx context.Context, key string, value any) (paragraph.Paragraph, error) {
	var out paragraph.Paragraph
	err := d.edit(ctx, "add_setting", func(e *Editor) error {
		var err error
		out, err = e.AddSetting(ctx, key, value)
		return err
	})
	return out, err
}
