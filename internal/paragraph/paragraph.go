package paragraph

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/pardoc/internal/docerr"
)

// Attrs is the string-keyed attribute map of a paragraph. Reserved keys are
// listed in kind.go; everything else is carried through untouched.
type Attrs map[string]string

// Clone returns a copy of a. A nil map clones to an empty map.
func (a Attrs) Clone() Attrs {
	out := make(Attrs, len(a))
	maps.Copy(out, a)
	return out
}

// Classes returns the class list stored under AttrClasses.
func (a Attrs) Classes() []string {
	return strings.Fields(a[AttrClasses])
}

// HasClass reports whether class is in the class list.
func (a Attrs) HasClass(class string) bool {
	return slices.Contains(a.Classes(), class)
}

// Properties carries rendering hints. It is not part of the content hash.
type Properties map[string]any

// Clone returns a shallow copy of p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	maps.Copy(out, p)
	return out
}

// Paragraph is an immutable paragraph value. The With* methods return
// modified copies; the hash always matches markdown and attributes.
type Paragraph struct {
	id       string
	docID    int
	hash     string
	markdown string
	attrs    Attrs
	props    Properties
	links    []int
	flags    flags
}

// New builds a paragraph for document docID. An empty id generates a new
// one. Invalid reference attribute combinations fail with a validation
// error, as does a supplied id that is not a valid paragraph id.
func New(docID int, markdown string, attrs Attrs, props Properties, id string) (Paragraph, error) {
	if id == "" {
		id = NewID()
	} else if !IsValidID(id) {
		return Paragraph{}, docerr.Validation("invalid paragraph id %q", id).WithDoc(docID)
	}
	attrs = attrs.Clone()
	if err := ValidateAttrs(attrs); err != nil {
		return Paragraph{}, err.WithDoc(docID).WithPar(id)
	}
	return Paragraph{
		id:       id,
		docID:    docID,
		hash:     Hash(markdown, attrs),
		markdown: markdown,
		attrs:    attrs,
		props:    props.Clone(),
		flags:    deriveFlags(attrs),
	}, nil
}

// ValidateAttrs checks attribute names and the reference attribute
// combination: a paragraph cannot reference both a paragraph and an area,
// and an explicit rd needs one of them.
func ValidateAttrs(attrs Attrs) *docerr.Error {
	for key := range attrs {
		if !validAttrName(key) {
			return docerr.Validation("invalid attribute name %q", key)
		}
	}
	_, rp := attrs[AttrRefPar]
	_, ra := attrs[AttrRefArea]
	_, rd := attrs[AttrRefDoc]
	switch {
	case rp && ra:
		return docerr.Validation("paragraph cannot reference both a paragraph (rp) and an area (ra)")
	case rd && !rp && !ra:
		return docerr.Validation("reference to document %q needs rp or ra", attrs[AttrRefDoc])
	case rp && attrs[AttrRefPar] == "":
		return docerr.Validation("empty rp attribute")
	case ra && attrs[AttrRefArea] == "":
		return docerr.Validation("empty ra attribute")
	}
	return nil
}

// validAttrName reports whether key survives a round trip through a block
// attribute list.
func validAttrName(key string) bool {
	if key == "" || key[0] == '.' || key[0] == '#' {
		return false
	}
	return !strings.ContainsAny(key, " \t\r\n=\"{}")
}

// ID returns the paragraph id.
func (p Paragraph) ID() string { return p.id }

// DocID returns the id of the document the paragraph belongs to.
func (p Paragraph) DocID() int { return p.docID }

// Hash returns the content hash.
func (p Paragraph) Hash() string { return p.hash }

// Markdown returns the raw markdown.
func (p Paragraph) Markdown() string { return p.markdown }

// Attrs returns a copy of the attributes.
func (p Paragraph) Attrs() Attrs { return p.attrs.Clone() }

// Attr returns a single attribute and whether it is set.
func (p Paragraph) Attr(key string) (string, bool) {
	v, ok := p.attrs[key]
	return v, ok
}

// Properties returns a copy of the properties.
func (p Paragraph) Properties() Properties { return p.props.Clone() }

// Links returns the ids of documents referencing this content.
func (p Paragraph) Links() []int { return slices.Clone(p.links) }

// Kind returns the paragraph kind.
func (p Paragraph) Kind() Kind { return p.flags.kind }

// IsZero reports whether p is the zero Paragraph.
func (p Paragraph) IsZero() bool { return p.id == "" && p.hash == "" }

func (p Paragraph) IsReference() bool     { return p.flags.kind.IsReference() }
func (p Paragraph) IsParReference() bool  { return p.flags.kind == KindParReference }
func (p Paragraph) IsAreaReference() bool { return p.flags.kind == KindAreaReference }
func (p Paragraph) IsTranslation() bool   { return p.flags.translation }
func (p Paragraph) IsSetting() bool       { return p.flags.setting }
func (p Paragraph) IsPlugin() bool        { return p.flags.plugin }
func (p Paragraph) IsQuestion() bool      { return p.flags.question }

// IsDynamic reports whether the paragraph must go through the resolver or
// renderer before display: plugins, settings and non-translation references.
func (p Paragraph) IsDynamic() bool {
	return p.flags.plugin || p.flags.setting || (p.IsReference() && !p.flags.translation)
}

// Reference returns the reference target, if p is a reference.
func (p Paragraph) Reference() (Ref, bool) {
	if !p.IsReference() {
		return Ref{}, false
	}
	return Ref{
		Doc:         p.attrs[AttrRefDoc],
		Par:         p.attrs[AttrRefPar],
		Area:        p.attrs[AttrRefArea],
		Translation: p.flags.translation,
		Hash:        p.attrs[AttrRefHash],
	}, true
}

// Equal reports whether p and other have the same hash and attributes.
func (p Paragraph) Equal(other Paragraph) bool {
	return p.hash == other.hash && maps.Equal(p.attrs, other.attrs)
}

// WithAttr returns a copy with attribute key set to value.
func (p Paragraph) WithAttr(key, value string) (Paragraph, error) {
	attrs := p.attrs.Clone()
	attrs[key] = value
	return p.withAttrs(attrs)
}

// WithoutAttr returns a copy with attribute key removed.
func (p Paragraph) WithoutAttr(key string) (Paragraph, error) {
	if _, ok := p.attrs[key]; !ok {
		return p, nil
	}
	attrs := p.attrs.Clone()
	delete(attrs, key)
	return p.withAttrs(attrs)
}

// WithAttrs returns a copy with the attribute map replaced.
func (p Paragraph) WithAttrs(attrs Attrs) (Paragraph, error) {
	return p.withAttrs(attrs.Clone())
}

// WithClass returns a copy with class appended to the class list.
func (p Paragraph) WithClass(class string) Paragraph {
	if p.attrs.HasClass(class) {
		return p
	}
	classes := append(p.attrs.Classes(), class)
	attrs := p.attrs.Clone()
	attrs[AttrClasses] = strings.Join(classes, " ")
	// Classes never affect reference validity.
	out, _ := p.withAttrs(attrs)
	return out
}

func (p Paragraph) withAttrs(attrs Attrs) (Paragraph, error) {
	if err := ValidateAttrs(attrs); err != nil {
		return Paragraph{}, err.WithDoc(p.docID).WithPar(p.id)
	}
	p.attrs = attrs
	p.flags = deriveFlags(attrs)
	p.hash = Hash(p.markdown, attrs)
	return p, nil
}

// WithMarkdown returns a copy with new markdown.
func (p Paragraph) WithMarkdown(markdown string) Paragraph {
	p.markdown = markdown
	p.hash = Hash(markdown, p.attrs)
	return p
}

// WithProperties returns a copy with the properties replaced.
func (p Paragraph) WithProperties(props Properties) Paragraph {
	p.props = props.Clone()
	return p
}

// WithLinks returns a copy with the link set replaced. Links are kept
// sorted and unique.
func (p Paragraph) WithLinks(links []int) Paragraph {
	l := slices.Clone(links)
	slices.Sort(l)
	p.links = slices.Compact(l)
	return p
}

// WithDocID returns a copy owned by another document.
func (p Paragraph) WithDocID(docID int) Paragraph {
	p.docID = docID
	return p
}

// WithID returns a copy with another paragraph id. Used for placeholders
// standing in for a paragraph that failed to resolve.
func (p Paragraph) WithID(id string) Paragraph {
	p.id = id
	return p
}

// Record is the persisted JSON form of one paragraph content version.
type Record struct {
	ID       string     `json:"id"`
	Markdown string     `json:"md"`
	Hash     string     `json:"t"`
	Attrs    Attrs      `json:"attrs"`
	Props    Properties `json:"props,omitempty"`
	Links    []int      `json:"links"`
}

// Record returns the persisted form of p.
func (p Paragraph) Record() Record {
	links := p.Links()
	if links == nil {
		links = []int{}
	}
	props := p.props
	if len(props) == 0 {
		props = nil
	}
	return Record{
		ID:       p.id,
		Markdown: p.markdown,
		Hash:     p.hash,
		Attrs:    p.attrs.Clone(),
		Props:    props,
		Links:    links,
	}
}

// FromRecord rebuilds a paragraph of document docID from its persisted form.
// The stored hash is trusted; it is recomputed only when missing.
func FromRecord(docID int, r Record) Paragraph {
	attrs := r.Attrs.Clone()
	hash := r.Hash
	if hash == "" {
		hash = Hash(r.Markdown, attrs)
	}
	p := Paragraph{
		id:       r.ID,
		docID:    docID,
		hash:     hash,
		markdown: r.Markdown,
		attrs:    attrs,
		props:    r.Props.Clone(),
		flags:    deriveFlags(attrs),
	}
	return p.WithLinks(r.Links)
}

// MarshalJSON encodes p as its Record.
func (p Paragraph) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Record())
}
