package paragraph

// Reserved attribute keys.
const (
	AttrRefDoc   = "rd"       // referenced document id
	AttrRefPar   = "rp"       // referenced paragraph id
	AttrRefArea  = "ra"       // referenced area name
	AttrRefKind  = "r"        // "tr" marks a translation
	AttrRefHash  = "rt"       // referenced hash at link time
	AttrArea     = "area"     // opens a named area
	AttrAreaEnd  = "area_end" // closes a named area
	AttrSettings = "settings"
	AttrPlugin   = "plugin"
	AttrQuestion = "question"
	AttrTaskID   = "taskId"
	AttrClasses  = "classes"

	// RefTranslation is the AttrRefKind value of a translation.
	RefTranslation = "tr"

	// ClassDeleted marks a resolved copy whose source paragraph is no
	// longer in the source document's current version.
	ClassDeleted = "deleted"
)

// ReferenceAttrs are stripped from the result of resolving a reference.
var ReferenceAttrs = []string{AttrRefKind, AttrRefDoc, AttrRefPar, AttrRefArea, AttrRefHash}

// Kind is the closed set of paragraph kinds derived from the attributes.
type Kind int

const (
	KindPlain Kind = iota
	KindParReference
	KindAreaReference
	KindSettings
	KindPlugin
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindParReference:
		return "par_reference"
	case KindAreaReference:
		return "area_reference"
	case KindSettings:
		return "settings"
	case KindPlugin:
		return "plugin"
	default:
		return "plain"
	}
}

// IsReference reports whether the kind borrows content from elsewhere.
func (k Kind) IsReference() bool {
	return k == KindParReference || k == KindAreaReference
}

// Ref is the parsed reference target of a reference paragraph.
type Ref struct {
	// Doc is the raw rd attribute; empty means "use the default source".
	Doc string
	// Par is the referenced paragraph id (paragraph references).
	Par string
	// Area is the referenced area name (area references).
	Area string
	// Translation is set for r="tr".
	Translation bool
	// Hash is the rt attribute.
	Hash string
}

// flags caches everything derived from the attribute map.
type flags struct {
	kind        Kind
	setting     bool
	plugin      bool
	question    bool
	translation bool
}

func deriveFlags(a Attrs) flags {
	_, rp := a[AttrRefPar]
	_, ra := a[AttrRefArea]
	_, settings := a[AttrSettings]
	plugin := a[AttrPlugin] != ""
	q := a[AttrQuestion]

	f := flags{
		setting:     settings,
		plugin:      plugin,
		question:    q != "" && q != "false",
		translation: a[AttrRefKind] == RefTranslation,
	}
	switch {
	case rp:
		f.kind = KindParReference
	case ra:
		f.kind = KindAreaReference
	case settings:
		f.kind = KindSettings
	case plugin:
		f.kind = KindPlugin
	default:
		f.kind = KindPlain
	}
	return f
}
