// Package settings parses and merges document settings blocks.
//
// A settings paragraph carries a YAML mapping, usually inside a code fence:
//
//	```
//	source_document: 12
//	macros:
//	  course: ITKP102
//	```
package settings

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pardoc/internal/docerr"
)

// Well-known keys.
const (
	KeySourceDocument     = "source_document"
	KeyMacros             = "macros"
	KeyMacroDelimiter     = "macro_delimiter"
	KeyAutoNumberHeadings = "auto_number_headings"
)

// DefaultMacroDelimiter is used when the settings do not name one.
const DefaultMacroDelimiter = "%%"

// Settings is an immutable view of a document's merged settings.
type Settings struct {
	values map[string]any
}

// New wraps values. The map is deep-copied.
func New(values map[string]any) Settings {
	return Settings{values: deepCopy(values)}
}

// Parse reads a settings block from paragraph markdown. Surrounding code
// fence lines are ignored. An empty block yields empty settings.
func Parse(markdown string) (Settings, error) {
	body := stripFence(markdown)
	if strings.TrimSpace(body) == "" {
		return Settings{values: map[string]any{}}, nil
	}
	var values map[string]any
	if err := yaml.Unmarshal([]byte(body), &values); err != nil {
		return Settings{}, &docerr.Error{
			Code:    docerr.CodeValidation,
			Message: "settings block is not a valid YAML mapping",
			Err:     err,
		}
	}
	if values == nil {
		values = map[string]any{}
	}
	return Settings{values: values}, nil
}

func stripFence(markdown string) string {
	lines := strings.Split(strings.TrimSpace(markdown), "\n")
	if len(lines) > 0 && isFence(lines[0]) {
		lines = lines[1:]
	}
	if len(lines) > 0 && isFence(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func isFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}

// Markdown renders the settings as a fenced YAML block.
func (s Settings) Markdown() (string, error) {
	if len(s.values) == 0 {
		return "```\n```", nil
	}
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	return "```\n" + string(data) + "```", nil
}

// IsEmpty reports whether no keys are set.
func (s Settings) IsEmpty() bool { return len(s.values) == 0 }

// Get returns the value of key.
func (s Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Values returns a deep copy of all settings.
func (s Settings) Values() map[string]any {
	return deepCopy(s.values)
}

// Merge returns s overlaid with other. Nested mappings merge recursively;
// other wins on conflicts; a nil value in other removes the key.
func (s Settings) Merge(other Settings) Settings {
	return Settings{values: mergeMaps(s.values, other.values)}
}

// With returns a copy with key set to value (nil removes it).
func (s Settings) With(key string, value any) Settings {
	return s.Merge(Settings{values: map[string]any{key: value}})
}

// SourceDocument returns the document a whole-document translation is
// based on.
func (s Settings) SourceDocument() (int, bool) {
	switch v := s.values[KeySourceDocument].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// MacroDelimiter returns the macro delimiter, defaulting to "%%".
func (s Settings) MacroDelimiter() string {
	if d, ok := s.values[KeyMacroDelimiter].(string); ok && d != "" {
		return d
	}
	return DefaultMacroDelimiter
}

// Macros returns the macro definitions, or an empty map.
func (s Settings) Macros() map[string]any {
	m, ok := s.values[KeyMacros].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return deepCopy(m)
}

// AutoNumberHeadings reports whether headings are numbered automatically.
func (s Settings) AutoNumberHeadings() bool {
	v, _ := s.values[KeyAutoNumberHeadings].(bool)
	return v
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := deepCopy(base)
	for k, v := range overlay {
		if v == nil {
			delete(out, k)
			continue
		}
		if om, ok := v.(map[string]any); ok {
			if bm, ok := out[k].(map[string]any); ok {
				out[k] = mergeMaps(bm, om)
				continue
			}
		}
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopy(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return val
	}
}

// Equal reports whether both settings hold the same keys with values that
// render to the same YAML.
func (s Settings) Equal(other Settings) bool {
	return maps.EqualFunc(s.values, other.values, func(a, b any) bool {
		ya, errA := yaml.Marshal(a)
		yb, errB := yaml.Marshal(b)
		return errA == nil && errB == nil && string(ya) == string(yb)
	})
}
