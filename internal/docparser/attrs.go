package docparser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/pardoc/internal/paragraph"
)

// Keys carried in the attribute list that are block metadata rather than
// paragraph attributes.
const (
	keyID   = "id"
	keyHash = "t"
)

// attrList is the parsed content of a {...} attribute list.
type attrList struct {
	id    string
	hash  string
	attrs paragraph.Attrs
}

// parseAttrList parses `{id="x" key="v" key=bare .class #task}`. The input
// is everything after the "#-" marker.
func parseAttrList(s string) (attrList, error) {
	out := attrList{attrs: paragraph.Attrs{}}
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	if s[0] != '{' {
		return out, fmt.Errorf("expected '{' after block marker, got %q", s)
	}
	end := closingBrace(s)
	if end < 0 {
		return out, fmt.Errorf("unterminated attribute list")
	}
	if rest := strings.TrimSpace(s[end+1:]); rest != "" {
		return out, fmt.Errorf("unexpected text after attribute list: %q", rest)
	}

	var classes []string
	body := s[1:end]
	i := 0
	for {
		for i < len(body) && isSpace(body[i]) {
			i++
		}
		if i >= len(body) {
			break
		}
		switch body[i] {
		case '.':
			name := readBare(body, i+1)
			if name == "" {
				return out, fmt.Errorf("empty class name at offset %d", i)
			}
			classes = append(classes, name)
			i += 1 + len(name)
		case '#':
			name := readBare(body, i+1)
			if name == "" {
				return out, fmt.Errorf("empty task id at offset %d", i)
			}
			out.attrs[paragraph.AttrTaskID] = name
			i += 1 + len(name)
		default:
			key := readBare(body, i)
			if key == "" {
				return out, fmt.Errorf("unexpected %q at offset %d", body[i], i)
			}
			i += len(key)
			if i >= len(body) || body[i] != '=' {
				return out, fmt.Errorf("attribute %q has no value", key)
			}
			i++
			var value string
			if i < len(body) && body[i] == '"' {
				v, n, err := readQuoted(body[i:])
				if err != nil {
					return out, fmt.Errorf("attribute %q: %w", key, err)
				}
				value = v
				i += n
			} else {
				value = readBare(body, i)
				i += len(value)
			}
			switch key {
			case keyID:
				out.id = value
			case keyHash:
				out.hash = value
			default:
				out.attrs[key] = value
			}
		}
	}
	if len(classes) > 0 {
		all := append(out.attrs.Classes(), classes...)
		out.attrs[paragraph.AttrClasses] = strings.Join(all, " ")
	}
	return out, nil
}

// closingBrace finds the '}' closing s[0], skipping quoted strings.
func closingBrace(s string) int {
	inQuote := false
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == '}':
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

func isKeyByte(c byte) bool {
	return c != '=' && c != '"' && c != '{' && c != '}' && c != '\n' && c != '\r' && !isSpace(c)
}

func readBare(s string, i int) string {
	j := i
	for j < len(s) && isKeyByte(s[j]) {
		j++
	}
	return s[i:j]
}

// readQuoted reads a double-quoted string with \" \\ \n \r and \t escapes
// and returns the value and the number of bytes consumed.
func readQuoted(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated quoted value")
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func isBareSafe(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isKeyByte(s[i]) {
			return false
		}
	}
	return true
}

// formatAttrList renders the inverse of parseAttrList: id and hash first,
// then the task shorthand, classes and the remaining keys in sorted order.
// It returns "" when there is nothing to write.
func formatAttrList(id, hash string, attrs paragraph.Attrs) string {
	var parts []string
	if id != "" {
		parts = append(parts, keyID+"="+quote(id))
	}
	if hash != "" {
		parts = append(parts, keyHash+"="+quote(hash))
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if task, ok := attrs[paragraph.AttrTaskID]; ok && isBareSafe(task) {
		parts = append(parts, "#"+task)
	}
	dotClasses := classesAsDots(attrs)
	if dotClasses {
		for _, c := range attrs.Classes() {
			parts = append(parts, "."+c)
		}
	}
	for _, k := range keys {
		v := attrs[k]
		switch {
		case k == paragraph.AttrClasses && dotClasses:
			continue
		case k == paragraph.AttrTaskID && isBareSafe(v):
			continue
		}
		parts = append(parts, k+"="+quote(v))
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// classesAsDots reports whether the class list survives being written as
// .name tokens and parsed back unchanged.
func classesAsDots(attrs paragraph.Attrs) bool {
	raw, ok := attrs[paragraph.AttrClasses]
	if !ok {
		return false
	}
	classes := strings.Fields(raw)
	if len(classes) == 0 || strings.Join(classes, " ") != raw {
		return false
	}
	for _, c := range classes {
		if !isBareSafe(c) {
			return false
		}
	}
	return true
}
