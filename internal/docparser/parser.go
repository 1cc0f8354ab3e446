// Package docparser reads and writes the plain-text document format:
// paragraphs are blocks opened by a "#-" marker line that may carry an
// attribute list, e.g.
//
//	#- {id="aRdkLdxH1aeq" .note #task1 plugin="mmcq"}
//	Paragraph markdown...
//
// Text before the first marker forms blocks of its own. With element
// breaking enabled, headings and fenced code blocks in such unmarked text
// start new blocks.
package docparser

import (
	"regexp"
	"strings"

	"github.com/roach88/pardoc/internal/paragraph"
)

// Marker opens a block.
const Marker = "#-"

var headingRe = regexp.MustCompile(`^#{1,6}(\s|$)`)

// Options controls block splitting.
type Options struct {
	// BreakOnElements splits unmarked text at headings and code fences.
	BreakOnElements bool
}

// DefaultOptions are the options used for whole-document edits.
func DefaultOptions() Options {
	return Options{BreakOnElements: true}
}

// Block is one parsed paragraph block.
type Block struct {
	// ID is the id attribute; empty when the text did not carry one.
	ID string
	// Hash is the t attribute as written, or the computed hash after
	// AssignMissing.
	Hash     string
	Markdown string
	Attrs    paragraph.Attrs
	// Line is the 1-based line where the block starts.
	Line int
	// Marked is set when the block was opened by a marker line.
	Marked bool

	attrErr   string
	openFence bool
}

// Parse splits text into blocks. Syntax problems do not stop parsing; they
// are recorded on the affected block and reported by Validate.
func Parse(text string, opts Options) []Block {
	p := &parser{opts: opts}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, line := range strings.Split(text, "\n") {
		p.line(i+1, line)
	}
	p.flush()
	return p.blocks
}

type parser struct {
	opts   Options
	blocks []Block

	cur       *Block
	lines     []string
	fence     string
	breakNext bool
}

func (p *parser) line(n int, line string) {
	if p.fence != "" {
		p.lines = append(p.lines, line)
		if closesFence(line, p.fence) {
			p.fence = ""
			p.breakNext = p.splitting()
		}
		return
	}

	if isMarker(line) {
		p.flush()
		b := &Block{Line: n, Marked: true, Attrs: paragraph.Attrs{}}
		al, err := parseAttrList(line[len(Marker):])
		if err != nil {
			b.attrErr = err.Error()
		} else {
			b.ID, b.Hash, b.Attrs = al.id, al.hash, al.attrs
		}
		p.cur = b
		return
	}

	blank := strings.TrimSpace(line) == ""
	fence := openingFence(line)
	heading := headingRe.MatchString(line)

	if p.cur == nil || (!blank && p.splitting() && (p.breakNext || ((fence != "" || heading) && p.hasContent()))) {
		if blank && p.cur == nil {
			return
		}
		p.flush()
		p.cur = &Block{Line: n, Attrs: paragraph.Attrs{}}
	}
	if !blank {
		p.breakNext = false
	}
	p.lines = append(p.lines, line)

	switch {
	case fence != "":
		p.fence = fence
	case heading:
		p.breakNext = p.splitting()
	}
}

// splitting reports whether element breaking applies to the current block.
func (p *parser) splitting() bool {
	return p.opts.BreakOnElements && (p.cur == nil || !p.cur.Marked)
}

func (p *parser) hasContent() bool {
	for _, l := range p.lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}

func (p *parser) flush() {
	if p.cur == nil {
		return
	}
	b := *p.cur
	b.Markdown = trimBlankLines(p.lines)
	b.openFence = p.fence != ""
	if b.Marked || b.Markdown != "" {
		p.blocks = append(p.blocks, b)
	}
	p.cur = nil
	p.lines = nil
	p.fence = ""
	p.breakNext = false
}

func isMarker(line string) bool {
	if !strings.HasPrefix(line, Marker) {
		return false
	}
	rest := line[len(Marker):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '{'
}

// openingFence returns the fence string (``` or ~~~, possibly longer) that
// line opens, or "".
func openingFence(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return ""
	}
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(trimmed) && trimmed[n] == c {
			n++
		}
		if n >= 3 {
			return trimmed[:n]
		}
	}
	return ""
}

func closesFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, fence) {
		return false
	}
	return strings.Trim(trimmed, fence[:1]) == ""
}

// trimBlankLines joins lines, dropping leading and trailing blank lines.
func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// AssignMissing returns a copy of blocks where every block has an id and
// a hash matching its markdown and attributes.
func AssignMissing(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		if b.ID == "" {
			b.ID = paragraph.NewID()
		}
		b.Attrs = b.Attrs.Clone()
		b.Hash = paragraph.Hash(b.Markdown, b.Attrs)
		out[i] = b
	}
	return out
}

// Paragraphs converts blocks into paragraphs of document docID. Blocks
// must have ids, see AssignMissing.
func Paragraphs(docID int, blocks []Block) ([]paragraph.Paragraph, error) {
	pars := make([]paragraph.Paragraph, 0, len(blocks))
	for _, b := range blocks {
		p, err := paragraph.New(docID, b.Markdown, b.Attrs, nil, b.ID)
		if err != nil {
			return nil, err
		}
		pars = append(pars, p)
	}
	return pars, nil
}

// IDs returns the block ids in order.
func IDs(blocks []Block) []string {
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	return ids
}
