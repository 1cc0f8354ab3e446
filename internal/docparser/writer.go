package docparser

import (
	"bufio"
	"io"
	"strings"

	"github.com/roach88/pardoc/internal/paragraph"
)

// WriteOptions controls the export format.
type WriteOptions struct {
	// Hashes adds the t attribute to every marker line.
	Hashes bool
}

// Write renders pars in the block format. Every paragraph gets a marker
// line carrying its id, so parsing the output yields the same blocks.
func Write(w io.Writer, pars []paragraph.Paragraph, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	for i, p := range pars {
		if i > 0 {
			bw.WriteString("\n")
		}
		hash := ""
		if opts.Hashes {
			hash = p.Hash()
		}
		bw.WriteString(Marker)
		if list := formatAttrList(p.ID(), hash, p.Attrs()); list != "" {
			bw.WriteString(" ")
			bw.WriteString(list)
		}
		bw.WriteString("\n")
		if md := p.Markdown(); md != "" {
			bw.WriteString(md)
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}

// Text is Write into a string.
func Text(pars []paragraph.Paragraph, opts WriteOptions) string {
	var b strings.Builder
	// strings.Builder never fails.
	_ = Write(&b, pars, opts)
	return b.String()
}
