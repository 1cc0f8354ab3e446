package resolver

import (
	"fmt"
	"slices"

	"github.com/roach88/pardoc/internal/docerr"
)

// node identifies one paragraph in a reference chain.
type node struct {
	doc int
	par string
}

func (n node) String() string {
	return fmt.Sprintf("%d:%s", n.doc, n.par)
}

// chain is the stack of reference paragraphs currently being expanded.
//
// Unlike a cumulative visited set, entries are popped when their expansion
// finishes, so two sibling references to the same paragraph (for example
// two members of one area) do not look like a loop. Only a paragraph that
// reaches itself through its own expansion does.
type chain struct {
	nodes []node
}

// push adds n to the chain. It fails with a cyclic reference error when n is
// already being expanded, and with a reference error when the chain would
// exceed maxDepth.
func (c *chain) push(n node, maxDepth int) error {
	if slices.Contains(c.nodes, n) {
		return docerr.CyclicReference(c.path(n)).WithDoc(n.doc).WithPar(n.par)
	}
	if maxDepth > 0 && len(c.nodes) >= maxDepth {
		return docerr.Reference("reference chain is deeper than %d", maxDepth).WithDoc(n.doc).WithPar(n.par)
	}
	c.nodes = append(c.nodes, n)
	return nil
}

func (c *chain) pop() {
	c.nodes = c.nodes[:len(c.nodes)-1]
}

// path renders the chain followed by closing, "doc:par" per node.
func (c *chain) path(closing node) []string {
	out := make([]string, 0, len(c.nodes)+1)
	for _, n := range c.nodes {
		out = append(out, n.String())
	}
	return append(out, closing.String())
}
