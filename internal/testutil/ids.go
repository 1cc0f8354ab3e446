package testutil

import (
	"fmt"

	"github.com/roach88/pardoc/internal/paragraph"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ParID returns a valid, human-readable paragraph id for fixture n, e.g.
// ParID(1) is "par00000001" plus its checksum character. The same n always
// yields the same id.
func ParID(n int) string {
	body := fmt.Sprintf("par%08d", n)
	for i := 0; i < len(idAlphabet); i++ {
		if id := body + idAlphabet[i:i+1]; paragraph.IsValidID(id) {
			return id
		}
	}
	panic("unreachable: every body has exactly one checksum character")
}

// ParIDs returns ParID(1) through ParID(n).
func ParIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ParID(i + 1)
	}
	return ids
}
