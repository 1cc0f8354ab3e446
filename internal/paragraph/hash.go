package paragraph

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DomainParagraph prefixes every paragraph content hash. The version suffix
// leaves room for a future algorithm change.
const DomainParagraph = "pardoc/paragraph/v1"

// hashWithDomain computes BLAKE3(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content hash of a paragraph from its markdown and
// attributes. It is part of the storage format: the same inputs produce
// the same hash in every process and on every backend.
//
// A nil and an empty attribute map hash identically.
func Hash(markdown string, attrs Attrs) string {
	if attrs == nil {
		attrs = Attrs{}
	}
	canonical, err := marshalCanonical(map[string]any{
		"attrs": attrs,
		"md":    markdown,
	})
	if err != nil {
		// Strings and string maps always encode.
		panic(fmt.Sprintf("paragraph hash: %v", err))
	}
	return hashWithDomain(DomainParagraph, canonical)
}
