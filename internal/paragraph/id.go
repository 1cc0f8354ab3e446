package paragraph

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// IDLength is the length of a paragraph id including its checksum.
	IDLength = 12

	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewID returns a random paragraph id. The first eleven characters are
// random; the twelfth is a checksum over them (see IsValidID).
func NewID() string {
	var b strings.Builder
	b.Grow(IDLength)
	body := randomChars(IDLength - 1)
	b.WriteString(body)
	b.WriteByte(checksum(body))
	return b.String()
}

// IsValidID reports whether id has the paragraph id shape and a matching
// checksum character.
func IsValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(idAlphabet, id[i]) < 0 {
			return false
		}
	}
	return checksum(id[:IDLength-1]) == id[IDLength-1]
}

// checksum weights each character index by its position.
func checksum(body string) byte {
	sum := 0
	for i := 0; i < len(body); i++ {
		sum += (i + 1) * strings.IndexByte(idAlphabet, body[i])
	}
	return idAlphabet[sum%len(idAlphabet)]
}

// randomChars draws n characters uniformly from idAlphabet, rejecting bytes
// that would bias the distribution.
func randomChars(n int) string {
	const limit = 256 - 256%len(idAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("paragraph id: read random: %v", err))
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			out = append(out, idAlphabet[int(c)%len(idAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
