// Package slug generates URL-safe identifiers from display names.
package slug

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented characters and removes the combining marks,
// so "Müller" slugifies to "muller".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts a display name into a lowercase, hyphen-separated slug.
// Characters with no ASCII representation (for example Arabic script) are
// dropped; callers should treat an empty result as "no usable slug" and
// fall back to Random.
func Make(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastHyphen := true // suppress leading hyphens
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}

// WithSuffix returns Make(name) with a short random suffix appended, which
// keeps generated slugs unique under concurrent creation. If the name has no
// usable slug characters the result is just the prefix plus suffix.
func WithSuffix(name, prefix string) string {
	base := Make(name)
	if base == "" {
		base = prefix
	}
	return base + "-" + Random(8)
}

// Random returns n hex characters of randomness suitable for slug suffixes.
func Random(n int) string {
	s := strings.ReplaceAll(uuid.New().String(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}
