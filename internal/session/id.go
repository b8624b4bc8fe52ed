package session

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// idPrefixLength is how many UTF-16 code units of text feed the hash.
const idPrefixLength = 200

// GenerateID derives a deterministic id from the leading text of a content
// unit: a 32-bit h = h*31 + c rolling hash over the first 200 UTF-16 code
// units, rendered as a non-negative base-36 integer behind a namespace tag.
// Distinct units with identical leading text collide; that is accepted.
func GenerateID(prefix, text string) string {
	units := utf16.Encode([]rune(text))
	if len(units) > idPrefixLength {
		units = units[:idPrefixLength]
	}
	var hash int32
	for _, u := range units {
		hash = (hash << 5) - hash + int32(u)
	}
	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	return prefix + "_" + strconv.FormatInt(abs, 36)
}

// NaturalID builds an id from a stable identifier exposed by the source.
// It returns "" when key is blank so callers can fall back to GenerateID.
func NaturalID(prefix, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return prefix + "_" + key
}
