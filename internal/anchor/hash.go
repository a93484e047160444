// Package anchor derives stable identity hashes for memory prompts.
//
// A prompt's anchor is the (entity, year) pair it is semantically about.
// Hashing the normalized anchor gives a deterministic dedup key: prompts
// about the same memory produced by different generation runs collapse to
// the same hash regardless of casing or stray whitespace.
package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize lower-cases and collapses internal whitespace so that
// semantically identical anchors compare equal.
func Normalize(entity string) string {
	entity = strings.TrimSpace(strings.ToLower(entity))
	return whitespaceRegex.ReplaceAllString(entity, " ")
}

// Hash returns the dedup key for an (entity, year) anchor. An empty or
// blank entity falls back to hashing fallbackText (normally the full
// prompt text) so blank-entity prompts never collide on a constant hash.
func Hash(entity string, year int, fallbackText string) string {
	normalized := Normalize(entity)
	if normalized == "" {
		return HashText(fallbackText)
	}
	return digest(normalized + "|" + strconv.Itoa(year))
}

// HashText hashes arbitrary prompt text with the same normalization rules.
func HashText(text string) string {
	return digest(Normalize(text))
}

func digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
