// Package anchor derives stable identity hashes for memory prompts.
package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_Deterministic(t *testing.T) {
	h1 := Hash("Grandma's house", 1962, "")
	h2 := Hash("Grandma's house", 1962, "")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_NormalizesCaseAndWhitespace(t *testing.T) {
	tests := []struct {
		name    string
		entityA string
		entityB string
	}{
		{"case insensitive", "Grandma's House", "grandma's house"},
		{"leading/trailing whitespace", "  Grandma's house  ", "Grandma's house"},
		{"collapsed internal whitespace", "Grandma's   house", "Grandma's house"},
		{"tabs and newlines", "Grandma's\thouse", "Grandma's house"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Hash(tt.entityA, 1962, ""), Hash(tt.entityB, 1962, ""))
		})
	}
}

func TestHash_DifferentAnchorsDiffer(t *testing.T) {
	base := Hash("Grandma's house", 1962, "")
	assert.NotEqual(t, base, Hash("Grandma's house", 1963, ""))
	assert.NotEqual(t, base, Hash("Grandpa's house", 1962, ""))
}

func TestHash_EmptyEntityFallsBackToText(t *testing.T) {
	h1 := Hash("", 0, "What was your first job?")
	h2 := Hash("   ", 0, "What was your first job?")
	assert.Equal(t, h1, h2, "blank entity should hash fallback text")

	other := Hash("", 0, "Who taught you to drive?")
	assert.NotEqual(t, h1, other, "different prompt text must not collide")
}

func TestHashText_MatchesFallbackPath(t *testing.T) {
	text := "What was it like at Grandma's house in 1962?"
	assert.Equal(t, HashText(text), Hash("", 1962, text))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "grandma's house", Normalize("  Grandma's   HOUSE "))
	assert.Equal(t, "", Normalize("   "))
}
