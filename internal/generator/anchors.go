package generator

import (
	"regexp"
	"strconv"
	"strings"
)

// Anchor is a candidate (entity, year) pair pulled from story text.
type Anchor struct {
	Entity string
	Year   int
}

var (
	yearRegex = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
	// One or more capitalized words in a row, letting through
	// possessives like "Grandma's".
	properRegex = regexp.MustCompile(`\b[A-Z][a-z]+(?:'s)?(?:\s+[A-Z][a-z]+(?:'s)?)*`)
)

// sentence openers and common capitalized noise not worth anchoring on
var anchorStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "i": true, "we": true, "it": true,
	"my": true, "our": true, "his": true, "her": true, "their": true,
	"he": true, "she": true, "they": true, "you": true, "when": true,
	"then": true, "there": true, "that": true, "this": true, "one": true,
	"after": true, "before": true, "but": true, "and": true, "so": true,
	"in": true, "on": true, "at": true, "by": true, "every": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

const maxAnchorsPerStory = 5

// ExtractAnchors pulls capitalized-phrase entities and a dominant year
// from a story. The heuristic is deliberately loose: the anchors only
// seed tier 1 questions, and the quality gate filters bad output later.
func ExtractAnchors(title, content string, storyYear int) []Anchor {
	text := title + ". " + content

	year := storyYear
	if year == 0 {
		if m := yearRegex.FindString(text); m != "" {
			year, _ = strconv.Atoi(m)
		}
	}

	seen := make(map[string]bool)
	var anchors []Anchor
	for _, match := range properRegex.FindAllString(text, -1) {
		entity := trimAnchor(match)
		if entity == "" {
			continue
		}
		key := strings.ToLower(entity)
		if seen[key] {
			continue
		}
		seen[key] = true
		anchors = append(anchors, Anchor{Entity: entity, Year: year})
		if len(anchors) >= maxAnchorsPerStory {
			break
		}
	}
	return anchors
}

// trimAnchor drops stop-word prefixes and rejects phrases that are
// nothing but noise (sentence-initial "The", bare months, pronouns).
func trimAnchor(phrase string) string {
	words := strings.Fields(phrase)
	for len(words) > 0 && anchorStopWords[strings.ToLower(strings.TrimSuffix(words[0], "'s"))] {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	out := strings.Join(words, " ")
	if yearRegex.MatchString(out) {
		return ""
	}
	return out
}
