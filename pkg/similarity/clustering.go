// Package similarity provides text similarity and clustering utilities.
package similarity

import (
	"strconv"
	"strings"

	"github.com/heritagewhisper/keeper/pkg/models"
)

// ClusterStories groups stories whose term overlap exceeds the threshold.
// Stories should be sorted by preference (e.g., chronology); the first
// story of each cluster seeds it and the rest join the seed's group.
// Returns one slice of stories per cluster, in input order.
func ClusterStories(stories []*models.Story, similarityThreshold float64) [][]*models.Story {
	if len(stories) == 0 {
		return nil
	}

	termSets := make([]map[string]bool, len(stories))
	for i, story := range stories {
		termSets[i] = ExtractStoryTerms(story)
	}

	clustered := make([]bool, len(stories))
	var clusters [][]*models.Story

	for i := 0; i < len(stories); i++ {
		if clustered[i] {
			continue
		}

		cluster := []*models.Story{stories[i]}
		clustered[i] = true

		for j := i + 1; j < len(stories); j++ {
			if clustered[j] {
				continue
			}

			similarity := JaccardSimilarity(termSets[i], termSets[j])
			if similarity >= similarityThreshold {
				cluster = append(cluster, stories[j])
				clustered[j] = true
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

// ExtractStoryTerms extracts meaningful terms from a story's title and
// content for similarity comparison. The year joins the term set so
// stories from the same era pull toward each other.
func ExtractStoryTerms(story *models.Story) map[string]bool {
	terms := make(map[string]bool)

	addTerms(terms, story.Title)
	addTerms(terms, story.Content)

	if story.Year.Valid {
		decade := (story.Year.Int64 / 10) * 10
		terms["decade_"+strconv.FormatInt(decade, 10)] = true
	}

	return terms
}

// addTerms tokenizes text and adds meaningful terms to the set.
func addTerms(terms map[string]bool, text string) {
	// Simple tokenization: split on non-alphanumeric, filter short words
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})

	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "is": true, "are": true,
		"was": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true, "do": true, "does": true,
		"did": true, "will": true, "would": true, "could": true, "should": true,
		"may": true, "might": true, "must": true, "shall": true,
		"this": true, "that": true, "these": true, "those": true,
		"and": true, "or": true, "but": true, "if": true, "then": true,
		"for": true, "from": true, "with": true, "about": true, "into": true,
		"to": true, "of": true, "in": true, "on": true, "at": true, "by": true,
		"it": true, "its": true, "which": true, "who": true, "what": true,
		"when": true, "where": true, "how": true, "why": true,
	}

	for _, word := range words {
		if len(word) >= 3 && !stopWords[word] {
			terms[word] = true
		}
	}
}

// JaccardSimilarity calculates the Jaccard similarity between two term sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func JaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for term := range a {
		if b[term] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
