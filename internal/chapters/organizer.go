// Package chapters organizes a user's stories into book chapters.
// The primary path asks the LLM to cluster stories by theme and era; when
// the LLM is unavailable or returns garbage, a term-similarity fallback
// produces a usable grouping so organize never hard-fails on provider
// outages.
package chapters

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	gormdb "github.com/heritagewhisper/keeper/internal/db/gorm"
	"github.com/heritagewhisper/keeper/internal/llm"
	"github.com/heritagewhisper/keeper/internal/routing"
	"github.com/heritagewhisper/keeper/pkg/models"
	"github.com/heritagewhisper/keeper/pkg/similarity"
)

const (
	// corpusTokenBudget caps how much story text goes to the model.
	corpusTokenBudget = 12000
	// fallbackThreshold is the Jaccard similarity for the clustering fallback.
	fallbackThreshold = 0.25
)

// Organizer rebuilds a user's chapter set from their stories.
type Organizer struct {
	client   llm.Client
	router   *routing.Router
	stories  *gormdb.StoryStore
	chapters *gormdb.ChapterStore
	counter  *llm.TokenCounter
}

// NewOrganizer creates an organizer. counter may be nil; the corpus is
// then sent uncapped.
func NewOrganizer(client llm.Client, router *routing.Router, stories *gormdb.StoryStore, chapters *gormdb.ChapterStore, counter *llm.TokenCounter) *Organizer {
	return &Organizer{
		client:   client,
		router:   router,
		stories:  stories,
		chapters: chapters,
		counter:  counter,
	}
}

// Organize clusters all of the user's stories into chapters and replaces
// the stored set atomically. Returns the new chapters in book order.
func (o *Organizer) Organize(ctx context.Context, userID string) ([]*models.Chapter, error) {
	stories, err := o.stories.List(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	if len(stories) == 0 {
		if err := o.chapters.ReplaceAll(ctx, userID, nil); err != nil {
			return nil, fmt.Errorf("clear chapters: %w", err)
		}
		return nil, nil
	}

	// Chronological order gives both paths a stable base.
	sort.SliceStable(stories, func(i, j int) bool {
		yi, yj := storyYear(stories[i]), storyYear(stories[j])
		if yi != yj {
			return yi < yj
		}
		return stories[i].CreatedAtEpoch < stories[j].CreatedAtEpoch
	})

	chapters, err := o.organizeLLM(ctx, userID, stories)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("llm chapter organization failed, using similarity fallback")
		chapters = o.organizeFallback(stories)
	}

	if err := o.chapters.ReplaceAll(ctx, userID, chapters); err != nil {
		return nil, fmt.Errorf("replace chapters: %w", err)
	}
	return chapters, nil
}

// llmChapter is the shape the model is asked to return.
type llmChapter struct {
	Title    string   `json:"title"`
	StoryIDs []string `json:"story_ids"`
}

type llmChapterResponse struct {
	Chapters []llmChapter `json:"chapters"`
}

const organizeSystemPrompt = `You organize a person's recorded life stories into book chapters.
Group stories that belong together by theme, people, and era. Order chapters roughly chronologically.
Every story must appear in exactly one chapter. Use short evocative chapter titles.
Respond with JSON only: {"chapters": [{"title": "...", "story_ids": ["..."]}]}`

func (o *Organizer) organizeLLM(ctx context.Context, userID string, stories []*models.Story) ([]*models.Chapter, error) {
	corpus, err := o.buildCorpus(stories)
	if err != nil {
		return nil, err
	}

	cfg := o.router.ModelConfig(routing.KindTier3, len(stories))
	res, err := o.client.Chat(ctx, &llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(organizeSystemPrompt),
			llm.UserMessage(corpus),
		},
		Model:    cfg.Model,
		Effort:   cfg.ReasoningEffort,
		WantJSON: true,
	})
	if err != nil {
		return nil, err
	}

	var parsed llmChapterResponse
	if err := json.Unmarshal([]byte(res.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse chapter response: %w", err)
	}
	if len(parsed.Chapters) == 0 {
		return nil, fmt.Errorf("chapter response is empty")
	}

	known := make(map[string]bool, len(stories))
	for _, s := range stories {
		known[s.ID] = true
	}

	placed := make(map[string]bool, len(stories))
	var chapters []*models.Chapter
	for _, ch := range parsed.Chapters {
		var ids []string
		for _, id := range ch.StoryIDs {
			// Hallucinated or duplicated IDs are dropped, not fatal.
			if known[id] && !placed[id] {
				ids = append(ids, id)
				placed[id] = true
			}
		}
		if len(ids) == 0 {
			continue
		}
		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = "Untitled"
		}
		chapters = append(chapters, &models.Chapter{
			Title:    title,
			StoryIDs: models.JSONStringArray(ids),
		})
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("chapter response placed no known stories")
	}

	// Stories the model forgot still belong in the book.
	var missed []string
	for _, s := range stories {
		if !placed[s.ID] {
			missed = append(missed, s.ID)
		}
	}
	if len(missed) > 0 {
		chapters = append(chapters, &models.Chapter{
			Title:    "More Stories",
			StoryIDs: models.JSONStringArray(missed),
		})
	}

	return chapters, nil
}

func (o *Organizer) buildCorpus(stories []*models.Story) (string, error) {
	var b strings.Builder
	for _, s := range stories {
		fmt.Fprintf(&b, "ID: %s\nTitle: %s\n", s.ID, s.Title)
		if s.Year.Valid {
			fmt.Fprintf(&b, "Year: %d\n", s.Year.Int64)
		}
		fmt.Fprintf(&b, "Story: %s\n\n", s.Content)
	}

	corpus := b.String()
	if o.counter == nil {
		return corpus, nil
	}
	return o.counter.Truncate(corpus, corpusTokenBudget)
}

// organizeFallback clusters stories by term similarity and titles each
// chapter after its dominant decade, or the seed story when undated.
func (o *Organizer) organizeFallback(stories []*models.Story) []*models.Chapter {
	clusters := similarity.ClusterStories(stories, fallbackThreshold)

	chapters := make([]*models.Chapter, 0, len(clusters))
	for _, cluster := range clusters {
		ids := make([]string, len(cluster))
		for i, s := range cluster {
			ids[i] = s.ID
		}
		chapters = append(chapters, &models.Chapter{
			Title:    fallbackTitle(cluster),
			StoryIDs: models.JSONStringArray(ids),
		})
	}
	return chapters
}

func fallbackTitle(cluster []*models.Story) string {
	for _, s := range cluster {
		if s.Year.Valid {
			decade := (s.Year.Int64 / 10) * 10
			return fmt.Sprintf("The %ds", decade)
		}
	}
	if cluster[0].Title != "" {
		return cluster[0].Title
	}
	return "Untitled"
}

func storyYear(s *models.Story) int64 {
	if s.Year.Valid {
		return s.Year.Int64
	}
	// Undated stories sort last.
	return 1 << 40
}
