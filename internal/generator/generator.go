// Package generator produces memory prompts from saved stories. Tier 1
// runs after every story save with a cheap model; tier 3 runs when the
// user's story count crosses a milestone and analyzes the whole corpus.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/heritagewhisper/keeper/internal/anchor"
	gormdb "github.com/heritagewhisper/keeper/internal/db/gorm"
	"github.com/heritagewhisper/keeper/internal/llm"
	"github.com/heritagewhisper/keeper/internal/quality"
	"github.com/heritagewhisper/keeper/internal/routing"
	"github.com/heritagewhisper/keeper/pkg/models"
)

const (
	// corpusTokenBudget caps the tier 3 story corpus.
	corpusTokenBudget = 16000
	// tier1MaxPrompts bounds how many questions one story save can add.
	tier1MaxPrompts = 3
	// tier3MaxPrompts bounds a milestone batch.
	tier3MaxPrompts = 8
	// recentContextWindow scopes which earlier stories tier 1 shows the
	// model so it avoids re-asking about freshly told memories.
	recentContextWindow = 30 * 24 * time.Hour
)

// milestones are the story counts that trigger a tier 3 run.
var milestones = []int{10, 50}

// Generator drives prompt generation against the stores.
type Generator struct {
	client    llm.Client
	router    *routing.Router
	validator *quality.Validator
	prompts   *gormdb.PromptStore
	stories   *gormdb.StoryStore
	counter   *llm.TokenCounter

	// OnPromptCreated, when set, is called for each inserted prompt.
	OnPromptCreated func(p *models.Prompt)
}

// New creates a generator. counter may be nil; the tier 3 corpus is then
// sent uncapped.
func New(client llm.Client, router *routing.Router, prompts *gormdb.PromptStore, stories *gormdb.StoryStore, counter *llm.TokenCounter) *Generator {
	return &Generator{
		client:    client,
		router:    router,
		validator: quality.NewValidator(),
		prompts:   prompts,
		stories:   stories,
		counter:   counter,
	}
}

// candidate is one model-proposed prompt before validation.
type candidate struct {
	Text   string `json:"text"`
	Entity string `json:"entity,omitempty"`
	Year   int    `json:"year,omitempty"`
}

type candidateResponse struct {
	Prompts []candidate `json:"prompts"`
}

// OnStorySaved runs the post-save pipeline: tier 1 questions for the new
// story, plus a tier 3 milestone run when the story count just crossed a
// milestone. The two tiers run concurrently; a tier failure is logged
// and does not block the other.
func (g *Generator) OnStorySaved(ctx context.Context, story *models.Story) (int, error) {
	count, err := g.stories.Count(ctx, story.UserID)
	if err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}

	var tier1Created, tier3Created int
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		n, err := g.GenerateTier1(egCtx, story)
		if err != nil {
			log.Warn().Err(err).Str("story_id", story.ID).Msg("tier 1 generation failed")
			return nil
		}
		tier1Created = n
		return nil
	})

	if crossedMilestone(count) {
		eg.Go(func() error {
			n, err := g.GenerateTier3(egCtx, story.UserID, count)
			if err != nil {
				log.Warn().Err(err).Str("user_id", story.UserID).Int("story_count", count).Msg("tier 3 generation failed")
				return nil
			}
			tier3Created = n
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return tier1Created + tier3Created, err
	}
	return tier1Created + tier3Created, nil
}

const tier1SystemPrompt = `You write short follow-up questions for a person recording their life stories.
Given a story and the people and places it mentions, write gentle specific questions that invite one more memory about them.
Avoid topics the person has recorded recently.
Each question must be a single full sentence ending in a question mark, between 5 and 40 words.
Respond with JSON only: {"prompts": [{"text": "...", "entity": "...", "year": 1962}]}
Use the entity and year each question is anchored on; omit year if unknown.`

// GenerateTier1 drafts follow-up questions anchored on the entities of
// one saved story. Returns the number of prompts inserted.
func (g *Generator) GenerateTier1(ctx context.Context, story *models.Story) (int, error) {
	anchors := ExtractAnchors(story.Title, story.Content, int(story.Year.Int64))
	if len(anchors) == 0 {
		return 0, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Story title: %s\n", story.Title)
	if story.Year.Valid {
		fmt.Fprintf(&b, "Year: %d\n", story.Year.Int64)
	}
	fmt.Fprintf(&b, "Story: %s\n\nMentioned:\n", story.Content)
	for _, a := range anchors {
		if a.Year > 0 {
			fmt.Fprintf(&b, "- %s (%d)\n", a.Entity, a.Year)
		} else {
			fmt.Fprintf(&b, "- %s\n", a.Entity)
		}
	}
	recent, err := g.stories.RecentSince(ctx, story.UserID, time.Now().Add(-recentContextWindow))
	if err != nil {
		log.Debug().Err(err).Str("user_id", story.UserID).Msg("recent story lookup failed")
	}
	var titles []string
	for _, r := range recent {
		if r.ID != story.ID {
			titles = append(titles, r.Title)
		}
	}
	if len(titles) > 0 {
		b.WriteString("\nRecorded recently:\n")
		for _, title := range titles {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}

	fmt.Fprintf(&b, "\nWrite at most %d questions.\n", tier1MaxPrompts)

	cfg := g.router.ModelConfig(routing.KindTier1, 0)
	res, err := g.client.Chat(ctx, &llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(tier1SystemPrompt),
			llm.UserMessage(b.String()),
		},
		Model:    cfg.Model,
		Effort:   cfg.ReasoningEffort,
		WantJSON: true,
	})
	if err != nil {
		return 0, fmt.Errorf("tier 1 chat: %w", err)
	}

	return g.insertCandidates(ctx, story.UserID, models.TierPostSave, res.Content, tier1MaxPrompts)
}

const tier3SystemPrompt = `You analyze a person's full collection of recorded life stories.
Find the people, places and eras that recur but have gaps: things mentioned often yet never told in full.
Write questions that invite those missing stories. Each question must be a single full sentence ending in a question mark, between 5 and 40 words.
Respond with JSON only: {"prompts": [{"text": "...", "entity": "...", "year": 1962}]}`

// GenerateTier3 runs the milestone corpus analysis. Returns the number
// of prompts inserted.
func (g *Generator) GenerateTier3(ctx context.Context, userID string, storyCount int) (int, error) {
	stories, err := g.stories.List(ctx, userID, 0)
	if err != nil {
		return 0, fmt.Errorf("list stories: %w", err)
	}
	if len(stories) == 0 {
		return 0, nil
	}

	var b strings.Builder
	for _, s := range stories {
		fmt.Fprintf(&b, "Title: %s\n", s.Title)
		if s.Year.Valid {
			fmt.Fprintf(&b, "Year: %d\n", s.Year.Int64)
		}
		fmt.Fprintf(&b, "Story: %s\n\n", s.Content)
	}

	corpus := b.String()
	if g.counter != nil {
		corpus, err = g.counter.Truncate(corpus, corpusTokenBudget)
		if err != nil {
			return 0, fmt.Errorf("cap corpus: %w", err)
		}
	}

	cfg := g.router.ModelConfig(routing.KindTier3, storyCount)
	res, err := g.client.Chat(ctx, &llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(tier3SystemPrompt),
			llm.UserMessage(corpus),
		},
		Model:    cfg.Model,
		Effort:   cfg.ReasoningEffort,
		WantJSON: true,
	})
	if err != nil {
		return 0, fmt.Errorf("tier 3 chat: %w", err)
	}

	return g.insertCandidates(ctx, userID, models.TierMilestone, res.Content, tier3MaxPrompts)
}

// insertCandidates validates, hashes and stores model output. Quality
// failures and duplicate anchors are skipped quietly: generation is
// best-effort and the store's unique index is the real gate.
func (g *Generator) insertCandidates(ctx context.Context, userID string, tier int, content string, max int) (int, error) {
	var parsed candidateResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return 0, fmt.Errorf("parse candidates: %w", err)
	}

	created := 0
	for _, c := range parsed.Prompts {
		if created >= max {
			break
		}

		text := strings.TrimSpace(c.Text)
		result := g.validator.Validate(text)
		if !result.Valid {
			log.Debug().Str("user_id", userID).Strs("issues", quality.IssueStrings(result.Issues)).Msg("candidate rejected by quality gate")
			continue
		}

		entity := strings.TrimSpace(c.Entity)
		p := &models.Prompt{
			UserID:       userID,
			PromptText:   text,
			AnchorEntity: gormdb.NullString(entity),
			AnchorYear:   gormdb.NullInt64(int64(c.Year)),
			AnchorHash:   anchor.Hash(entity, c.Year, text),
			Tier:         tier,
			PromptScore:  result.Score,
		}

		err := g.prompts.CreateActive(ctx, p)
		if errors.Is(err, gormdb.ErrDuplicateAnchor) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("insert prompt: %w", err)
		}

		created++
		if g.OnPromptCreated != nil {
			g.OnPromptCreated(p)
		}
	}

	log.Info().Str("user_id", userID).Int("tier", tier).Int("created", created).Msg("prompt generation finished")
	return created, nil
}

// crossedMilestone reports whether count sits exactly on a milestone.
func crossedMilestone(count int) bool {
	for _, m := range milestones {
		if count == m {
			return true
		}
	}
	return false
}

// SweepLoop periodically resolves expired and over-shown prompts until
// the context is cancelled.
func SweepLoop(ctx context.Context, prompts *gormdb.PromptStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := prompts.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("prompt sweep failed")
				continue
			}
			if swept > 0 {
				log.Info().Int("swept", swept).Msg("prompt sweep resolved expired prompts")
			}
		}
	}
}
