package chapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	gormdb "github.com/heritagewhisper/keeper/internal/db/gorm"
	"github.com/heritagewhisper/keeper/internal/llm"
	"github.com/heritagewhisper/keeper/internal/routing"
	"github.com/heritagewhisper/keeper/pkg/models"
)

func setupOrganizer(t *testing.T, client llm.Client) (*Organizer, *gormdb.StoryStore, *gormdb.ChapterStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "keeper-chapters-test-*")
	require.NoError(t, err)

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	stories := gormdb.NewStoryStore(store)
	chapters := gormdb.NewChapterStore(store)
	org := NewOrganizer(client, routing.New(false), stories, chapters, nil)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return org, stories, chapters, cleanup
}

func seedStories(t *testing.T, ss *gormdb.StoryStore, userID string) (lake, mill *models.Story) {
	t.Helper()
	ctx := context.Background()

	lake = models.NewStory("", userID, "The Lake House", "Summers at the lake house with Grandma near the water.", 1962, "")
	require.NoError(t, ss.Create(ctx, lake))

	mill = models.NewStory("", userID, "The Mill", "My first job sweeping floors at the textile mill downtown.", 1971, "")
	require.NoError(t, ss.Create(ctx, mill))
	return lake, mill
}

func TestOrganizeWithLLM(t *testing.T) {
	org, ss, cs, cleanup := setupOrganizer(t, nil)
	defer cleanup()

	ctx := context.Background()
	lake, mill := seedStories(t, ss, "user-1")

	mock := llm.NewMockClient(`{"chapters":[` +
		`{"title":"Childhood Summers","story_ids":["` + lake.ID + `"]},` +
		`{"title":"Working Years","story_ids":["` + mill.ID + `"]}]}`)
	org.client = mock

	chapters, err := org.Organize(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Childhood Summers", chapters[0].Title)
	assert.Equal(t, models.JSONStringArray{lake.ID}, chapters[0].StoryIDs)
	assert.Equal(t, "Working Years", chapters[1].Title)

	// Persisted transactionally.
	stored, err := cs.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 0, stored[0].Position)
	assert.Equal(t, 1, stored[1].Position)
}

func TestOrganizePlacesForgottenStories(t *testing.T) {
	org, ss, _, cleanup := setupOrganizer(t, nil)
	defer cleanup()

	ctx := context.Background()
	lake, mill := seedStories(t, ss, "user-1")

	// The model places only one story and hallucinates an ID.
	mock := llm.NewMockClient(`{"chapters":[` +
		`{"title":"Childhood","story_ids":["` + lake.ID + `","not-a-real-id"]}]}`)
	org.client = mock

	chapters, err := org.Organize(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, models.JSONStringArray{lake.ID}, chapters[0].StoryIDs)
	assert.Equal(t, "More Stories", chapters[1].Title)
	assert.Equal(t, models.JSONStringArray{mill.ID}, chapters[1].StoryIDs)
}

func TestOrganizeFallbackOnLLMFailure(t *testing.T) {
	mock := llm.NewMockClient("")
	mock.ShouldFail = true

	org, ss, cs, cleanup := setupOrganizer(t, mock)
	defer cleanup()

	ctx := context.Background()
	seedStories(t, ss, "user-1")

	chapters, err := org.Organize(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, chapters)

	// Every story lands in exactly one chapter.
	seen := map[string]int{}
	for _, ch := range chapters {
		for _, id := range ch.StoryIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, 2)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}

	stored, err := cs.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, stored, len(chapters))
}

func TestOrganizeFallbackOnBadJSON(t *testing.T) {
	org, ss, _, cleanup := setupOrganizer(t, llm.NewMockClient("not json at all"))
	defer cleanup()

	ctx := context.Background()
	seedStories(t, ss, "user-1")

	chapters, err := org.Organize(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, chapters)
}

func TestOrganizeNoStories(t *testing.T) {
	org, _, cs, cleanup := setupOrganizer(t, llm.NewMockClient(""))
	defer cleanup()

	ctx := context.Background()
	chapters, err := org.Organize(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, chapters)

	stored, err := cs.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}
