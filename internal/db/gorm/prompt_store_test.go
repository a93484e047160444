package gorm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/heritagewhisper/keeper/pkg/models"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "keeper-store-test-*")
	require.NoError(t, err)

	store, err := NewStore(Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func testPrompt(userID, text, hash string) *models.Prompt {
	return &models.Prompt{
		UserID:      userID,
		PromptText:  text,
		AnchorHash:  hash,
		Tier:        models.TierPostSave,
		PromptScore: 80,
	}
}

func TestCreateActive(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "What was it like at Grandma's house in 1962?", "hash-a")
	require.NoError(t, ps.CreateActive(ctx, p))

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, models.PromptStatusActive, p.Status)
	assert.Greater(t, p.ExpiresAtEpoch, time.Now().UnixMilli())

	got, err := ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.PromptText, got.PromptText)
	assert.Equal(t, "hash-a", got.AnchorHash)
}

func TestCreateActiveDuplicateAnchor(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	require.NoError(t, ps.CreateActive(ctx, testPrompt("user-1", "First question?", "hash-dup")))

	err := ps.CreateActive(ctx, testPrompt("user-1", "Second question?", "hash-dup"))
	assert.ErrorIs(t, err, ErrDuplicateAnchor)

	// Same hash for a different user is fine.
	require.NoError(t, ps.CreateActive(ctx, testPrompt("user-2", "Second question?", "hash-dup")))
}

func TestGetByIDScopedToOwner(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "Who lived next door?", "hash-b")
	require.NoError(t, ps.CreateActive(ctx, p))

	_, err := ps.GetByID(ctx, "user-2", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromote(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "What did summer smell like?", "hash-c")
	require.NoError(t, ps.CreateActive(ctx, p))

	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusQueued))

	got, err := ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptStatusQueued, got.Status)
	assert.True(t, got.QueuedAtEpoch.Valid)
	assert.True(t, got.QueuePosition.Valid)

	// Idempotent: promoting again to the same status is a no-op.
	firstPos := got.QueuePosition.Int64
	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusQueued))
	got, err = ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, firstPos, got.QueuePosition.Int64)

	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusDismissed))
	got, err = ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptStatusDismissed, got.Status)
	assert.True(t, got.DismissedAtEpoch.Valid)

	// Back to active clears the dismissal marker.
	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusActive))
	got, err = ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptStatusActive, got.Status)
	assert.False(t, got.DismissedAtEpoch.Valid)
}

func TestPromoteNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	err := ps.Promote(context.Background(), "user-1", "missing", models.PromptStatusQueued)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "Where did you learn to swim?", "hash-d")
	require.NoError(t, ps.CreateActive(ctx, p))

	require.NoError(t, ps.Resolve(ctx, "user-1", p.ID, models.OutcomeAnswered))

	// Gone from the source table.
	_, err := ps.GetByID(ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Exactly one history row, same ID, anchor preserved.
	hist, err := ps.ListHistory(ctx, "user-1", models.OutcomeAnswered)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, p.ID, hist[0].ID)
	assert.Equal(t, "hash-d", hist[0].AnchorHash)

	// Anchor is free again.
	require.NoError(t, ps.CreateActive(ctx, testPrompt("user-1", "Where did you learn to swim again?", "hash-d")))
}

func TestRestoreRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "What was it like at Grandma's house in 1962?", "hash-e")
	require.NoError(t, ps.CreateActive(ctx, p))
	require.NoError(t, ps.Resolve(ctx, "user-1", p.ID, models.OutcomeSkipped))

	before := time.Now()
	restored, err := ps.Restore(ctx, "user-1", p.ID)
	require.NoError(t, err)

	assert.Equal(t, p.ID, restored.ID)
	assert.Equal(t, "hash-e", restored.AnchorHash)
	assert.Equal(t, models.PromptStatusActive, restored.Status)
	assert.GreaterOrEqual(t, restored.ExpiresAtEpoch, before.Add(RestoreTTL).UnixMilli())

	// History row consumed: a second restore finds nothing.
	_, err = ps.Restore(ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	hist, err := ps.ListHistory(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRestoreWrongOutcome(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "What song played at your wedding?", "hash-f")
	require.NoError(t, ps.CreateActive(ctx, p))
	require.NoError(t, ps.Resolve(ctx, "user-1", p.ID, models.OutcomeAnswered))

	_, err := ps.Restore(ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, ErrWrongOutcome)
}

func TestRestoreDuplicateAnchor(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "What did the kitchen look like?", "hash-g")
	require.NoError(t, ps.CreateActive(ctx, p))
	require.NoError(t, ps.Resolve(ctx, "user-1", p.ID, models.OutcomeSkipped))

	// A newer prompt claimed the same anchor in the meantime.
	require.NoError(t, ps.CreateActive(ctx, testPrompt("user-1", "What did the kitchen sound like?", "hash-g")))

	_, err := ps.Restore(ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, ErrDuplicateAnchor)

	// The history row survives the failed restore.
	hist, err := ps.ListHistory(ctx, "user-1", models.OutcomeSkipped)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, p.ID, hist[0].ID)
}

func TestRestoreDismissedPrompt(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	now := time.Now()
	ps.SetNowFunc(func() time.Time { return now })

	p := testPrompt("user-1", "What was it like at Grandma's house in 1962?", "hash-dis")
	require.NoError(t, ps.CreateActive(ctx, p))
	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusDismissed))

	// No history row exists; restore un-dismisses the source row.
	restored, err := ps.Restore(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, restored.ID)
	assert.Equal(t, models.PromptStatusActive, restored.Status)
	assert.False(t, restored.DismissedAtEpoch.Valid)
	assert.Equal(t, now.Add(RestoreTTL).UnixMilli(), restored.ExpiresAtEpoch)

	got, err := ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptStatusActive, got.Status)
	assert.False(t, got.DismissedAtEpoch.Valid)

	// Already active again: nothing left to restore.
	_, err = ps.Restore(ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromoteDismissedToQueuedRejected(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "Who lived next door on Maple Street?", "hash-tr")
	require.NoError(t, ps.CreateActive(ctx, p))
	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusDismissed))

	err := ps.Promote(ctx, "user-1", p.ID, models.PromptStatusQueued)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := ps.GetByID(ctx, "user-1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptStatusDismissed, got.Status)
}

func TestCleanup(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	good := testPrompt("user-1", "What was the best meal your mother ever cooked?", "hash-good")
	broken := testPrompt("user-1", "the said something about town", "hash-broken")
	require.NoError(t, ps.CreateActive(ctx, good))
	require.NoError(t, ps.CreateActive(ctx, broken))

	// Dry run reports without removing.
	reports, err := ps.Cleanup(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, broken.ID, reports[0].ID)

	active, err := ps.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// Real run resolves the failing prompt to history(skipped).
	reports, err = ps.Cleanup(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	active, err = ps.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, good.ID, active[0].ID)

	hist, err := ps.ListHistory(ctx, "user-1", models.OutcomeSkipped)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, broken.ID, hist[0].ID)
}

func TestEmergencyCleanup(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	// Short but grammatical: regular cleanup would flag it, emergency must not.
	short := testPrompt("user-1", "Why move?", "hash-short")
	broken := testPrompt("user-1", "Tell me about the the house you grew up in?", "hash-bad")
	require.NoError(t, ps.CreateActive(ctx, short))
	require.NoError(t, ps.CreateActive(ctx, broken))

	reports, err := ps.EmergencyCleanup(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, broken.ID, reports[0].ID)

	active, err := ps.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, short.ID, active[0].ID)
}

func TestSweepExpired(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	now := time.Now()
	ps.SetNowFunc(func() time.Time { return now })

	expired := testPrompt("user-1", "Did you keep a diary as a child?", "hash-exp")
	expired.ExpiresAtEpoch = now.Add(-time.Hour).UnixMilli()
	require.NoError(t, ps.CreateActive(ctx, expired))

	fresh := testPrompt("user-1", "Who taught you how to drive a car?", "hash-fresh")
	require.NoError(t, ps.CreateActive(ctx, fresh))

	overshown := testPrompt("user-1", "What games did you play on the street?", "hash-shown")
	require.NoError(t, ps.CreateActive(ctx, overshown))
	for i := 0; i < MaxShownCount; i++ {
		require.NoError(t, ps.IncrementShown(ctx, "user-1", overshown.ID))
	}

	swept, err := ps.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)

	active, err := ps.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)

	skipped, err := ps.ListHistory(ctx, "user-1", models.OutcomeSkipped)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, expired.ID, skipped[0].ID)

	retired, err := ps.ListHistory(ctx, "user-1", models.OutcomeRetired)
	require.NoError(t, err)
	require.Len(t, retired, 1)
	assert.Equal(t, overshown.ID, retired[0].ID)
}

func TestSweepArchivesStaleDismissals(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	now := time.Now()
	ps.SetNowFunc(func() time.Time { return now })

	stale := testPrompt("user-1", "What did your father grow in the garden?", "hash-stale")
	require.NoError(t, ps.CreateActive(ctx, stale))
	require.NoError(t, ps.Promote(ctx, "user-1", stale.ID, models.PromptStatusDismissed))

	recent := testPrompt("user-1", "Where did you go on your first vacation?", "hash-recent")
	require.NoError(t, ps.CreateActive(ctx, recent))

	// Advance past the restore window and dismiss the second prompt now.
	later := now.Add(DismissedRetention + time.Hour)
	ps.SetNowFunc(func() time.Time { return later })
	require.NoError(t, ps.Promote(ctx, "user-1", recent.ID, models.PromptStatusDismissed))

	swept, err := ps.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	skipped, err := ps.ListHistory(ctx, "user-1", models.OutcomeSkipped)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, stale.ID, skipped[0].ID)

	// The fresh dismissal stays restorable.
	archived, err := ps.ListArchived(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, recent.ID, archived[0].ID)

	// Its anchor is free again for new generation.
	dup := testPrompt("user-1", "What did your father grow in the garden?", "hash-stale")
	assert.NoError(t, ps.CreateActive(ctx, dup))
}

func TestListActiveFiltersExpired(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	expired := testPrompt("user-1", "What did your father do for work?", "hash-old")
	expired.ExpiresAtEpoch = time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, ps.CreateActive(ctx, expired))

	fresh := testPrompt("user-1", "What was your first paying job like?", "hash-new")
	require.NoError(t, ps.CreateActive(ctx, fresh))

	active, err := ps.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)
}

func TestMergedQueue(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	ai := testPrompt("user-1", "When did you first leave home for good?", "hash-q")
	require.NoError(t, ps.CreateActive(ctx, ai))
	require.NoError(t, ps.Promote(ctx, "user-1", ai.ID, models.PromptStatusQueued))

	cat, err := ps.QueueCatalogPrompt(ctx, "user-1", "Describe your childhood bedroom.", "childhood")
	require.NoError(t, err)

	items, err := ps.ListQueued(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	// Positions span both sources, so insertion order holds.
	assert.Equal(t, ai.ID, items[0].ID)
	assert.Equal(t, models.SourceAI, items[0].Source)
	assert.Equal(t, cat.ID, items[1].ID)
	assert.Equal(t, models.SourceCatalog, items[1].Source)
	assert.Greater(t, items[1].QueuePosition, items[0].QueuePosition)
}

func TestMergedArchive(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	ai := testPrompt("user-1", "What did Sunday mornings look like?", "hash-arc")
	require.NoError(t, ps.CreateActive(ctx, ai))
	require.NoError(t, ps.Promote(ctx, "user-1", ai.ID, models.PromptStatusDismissed))

	cat, err := ps.QueueCatalogPrompt(ctx, "user-1", "Who was your best friend in school?", "friends")
	require.NoError(t, err)
	require.NoError(t, ps.DismissCatalogPrompt(ctx, "user-1", cat.ID))

	items, err := ps.ListArchived(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	sources := []string{items[0].Source, items[1].Source}
	assert.Contains(t, sources, models.SourceAI)
	assert.Contains(t, sources, models.SourceCatalog)
}

func TestDismissCatalogPromptNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	err := ps.DismissCatalogPrompt(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasActiveAnchor(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ps := NewPromptStore(store)
	ctx := context.Background()

	p := testPrompt("user-1", "What pets did your family keep?", "hash-h")
	require.NoError(t, ps.CreateActive(ctx, p))

	has, err := ps.HasActiveAnchor(ctx, "user-1", "hash-h")
	require.NoError(t, err)
	assert.True(t, has)

	// Dedup spans every status in the source table, not just active.
	require.NoError(t, ps.Promote(ctx, "user-1", p.ID, models.PromptStatusDismissed))
	has, err = ps.HasActiveAnchor(ctx, "user-1", "hash-h")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = ps.HasActiveAnchor(ctx, "user-2", "hash-h")
	require.NoError(t, err)
	assert.False(t, has)
}
