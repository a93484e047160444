// Package rotation prevents prompt repeats across UI surfaces.
package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heritagewhisper/keeper/pkg/models"
)

func testPrompts(ids ...string) []*models.Prompt {
	prompts := make([]*models.Prompt, len(ids))
	for i, id := range ids {
		prompts[i] = &models.Prompt{ID: id, UserID: "user-1", PromptText: "What do you remember about " + id + "?"}
	}
	return prompts
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNext_PicksBySurfaceIndex(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	candidates := testPrompts("p1", "p2", "p3")

	// Fresh rotator per surface so earlier picks don't filter later ones.
	for i, surface := range models.Surfaces {
		r := New(NewMemoryLedger())
		r.SetNowFunc(fixedClock(base))

		pick, err := r.Next(ctx, "user-1", surface, candidates)
		require.NoError(t, err)
		require.NotNil(t, pick)
		assert.Equal(t, candidates[i].ID, pick.ID, "surface %s should pick index %d", surface, i)
	}
}

func TestNext_NeverRepeatsWithinHourAcrossSurfaces(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(NewMemoryLedger())
	r.SetNowFunc(fixedClock(base))

	candidates := testPrompts("p1", "p2", "p3")

	seen := make(map[string]bool)
	for _, surface := range models.Surfaces {
		pick, err := r.Next(ctx, "user-1", surface, candidates)
		require.NoError(t, err)
		require.NotNil(t, pick)
		assert.False(t, seen[pick.ID], "prompt %s repeated within the hour", pick.ID)
		seen[pick.ID] = true
	}

	// Everything has been shown; a fourth call must return nothing.
	pick, err := r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	assert.Nil(t, pick, "better to show nothing than repeat")
}

func TestNext_ShowWindowExpires(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(NewMemoryLedger())
	r.SetNowFunc(fixedClock(base))

	candidates := testPrompts("p1")

	pick, err := r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)

	// Still inside the window: filtered.
	r.SetNowFunc(fixedClock(base.Add(59 * time.Minute)))
	pick, err = r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	assert.Nil(t, pick)

	// Past the window: available again.
	r.SetNowFunc(fixedClock(base.Add(61 * time.Minute)))
	pick, err = r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, "p1", pick.ID)
}

func TestNext_DismissedHiddenFor24Hours(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(NewMemoryLedger())
	r.SetNowFunc(fixedClock(base))

	require.NoError(t, r.MarkDismissed(ctx, "user-1", "p1"))

	candidates := testPrompts("p1", "p2")

	pick, err := r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, "p2", pick.ID, "dismissed prompt must be skipped")

	// 23h later still hidden.
	r.SetNowFunc(fixedClock(base.Add(23 * time.Hour)))
	pick, err = r.Next(ctx, "user-1", models.SurfaceBook, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, "p2", pick.ID)

	// 25h later p1 is eligible again; timeline picks the first candidate.
	r.SetNowFunc(fixedClock(base.Add(25 * time.Hour)))
	pick, err = r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, "p1", pick.ID)
}

func TestNext_EmptyCandidates(t *testing.T) {
	r := New(NewMemoryLedger())
	pick, err := r.Next(context.Background(), "user-1", models.SurfaceTimeline, nil)
	require.NoError(t, err)
	assert.Nil(t, pick)
}

func TestNext_UsersIsolated(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(NewMemoryLedger())
	r.SetNowFunc(fixedClock(base))

	candidates := testPrompts("p1")

	pick, err := r.Next(ctx, "user-1", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)

	// A different user is unaffected by user-1's ledger.
	pick, err = r.Next(ctx, "user-2", models.SurfaceTimeline, candidates)
	require.NoError(t, err)
	require.NotNil(t, pick)
}

func TestNext_SurfaceIndexClamped(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryLedger())
	r.SetNowFunc(fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	// Library has index 2 but only one candidate exists.
	pick, err := r.Next(ctx, "user-1", models.SurfaceLibrary, testPrompts("p1"))
	require.NoError(t, err)
	require.NotNil(t, pick)
	assert.Equal(t, "p1", pick.ID)
}
