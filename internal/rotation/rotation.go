// Package rotation prevents the same prompt from being shown on multiple
// UI surfaces within a rolling window and honors 24-hour dismissals.
//
// The ledger is server-side state keyed by (user, surface) so rotation is
// consistent across devices, but it is a cache, not source of truth: a
// lost ledger only means a prompt may repeat sooner than intended.
package rotation

import (
	"context"
	"time"

	"github.com/heritagewhisper/keeper/pkg/models"
)

const (
	// ShowWindow is how long a shown prompt is held back from every surface.
	ShowWindow = time.Hour
	// DismissWindow is how long a dismissed prompt is hidden everywhere.
	DismissWindow = 24 * time.Hour
)

// Ledger records show and dismissal events per user.
type Ledger interface {
	// MarkShown records that a prompt was displayed on a surface.
	MarkShown(ctx context.Context, userID string, surface models.Surface, promptID string, at time.Time) error
	// MarkDismissed records a dismissal; the prompt is hidden for DismissWindow.
	MarkDismissed(ctx context.Context, userID, promptID string, at time.Time) error
	// ShownSince returns prompt IDs shown on any surface since the cutoff.
	ShownSince(ctx context.Context, userID string, cutoff time.Time) (map[string]bool, error)
	// DismissedSince returns prompt IDs dismissed since the cutoff.
	DismissedSince(ctx context.Context, userID string, cutoff time.Time) (map[string]bool, error)
}

// Rotator selects the next prompt for a surface from a candidate list.
type Rotator struct {
	ledger  Ledger
	nowFunc func() time.Time
}

// New creates a rotator backed by the given ledger.
func New(ledger Ledger) *Rotator {
	return &Rotator{ledger: ledger, nowFunc: time.Now}
}

// SetNowFunc overrides the clock. Tests only.
func (r *Rotator) SetNowFunc(fn func() time.Time) {
	r.nowFunc = fn
}

// Next filters out prompts shown within ShowWindow on any surface and
// prompts dismissed within DismissWindow, then picks by the surface's
// fixed index into the remaining candidates (clamped to the last one).
// Returns nil when everything is filtered: better to show nothing than
// repeat. The pick is recorded as shown.
func (r *Rotator) Next(ctx context.Context, userID string, surface models.Surface, candidates []*models.Prompt) (*models.Prompt, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	now := r.nowFunc()

	shown, err := r.ledger.ShownSince(ctx, userID, now.Add(-ShowWindow))
	if err != nil {
		return nil, err
	}
	dismissed, err := r.ledger.DismissedSince(ctx, userID, now.Add(-DismissWindow))
	if err != nil {
		return nil, err
	}

	remaining := make([]*models.Prompt, 0, len(candidates))
	for _, p := range candidates {
		if shown[p.ID] || dismissed[p.ID] {
			continue
		}
		remaining = append(remaining, p)
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	idx := surface.Index()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(remaining) {
		idx = len(remaining) - 1
	}
	pick := remaining[idx]

	if err := r.ledger.MarkShown(ctx, userID, surface, pick.ID, now); err != nil {
		return nil, err
	}
	return pick, nil
}

// MarkDismissed forwards a dismissal to the ledger using the rotator clock.
func (r *Rotator) MarkDismissed(ctx context.Context, userID, promptID string) error {
	return r.ledger.MarkDismissed(ctx, userID, promptID, r.nowFunc())
}
