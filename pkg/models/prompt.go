// Package models contains domain models for keeper.
package models

import (
	"database/sql"
	"time"
)

// PromptStatus represents the lifecycle bucket of a prompt that has not
// yet been resolved to history.
type PromptStatus string

const (
	PromptStatusActive    PromptStatus = "active"
	PromptStatusQueued    PromptStatus = "queued"
	PromptStatusDismissed PromptStatus = "dismissed"
)

// IsValid reports whether the status is a known lifecycle bucket.
func (s PromptStatus) IsValid() bool {
	switch s {
	case PromptStatusActive, PromptStatusQueued, PromptStatusDismissed:
		return true
	}
	return false
}

// Outcome is the terminal state of a resolved prompt.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeRetired  Outcome = "retired"
)

// IsValid reports whether the outcome is a known terminal state.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeAnswered, OutcomeSkipped, OutcomeRetired:
		return true
	}
	return false
}

// Surface is a UI location that can independently display a prompt.
type Surface string

const (
	SurfaceTimeline Surface = "timeline"
	SurfaceBook     Surface = "book"
	SurfaceLibrary  Surface = "library"
)

// Surfaces lists every display surface in fixed order. The order matters:
// the rotation ledger indexes into candidate lists by a surface's position
// here, so different surfaces tend to pick different prompts.
var Surfaces = []Surface{SurfaceTimeline, SurfaceBook, SurfaceLibrary}

// Index returns the surface's fixed position, or -1 for unknown surfaces.
func (s Surface) Index() int {
	for i, known := range Surfaces {
		if s == known {
			return i
		}
	}
	return -1
}

// Generation tiers. Tier 1 is the cheap post-save heuristic, tier 3 the
// deep milestone analysis. There is no tier 2.
const (
	TierPostSave  = 1
	TierMilestone = 3
)

// Prompt is an AI-generated memory prompt awaiting user action.
// Its anchor hash deduplicates prompts about the same underlying memory:
// two prompts with equal (user, anchor hash) must never both be active.
type Prompt struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"user_id"`
	PromptText       string         `db:"prompt_text" json:"prompt_text"`
	AnchorEntity     sql.NullString `db:"anchor_entity" json:"anchor_entity,omitempty"`
	AnchorYear       sql.NullInt64  `db:"anchor_year" json:"anchor_year,omitempty"`
	AnchorHash       string         `db:"anchor_hash" json:"anchor_hash"`
	Tier             int            `db:"tier" json:"tier"`
	PromptScore      int            `db:"prompt_score" json:"prompt_score"`
	Status           PromptStatus   `db:"status" json:"status"`
	ShownCount       int            `db:"shown_count" json:"shown_count"`
	CreatedAt        string         `db:"created_at" json:"created_at"`
	CreatedAtEpoch   int64          `db:"created_at_epoch" json:"created_at_epoch"`
	ExpiresAtEpoch   int64          `db:"expires_at_epoch" json:"expires_at_epoch"`
	QueuedAt         sql.NullString `db:"queued_at" json:"queued_at,omitempty"`
	QueuedAtEpoch    sql.NullInt64  `db:"queued_at_epoch" json:"queued_at_epoch,omitempty"`
	DismissedAt      sql.NullString `db:"dismissed_at" json:"dismissed_at,omitempty"`
	DismissedAtEpoch sql.NullInt64  `db:"dismissed_at_epoch" json:"dismissed_at_epoch,omitempty"`
	QueuePosition    sql.NullInt64  `db:"queue_position" json:"queue_position,omitempty"`
}

// Expired reports whether the prompt has outlived its expiry at the given time.
func (p *Prompt) Expired(now time.Time) bool {
	return p.ExpiresAtEpoch > 0 && p.ExpiresAtEpoch <= now.UnixMilli()
}

// HistoryPrompt is a resolved prompt. History rows keep the anchor fields
// so prompt identity survives resolution and round-trips through restore.
type HistoryPrompt struct {
	ID              string         `db:"id" json:"id"`
	UserID          string         `db:"user_id" json:"user_id"`
	PromptText      string         `db:"prompt_text" json:"prompt_text"`
	AnchorEntity    sql.NullString `db:"anchor_entity" json:"anchor_entity,omitempty"`
	AnchorYear      sql.NullInt64  `db:"anchor_year" json:"anchor_year,omitempty"`
	AnchorHash      string         `db:"anchor_hash" json:"anchor_hash"`
	Tier            int            `db:"tier" json:"tier"`
	PromptScore     int            `db:"prompt_score" json:"prompt_score"`
	Outcome         Outcome        `db:"outcome" json:"outcome"`
	ShownCount      int            `db:"shown_count" json:"shown_count"`
	CreatedAt       string         `db:"created_at" json:"created_at"`
	CreatedAtEpoch  int64          `db:"created_at_epoch" json:"created_at_epoch"`
	ResolvedAt      string         `db:"resolved_at" json:"resolved_at"`
	ResolvedAtEpoch int64          `db:"resolved_at_epoch" json:"resolved_at_epoch"`
}

// CatalogPrompt is a stock prompt the user queued from the curated catalog.
// It shares the queued/dismissed half of the lifecycle with AI prompts but
// is never deduplicated by anchor.
type CatalogPrompt struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"user_id"`
	PromptText       string         `db:"prompt_text" json:"prompt_text"`
	Category         string         `db:"category" json:"category"`
	Status           PromptStatus   `db:"status" json:"status"`
	QueuePosition    int64          `db:"queue_position" json:"queue_position"`
	QueuedAt         string         `db:"queued_at" json:"queued_at"`
	QueuedAtEpoch    int64          `db:"queued_at_epoch" json:"queued_at_epoch"`
	DismissedAt      sql.NullString `db:"dismissed_at" json:"dismissed_at,omitempty"`
	DismissedAtEpoch sql.NullInt64  `db:"dismissed_at_epoch" json:"dismissed_at_epoch,omitempty"`
}

// Prompt sources for the merged queue/archive views.
const (
	SourceAI      = "ai"
	SourceCatalog = "catalog"
)

// QueuedItem is one entry of the merged queued view (AI + catalog).
type QueuedItem struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	PromptText    string `json:"prompt_text"`
	Category      string `json:"category,omitempty"`
	QueuePosition int64  `json:"queue_position"`
	QueuedAt      string `json:"queued_at"`
	QueuedAtEpoch int64  `json:"queued_at_epoch"`
}

// ArchivedItem is one entry of the merged dismissed view (AI + catalog).
type ArchivedItem struct {
	ID               string `json:"id"`
	Source           string `json:"source"`
	PromptText       string `json:"prompt_text"`
	Category         string `json:"category,omitempty"`
	DismissedAt      string `json:"dismissed_at"`
	DismissedAtEpoch int64  `json:"dismissed_at_epoch"`
}
