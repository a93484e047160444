// Package models contains domain models for keeper.
package models

import (
	"database/sql"
	"time"
)

// Story is a recorded life-story narrative. Story counts drive the
// milestone-based generation tiers.
type Story struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	Title          string         `db:"title" json:"title"`
	Content        string         `db:"content" json:"content"`
	Year           sql.NullInt64  `db:"year" json:"year,omitempty"`
	PromptID       sql.NullString `db:"prompt_id" json:"prompt_id,omitempty"`
	CreatedAt      string         `db:"created_at" json:"created_at"`
	CreatedAtEpoch int64          `db:"created_at_epoch" json:"created_at_epoch"`
}

// NewStory creates a story with timestamps set.
func NewStory(id, userID, title, content string, year int, promptID string) *Story {
	now := time.Now()
	return &Story{
		ID:             id,
		UserID:         userID,
		Title:          title,
		Content:        content,
		Year:           sql.NullInt64{Int64: int64(year), Valid: year > 0},
		PromptID:       sql.NullString{String: promptID, Valid: promptID != ""},
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	}
}
