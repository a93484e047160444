// Package gorm provides GORM-based database operations for keeper.
package gorm

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/heritagewhisper/keeper/pkg/models"
)

// GORM Models

// ActivePrompt is an AI prompt in the active/queued/dismissed half of the
// lifecycle. The unique index on (user_id, anchor_hash) is the one
// genuine correctness rule here: two prompts about the same memory must
// never coexist for a user.
type ActivePrompt struct {
	ID               string              `gorm:"primaryKey;type:text"`
	UserID           string              `gorm:"index;not null;uniqueIndex:idx_active_user_anchor,priority:1"`
	PromptText       string              `gorm:"type:text;not null"`
	AnchorEntity     sql.NullString      `gorm:"type:text"`
	AnchorYear       sql.NullInt64       ``
	AnchorHash       string              `gorm:"not null;uniqueIndex:idx_active_user_anchor,priority:2"`
	Tier             int                 `gorm:"default:1"`
	PromptScore      int                 `gorm:"default:0"`
	Status           models.PromptStatus `gorm:"type:text;check:status IN ('active', 'queued', 'dismissed');default:'active';index"`
	ShownCount       int                 `gorm:"default:0"`
	CreatedAt        string              `gorm:"not null"`
	CreatedAtEpoch   int64               `gorm:"index:idx_active_created,sort:desc;not null"`
	ExpiresAtEpoch   int64               `gorm:"index:idx_active_expires"`
	QueuedAt         sql.NullString
	QueuedAtEpoch    sql.NullInt64
	DismissedAt      sql.NullString
	DismissedAtEpoch sql.NullInt64
	QueuePosition    sql.NullInt64
}

func (ActivePrompt) TableName() string { return "active_prompts" }

// BeforeCreate hook to ensure ID and timestamps are set.
func (p *ActivePrompt) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().Format(time.RFC3339)
	}
	if p.Status == "" {
		p.Status = models.PromptStatusActive
	}
	return nil
}

// PromptHistory is a resolved prompt. Rows are terminal except for
// outcome=skipped, which the restore path can move back to active.
type PromptHistory struct {
	ID              string         `gorm:"primaryKey;type:text"`
	UserID          string         `gorm:"index:idx_history_user;index:idx_history_user_outcome,priority:1;not null"`
	PromptText      string         `gorm:"type:text;not null"`
	AnchorEntity    sql.NullString `gorm:"type:text"`
	AnchorYear      sql.NullInt64
	AnchorHash      string         `gorm:"index;not null"`
	Tier            int            `gorm:"default:1"`
	PromptScore     int            `gorm:"default:0"`
	Outcome         models.Outcome `gorm:"type:text;check:outcome IN ('answered', 'skipped', 'retired');index:idx_history_user_outcome,priority:2;not null"`
	ShownCount      int            `gorm:"default:0"`
	CreatedAt       string         `gorm:"not null"`
	CreatedAtEpoch  int64          `gorm:"not null"`
	ResolvedAt      string         `gorm:"not null"`
	ResolvedAtEpoch int64          `gorm:"index:idx_history_resolved,sort:desc;not null"`
}

func (PromptHistory) TableName() string { return "prompt_history" }

// UserPrompt is a catalog prompt the user queued. No anchor dedup.
type UserPrompt struct {
	ID               string              `gorm:"primaryKey;type:text"`
	UserID           string              `gorm:"index;not null"`
	PromptText       string              `gorm:"type:text;not null"`
	Category         string              `gorm:"index;not null"`
	Status           models.PromptStatus `gorm:"type:text;check:status IN ('queued', 'dismissed');default:'queued';index"`
	QueuePosition    int64               `gorm:"index"`
	QueuedAt         string              `gorm:"not null"`
	QueuedAtEpoch    int64               `gorm:"not null"`
	DismissedAt      sql.NullString
	DismissedAtEpoch sql.NullInt64
}

func (UserPrompt) TableName() string { return "user_prompts" }

// BeforeCreate hook to ensure ID and timestamps are set.
func (p *UserPrompt) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.QueuedAtEpoch == 0 {
		p.QueuedAtEpoch = time.Now().UnixMilli()
	}
	if p.QueuedAt == "" {
		p.QueuedAt = time.Now().Format(time.RFC3339)
	}
	if p.Status == "" {
		p.Status = models.PromptStatusQueued
	}
	return nil
}

// Story is a recorded life story.
type Story struct {
	ID             string `gorm:"primaryKey;type:text"`
	UserID         string `gorm:"index;not null"`
	Title          string `gorm:"type:text"`
	Content        string `gorm:"type:text;not null"`
	Year           sql.NullInt64
	PromptID       sql.NullString `gorm:"type:text"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_stories_created,sort:desc;not null"`
}

func (Story) TableName() string { return "stories" }

// BeforeCreate hook to ensure ID and timestamps are set.
func (s *Story) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAtEpoch == 0 {
		s.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if s.CreatedAt == "" {
		s.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Chapter groups stories; the whole set per user is replaced atomically.
type Chapter struct {
	ID             string                 `gorm:"primaryKey;type:text"`
	UserID         string                 `gorm:"index;not null"`
	Title          string                 `gorm:"type:text;not null"`
	StoryIDs       models.JSONStringArray `gorm:"type:text"`
	Position       int                    `gorm:"not null"`
	CreatedAt      string                 `gorm:"not null"`
	CreatedAtEpoch int64                  `gorm:"not null"`
}

func (Chapter) TableName() string { return "chapters" }

// BeforeCreate hook to ensure ID and timestamps are set.
func (c *Chapter) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}
