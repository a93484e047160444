package gorm

import (
	"database/sql"
	"sort"
	"strconv"

	"gorm.io/gorm"

	"github.com/heritagewhisper/keeper/pkg/models"
)

// ====================
// Scopes
// ====================

// ownedBy scopes a query to one user's rows.
func ownedBy(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

// ====================
// Null helpers
// ====================

// NullString wraps a string, treating empty as NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullInt64 wraps an int64, treating zero as NULL.
func NullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

// ParseLimitParam parses a limit query parameter with a default and cap.
func ParseLimitParam(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// ====================
// Converters
// ====================

func toModelPrompt(row *ActivePrompt) *models.Prompt {
	return &models.Prompt{
		ID:               row.ID,
		UserID:           row.UserID,
		PromptText:       row.PromptText,
		AnchorEntity:     row.AnchorEntity,
		AnchorYear:       row.AnchorYear,
		AnchorHash:       row.AnchorHash,
		Tier:             row.Tier,
		PromptScore:      row.PromptScore,
		Status:           row.Status,
		ShownCount:       row.ShownCount,
		CreatedAt:        row.CreatedAt,
		CreatedAtEpoch:   row.CreatedAtEpoch,
		ExpiresAtEpoch:   row.ExpiresAtEpoch,
		QueuedAt:         row.QueuedAt,
		QueuedAtEpoch:    row.QueuedAtEpoch,
		DismissedAt:      row.DismissedAt,
		DismissedAtEpoch: row.DismissedAtEpoch,
		QueuePosition:    row.QueuePosition,
	}
}

func toModelPrompts(rows []ActivePrompt) []*models.Prompt {
	result := make([]*models.Prompt, len(rows))
	for i := range rows {
		result[i] = toModelPrompt(&rows[i])
	}
	return result
}

func toModelHistory(row *PromptHistory) *models.HistoryPrompt {
	return &models.HistoryPrompt{
		ID:              row.ID,
		UserID:          row.UserID,
		PromptText:      row.PromptText,
		AnchorEntity:    row.AnchorEntity,
		AnchorYear:      row.AnchorYear,
		AnchorHash:      row.AnchorHash,
		Tier:            row.Tier,
		PromptScore:     row.PromptScore,
		Outcome:         row.Outcome,
		ShownCount:      row.ShownCount,
		CreatedAt:       row.CreatedAt,
		CreatedAtEpoch:  row.CreatedAtEpoch,
		ResolvedAt:      row.ResolvedAt,
		ResolvedAtEpoch: row.ResolvedAtEpoch,
	}
}

func toModelCatalog(row *UserPrompt) *models.CatalogPrompt {
	return &models.CatalogPrompt{
		ID:               row.ID,
		UserID:           row.UserID,
		PromptText:       row.PromptText,
		Category:         row.Category,
		Status:           row.Status,
		QueuePosition:    row.QueuePosition,
		QueuedAt:         row.QueuedAt,
		QueuedAtEpoch:    row.QueuedAtEpoch,
		DismissedAt:      row.DismissedAt,
		DismissedAtEpoch: row.DismissedAtEpoch,
	}
}

// ====================
// Merged view ordering
// ====================

func sortQueuedItems(items []models.QueuedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].QueuePosition != items[j].QueuePosition {
			return items[i].QueuePosition < items[j].QueuePosition
		}
		return items[i].QueuedAtEpoch < items[j].QueuedAtEpoch
	})
}

func sortArchivedItems(items []models.ArchivedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DismissedAtEpoch > items[j].DismissedAtEpoch
	})
}
