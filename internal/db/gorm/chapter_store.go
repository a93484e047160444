package gorm

import (
	"context"

	"gorm.io/gorm"

	"github.com/heritagewhisper/keeper/pkg/models"
)

// ChapterStore provides chapter persistence.
type ChapterStore struct {
	db *gorm.DB
}

// NewChapterStore creates a new chapter store.
func NewChapterStore(store *Store) *ChapterStore {
	return &ChapterStore{db: store.DB}
}

// List returns a user's chapters in book order.
func (s *ChapterStore) List(ctx context.Context, userID string) ([]*models.Chapter, error) {
	var rows []Chapter
	err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*models.Chapter, len(rows))
	for i := range rows {
		result[i] = toModelChapter(&rows[i])
	}
	return result, nil
}

// ReplaceAll swaps the user's entire chapter set in one transaction.
// Reorganization always produces a full book, so a partial write would
// leave the book inconsistent.
func (s *ChapterStore) ReplaceAll(ctx context.Context, userID string, chapters []*models.Chapter) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Chapter{}, "user_id = ?", userID).Error; err != nil {
			return err
		}

		for i, ch := range chapters {
			row := &Chapter{
				ID:       ch.ID,
				UserID:   userID,
				Title:    ch.Title,
				StoryIDs: ch.StoryIDs,
				Position: i,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			ch.ID = row.ID
			ch.UserID = userID
			ch.Position = i
			ch.CreatedAt = row.CreatedAt
			ch.CreatedAtEpoch = row.CreatedAtEpoch
		}
		return nil
	})
}

func toModelChapter(row *Chapter) *models.Chapter {
	return &models.Chapter{
		ID:             row.ID,
		UserID:         row.UserID,
		Title:          row.Title,
		StoryIDs:       row.StoryIDs,
		Position:       row.Position,
		CreatedAt:      row.CreatedAt,
		CreatedAtEpoch: row.CreatedAtEpoch,
	}
}
