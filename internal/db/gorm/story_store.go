package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/heritagewhisper/keeper/pkg/models"
)

// StoryStore provides story persistence.
type StoryStore struct {
	db *gorm.DB
}

// NewStoryStore creates a new story store.
func NewStoryStore(store *Store) *StoryStore {
	return &StoryStore{db: store.DB}
}

// Create inserts a story.
func (s *StoryStore) Create(ctx context.Context, story *models.Story) error {
	row := &Story{
		ID:             story.ID,
		UserID:         story.UserID,
		Title:          story.Title,
		Content:        story.Content,
		Year:           story.Year,
		PromptID:       story.PromptID,
		CreatedAt:      story.CreatedAt,
		CreatedAtEpoch: story.CreatedAtEpoch,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	story.ID = row.ID
	story.CreatedAt = row.CreatedAt
	story.CreatedAtEpoch = row.CreatedAtEpoch
	return nil
}

// GetByID retrieves one story scoped to its owner.
func (s *StoryStore) GetByID(ctx context.Context, userID, id string) (*models.Story, error) {
	var row Story
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelStory(&row), nil
}

// List returns a user's stories, newest first.
func (s *StoryStore) List(ctx context.Context, userID string, limit int) ([]*models.Story, error) {
	query := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Order("created_at_epoch DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []Story
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]*models.Story, len(rows))
	for i := range rows {
		result[i] = toModelStory(&rows[i])
	}
	return result, nil
}

// Count returns the user's story count. Generation tiers key off this.
func (s *StoryStore) Count(ctx context.Context, userID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Story{}).
		Scopes(ownedBy(userID)).
		Count(&count).Error
	return int(count), err
}

// RecentSince returns stories created after the given time, oldest first.
func (s *StoryStore) RecentSince(ctx context.Context, userID string, since time.Time) ([]*models.Story, error) {
	var rows []Story
	err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("created_at_epoch > ?", since.UnixMilli()).
		Order("created_at_epoch ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]*models.Story, len(rows))
	for i := range rows {
		result[i] = toModelStory(&rows[i])
	}
	return result, nil
}

func toModelStory(row *Story) *models.Story {
	return &models.Story{
		ID:             row.ID,
		UserID:         row.UserID,
		Title:          row.Title,
		Content:        row.Content,
		Year:           row.Year,
		PromptID:       row.PromptID,
		CreatedAt:      row.CreatedAt,
		CreatedAtEpoch: row.CreatedAtEpoch,
	}
}
