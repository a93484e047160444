// Package gorm provides GORM-based database operations for keeper.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/heritagewhisper/keeper/internal/quality"
	"github.com/heritagewhisper/keeper/pkg/models"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	// ErrDuplicateAnchor means a prompt with the same (user, anchor hash)
	// already sits in the active set.
	ErrDuplicateAnchor = errors.New("prompt with this anchor already active")
	// ErrNotFound means the prompt does not exist or belongs to another user.
	ErrNotFound = errors.New("prompt not found")
	// ErrWrongOutcome means a restore was attempted on a history row whose
	// outcome is not skipped.
	ErrWrongOutcome = errors.New("prompt outcome does not allow restore")
	// ErrInvalidTransition means the requested status change is not part
	// of the prompt state machine.
	ErrInvalidTransition = errors.New("prompt status transition not allowed")
)

const (
	// ActiveTTL is how long a freshly created prompt stays active.
	ActiveTTL = 7 * 24 * time.Hour
	// RestoreTTL is the fresh expiry granted by a restore.
	RestoreTTL = 7 * 24 * time.Hour
	// DismissedRetention is how long a dismissed prompt stays restorable
	// before the sweep archives it to history.
	DismissedRetention = 24 * time.Hour
	// MaxShownCount retires a prompt displayed this many times without action.
	MaxShownCount = 10
)

// CleanupReport describes one active prompt flagged by a cleanup pass.
type CleanupReport struct {
	ID     string          `json:"id"`
	Text   string          `json:"text,omitempty"`
	Score  int             `json:"score"`
	Issues []quality.Issue `json:"issues"`
}

// PromptStore provides prompt lifecycle operations.
type PromptStore struct {
	db        *gorm.DB
	validator *quality.Validator
	nowFunc   func() time.Time
}

// NewPromptStore creates a new prompt store.
func NewPromptStore(store *Store) *PromptStore {
	return &PromptStore{
		db:        store.DB,
		validator: quality.NewValidator(),
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock. Tests only.
func (s *PromptStore) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
}

// CreateActive inserts a prompt into the active set. Returns
// ErrDuplicateAnchor when the user already has a prompt with the same
// anchor hash in any non-terminal status.
func (s *PromptStore) CreateActive(ctx context.Context, p *models.Prompt) error {
	now := s.nowFunc()
	row := &ActivePrompt{
		ID:             p.ID,
		UserID:         p.UserID,
		PromptText:     p.PromptText,
		AnchorEntity:   p.AnchorEntity,
		AnchorYear:     p.AnchorYear,
		AnchorHash:     p.AnchorHash,
		Tier:           p.Tier,
		PromptScore:    p.PromptScore,
		Status:         models.PromptStatusActive,
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
		ExpiresAtEpoch: p.ExpiresAtEpoch,
	}
	if row.ExpiresAtEpoch == 0 {
		row.ExpiresAtEpoch = now.Add(ActiveTTL).UnixMilli()
	}

	err := s.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAnchor
	}
	if err != nil {
		return err
	}

	p.ID = row.ID
	p.Status = row.Status
	p.CreatedAt = row.CreatedAt
	p.CreatedAtEpoch = row.CreatedAtEpoch
	p.ExpiresAtEpoch = row.ExpiresAtEpoch
	return nil
}

// GetByID retrieves one prompt scoped to its owner.
func (s *PromptStore) GetByID(ctx context.Context, userID, id string) (*models.Prompt, error) {
	var row ActivePrompt
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelPrompt(&row), nil
}

// Promote moves a prompt between active, queued and dismissed.
// Idempotent: promoting to the current status succeeds without mutating.
// Dismissed prompts cannot be queued directly; they go back through
// active first (ErrInvalidTransition).
func (s *PromptStore) Promote(ctx context.Context, userID, id string, to models.PromptStatus) error {
	now := s.nowFunc()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ActivePrompt
		err := tx.Where("id = ? AND user_id = ?", id, userID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if row.Status == to {
			return nil
		}
		if row.Status == models.PromptStatusDismissed && to == models.PromptStatusQueued {
			return ErrInvalidTransition
		}

		updates := map[string]interface{}{"status": to}
		switch to {
		case models.PromptStatusQueued:
			pos, err := nextQueuePosition(tx, userID)
			if err != nil {
				return err
			}
			updates["queued_at"] = now.Format(time.RFC3339)
			updates["queued_at_epoch"] = now.UnixMilli()
			updates["queue_position"] = pos
		case models.PromptStatusDismissed:
			updates["dismissed_at"] = now.Format(time.RFC3339)
			updates["dismissed_at_epoch"] = now.UnixMilli()
		case models.PromptStatusActive:
			updates["dismissed_at"] = nil
			updates["dismissed_at_epoch"] = nil
		}

		return tx.Model(&ActivePrompt{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error
	})
}

// Resolve moves a prompt out of the source table into history with a
// terminal outcome. Delete and insert run in one transaction so a crash
// cannot leave the prompt in both tables or neither.
func (s *PromptStore) Resolve(ctx context.Context, userID, id string, outcome models.Outcome) error {
	now := s.nowFunc()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ActivePrompt
		err := tx.Where("id = ? AND user_id = ?", id, userID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		hist := historyFromActive(&row, outcome, now)
		if err := tx.Create(hist).Error; err != nil {
			return err
		}
		return tx.Delete(&ActivePrompt{}, "id = ?", row.ID).Error
	})
}

// Restore moves a prompt back to active with a fresh expiry. Two
// sources qualify: a history(skipped) row, which is consumed, and a
// prompt still sitting dismissed in the source table, which is
// un-dismissed in place. A newer active prompt holding the same anchor
// surfaces as ErrDuplicateAnchor rather than being silently merged.
func (s *PromptStore) Restore(ctx context.Context, userID, id string) (*models.Prompt, error) {
	now := s.nowFunc()
	var restored *models.Prompt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hist PromptHistory
		err := tx.Where("id = ? AND user_id = ?", id, userID).First(&hist).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			restored, err = restoreDismissed(tx, userID, id, now)
			return err
		}
		if err != nil {
			return err
		}

		if hist.Outcome != models.OutcomeSkipped {
			return ErrWrongOutcome
		}

		row := &ActivePrompt{
			ID:             hist.ID,
			UserID:         hist.UserID,
			PromptText:     hist.PromptText,
			AnchorEntity:   hist.AnchorEntity,
			AnchorYear:     hist.AnchorYear,
			AnchorHash:     hist.AnchorHash,
			Tier:           hist.Tier,
			PromptScore:    hist.PromptScore,
			Status:         models.PromptStatusActive,
			CreatedAt:      hist.CreatedAt,
			CreatedAtEpoch: hist.CreatedAtEpoch,
			ExpiresAtEpoch: now.Add(RestoreTTL).UnixMilli(),
		}
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateAnchor
			}
			return err
		}

		if err := tx.Delete(&PromptHistory{}, "id = ?", hist.ID).Error; err != nil {
			return err
		}

		restored = toModelPrompt(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// restoreDismissed flips a dismissed source-table row back to active
// and grants it a fresh expiry. Rows in any other status are not
// restorable through this path.
func restoreDismissed(tx *gorm.DB, userID, id string, now time.Time) (*models.Prompt, error) {
	var row ActivePrompt
	err := tx.Where("id = ? AND user_id = ? AND status = ?", id, userID, models.PromptStatusDismissed).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	expiry := now.Add(RestoreTTL).UnixMilli()
	err = tx.Model(&ActivePrompt{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"status":             models.PromptStatusActive,
			"dismissed_at":       nil,
			"dismissed_at_epoch": nil,
			"expires_at_epoch":   expiry,
		}).Error
	if err != nil {
		return nil, err
	}

	row.Status = models.PromptStatusActive
	row.DismissedAt = sql.NullString{}
	row.DismissedAtEpoch = sql.NullInt64{}
	row.ExpiresAtEpoch = expiry
	return toModelPrompt(&row), nil
}

// Cleanup re-validates every active prompt for a user. In dry-run mode
// failing prompts are only reported; otherwise each is resolved to
// history with outcome skipped.
func (s *PromptStore) Cleanup(ctx context.Context, userID string, dryRun bool) ([]CleanupReport, error) {
	var rows []ActivePrompt
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PromptStatusActive).
		Order("created_at_epoch DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var reports []CleanupReport
	for i := range rows {
		res := s.validator.Validate(rows[i].PromptText)
		if res.Valid {
			continue
		}
		reports = append(reports, CleanupReport{
			ID:     rows[i].ID,
			Text:   rows[i].PromptText,
			Score:  res.Score,
			Issues: res.Issues,
		})
		if !dryRun {
			if err := s.Resolve(ctx, userID, rows[i].ID, models.OutcomeSkipped); err != nil {
				return reports, err
			}
		}
	}
	return reports, nil
}

// EmergencyCleanup purges active prompts matching known broken-grammar
// patterns, regardless of other validation rules.
func (s *PromptStore) EmergencyCleanup(ctx context.Context, userID string) ([]CleanupReport, error) {
	var rows []ActivePrompt
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PromptStatusActive).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	var reports []CleanupReport
	for i := range rows {
		if !quality.IsBroken(rows[i].PromptText) {
			continue
		}
		reports = append(reports, CleanupReport{
			ID:     rows[i].ID,
			Text:   rows[i].PromptText,
			Issues: []quality.Issue{quality.IssueBrokenGrammar},
		})
		if err := s.Resolve(ctx, userID, rows[i].ID, models.OutcomeSkipped); err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// SweepExpired resolves expired active prompts to history(skipped),
// over-shown prompts to history(retired), and dismissed prompts past
// their restore window to history(skipped), across all users. Archiving
// stale dismissals also frees their anchor hash for future generation.
// Returns the number of prompts swept.
func (s *PromptStore) SweepExpired(ctx context.Context) (int, error) {
	now := s.nowFunc()
	swept := 0

	var rows []ActivePrompt
	err := s.db.WithContext(ctx).
		Where("status = ? AND ((expires_at_epoch > 0 AND expires_at_epoch <= ?) OR shown_count >= ?)",
			models.PromptStatusActive, now.UnixMilli(), MaxShownCount).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	for i := range rows {
		outcome := models.OutcomeSkipped
		if rows[i].ShownCount >= MaxShownCount {
			outcome = models.OutcomeRetired
		}
		if err := s.Resolve(ctx, rows[i].UserID, rows[i].ID, outcome); err != nil {
			return swept, err
		}
		swept++
	}

	var stale []ActivePrompt
	err = s.db.WithContext(ctx).
		Where("status = ? AND dismissed_at_epoch <= ?",
			models.PromptStatusDismissed, now.Add(-DismissedRetention).UnixMilli()).
		Find(&stale).Error
	if err != nil {
		return swept, err
	}

	for i := range stale {
		if err := s.Resolve(ctx, stale[i].UserID, stale[i].ID, models.OutcomeSkipped); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// IncrementShown bumps the shown counter after a rotation pick.
func (s *PromptStore) IncrementShown(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).
		Model(&ActivePrompt{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumn("shown_count", gorm.Expr("shown_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns unexpired active prompts, best score first.
func (s *PromptStore) ListActive(ctx context.Context, userID string) ([]*models.Prompt, error) {
	now := s.nowFunc()
	var rows []ActivePrompt
	err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("status = ? AND (expires_at_epoch = 0 OR expires_at_epoch > ?)",
			models.PromptStatusActive, now.UnixMilli()).
		Order("prompt_score DESC, created_at_epoch DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModelPrompts(rows), nil
}

// ListQueued merges AI and catalog queued prompts sorted by position.
func (s *PromptStore) ListQueued(ctx context.Context, userID string) ([]models.QueuedItem, error) {
	var aiRows []ActivePrompt
	err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("status = ?", models.PromptStatusQueued).
		Find(&aiRows).Error
	if err != nil {
		return nil, err
	}

	var catalogRows []UserPrompt
	err = s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("status = ?", models.PromptStatusQueued).
		Find(&catalogRows).Error
	if err != nil {
		return nil, err
	}

	items := make([]models.QueuedItem, 0, len(aiRows)+len(catalogRows))
	for i := range aiRows {
		items = append(items, models.QueuedItem{
			ID:            aiRows[i].ID,
			Source:        models.SourceAI,
			PromptText:    aiRows[i].PromptText,
			QueuePosition: aiRows[i].QueuePosition.Int64,
			QueuedAt:      aiRows[i].QueuedAt.String,
			QueuedAtEpoch: aiRows[i].QueuedAtEpoch.Int64,
		})
	}
	for i := range catalogRows {
		items = append(items, models.QueuedItem{
			ID:            catalogRows[i].ID,
			Source:        models.SourceCatalog,
			PromptText:    catalogRows[i].PromptText,
			Category:      catalogRows[i].Category,
			QueuePosition: catalogRows[i].QueuePosition,
			QueuedAt:      catalogRows[i].QueuedAt,
			QueuedAtEpoch: catalogRows[i].QueuedAtEpoch,
		})
	}
	sortQueuedItems(items)
	return items, nil
}

// ListArchived merges dismissed prompts from both sources, newest first.
func (s *PromptStore) ListArchived(ctx context.Context, userID string) ([]models.ArchivedItem, error) {
	var aiRows []ActivePrompt
	err := s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("status = ?", models.PromptStatusDismissed).
		Find(&aiRows).Error
	if err != nil {
		return nil, err
	}

	var catalogRows []UserPrompt
	err = s.db.WithContext(ctx).
		Scopes(ownedBy(userID)).
		Where("status = ?", models.PromptStatusDismissed).
		Find(&catalogRows).Error
	if err != nil {
		return nil, err
	}

	items := make([]models.ArchivedItem, 0, len(aiRows)+len(catalogRows))
	for i := range aiRows {
		items = append(items, models.ArchivedItem{
			ID:               aiRows[i].ID,
			Source:           models.SourceAI,
			PromptText:       aiRows[i].PromptText,
			DismissedAt:      aiRows[i].DismissedAt.String,
			DismissedAtEpoch: aiRows[i].DismissedAtEpoch.Int64,
		})
	}
	for i := range catalogRows {
		items = append(items, models.ArchivedItem{
			ID:               catalogRows[i].ID,
			Source:           models.SourceCatalog,
			PromptText:       catalogRows[i].PromptText,
			Category:         catalogRows[i].Category,
			DismissedAt:      catalogRows[i].DismissedAt.String,
			DismissedAtEpoch: catalogRows[i].DismissedAtEpoch.Int64,
		})
	}
	sortArchivedItems(items)
	return items, nil
}

// ListHistory returns resolved prompts, optionally filtered by outcome.
func (s *PromptStore) ListHistory(ctx context.Context, userID string, outcome models.Outcome) ([]*models.HistoryPrompt, error) {
	query := s.db.WithContext(ctx).Scopes(ownedBy(userID))
	if outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}

	var rows []PromptHistory
	if err := query.Order("resolved_at_epoch DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]*models.HistoryPrompt, len(rows))
	for i := range rows {
		result[i] = toModelHistory(&rows[i])
	}
	return result, nil
}

// QueueCatalogPrompt appends a catalog prompt to the user's queue.
func (s *PromptStore) QueueCatalogPrompt(ctx context.Context, userID, text, category string) (*models.CatalogPrompt, error) {
	now := s.nowFunc()
	var created *models.CatalogPrompt

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pos, err := nextQueuePosition(tx, userID)
		if err != nil {
			return err
		}

		row := &UserPrompt{
			UserID:        userID,
			PromptText:    text,
			Category:      category,
			Status:        models.PromptStatusQueued,
			QueuePosition: pos,
			QueuedAt:      now.Format(time.RFC3339),
			QueuedAtEpoch: now.UnixMilli(),
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}

		created = toModelCatalog(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DismissCatalogPrompt marks a queued catalog prompt dismissed.
func (s *PromptStore) DismissCatalogPrompt(ctx context.Context, userID, id string) error {
	now := s.nowFunc()
	res := s.db.WithContext(ctx).
		Model(&UserPrompt{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{
			"status":             models.PromptStatusDismissed,
			"dismissed_at":       now.Format(time.RFC3339),
			"dismissed_at_epoch": now.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasActiveAnchor reports whether the user already holds the anchor hash
// in the source table, in any status.
func (s *PromptStore) HasActiveAnchor(ctx context.Context, userID, anchorHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ActivePrompt{}).
		Where("user_id = ? AND anchor_hash = ?", userID, anchorHash).
		Count(&count).Error
	return count > 0, err
}

// ====================
// Helpers
// ====================

// nextQueuePosition returns one past the highest position across both
// queue sources so the merged view keeps insertion order.
func nextQueuePosition(tx *gorm.DB, userID string) (int64, error) {
	var aiMax sql.NullInt64
	err := tx.Model(&ActivePrompt{}).
		Where("user_id = ? AND status = ?", userID, models.PromptStatusQueued).
		Select("MAX(queue_position)").
		Scan(&aiMax).Error
	if err != nil {
		return 0, err
	}

	var catalogMax sql.NullInt64
	err = tx.Model(&UserPrompt{}).
		Where("user_id = ? AND status = ?", userID, models.PromptStatusQueued).
		Select("MAX(queue_position)").
		Scan(&catalogMax).Error
	if err != nil {
		return 0, err
	}

	max := aiMax.Int64
	if catalogMax.Int64 > max {
		max = catalogMax.Int64
	}
	return max + 1, nil
}

func historyFromActive(row *ActivePrompt, outcome models.Outcome, now time.Time) *PromptHistory {
	return &PromptHistory{
		ID:              row.ID,
		UserID:          row.UserID,
		PromptText:      row.PromptText,
		AnchorEntity:    row.AnchorEntity,
		AnchorYear:      row.AnchorYear,
		AnchorHash:      row.AnchorHash,
		Tier:            row.Tier,
		PromptScore:     row.PromptScore,
		Outcome:         outcome,
		ShownCount:      row.ShownCount,
		CreatedAt:       row.CreatedAt,
		CreatedAtEpoch:  row.CreatedAtEpoch,
		ResolvedAt:      now.Format(time.RFC3339),
		ResolvedAtEpoch: now.UnixMilli(),
	}
}
