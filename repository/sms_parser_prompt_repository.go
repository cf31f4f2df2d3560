package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"gorm.io/gorm"
)

// SmsParserPromptRepositoryImpl implements SmsParserPromptRepository interface
type SmsParserPromptRepositoryImpl struct {
	*BaseRepository[models.SmsParserPrompt, struct{}]
}

// NewSmsParserPromptRepository creates a new parser prompt repository
func NewSmsParserPromptRepository(db *gorm.DB) SmsParserPromptRepository {
	return &SmsParserPromptRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SmsParserPrompt, struct{}](db),
	}
}

func (r *SmsParserPromptRepositoryImpl) List(ctx context.Context, limit int) ([]*models.SmsParserPrompt, error) {
	db := r.getDB(ctx)

	var rows []*models.SmsParserPrompt
	err := db.Order("created_at DESC, id DESC").
		Limit(utils.ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list parser prompts: %w", err)
	}

	return rows, nil
}

// Active returns the active prompt, or nil when none is active
func (r *SmsParserPromptRepositoryImpl) Active(ctx context.Context) (*models.SmsParserPrompt, error) {
	db := r.getDB(ctx)

	var prompt models.SmsParserPrompt
	err := db.Where("is_active = ?", true).First(&prompt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active parser prompt: %w", err)
	}

	return &prompt, nil
}

func (r *SmsParserPromptRepositoryImpl) LatestVersion(ctx context.Context) (int, error) {
	db := r.getDB(ctx)

	var version int
	err := db.Model(&models.SmsParserPrompt{}).
		Select("COALESCE(MAX(version), 0)").
		Scan(&version).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read latest parser prompt version: %w", err)
	}

	return version, nil
}

// Activate deactivates the current prompt before activating id, so the partial unique index holds
func (r *SmsParserPromptRepositoryImpl) Activate(ctx context.Context, id uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.SmsParserPrompt{}).
		Where("is_active = ? AND id <> ?", true, id).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate parser prompts: %w", err)
	}

	res := db.Model(&models.SmsParserPrompt{}).Where("id = ?", id).Update("is_active", true)
	if res.Error != nil {
		err = res.Error
		return fmt.Errorf("failed to activate parser prompt %d: %w", id, err)
	}
	if res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
		return fmt.Errorf("failed to activate parser prompt %d: %w", id, err)
	}

	return nil
}
