package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"gorm.io/gorm"
)

// RawSmsRepositoryImpl implements RawSmsRepository interface
type RawSmsRepositoryImpl struct {
	*BaseRepository[models.RawSms, models.RawSmsFilter]
}

// NewRawSmsRepository creates a new raw SMS repository
func NewRawSmsRepository(db *gorm.DB) RawSmsRepository {
	return &RawSmsRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RawSms, models.RawSmsFilter](db),
	}
}

// UpdateState overwrites status and metadata unconditionally
func (r *RawSmsRepositoryImpl) UpdateState(ctx context.Context, id uint, status models.IngestStatus, metadata models.SmsMetadata) error {
	db := r.getDB(ctx)

	err := db.Model(&models.RawSms{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ingest_status": status,
			"metadata":      gorm.Expr("?::jsonb", mustJSON(metadata)),
			"updated_at":    utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update sms %d state: %w", id, err)
	}

	return nil
}

// TransitionState is a compare-and-set on ingest_status
func (r *RawSmsRepositoryImpl) TransitionState(ctx context.Context, id uint, from []models.IngestStatus, status models.IngestStatus, metadata models.SmsMetadata) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.RawSms{}).
		Where("id = ? AND ingest_status IN ?", id, from).
		Updates(map[string]any{
			"ingest_status": status,
			"metadata":      gorm.Expr("?::jsonb", mustJSON(metadata)),
			"updated_at":    utils.UTCNow(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition sms %d: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// ListByStatuses returns the newest SMS in any of the given statuses
func (r *RawSmsRepositoryImpl) ListByStatuses(ctx context.Context, statuses []models.IngestStatus, limit int) ([]*models.RawSms, error) {
	db := r.getDB(ctx)

	var rows []*models.RawSms
	err := db.Where("ingest_status IN ?", statuses).
		Order("received_at DESC, id DESC").
		Limit(utils.ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sms by status: %w", err)
	}

	return rows, nil
}

// ListRecent returns the newest inbound SMS regardless of status
func (r *RawSmsRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*models.RawSms, error) {
	db := r.getDB(ctx)

	var rows []*models.RawSms
	err := db.Order("received_at DESC, id DESC").
		Limit(utils.ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sms: %w", err)
	}

	return rows, nil
}
