package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/momo-reconciler/models"
	"gorm.io/gorm"
)

// ParsedPaymentRepositoryImpl implements ParsedPaymentRepository interface
type ParsedPaymentRepositoryImpl struct {
	*BaseRepository[models.ParsedPayment, models.ParsedPaymentFilter]
}

// NewParsedPaymentRepository creates a new parsed payment repository
func NewParsedPaymentRepository(db *gorm.DB) ParsedPaymentRepository {
	return &ParsedPaymentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ParsedPayment, models.ParsedPaymentFilter](db),
	}
}

// LatestBySmsID returns the current parse of an SMS
func (r *ParsedPaymentRepositoryImpl) LatestBySmsID(ctx context.Context, smsID uint) (*models.ParsedPayment, error) {
	db := r.getDB(ctx)

	var parsed models.ParsedPayment
	err := db.Where("sms_id = ?", smsID).
		Order("id DESC").
		First(&parsed).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find parsed payment for sms %d: %w", smsID, err)
	}

	return &parsed, nil
}

// LatestBySmsIDs returns the current parse keyed by SMS id
func (r *ParsedPaymentRepositoryImpl) LatestBySmsIDs(ctx context.Context, smsIDs []uint) (map[uint]*models.ParsedPayment, error) {
	out := make(map[uint]*models.ParsedPayment, len(smsIDs))
	if len(smsIDs) == 0 {
		return out, nil
	}

	db := r.getDB(ctx)

	var rows []*models.ParsedPayment
	err := db.Raw(`SELECT DISTINCT ON (sms_id) * FROM sms_parsed WHERE sms_id IN ? ORDER BY sms_id, id DESC`, smsIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list parsed payments: %w", err)
	}

	for _, row := range rows {
		out[row.SmsID] = row
	}
	return out, nil
}

// SetMatchedEntity is the guard against binding one SMS to two entities
func (r *ParsedPaymentRepositoryImpl) SetMatchedEntity(ctx context.Context, id uint, pointer string) (bool, error) {
	db := r.getDB(ctx)

	res := db.Model(&models.ParsedPayment{}).
		Where("id = ? AND (matched_entity IS NULL OR matched_entity LIKE 'candidate:%')", id).
		Update("matched_entity", pointer)
	if res.Error != nil {
		return false, fmt.Errorf("failed to set matched entity on parsed payment %d: %w", id, res.Error)
	}

	return res.RowsAffected == 1, nil
}
