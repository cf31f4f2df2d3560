package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"gorm.io/gorm"
)

// PaymentRepositoryImpl implements PaymentRepository interface
type PaymentRepositoryImpl struct {
	*BaseRepository[models.Payment, models.PaymentFilter]
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &PaymentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Payment, models.PaymentFilter](db),
	}
}

// ListByStatus returns the newest payments with the given status
func (r *PaymentRepositoryImpl) ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]*models.Payment, error) {
	db := r.getDB(ctx)

	var rows []*models.Payment
	err := db.Where("status = ?", status).
		Order("created_at DESC, id DESC").
		Limit(utils.ClampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments by status: %w", err)
	}

	return rows, nil
}

// ListByParsedID returns payments linked to a parsed SMS in the given status
func (r *PaymentRepositoryImpl) ListByParsedID(ctx context.Context, parsedID uint, status models.PaymentStatus) ([]*models.Payment, error) {
	db := r.getDB(ctx)

	var rows []*models.Payment
	err := db.Where("sms_parsed_id = ? AND status = ?", parsedID, status).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for parsed payment %d: %w", parsedID, err)
	}

	return rows, nil
}
