package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/momo-reconciler/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketPassRepositoryImpl implements TicketPassRepository interface
type TicketPassRepositoryImpl struct {
	*BaseRepository[models.TicketPass, struct{}]
}

// NewTicketPassRepository creates a new ticket pass repository
func NewTicketPassRepository(db *gorm.DB) TicketPassRepository {
	return &TicketPassRepositoryImpl{
		BaseRepository: NewBaseRepository[models.TicketPass, struct{}](db),
	}
}

// CreateIfAbsent relies on the unique order_id index
func (r *TicketPassRepositoryImpl) CreateIfAbsent(ctx context.Context, pass *models.TicketPass) (bool, error) {
	db := r.getDB(ctx)

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(pass)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create ticket pass for order %d: %w", pass.OrderID, res.Error)
	}

	return res.RowsAffected == 1, nil
}

func (r *TicketPassRepositoryImpl) ByOrderID(ctx context.Context, orderID uint) (*models.TicketPass, error) {
	db := r.getDB(ctx)

	var pass models.TicketPass
	err := db.Where("order_id = ?", orderID).First(&pass).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find ticket pass for order %d: %w", orderID, err)
	}

	return &pass, nil
}
