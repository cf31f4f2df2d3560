package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"gorm.io/gorm"
)

// AuditLogRepositoryImpl implements AuditLogRepository interface. There is no update or delete.
type AuditLogRepositoryImpl struct {
	*BaseRepository[models.AuditLog, models.AuditLogFilter]
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &AuditLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AuditLog, models.AuditLogFilter](db),
	}
}

// List retrieves audit entries newest first
func (r *AuditLogRepositoryImpl) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	query := r.getDB(ctx).Model(&models.AuditLog{})

	if filter.Action != nil {
		query = query.Where("action = ?", *filter.Action)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.ActorAdminID != nil {
		query = query.Where("actor_admin_id = ?", *filter.ActorAdminID)
	}

	var logs []*models.AuditLog
	err := query.Order("created_at DESC, id DESC").
		Limit(utils.ClampLimit(filter.Limit)).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}

	return logs, nil
}
