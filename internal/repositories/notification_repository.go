package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// NotificationRepository resolves recipients and stores notifications
type NotificationRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB, readOnlyDB *gorm.DB) *NotificationRepository {
	return &NotificationRepository{
		db:         db,
		readOnlyDB: readDB(db, readOnlyDB),
	}
}

// UserIDsByRoles returns the active users holding any of the roles
func (r *NotificationRepository) UserIDsByRoles(ctx context.Context, roles []string) ([]uuid.UUID, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("user_type IN ? AND is_active = ?", roles, true).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve users by role")
	}
	return ids, nil
}

// CreateBatch inserts notifications in one statement
func (r *NotificationRepository) CreateBatch(ctx context.Context, ns []models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&ns).Error; err != nil {
		return errors.Wrap(err, "failed to create notifications")
	}
	return nil
}
