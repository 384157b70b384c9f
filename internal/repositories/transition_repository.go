package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// TransitionFilter narrows a transition listing. Empty fields match all.
type TransitionFilter struct {
	Status       string
	FromArea     string
	ToArea       string
	TriggerEvent string
	Limit        int
}

// TransitionRepository provides access to workflow transitions
type TransitionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewTransitionRepository creates a new transition repository
func NewTransitionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *TransitionRepository {
	return &TransitionRepository{
		db:         db,
		readOnlyDB: readDB(db, readOnlyDB),
	}
}

// Get loads one transition from the write database so updates see the latest row
func (r *TransitionRepository) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowTransition, error) {
	var t models.WorkflowTransition
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err, "failed to get workflow transition")
	}
	return &t, nil
}

// Create inserts a new transition
func (r *TransitionRepository) Create(ctx context.Context, t *models.WorkflowTransition) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return errors.Wrap(err, "failed to create workflow transition")
	}
	return nil
}

// Save writes every mutable column of an existing transition. The last
// writer wins; there is no version check.
func (r *TransitionRepository) Save(ctx context.Context, t *models.WorkflowTransition) error {
	result := r.db.WithContext(ctx).
		Model(&models.WorkflowTransition{}).
		Where("id = ?", t.ID).
		Select("to_area", "status", "error_message", "completed_at", "audit_payload", "updated_at").
		Updates(t)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update workflow transition")
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "failed to update workflow transition")
	}
	return nil
}

// List returns transitions newest first
func (r *TransitionRepository) List(ctx context.Context, f TransitionFilter) ([]models.WorkflowTransition, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.WorkflowTransition{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.FromArea != "" {
		q = q.Where("from_area = ?", f.FromArea)
	}
	if f.ToArea != "" {
		q = q.Where("to_area = ?", f.ToArea)
	}
	if f.TriggerEvent != "" {
		q = q.Where("trigger_event = ?", f.TriggerEvent)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []models.WorkflowTransition
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list workflow transitions")
	}
	return out, nil
}

// ListByResource returns the transitions of one business object
func (r *TransitionRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]models.WorkflowTransition, error) {
	var out []models.WorkflowTransition
	err := r.readOnlyDB.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list workflow transitions by resource")
	}
	return out, nil
}
