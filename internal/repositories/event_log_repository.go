package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// EventLogFilter narrows an event log listing
type EventLogFilter struct {
	EventType     string
	EntityType    string
	EntityID      string
	CorrelationID *uuid.UUID
	Limit         int
}

// EventLogRepository appends and reads event log rows. Rows are never updated.
type EventLogRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewEventLogRepository creates a new event log repository
func NewEventLogRepository(db *gorm.DB, readOnlyDB *gorm.DB) *EventLogRepository {
	return &EventLogRepository{
		db:         db,
		readOnlyDB: readDB(db, readOnlyDB),
	}
}

// Append inserts one event log row
func (r *EventLogRepository) Append(ctx context.Context, e *models.EventLog) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return errors.Wrap(err, "failed to append event log")
	}
	return nil
}

// List returns event log rows newest first
func (r *EventLogRepository) List(ctx context.Context, f EventLogFilter) ([]models.EventLog, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.EventLog{})
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.CorrelationID != nil {
		q = q.Where("correlation_id = ?", *f.CorrelationID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []models.EventLog
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list event log")
	}
	return out, nil
}
