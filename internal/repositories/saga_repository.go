package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// SagaRepository is the durable ledger of saga runs and their steps
type SagaRepository struct {
	db *gorm.DB
}

// NewSagaRepository creates a new saga ledger repository
func NewSagaRepository(db *gorm.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

// GetRun loads the run of a contract and event type with its steps
func (r *SagaRepository) GetRun(ctx context.Context, contractID uuid.UUID, eventType string) (*models.SagaRun, error) {
	var run models.SagaRun
	err := r.db.WithContext(ctx).
		Preload("Steps").
		Where("contract_id = ? AND event_type = ?", contractID, eventType).
		First(&run).Error
	if err != nil {
		return nil, notFound(err, "failed to get saga run")
	}
	return &run, nil
}

// CreateRun inserts a run. A concurrent insert for the same contract and
// event type yields ErrDuplicateKey.
func (r *SagaRepository) CreateRun(ctx context.Context, run *models.SagaRun) error {
	if err := r.db.WithContext(ctx).Omit("Steps").Create(run).Error; err != nil {
		return duplicate(err, "failed to create saga run")
	}
	return nil
}

// UpdateRun persists the run status, retry bookkeeping and saved state
func (r *SagaRepository) UpdateRun(ctx context.Context, run *models.SagaRun) error {
	result := r.db.WithContext(ctx).
		Model(&models.SagaRun{}).
		Where("id = ?", run.ID).
		Select("status", "attempts", "next_attempt_at", "last_error", "payload", "updated_at").
		Updates(run)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update saga run")
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "failed to update saga run")
	}
	return nil
}

// SaveStep upserts a step outcome keyed by run and step name
func (r *SagaRepository) SaveStep(ctx context.Context, step *models.SagaStep) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "error", "output", "updated_at"}),
	}).Create(step).Error
	if err != nil {
		return errors.Wrap(err, "failed to save saga step")
	}
	return nil
}

// ListDue returns partial runs whose backoff has elapsed, and running runs
// not touched since staleBefore (a crashed worker leaves those behind).
func (r *SagaRepository) ListDue(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]models.SagaRun, error) {
	var runs []models.SagaRun
	err := r.db.WithContext(ctx).
		Preload("Steps").
		Where("attempts < ?", maxAttempts).
		Where(r.db.
			Where("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", models.SagaStatusPartial, now).
			Or("status = ? AND updated_at < ?", models.SagaStatusRunning, staleBefore)).
		Order("next_attempt_at ASC NULLS FIRST").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due saga runs")
	}
	return runs, nil
}
