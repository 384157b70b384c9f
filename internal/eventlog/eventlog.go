// Package eventlog is the append-only audit trail of transition and saga
// activity. Writes are best-effort: a failed append is logged and dropped
// so it never aborts the mutation being audited.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
)

// StatusProcessed marks rows whose effects were already applied
const StatusProcessed = "processed"

// Entry is one audit record to append
type Entry struct {
	EventType     string
	EntityType    string
	EntityID      string
	ActorID       string
	CorrelationID string
	Payload       map[string]interface{}
}

// Recorder is the best-effort sink used by services
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Store persists event log rows
type Store interface {
	Append(ctx context.Context, e *models.EventLog) error
}

// Indexer projects event log rows into search
type Indexer interface {
	IndexEvent(ctx context.Context, doc search.EventDocument) error
}

// Log writes entries to the store and, when configured, the search index
type Log struct {
	store   Store
	indexer Indexer
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates an event log. indexer may be nil.
func New(store Store, indexer Indexer, m *metrics.Metrics) *Log {
	return &Log{
		store:   store,
		indexer: indexer,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append writes one entry and reports the store error. The search
// projection is best-effort even here.
func (l *Log) Append(ctx context.Context, e Entry) error {
	row, err := l.row(e)
	if err != nil {
		return err
	}
	if err := l.store.Append(ctx, row); err != nil {
		return err
	}

	if l.indexer != nil {
		if err := l.indexer.IndexEvent(ctx, document(row, e)); err != nil {
			log.Warn().Err(err).Str("event_type", e.EventType).Msg("failed to index event log entry")
		}
	}
	return nil
}

// Record appends an entry and swallows any failure
func (l *Log) Record(ctx context.Context, e Entry) {
	if err := l.Append(ctx, e); err != nil {
		l.metrics.IncrementCounter(metrics.EventLogFailures)
		log.Warn().
			Err(err).
			Str("event_type", e.EventType).
			Str("entity_type", e.EntityType).
			Str("entity_id", e.EntityID).
			Msg("failed to record event log entry")
	}
}

func (l *Log) row(e Entry) (*models.EventLog, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event payload")
	}
	row := &models.EventLog{
		ID:         uuid.New(),
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Status:     StatusProcessed,
		Payload:    datatypes.JSON(payload),
		CreatedAt:  l.now(),
	}
	row.ActorID = ParseUUID(e.ActorID)
	row.CorrelationID = ParseUUID(e.CorrelationID)
	return row, nil
}

func document(row *models.EventLog, e Entry) search.EventDocument {
	return search.EventDocument{
		ID:            row.ID.String(),
		EventType:     row.EventType,
		EntityType:    row.EntityType,
		EntityID:      row.EntityID,
		ActorID:       e.ActorID,
		CorrelationID: e.CorrelationID,
		Payload:       e.Payload,
		CreatedAt:     row.CreatedAt,
	}
}

// ParseUUID returns nil unless s is a valid UUID
func ParseUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
