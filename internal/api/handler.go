package api

import (
	"context"

	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/saga"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
)

// TransitionService is the transition API's view of the service layer
type TransitionService interface {
	List(ctx context.Context, q services.ListQuery) ([]models.WorkflowTransition, error)
	Update(ctx context.Context, cmd services.UpdateCommand) (*models.WorkflowTransition, error)
	Execute(ctx context.Context, id, actorID string) (*services.ExecuteResult, error)
}

// SignatureHandler runs the side effects of a canonical signature event
type SignatureHandler interface {
	Handle(ctx context.Context, ev signature.CanonicalEvent) (*saga.Result, error)
}

// WebhookLogStore stores received webhooks
type WebhookLogStore interface {
	Create(ctx context.Context, l *models.WebhookLog) error
}

// EventLogReader lists event log rows
type EventLogReader interface {
	List(ctx context.Context, f repositories.EventLogFilter) ([]models.EventLog, error)
}

// EventSearcher runs full-text searches over the event log projection
type EventSearcher interface {
	SearchEvents(ctx context.Context, text string, size int) ([]search.EventDocument, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Handler serves every HTTP endpoint
type Handler struct {
	Transitions  TransitionService
	Signatures   SignatureHandler
	Registry     *signature.Registry
	Verifier     *signature.Verifier
	WebhookLogs  WebhookLogStore
	Events       EventLogReader
	Search       EventSearcher
	Metrics      *metrics.Metrics
	HealthChecks map[string]HealthCheck
}
