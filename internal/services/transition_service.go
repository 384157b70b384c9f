package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/vallemarketing/valle360-teste-sub009/internal/domain"
	"github.com/vallemarketing/valle360-teste-sub009/internal/eventlog"
	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/tracing"
)

// Listing bounds
const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

// EntityTransition is the event log entity type of transitions
const EntityTransition = "workflow_transition"

// TransitionStore persists transitions
type TransitionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.WorkflowTransition, error)
	Create(ctx context.Context, t *models.WorkflowTransition) error
	Save(ctx context.Context, t *models.WorkflowTransition) error
	List(ctx context.Context, f repositories.TransitionFilter) ([]models.WorkflowTransition, error)
}

// TaskStore creates production board cards
type TaskStore interface {
	Create(ctx context.Context, t *models.ProductionTask) error
	FindByTransition(ctx context.Context, transitionID uuid.UUID) (*models.ProductionTask, error)
}

// UpdateCommand is a manual change requested by an operator
type UpdateCommand struct {
	ID           string
	Status       string
	Action       string
	ErrorMessage string
	Note         string
	ToArea       string
	ActorID      string
}

// CreateCommand creates a transition on behalf of an upstream process
type CreateCommand struct {
	FromArea     string
	ToArea       string
	ResourceType string
	ResourceID   string
	TriggerEvent string
	Status       domain.Status
	Audit        domain.AuditPayload
	ActorID      string
}

// ListQuery filters a listing
type ListQuery struct {
	Status       string
	FromArea     string
	ToArea       string
	TriggerEvent string
	Limit        int
}

// ExecuteResult describes a production-board execution
type ExecuteResult struct {
	Transition      *models.WorkflowTransition `json:"transition"`
	TaskID          string                     `json:"task_id"`
	BoardID         string                     `json:"board_id"`
	ClientID        string                     `json:"client_id,omitempty"`
	AlreadyExecuted bool                       `json:"already_executed"`
}

// ClientLookup finds the client of the billing records a transition refers to
type ClientLookup interface {
	ClientIDForInvoice(ctx context.Context, invoiceID uuid.UUID) (*uuid.UUID, error)
	ClientIDForContract(ctx context.Context, contractID uuid.UUID) (*uuid.UUID, error)
}

// TransitionService owns every mutation of workflow transitions
type TransitionService struct {
	store   TransitionStore
	tasks   TaskStore
	clients ClientLookup
	events  eventlog.Recorder
	metrics *metrics.Metrics
	tracer  tracing.Tracer
	now     func() time.Time
}

// NewTransitionService creates a new transition service. clients may be nil.
func NewTransitionService(store TransitionStore, tasks TaskStore, clients ClientLookup, events eventlog.Recorder, m *metrics.Metrics, tracer tracing.Tracer) *TransitionService {
	if tracer == nil {
		tracer = tracing.NewNoopTracer()
	}
	return &TransitionService{
		store:   store,
		tasks:   tasks,
		clients: clients,
		events:  events,
		metrics: m,
		tracer:  tracer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ClampLimit applies the default and hard cap to a page size
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// List returns transitions newest first
func (s *TransitionService) List(ctx context.Context, q ListQuery) ([]models.WorkflowTransition, error) {
	if q.Status != "" {
		st, ok := domain.ParseStatus(q.Status)
		if !ok {
			return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", q.Status)}
		}
		q.Status = string(st)
	}
	return s.store.List(ctx, repositories.TransitionFilter{
		Status:       q.Status,
		FromArea:     strings.TrimSpace(q.FromArea),
		ToArea:       strings.TrimSpace(q.ToArea),
		TriggerEvent: strings.TrimSpace(q.TriggerEvent),
		Limit:        ClampLimit(q.Limit),
	})
}

// Update validates and applies a manual change, then records exactly one event
func (s *TransitionService) Update(ctx context.Context, cmd UpdateCommand) (*models.WorkflowTransition, error) {
	txn := s.tracer.StartTransaction("workflow-transition-update")
	defer s.tracer.EndTransaction(txn)

	id, status, action, err := parseUpdate(cmd)
	if err != nil {
		s.metrics.IncrementCounter(metrics.TransitionsRejected)
		return nil, err
	}

	row, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	tr := row.ToDomain()
	out, err := tr.Apply(domain.Change{
		Status:       status,
		Action:       action,
		ErrorMessage: cmd.ErrorMessage,
		Note:         cmd.Note,
		ToArea:       cmd.ToArea,
		ActorID:      cmd.ActorID,
		At:           s.now(),
	})
	if err != nil {
		s.metrics.IncrementCounter(metrics.TransitionsRejected)
		log.Info().Err(err).Str("transition_id", id.String()).Msg("transition change rejected")
		return nil, err
	}

	span := s.tracer.StartSegment("save-transition", txn)
	updated := models.NewWorkflowTransition(tr)
	err = s.store.Save(ctx, updated)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.IncrementLabeled(metrics.TransitionsUpdated, string(out.Action))
	s.events.Record(ctx, transitionEntry(tr, out, cmd.ActorID))

	log.Info().
		Str("transition_id", id.String()).
		Str("action", string(out.Action)).
		Str("prev_status", string(out.PrevStatus)).
		Str("next_status", string(out.NextStatus)).
		Msg("transition updated")

	return updated, nil
}

// Create inserts a new transition and records its creation
func (s *TransitionService) Create(ctx context.Context, cmd CreateCommand) (*models.WorkflowTransition, error) {
	tr, err := domain.NewTransition(cmd.FromArea, cmd.ToArea, cmd.ResourceType, cmd.ResourceID, cmd.TriggerEvent, cmd.Status, cmd.Audit, s.now())
	if err != nil {
		return nil, err
	}

	row := models.NewWorkflowTransition(tr)
	if err := s.store.Create(ctx, row); err != nil {
		return nil, err
	}

	s.events.Record(ctx, eventlog.Entry{
		EventType:     "workflow_transition.created",
		EntityType:    EntityTransition,
		EntityID:      tr.ID.String(),
		ActorID:       cmd.ActorID,
		CorrelationID: tr.Audit.CorrelationID,
		Payload: map[string]interface{}{
			"transition_id": tr.ID.String(),
			"from_area":     tr.FromArea,
			"to_area":       tr.ToArea,
			"resource_type": tr.ResourceType,
			"resource_id":   tr.ResourceID,
			"trigger_event": tr.TriggerEvent,
			"status":        string(tr.Status),
		},
	})
	return row, nil
}

// Execute turns a pending transition into a production task and completes it.
// A transition that already has a task is returned as is.
func (s *TransitionService) Execute(ctx context.Context, rawID, actorID string) (*ExecuteResult, error) {
	txn := s.tracer.StartTransaction("workflow-transition-execute")
	defer s.tracer.EndTransaction(txn)

	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return nil, &domain.ValidationError{Field: "id", Message: "id is required"}
	}

	row, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tr := row.ToDomain()

	if tr.Status == domain.StatusCompleted && tr.Executed() {
		exec := tr.Audit.Execution
		return &ExecuteResult{Transition: row, TaskID: exec.KanbanTaskID, BoardID: exec.KanbanBoardID, ClientID: tr.Audit.ClientID, AlreadyExecuted: true}, nil
	}
	clientID := s.resolveClient(ctx, tr)

	existing, err := s.tasks.FindByTransition(ctx, id)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if tr.Status != domain.StatusPending {
			return &ExecuteResult{Transition: row, TaskID: existing.ID.String(), BoardID: existing.Area, ClientID: clientID, AlreadyExecuted: true}, nil
		}
		return s.completeExecution(ctx, tr, existing, clientID, actorID, true)
	}

	if tr.Status != domain.StatusPending {
		return nil, &domain.ValidationError{Field: "status", Message: "only pending transitions can be executed"}
	}

	span := s.tracer.StartSegment("create-production-task", txn)
	task := productionTaskFor(tr, clientID, actorID)
	err = s.tasks.Create(ctx, task)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	return s.completeExecution(ctx, tr, task, clientID, actorID, false)
}

// resolveClient returns the client named in the audit payload, else the
// client of the referenced invoice, else that of the referenced contract.
// Lookup failures only leave the task without a client.
func (s *TransitionService) resolveClient(ctx context.Context, tr *domain.Transition) string {
	if tr.Audit.ClientID != "" || s.clients == nil {
		return tr.Audit.ClientID
	}
	lookups := []struct {
		ref  string
		find func(context.Context, uuid.UUID) (*uuid.UUID, error)
	}{
		{tr.Audit.InvoiceID, s.clients.ClientIDForInvoice},
		{tr.Audit.ContractID, s.clients.ClientIDForContract},
	}
	for _, l := range lookups {
		ref := eventlog.ParseUUID(l.ref)
		if ref == nil {
			continue
		}
		clientID, err := l.find(ctx, *ref)
		if err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				log.Warn().Err(err).Str("transition_id", tr.ID.String()).Msg("failed to resolve transition client")
			}
			continue
		}
		if clientID != nil {
			return clientID.String()
		}
	}
	return ""
}

func (s *TransitionService) completeExecution(ctx context.Context, tr *domain.Transition, task *models.ProductionTask, clientID, actorID string, already bool) (*ExecuteResult, error) {
	out, err := tr.Execute(domain.ExecutionRecord{
		KanbanTaskID:  task.ID.String(),
		KanbanBoardID: task.Area,
		ExecutedAt:    s.now(),
		ExecutedBy:    actorID,
	})
	if err != nil {
		return nil, err
	}

	row := models.NewWorkflowTransition(tr)
	if err := s.store.Save(ctx, row); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter(metrics.TransitionsExecuted)
	entry := transitionEntry(tr, out, actorID)
	entry.Payload["kanban_task_id"] = task.ID.String()
	entry.Payload["kanban_board_id"] = task.Area
	entry.Payload["trigger_event"] = tr.TriggerEvent
	s.events.Record(ctx, entry)

	log.Info().
		Str("transition_id", tr.ID.String()).
		Str("task_id", task.ID.String()).
		Bool("already_executed", already).
		Msg("transition executed to production board")

	return &ExecuteResult{
		Transition:      row,
		TaskID:          task.ID.String(),
		BoardID:         task.Area,
		ClientID:        clientID,
		AlreadyExecuted: already,
	}, nil
}

func parseUpdate(cmd UpdateCommand) (uuid.UUID, domain.Status, domain.Action, error) {
	if strings.TrimSpace(cmd.ID) == "" || strings.TrimSpace(cmd.Status) == "" {
		return uuid.Nil, "", "", &domain.ValidationError{Message: "id and status are required"}
	}
	id, err := uuid.Parse(strings.TrimSpace(cmd.ID))
	if err != nil {
		return uuid.Nil, "", "", &domain.ValidationError{Field: "id", Message: "id must be a UUID"}
	}
	status, ok := domain.ParseStatus(cmd.Status)
	if !ok {
		return uuid.Nil, "", "", &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", cmd.Status)}
	}
	action, err := domain.ParseAction(cmd.Action)
	if err != nil {
		return uuid.Nil, "", "", err
	}
	return id, status, action, nil
}

func transitionEntry(tr *domain.Transition, out domain.Outcome, actorID string) eventlog.Entry {
	correlationID := tr.Audit.CorrelationID
	if correlationID == "" && tr.CorrelationID != nil {
		correlationID = tr.CorrelationID.String()
	}
	return eventlog.Entry{
		EventType:     out.Action.EventType(),
		EntityType:    EntityTransition,
		EntityID:      tr.ID.String(),
		ActorID:       actorID,
		CorrelationID: correlationID,
		Payload: map[string]interface{}{
			"transition_id":  tr.ID.String(),
			"action":         string(out.Action),
			"prev_status":    string(out.PrevStatus),
			"next_status":    string(out.NextStatus),
			"prev_to_area":   out.PrevToArea,
			"next_to_area":   out.NextToArea,
			"note":           nullable(out.Note),
			"at":             out.At.Format(time.RFC3339Nano),
			"correlation_id": nullable(correlationID),
			"client_id":      nullable(tr.Audit.ClientID),
			"proposal_id":    nullable(tr.Audit.ProposalID),
			"contract_id":    nullable(tr.Audit.ContractID),
			"invoice_id":     nullable(tr.Audit.InvoiceID),
		},
	}
}

func productionTaskFor(tr *domain.Transition, clientID, actorID string) *models.ProductionTask {
	trigger := tr.TriggerEvent
	if trigger == "" {
		trigger = "handoff"
	}
	task := &models.ProductionTask{
		ID:           uuid.New(),
		Title:        fmt.Sprintf("[%s→%s] %s", strings.ToUpper(tr.FromArea), strings.ToUpper(tr.ToArea), trigger),
		Description:  fmt.Sprintf("Handoff of %s %s from %s to %s", tr.ResourceType, tr.ResourceID, tr.FromArea, tr.ToArea),
		Area:         tr.ToArea,
		Column:       "backlog",
		Priority:     "medium",
		ClientID:     eventlog.ParseUUID(clientID),
		TransitionID: &tr.ID,
		CreatedBy:    eventlog.ParseUUID(actorID),
		Metadata: datatypes.JSONMap{
			"workflow_transition_id": tr.ID.String(),
			"from_area":              tr.FromArea,
			"to_area":                tr.ToArea,
			"trigger_event":          tr.TriggerEvent,
		},
	}
	return task
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
