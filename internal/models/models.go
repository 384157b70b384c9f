package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vallemarketing/valle360-teste-sub009/internal/domain"
)

// WorkflowTransition is the persisted form of domain.Transition
type WorkflowTransition struct {
	ID            uuid.UUID                              `gorm:"type:uuid;primaryKey" json:"id"`
	FromArea      string                                 `gorm:"column:from_area;not null;index" json:"from_area"`
	ToArea        string                                 `gorm:"column:to_area;not null;index" json:"to_area"`
	ResourceType  string                                 `gorm:"column:resource_type;index:idx_workflow_transition_resource,priority:1" json:"resource_type"`
	ResourceID    string                                 `gorm:"column:resource_id;index:idx_workflow_transition_resource,priority:2" json:"resource_id"`
	TriggerEvent  string                                 `gorm:"column:trigger_event;index" json:"trigger_event"`
	Status        string                                 `gorm:"not null;index" json:"status"`
	ErrorMessage  *string                                `json:"error_message"`
	CompletedAt   *time.Time                             `json:"completed_at"`
	CorrelationID *uuid.UUID                             `gorm:"type:uuid;index" json:"correlation_id"`
	AuditPayload  datatypes.JSONType[domain.AuditPayload] `gorm:"column:audit_payload;type:jsonb" json:"audit_payload"`
	CreatedAt     time.Time                              `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time                              `gorm:"autoUpdateTime" json:"updated_at"`
}

// ToDomain converts the row into a domain transition
func (w *WorkflowTransition) ToDomain() *domain.Transition {
	return &domain.Transition{
		ID:            w.ID,
		FromArea:      w.FromArea,
		ToArea:        w.ToArea,
		ResourceType:  w.ResourceType,
		ResourceID:    w.ResourceID,
		TriggerEvent:  w.TriggerEvent,
		Status:        domain.Status(w.Status),
		ErrorMessage:  w.ErrorMessage,
		CompletedAt:   w.CompletedAt,
		CorrelationID: w.CorrelationID,
		Audit:         w.AuditPayload.Data(),
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

// NewWorkflowTransition converts a domain transition into a row
func NewWorkflowTransition(t *domain.Transition) *WorkflowTransition {
	return &WorkflowTransition{
		ID:            t.ID,
		FromArea:      t.FromArea,
		ToArea:        t.ToArea,
		ResourceType:  t.ResourceType,
		ResourceID:    t.ResourceID,
		TriggerEvent:  t.TriggerEvent,
		Status:        string(t.Status),
		ErrorMessage:  t.ErrorMessage,
		CompletedAt:   t.CompletedAt,
		CorrelationID: t.CorrelationID,
		AuditPayload:  datatypes.NewJSONType(t.Audit),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// EventLog is an immutable audit record
type EventLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventType     string         `gorm:"column:event_type;not null;index" json:"event_type"`
	EntityType    string         `gorm:"column:entity_type;not null;index:idx_event_log_entity,priority:1" json:"entity_type"`
	EntityID      string         `gorm:"column:entity_id;not null;index:idx_event_log_entity,priority:2" json:"entity_id"`
	ActorID       *uuid.UUID     `gorm:"column:actor_user_id;type:uuid" json:"actor_user_id"`
	CorrelationID *uuid.UUID     `gorm:"type:uuid;index" json:"correlation_id"`
	Status        string         `gorm:"not null;default:'processed'" json:"status"`
	Payload       datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName keeps the singular table name used by the event log readers
func (EventLog) TableName() string { return "event_log" }

// ContractService is one contracted service line
type ContractService struct {
	Name         string   `json:"name"`
	Deliverables []string `json:"deliverables,omitempty"`
	MonthlyValue float64  `json:"monthly_value,omitempty"`
}

// Contract is the commercial agreement activated by a signature
type Contract struct {
	ID                 uuid.UUID                             `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID           *uuid.UUID                            `gorm:"type:uuid;index" json:"client_id"`
	ProposalID         *uuid.UUID                            `gorm:"type:uuid" json:"proposal_id"`
	ClientCompany      string                                `json:"client_company"`
	ClientEmail        string                                `json:"client_email"`
	Status             string                                `gorm:"not null;index" json:"status"`
	TotalValue         float64                               `gorm:"not null" json:"total_value"`
	DurationMonths     int                                   `gorm:"not null" json:"duration_months"`
	PaymentTerms       string                                `json:"payment_terms"`
	StartDate          *time.Time                            `json:"start_date"`
	EndDate            *time.Time                            `json:"end_date"`
	Services           datatypes.JSONSlice[ContractService]  `gorm:"type:jsonb" json:"services"`
	SignedAt           *time.Time                            `json:"signed_at"`
	SignedBy           *string                               `json:"signed_by"`
	SignatureIP        *string                               `json:"signature_ip"`
	SignedDocumentURL  *string                               `json:"signed_document_url"`
	ActivatedAt        *time.Time                            `json:"activated_at"`
	CancelledAt        *time.Time                            `json:"cancelled_at"`
	CancellationReason *string                               `json:"cancellation_reason"`
	CreatedAt          time.Time                             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`
}

// Contract statuses
const (
	ContractStatusActive    = "active"
	ContractStatusCancelled = "cancelled"
)

// Invoice is a billable installment
type Invoice struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"contract_id"`
	ClientID    *uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Amount      float64    `gorm:"not null" json:"amount"`
	DueDate     time.Time  `gorm:"not null" json:"due_date"`
	Status      string     `gorm:"not null;default:'pending'" json:"status"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecurringInvoiceSchedule drives monthly invoice generation
type RecurringInvoiceSchedule struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID uuid.UUID  `gorm:"type:uuid;not null;index" json:"contract_id"`
	ClientID   *uuid.UUID `gorm:"type:uuid" json:"client_id"`
	Amount     float64    `gorm:"not null" json:"amount"`
	Frequency  string     `gorm:"not null" json:"frequency"`
	DayOfMonth int        `gorm:"not null" json:"day_of_month"`
	NextRun    time.Time  `json:"next_run"`
	EndDate    *time.Time `json:"end_date"`
	IsActive   bool       `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// ProductionTask is a card on an area's production board
type ProductionTask struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string            `gorm:"not null" json:"title"`
	Description  string            `json:"description"`
	Area         string            `gorm:"not null;index" json:"area"`
	Column       string            `gorm:"column:column_key;not null" json:"column"`
	Priority     string            `gorm:"not null" json:"priority"`
	ClientID     *uuid.UUID        `gorm:"type:uuid;index" json:"client_id"`
	TransitionID *uuid.UUID        `gorm:"type:uuid;index" json:"workflow_transition_id"`
	DueDate      *time.Time        `json:"due_date"`
	CreatedBy    *uuid.UUID        `gorm:"type:uuid" json:"created_by"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// UserProfile carries the role used for notification routing
type UserProfile struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	FullName  string    `json:"full_name"`
	Role      string    `gorm:"column:user_type;not null;index" json:"user_type"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Notification is an in-app message for one user
type Notification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Type      string    `gorm:"not null;index" json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Saga run statuses
const (
	SagaStatusRunning   = "running"
	SagaStatusCompleted = "completed"
	SagaStatusPartial   = "partial"
	SagaStatusFailed    = "failed"
)

// SagaRun is the durable ledger entry of one saga per contract and event type
type SagaRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ContractID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_saga_run_contract_event,priority:1" json:"contract_id"`
	EventType     string         `gorm:"not null;uniqueIndex:idx_saga_run_contract_event,priority:2" json:"event_type"`
	Provider      string         `json:"provider"`
	CorrelationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"correlation_id"`
	Status        string         `gorm:"not null;index" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt *time.Time     `gorm:"index" json:"next_attempt_at"`
	LastError     *string        `json:"last_error"`
	Payload       datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Steps         []SagaStep     `gorm:"foreignKey:RunID" json:"steps,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Saga step statuses
const (
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// SagaStep records the outcome of one named step of a run
type SagaStep struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_saga_step_run_name,priority:1" json:"run_id"`
	Name      string         `gorm:"not null;uniqueIndex:idx_saga_step_run_name,priority:2" json:"name"`
	Status    string         `gorm:"not null" json:"status"`
	Attempts  int            `gorm:"not null;default:0" json:"attempts"`
	Error     *string        `json:"error"`
	Output    datatypes.JSON `gorm:"type:jsonb" json:"output"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// WebhookLog stores every received signature webhook
type WebhookLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider   string         `gorm:"index" json:"provider"`
	EventType  string         `json:"event_type"`
	ContractID string         `gorm:"index" json:"contract_id"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Processed  bool           `gorm:"not null" json:"processed"`
	Error      *string        `json:"error"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// SetupModels runs migrations for every model
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&WorkflowTransition{},
		&EventLog{},
		&Contract{},
		&Invoice{},
		&RecurringInvoiceSchedule{},
		&ProductionTask{},
		&UserProfile{},
		&Notification{},
		&SagaRun{},
		&SagaStep{},
		&WebhookLog{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to migrate models")
	}
	return nil
}
