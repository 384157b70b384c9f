package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a transition
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ParseStatus normalises a status string
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusError:
		return StatusError, true
	}
	return "", false
}

// Action is a manual operation on a transition
type Action string

const (
	ActionComplete     Action = "complete"
	ActionMarkError    Action = "mark_error"
	ActionReopen       Action = "reopen"
	ActionResolveError Action = "resolve_error"
	ActionReroute      Action = "reroute"
	ActionUpdate       Action = "update"
	ActionExecute      Action = "execute"
)

// ParseAction accepts snake_case and camelCase spellings. An empty string
// yields an empty action, meaning "infer from status".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "complete":
		return ActionComplete, nil
	case "mark_error", "markerror":
		return ActionMarkError, nil
	case "reopen":
		return ActionReopen, nil
	case "resolve_error", "resolveerror":
		return ActionResolveError, nil
	case "reroute":
		return ActionReroute, nil
	}
	return "", invalid("action", "unknown action %q", s)
}

// EventType is the event log type emitted for a successful action
func (a Action) EventType() string {
	switch a {
	case ActionComplete:
		return "workflow_transition.completed"
	case ActionMarkError:
		return "workflow_transition.marked_error"
	case ActionReopen:
		return "workflow_transition.reopened"
	case ActionResolveError:
		return "workflow_transition.error_resolved"
	case ActionReroute:
		return "workflow_transition.rerouted"
	case ActionExecute:
		return "workflow_transition.executed_to_kanban"
	}
	return "workflow_transition.updated"
}

// target is the status an action always leads to
func (a Action) target() Status {
	switch a {
	case ActionComplete, ActionExecute:
		return StatusCompleted
	case ActionMarkError:
		return StatusError
	}
	return StatusPending
}

// DefaultErrorMessage is used when an error is marked without message or note
const DefaultErrorMessage = "Erro informado pelo admin"

// Transition is one handoff of a resource between two areas
type Transition struct {
	ID            uuid.UUID
	FromArea      string
	ToArea        string
	ResourceType  string
	ResourceID    string
	TriggerEvent  string
	Status        Status
	ErrorMessage  *string
	CompletedAt   *time.Time
	CorrelationID *uuid.UUID
	Audit         AuditPayload
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTransition builds a transition in the given initial status.
// A completed transition gets its completion timestamp immediately.
func NewTransition(fromArea, toArea, resourceType, resourceID, trigger string, status Status, audit AuditPayload, at time.Time) (*Transition, error) {
	if strings.TrimSpace(fromArea) == "" || strings.TrimSpace(toArea) == "" {
		return nil, invalid("area", "from_area and to_area are required")
	}
	if status == StatusError {
		return nil, invalid("status", "a transition cannot be created in error")
	}
	if status == "" {
		status = StatusPending
	}
	t := &Transition{
		ID:           uuid.New(),
		FromArea:     strings.TrimSpace(fromArea),
		ToArea:       strings.TrimSpace(toArea),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		TriggerEvent: trigger,
		Status:       status,
		Audit:        audit.clone(),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if id, err := uuid.Parse(audit.CorrelationID); err == nil {
		t.CorrelationID = &id
	}
	if status == StatusCompleted {
		ts := at
		t.CompletedAt = &ts
	}
	t.Audit.append(Record{Kind: RecordCreated, At: at})
	return t, nil
}

// Change is a requested manual mutation
type Change struct {
	Status       Status
	Action       Action
	ErrorMessage string
	Note         string
	ToArea       string
	ActorID      string
	At           time.Time
}

// Outcome describes an applied change
type Outcome struct {
	Action     Action
	PrevStatus Status
	NextStatus Status
	PrevToArea string
	NextToArea string
	Note       string
	At         time.Time
}

// InferAction resolves the action for a change that did not name one
func InferAction(current, requested Status) Action {
	switch {
	case requested == StatusPending && current == StatusCompleted:
		return ActionReopen
	case requested == StatusPending && current == StatusError:
		return ActionResolveError
	case requested == StatusCompleted:
		return ActionComplete
	case requested == StatusError:
		return ActionMarkError
	}
	return ActionUpdate
}

// Apply validates the change against the current status and applies it.
// On error the transition is unchanged.
func (t *Transition) Apply(c Change) (Outcome, error) {
	if c.Status == "" {
		return Outcome{}, invalid("status", "status is required")
	}
	action := c.Action
	if action == "" {
		action = InferAction(t.Status, c.Status)
	} else if action.target() != c.Status {
		return Outcome{}, invalid("action", "action %s leads to %s, not %s", action, action.target(), c.Status)
	}
	if err := checkPrecondition(action, t.Status); err != nil {
		return Outcome{}, err
	}

	note := strings.TrimSpace(c.Note)
	toArea := strings.TrimSpace(c.ToArea)
	if action == ActionReroute && toArea == "" {
		return Outcome{}, invalid("to_area", "to_area is required to reroute")
	}

	out := Outcome{
		Action:     action,
		PrevStatus: t.Status,
		PrevToArea: t.ToArea,
		NextToArea: t.ToArea,
		Note:       note,
		At:         c.At,
	}

	audit := t.Audit.clone()
	record := Record{At: c.At, By: c.ActorID, Note: note}
	var errMsg *string
	var completedAt *time.Time

	switch action {
	case ActionComplete:
		ts := c.At
		completedAt = &ts
		record.Kind = RecordCompleted
	case ActionMarkError:
		msg := strings.TrimSpace(c.ErrorMessage)
		if msg == "" {
			msg = note
		}
		if msg == "" {
			msg = DefaultErrorMessage
		}
		errMsg = &msg
		record.Kind = RecordMarkedError
	case ActionReopen:
		audit.archiveExecution(c.At, c.ActorID)
		record.Kind = RecordReopened
	case ActionResolveError:
		audit.archiveExecution(c.At, c.ActorID)
		record.Kind = RecordErrorResolved
	case ActionReroute:
		entry := RerouteEntry{
			FromArea:   t.ToArea,
			ToArea:     toArea,
			Note:       note,
			ReroutedAt: c.At,
			ReroutedBy: c.ActorID,
		}
		audit.RerouteHistory = append(audit.RerouteHistory, entry)
		record.Kind = RecordRerouted
		record.Reroute = &entry
		out.NextToArea = toArea
	default:
		record.Kind = RecordUpdated
	}
	audit.append(record)

	t.Status = action.target()
	t.ErrorMessage = errMsg
	t.CompletedAt = completedAt
	t.ToArea = out.NextToArea
	t.Audit = audit
	t.UpdatedAt = c.At

	out.NextStatus = t.Status
	return out, nil
}

// Execute records a production-board execution and completes the transition
func (t *Transition) Execute(exec ExecutionRecord) (Outcome, error) {
	if t.Status != StatusPending {
		return Outcome{}, invalid("status", "only pending transitions can be executed, current status is %s", t.Status)
	}
	out := Outcome{
		Action:     ActionExecute,
		PrevStatus: t.Status,
		PrevToArea: t.ToArea,
		NextToArea: t.ToArea,
		At:         exec.ExecutedAt,
	}
	audit := t.Audit.clone()
	e := exec
	audit.Execution = &e
	audit.append(Record{Kind: RecordExecuted, At: exec.ExecutedAt, By: exec.ExecutedBy, Execution: &e})

	ts := exec.ExecutedAt
	t.Status = StatusCompleted
	t.CompletedAt = &ts
	t.ErrorMessage = nil
	t.Audit = audit
	t.UpdatedAt = exec.ExecutedAt

	out.NextStatus = t.Status
	return out, nil
}

// Executed reports whether the transition carries a live execution
func (t *Transition) Executed() bool {
	return t.Audit.Execution != nil
}

func checkPrecondition(action Action, current Status) error {
	switch action {
	case ActionComplete:
		if current != StatusPending {
			return invalid("action", "complete requires status pending, current status is %s", current)
		}
	case ActionMarkError:
		if current == StatusError {
			return invalid("action", "transition is already in error")
		}
	case ActionReopen:
		if current != StatusCompleted {
			return invalid("action", "reopen requires status completed, current status is %s", current)
		}
	case ActionResolveError:
		if current != StatusError {
			return invalid("action", "resolve_error requires status error, current status is %s", current)
		}
	case ActionReroute:
		if current != StatusPending {
			return invalid("action", "reroute requires status pending, current status is %s", current)
		}
	case ActionUpdate:
		if current != StatusPending {
			return invalid("status", "transition in status %s cannot be updated without an action", current)
		}
	default:
		return invalid("action", "unsupported action %s", action)
	}
	return nil
}
