package domain

import "time"

// RecordKind tags an entry of the transition history
type RecordKind string

const (
	RecordCreated       RecordKind = "created"
	RecordCompleted     RecordKind = "completed"
	RecordMarkedError   RecordKind = "marked_error"
	RecordReopened      RecordKind = "reopened"
	RecordErrorResolved RecordKind = "error_resolved"
	RecordRerouted      RecordKind = "rerouted"
	RecordExecuted      RecordKind = "executed"
	RecordUpdated       RecordKind = "updated"
)

// ExecutionRecord marks a transition as materialised on the production board
type ExecutionRecord struct {
	KanbanTaskID  string    `json:"kanban_task_id,omitempty"`
	KanbanBoardID string    `json:"kanban_board_id,omitempty"`
	ExecutedAt    time.Time `json:"executed_at"`
	ExecutedBy    string    `json:"executed_by,omitempty"`
}

// ArchivedExecution is an ExecutionRecord reset by a return to pending
type ArchivedExecution struct {
	ExecutionRecord
	ResetAt time.Time `json:"reset_at"`
	ResetBy string    `json:"reset_by,omitempty"`
}

// RerouteEntry records one change of the destination area
type RerouteEntry struct {
	FromArea   string    `json:"from_area"`
	ToArea     string    `json:"to_area"`
	Note       string    `json:"note,omitempty"`
	ReroutedAt time.Time `json:"rerouted_at"`
	ReroutedBy string    `json:"rerouted_by,omitempty"`
}

// Record is one entry of the ordered history. Kind selects which optional
// body is set: Reroute for RecordRerouted, Execution for RecordExecuted.
type Record struct {
	Kind      RecordKind       `json:"kind"`
	At        time.Time        `json:"at"`
	By        string           `json:"by,omitempty"`
	Note      string           `json:"note,omitempty"`
	Reroute   *RerouteEntry    `json:"reroute,omitempty"`
	Execution *ExecutionRecord `json:"execution,omitempty"`
}

// AuditPayload accumulates the facts of a transition. Entries are only
// appended; the current execution is the one top-level value that moves
// (into PreviousExecutions) instead of being overwritten.
type AuditPayload struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	ProposalID    string `json:"proposal_id,omitempty"`
	ContractID    string `json:"contract_id,omitempty"`
	InvoiceID     string `json:"invoice_id,omitempty"`

	Execution          *ExecutionRecord    `json:"execution,omitempty"`
	PreviousExecutions []ArchivedExecution `json:"previous_executions,omitempty"`
	RerouteHistory     []RerouteEntry      `json:"reroute_history,omitempty"`
	History            []Record            `json:"history,omitempty"`

	// Facts carries upstream data the engine does not interpret
	Facts map[string]interface{} `json:"facts,omitempty"`
}

// Latest returns the most recent history entry of the given kind
func (p AuditPayload) Latest(kind RecordKind) *Record {
	for i := len(p.History) - 1; i >= 0; i-- {
		if p.History[i].Kind == kind {
			r := p.History[i]
			return &r
		}
	}
	return nil
}

func (p *AuditPayload) append(r Record) {
	p.History = append(p.History, r)
}

// archiveExecution moves the current execution into PreviousExecutions
func (p *AuditPayload) archiveExecution(at time.Time, by string) {
	if p.Execution == nil {
		return
	}
	p.PreviousExecutions = append(p.PreviousExecutions, ArchivedExecution{
		ExecutionRecord: *p.Execution,
		ResetAt:         at,
		ResetBy:         by,
	})
	p.Execution = nil
}

// clone copies the slices so a candidate payload never aliases the original
func (p AuditPayload) clone() AuditPayload {
	c := p
	c.PreviousExecutions = append([]ArchivedExecution(nil), p.PreviousExecutions...)
	c.RerouteHistory = append([]RerouteEntry(nil), p.RerouteHistory...)
	c.History = append([]Record(nil), p.History...)
	if p.Execution != nil {
		e := *p.Execution
		c.Execution = &e
	}
	if p.Facts != nil {
		c.Facts = make(map[string]interface{}, len(p.Facts))
		for k, v := range p.Facts {
			c.Facts[k] = v
		}
	}
	return c
}
