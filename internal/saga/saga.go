// Package saga runs the side effects of a contract signature as named,
// independently failing steps. Each run is recorded in a durable ledger
// keyed by contract and event type, so redeliveries of the same webhook are
// acknowledged without repeating work and partial runs resume where they
// stopped.
package saga

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/vallemarketing/valle360-teste-sub009/config"
	"github.com/vallemarketing/valle360-teste-sub009/internal/cache"
	"github.com/vallemarketing/valle360-teste-sub009/internal/eventlog"
	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/notify"
	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
	"github.com/vallemarketing/valle360-teste-sub009/internal/tracing"
)

// EventContractSigned keys the ledger runs of the signed saga
const EventContractSigned = "contract.signed"

// EntityContract is the event log entity type of saga rows
const EntityContract = "contract"

const doneMarkerTTL = 30 * 24 * time.Hour

// Result statuses
const (
	ResultCompleted  = "completed"
	ResultPartial    = "partial"
	ResultFailed     = "failed"
	ResultDuplicate  = "duplicate"
	ResultInProgress = "in_progress"
	ResultCancelled  = "cancelled"
	ResultRecorded   = "recorded"
	ResultIgnored    = "ignored"
)

// ContractStore reads and patches contracts
type ContractStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
}

// BillingStore writes invoices and recurring schedules
type BillingStore interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	CountInvoices(ctx context.Context, contractID uuid.UUID) (int64, error)
	CreateSchedule(ctx context.Context, s *models.RecurringInvoiceSchedule) error
}

// TaskStore creates production board cards
type TaskStore interface {
	Create(ctx context.Context, t *models.ProductionTask) error
	CountForContractService(ctx context.Context, contractID uuid.UUID, service string) (int64, error)
}

// Transitions creates handoff transitions and finds existing ones
type Transitions interface {
	Create(ctx context.Context, cmd services.CreateCommand) (*models.WorkflowTransition, error)
}

// TransitionFinder lists the transitions of a resource
type TransitionFinder interface {
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]models.WorkflowTransition, error)
}

// Ledger persists runs and step outcomes
type Ledger interface {
	GetRun(ctx context.Context, contractID uuid.UUID, eventType string) (*models.SagaRun, error)
	CreateRun(ctx context.Context, run *models.SagaRun) error
	UpdateRun(ctx context.Context, run *models.SagaRun) error
	SaveStep(ctx context.Context, step *models.SagaStep) error
	ListDue(ctx context.Context, now, staleBefore time.Time, maxAttempts, limit int) ([]models.SagaRun, error)
}

// Locker serializes deliveries of the same saga across instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
	ReleaseLock(ctx context.Context, lock *cache.Lock) error
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Deps are the collaborators of the orchestrator
type Deps struct {
	Contracts   ContractStore
	Billing     BillingStore
	Tasks       TaskStore
	Transitions Transitions
	Finder      TransitionFinder
	Ledger      Ledger
	Locks       Locker
	Notifier    notify.Notifier
	Events      eventlog.Recorder
	Metrics     *metrics.Metrics
	Tracer      tracing.Tracer
}

// Result summarizes the handling of one canonical event
type Result struct {
	RunID          string   `json:"run_id,omitempty"`
	ContractID     string   `json:"contract_id"`
	Kind           string   `json:"kind"`
	Status         string   `json:"status"`
	Attempt        int      `json:"attempt,omitempty"`
	CompletedSteps []string `json:"completed_steps,omitempty"`
	FailedSteps    []string `json:"failed_steps,omitempty"`
}

// Duplicate reports whether the event was already handled
func (r *Result) Duplicate() bool {
	return r.Status == ResultDuplicate || r.Status == ResultInProgress
}

// runState is stored in the run payload
type runState struct {
	Event   signature.CanonicalEvent `json:"event"`
	Billing *BillingPlan             `json:"billing,omitempty"`
}

// Orchestrator handles canonical signature events
type Orchestrator struct {
	Deps
	cfg     config.SagaConfig
	backoff Backoff
	steps   []step
	now     func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(d Deps, cfg config.SagaConfig) *Orchestrator {
	if d.Tracer == nil {
		d.Tracer = tracing.NewNoopTracer()
	}
	if d.Locks == nil {
		d.Locks = cache.NewDisabledCache()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	o := &Orchestrator{
		Deps:    d,
		cfg:     cfg,
		backoff: Backoff{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff, Multiplier: 2},
		now:     func() time.Time { return time.Now().UTC() },
	}
	o.steps = o.signedSteps()
	return o
}

// Handle routes an event by kind. Unknown kinds are acknowledged.
func (o *Orchestrator) Handle(ctx context.Context, ev signature.CanonicalEvent) (*Result, error) {
	switch ev.Kind() {
	case signature.KindSigned:
		return o.HandleSigned(ctx, ev)
	case signature.KindDeclined:
		return o.HandleDeclined(ctx, ev)
	case signature.KindViewed:
		return o.HandleViewed(ctx, ev)
	}
	log.Info().
		Str("provider", ev.Provider).
		Str("event_type", ev.EventType).
		Str("contract_id", ev.ContractID).
		Msg("ignoring signature event")
	return &Result{ContractID: ev.ContractID, Kind: string(signature.KindOther), Status: ResultIgnored}, nil
}

// HandleSigned starts or resumes the signed saga of a contract. Only a
// failure to activate the contract is returned as an error; later step
// failures leave the run partial for the worker to resume.
func (o *Orchestrator) HandleSigned(ctx context.Context, ev signature.CanonicalEvent) (*Result, error) {
	contractID, err := uuid.Parse(ev.ContractID)
	if err != nil {
		return nil, errors.Wrap(signature.ErrInvalidPayload, "contractId must be a UUID")
	}
	res := &Result{ContractID: ev.ContractID, Kind: string(signature.KindSigned)}

	var done bool
	if err := o.Locks.Get(ctx, cache.SagaDoneKey(contractID, EventContractSigned), &done); err == nil && done {
		o.Metrics.IncrementCounter(metrics.SagaDuplicates)
		res.Status = ResultDuplicate
		return res, nil
	}

	lock, err := o.Locks.AcquireLock(ctx, cache.SagaLockKey(contractID, EventContractSigned), o.cfg.LockTTL)
	if err != nil {
		// without the lock only sequential redeliveries are deduplicated
		log.Warn().Err(err).Str("contract_id", ev.ContractID).Msg("saga lock unavailable, continuing without it")
	} else if lock == nil {
		o.Metrics.IncrementCounter(metrics.SagaDuplicates)
		res.Status = ResultInProgress
		return res, nil
	}
	defer o.release(lock)

	run, err := o.loadOrCreateRun(ctx, contractID, ev)
	if err != nil {
		return nil, err
	}
	res.RunID = run.ID.String()
	if run.Status == models.SagaStatusCompleted {
		o.Metrics.IncrementCounter(metrics.SagaDuplicates)
		o.markDone(ctx, contractID)
		res.Status = ResultDuplicate
		log.Info().Str("contract_id", ev.ContractID).Str("run_id", res.RunID).Msg("signed saga already completed")
		return res, nil
	}

	state := decodeState(run)
	state.Event = ev
	return o.execute(ctx, run, state)
}

// ResumePending resumes partial runs whose backoff elapsed and running runs
// abandoned by a crashed process. It returns how many runs it picked up.
func (o *Orchestrator) ResumePending(ctx context.Context) (int, error) {
	now := o.now()
	runs, err := o.Ledger.ListDue(ctx, now, now.Add(-o.cfg.LockTTL), o.cfg.MaxAttempts, o.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for i := range runs {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}
		run := &runs[i]
		lock, err := o.Locks.AcquireLock(ctx, cache.SagaLockKey(run.ContractID, run.EventType), o.cfg.LockTTL)
		if err != nil || lock == nil {
			continue
		}

		res, err := o.execute(ctx, run, decodeState(run))
		o.release(lock)
		resumed++
		if err != nil {
			log.Warn().Err(err).Str("run_id", run.ID.String()).Msg("saga resume failed")
			continue
		}
		log.Info().
			Str("run_id", run.ID.String()).
			Str("status", res.Status).
			Int("attempt", res.Attempt).
			Msg("saga resumed")
	}
	return resumed, nil
}

func (o *Orchestrator) loadOrCreateRun(ctx context.Context, contractID uuid.UUID, ev signature.CanonicalEvent) (*models.SagaRun, error) {
	run, err := o.Ledger.GetRun(ctx, contractID, EventContractSigned)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	payload, err := json.Marshal(runState{Event: ev})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal saga state")
	}
	run = &models.SagaRun{
		ID:            uuid.New(),
		ContractID:    contractID,
		EventType:     EventContractSigned,
		Provider:      ev.Provider,
		CorrelationID: uuid.New(),
		Status:        models.SagaStatusRunning,
		Payload:       datatypes.JSON(payload),
	}
	if err := o.Ledger.CreateRun(ctx, run); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return o.Ledger.GetRun(ctx, contractID, EventContractSigned)
		}
		return nil, err
	}
	return run, nil
}

// execution is the working state of one attempt
type execution struct {
	run      *models.SagaRun
	state    *runState
	contract *models.Contract
	now      time.Time
}

func (o *Orchestrator) execute(ctx context.Context, run *models.SagaRun, state *runState) (*Result, error) {
	start := time.Now()
	txn := o.Tracer.StartTransaction("contract-signed-saga")
	defer o.Tracer.EndTransaction(txn)
	o.Tracer.AddAttribute(txn, "contract_id", run.ContractID.String())

	ex := &execution{run: run, state: state, now: o.now()}
	run.Attempts++
	run.Status = models.SagaStatusRunning
	if err := o.Ledger.UpdateRun(ctx, run); err != nil {
		return nil, err
	}

	completed := map[string]bool{}
	for _, s := range run.Steps {
		if s.Status == models.StepStatusCompleted {
			completed[s.Name] = true
		}
	}

	res := &Result{
		RunID:      run.ID.String(),
		ContractID: run.ContractID.String(),
		Kind:       string(signature.KindSigned),
		Attempt:    run.Attempts,
	}

	var critical error
	contract, err := o.Contracts.Get(ctx, run.ContractID)
	if err != nil {
		critical = err
		o.saveStep(ctx, ex, StepActivateContract, nil, err)
		res.FailedSteps = append(res.FailedSteps, StepActivateContract)
	} else {
		ex.contract = contract
		if state.Billing == nil {
			plan := PlanBilling(contract, ex.now)
			state.Billing = &plan
		}

		for _, st := range o.steps {
			if completed[st.name] {
				res.CompletedSteps = append(res.CompletedSteps, st.name)
				continue
			}
			span := o.Tracer.StartSegment(st.name, txn)
			out, err := st.run(ctx, ex)
			span.End()
			o.saveStep(ctx, ex, st.name, out, err)
			if err != nil {
				res.FailedSteps = append(res.FailedSteps, st.name)
				if st.critical {
					critical = err
					break
				}
				continue
			}
			res.CompletedSteps = append(res.CompletedSteps, st.name)
		}
	}

	o.finish(ctx, ex, res, critical)
	o.Metrics.ObserveSince(metrics.SagaDuration, start)
	o.Metrics.IncrementLabeled(metrics.SagaRuns, res.Status)

	o.Events.Record(ctx, eventlog.Entry{
		EventType:     EventContractSigned,
		EntityType:    EntityContract,
		EntityID:      run.ContractID.String(),
		CorrelationID: run.CorrelationID.String(),
		Payload: map[string]interface{}{
			"run_id":          run.ID.String(),
			"provider":        state.Event.Provider,
			"signed_by":       state.Event.SignedBy,
			"attempt":         run.Attempts,
			"status":          res.Status,
			"completed_steps": res.CompletedSteps,
			"failed_steps":    res.FailedSteps,
		},
	})

	if critical != nil {
		o.Tracer.RecordError(txn, critical)
		return res, errors.Wrap(critical, "failed to activate contract")
	}
	return res, nil
}

// finish settles the run status and schedules the next attempt
func (o *Orchestrator) finish(ctx context.Context, ex *execution, res *Result, critical error) {
	run := ex.run
	if payload, err := json.Marshal(ex.state); err == nil {
		run.Payload = datatypes.JSON(payload)
	}

	switch {
	case len(res.FailedSteps) == 0:
		run.Status = models.SagaStatusCompleted
		run.NextAttemptAt = nil
		run.LastError = nil
	case run.Attempts >= o.cfg.MaxAttempts || errors.Is(critical, repositories.ErrNotFound):
		run.Status = models.SagaStatusFailed
		run.NextAttemptAt = nil
	default:
		run.Status = models.SagaStatusPartial
		next := ex.now.Add(o.backoff.Next(run.Attempts))
		run.NextAttemptAt = &next
	}
	if len(res.FailedSteps) > 0 {
		msg := "steps failed: " + strings.Join(res.FailedSteps, ", ")
		if critical != nil {
			msg = critical.Error()
		}
		run.LastError = &msg
	}
	res.Status = run.Status

	if err := o.Ledger.UpdateRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to update saga run")
	}
	if run.Status == models.SagaStatusCompleted {
		o.markDone(ctx, run.ContractID)
	}

	evt := log.Info()
	if run.Status != models.SagaStatusCompleted {
		evt = log.Warn()
	}
	evt.Str("run_id", run.ID.String()).
		Str("contract_id", run.ContractID.String()).
		Str("status", run.Status).
		Int("attempt", run.Attempts).
		Strs("failed_steps", res.FailedSteps).
		Msg("signed saga finished")
}

func (o *Orchestrator) saveStep(ctx context.Context, ex *execution, name string, out map[string]interface{}, stepErr error) {
	step := &models.SagaStep{
		ID:       uuid.New(),
		RunID:    ex.run.ID,
		Name:     name,
		Status:   models.StepStatusCompleted,
		Attempts: ex.run.Attempts,
	}
	if out != nil {
		if data, err := json.Marshal(out); err == nil {
			step.Output = datatypes.JSON(data)
		}
	}

	eventType := "saga.step_completed"
	payload := map[string]interface{}{
		"run_id":  ex.run.ID.String(),
		"step":    name,
		"attempt": ex.run.Attempts,
		"output":  out,
	}
	if stepErr != nil {
		msg := stepErr.Error()
		step.Status = models.StepStatusFailed
		step.Error = &msg
		eventType = "saga.step_failed"
		payload["error"] = msg
		o.Metrics.IncrementLabeled(metrics.SagaStepFailures, name)
		log.Error().Err(stepErr).Str("run_id", ex.run.ID.String()).Str("step", name).Msg("saga step failed")
	}

	if err := o.Ledger.SaveStep(ctx, step); err != nil {
		log.Error().Err(err).Str("run_id", ex.run.ID.String()).Str("step", name).Msg("failed to record saga step")
	}
	o.Events.Record(ctx, eventlog.Entry{
		EventType:     eventType,
		EntityType:    EntityContract,
		EntityID:      ex.run.ContractID.String(),
		CorrelationID: ex.run.CorrelationID.String(),
		Payload:       payload,
	})
}

func (o *Orchestrator) markDone(ctx context.Context, contractID uuid.UUID) {
	if err := o.Locks.Set(ctx, cache.SagaDoneKey(contractID, EventContractSigned), true, doneMarkerTTL); err != nil {
		log.Warn().Err(err).Str("contract_id", contractID.String()).Msg("failed to set saga done marker")
	}
}

func (o *Orchestrator) release(lock *cache.Lock) {
	if lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Locks.ReleaseLock(ctx, lock); err != nil {
		log.Warn().Err(err).Msg("failed to release saga lock")
	}
}

func decodeState(run *models.SagaRun) *runState {
	state := &runState{}
	if len(run.Payload) > 0 {
		if err := json.Unmarshal(run.Payload, state); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID.String()).Msg("unreadable saga state, starting fresh")
			state = &runState{}
		}
	}
	if state.Event.ContractID == "" {
		state.Event.ContractID = run.ContractID.String()
		state.Event.Provider = run.Provider
	}
	return state
}
