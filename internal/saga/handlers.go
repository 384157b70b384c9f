package saga

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/vallemarketing/valle360-teste-sub009/internal/eventlog"
	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/notify"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
)

const unknownSigner = "signatário desconhecido"

// HandleDeclined cancels the contract and tells the team. A contract that
// is already cancelled is treated as a redelivery.
func (o *Orchestrator) HandleDeclined(ctx context.Context, ev signature.CanonicalEvent) (*Result, error) {
	contractID, err := uuid.Parse(ev.ContractID)
	if err != nil {
		return nil, errors.Wrap(signature.ErrInvalidPayload, "contractId must be a UUID")
	}
	res := &Result{ContractID: ev.ContractID, Kind: string(signature.KindDeclined)}

	contract, err := o.Contracts.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status == models.ContractStatusCancelled {
		o.Metrics.IncrementCounter(metrics.SagaDuplicates)
		res.Status = ResultDuplicate
		return res, nil
	}

	signer := ev.SignedBy
	if signer == "" {
		signer = unknownSigner
	}
	now := o.now()
	reason := "Declined by " + signer
	err = o.Contracts.Update(ctx, contractID, map[string]interface{}{
		"status":              models.ContractStatusCancelled,
		"cancelled_at":        now,
		"cancellation_reason": reason,
	})
	if err != nil {
		return nil, err
	}
	res.Status = ResultCancelled

	recipients, err := o.Notifier.Notify(ctx, notify.Message{
		Type:       notify.TypeContractDeclined,
		ContractID: ev.ContractID,
		Text:       fmt.Sprintf("Contrato recusado por %s", signer),
	})
	if err != nil {
		log.Error().Err(err).Str("contract_id", ev.ContractID).Msg("failed to notify contract declined")
	}

	o.Events.Record(ctx, eventlog.Entry{
		EventType:  "contract.declined",
		EntityType: EntityContract,
		EntityID:   ev.ContractID,
		Payload: map[string]interface{}{
			"provider":            ev.Provider,
			"event_type":          ev.EventType,
			"declined_by":         ev.SignedBy,
			"prev_status":         contract.Status,
			"cancellation_reason": reason,
			"recipients":          recipients,
		},
	})

	log.Info().Str("contract_id", ev.ContractID).Str("declined_by", signer).Msg("contract cancelled")
	return res, nil
}

// HandleViewed only leaves an audit row
func (o *Orchestrator) HandleViewed(ctx context.Context, ev signature.CanonicalEvent) (*Result, error) {
	o.Events.Record(ctx, eventlog.Entry{
		EventType:  "contract.viewed",
		EntityType: EntityContract,
		EntityID:   ev.ContractID,
		Payload: map[string]interface{}{
			"provider":  ev.Provider,
			"viewed_by": ev.SignedBy,
			"viewed_at": o.now(),
		},
	})
	return &Result{ContractID: ev.ContractID, Kind: string(signature.KindViewed), Status: ResultRecorded}, nil
}
