package saga

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/vallemarketing/valle360-teste-sub009/internal/domain"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/notify"
	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
)

// Signed saga steps, in execution order
const (
	StepActivateContract      = "activate_contract"
	StepCreateInvoice         = "create_invoice"
	StepScheduleRecurring     = "schedule_recurring"
	StepCreateProductionTasks = "create_production_tasks"
	StepTransitionFinance     = "create_transition_finance"
	StepTransitionOperations  = "create_transition_operations"
	StepNotifyContractSigned  = "notify_contract_signed"
	StepNotifyInvoiceCreated  = "notify_invoice_created"
)

// Areas of the signed handoff
const (
	AreaLegal      = "juridico"
	AreaFinance    = "financeiro"
	AreaOperations = "operacoes"
)

// FallbackArea receives services missing from ServiceAreas
const FallbackArea = AreaOperations

// ServiceAreas maps contracted service names to production areas
var ServiceAreas = map[string]string{
	"Gestão de Redes Sociais":   "social_media",
	"Tráfego Pago (Meta Ads)":   "trafego_pago",
	"Tráfego Pago (Google Ads)": "trafego_pago",
	"Design Gráfico":            "design",
	"Criação de Conteúdo":       "social_media",
	"Desenvolvimento Web":       "desenvolvimento",
	"SEO":                       "desenvolvimento",
	"Branding":                  "design",
}

// AreaForService returns the production area of a service
func AreaForService(name string) string {
	if area, ok := ServiceAreas[strings.TrimSpace(name)]; ok {
		return area
	}
	return FallbackArea
}

const taskLeadTime = 7 * 24 * time.Hour

type step struct {
	name     string
	critical bool
	run      func(ctx context.Context, ex *execution) (map[string]interface{}, error)
}

func (o *Orchestrator) signedSteps() []step {
	return []step{
		{name: StepActivateContract, critical: true, run: o.activateContract},
		{name: StepCreateInvoice, run: o.createInvoice},
		{name: StepScheduleRecurring, run: o.scheduleRecurring},
		{name: StepCreateProductionTasks, run: o.createProductionTasks},
		{name: StepTransitionFinance, run: o.handoffTo(AreaFinance)},
		{name: StepTransitionOperations, run: o.handoffTo(AreaOperations)},
		{name: StepNotifyContractSigned, run: o.notifyContractSigned},
		{name: StepNotifyInvoiceCreated, run: o.notifyInvoiceCreated},
	}
}

func (o *Orchestrator) activateContract(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	ev := ex.state.Event
	signedAt := ex.now
	if ev.SignedAt != nil {
		signedAt = *ev.SignedAt
	}
	fields := map[string]interface{}{
		"status":       models.ContractStatusActive,
		"signed_at":    signedAt,
		"activated_at": ex.now,
	}
	if ev.SignedBy != "" {
		fields["signed_by"] = ev.SignedBy
	}
	if ev.SignatureIP != "" {
		fields["signature_ip"] = ev.SignatureIP
	}
	if ev.DocumentURL != "" {
		fields["signed_document_url"] = ev.DocumentURL
	}

	if err := o.Contracts.Update(ctx, ex.contract.ID, fields); err != nil {
		return nil, err
	}
	ex.contract.Status = models.ContractStatusActive
	return map[string]interface{}{"status": models.ContractStatusActive, "signed_at": signedAt}, nil
}

// createInvoice issues the first installment. A contract that already has
// an invoice is left alone, which covers a crash between insert and ledger
// write.
func (o *Orchestrator) createInvoice(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	n, err := o.Billing.CountInvoices(ctx, ex.contract.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return map[string]interface{}{"reused": true, "existing": n}, nil
	}

	plan := ex.state.Billing
	inv := &models.Invoice{
		ID:          uuid.New(),
		ContractID:  ex.contract.ID,
		ClientID:    ex.contract.ClientID,
		Amount:      plan.Installment,
		DueDate:     plan.DueDate,
		Status:      "pending",
		Description: "Mensalidade - " + firstServiceName(ex.contract),
	}
	if err := o.Billing.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"invoice_id": inv.ID.String(),
		"amount":     inv.Amount,
		"due_date":   inv.DueDate.Format("2006-01-02"),
	}, nil
}

func (o *Orchestrator) scheduleRecurring(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	plan := ex.state.Billing
	s := &models.RecurringInvoiceSchedule{
		ID:         uuid.New(),
		ContractID: ex.contract.ID,
		ClientID:   ex.contract.ClientID,
		Amount:     plan.Installment,
		Frequency:  "monthly",
		DayOfMonth: plan.DueDay,
		NextRun:    plan.NextRun,
		EndDate:    ex.contract.EndDate,
		IsActive:   true,
	}
	if err := o.Billing.CreateSchedule(ctx, s); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"schedule_id":  s.ID.String(),
		"day_of_month": s.DayOfMonth,
		"next_run":     s.NextRun.Format("2006-01-02"),
	}, nil
}

// createProductionTasks opens one backlog card per contracted service.
// Services that already have a card from this contract are skipped, and
// one failing card does not stop the others.
func (o *Orchestrator) createProductionTasks(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	c := ex.contract
	if len(c.Services) == 0 {
		return map[string]interface{}{"created": 0}, nil
	}
	if c.ClientID == nil {
		return map[string]interface{}{"created": 0, "skipped_reason": "contract has no client"}, nil
	}

	due := ex.now.Add(taskLeadTime)
	created, skipped := 0, 0
	var failures []string
	for _, svc := range c.Services {
		n, err := o.Tasks.CountForContractService(ctx, c.ID, svc.Name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", svc.Name, err))
			continue
		}
		if n > 0 {
			skipped++
			continue
		}

		task := &models.ProductionTask{
			ID:          uuid.New(),
			Title:       fmt.Sprintf("[NOVO CLIENTE] %s - %s", svc.Name, c.ClientCompany),
			Description: taskDescription(svc),
			Area:        AreaForService(svc.Name),
			Column:      "backlog",
			Priority:    "high",
			ClientID:    c.ClientID,
			DueDate:     &due,
			Metadata: datatypes.JSONMap{
				"contract_id":  c.ID.String(),
				"service_name": svc.Name,
				"auto_created": true,
			},
		}
		if err := o.Tasks.Create(ctx, task); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", svc.Name, err))
			continue
		}
		created++
	}

	out := map[string]interface{}{"created": created, "skipped": skipped}
	if len(failures) > 0 {
		out["failed"] = len(failures)
		return out, errors.Errorf("%d of %d production tasks failed: %s", len(failures), len(c.Services), strings.Join(failures, "; "))
	}
	return out, nil
}

// handoffTo records the completed legal handoff of the contract to area
func (o *Orchestrator) handoffTo(area string) func(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	return func(ctx context.Context, ex *execution) (map[string]interface{}, error) {
		c := ex.contract
		if o.Finder != nil {
			existing, err := o.Finder.ListByResource(ctx, EntityContract, c.ID.String())
			if err != nil {
				return nil, err
			}
			for _, t := range existing {
				if t.FromArea == AreaLegal && t.ToArea == area && t.TriggerEvent == EventContractSigned {
					return map[string]interface{}{"transition_id": t.ID.String(), "reused": true}, nil
				}
			}
		}

		audit := domain.AuditPayload{
			CorrelationID: ex.run.CorrelationID.String(),
			ContractID:    c.ID.String(),
		}
		if c.ClientID != nil {
			audit.ClientID = c.ClientID.String()
		}
		if c.ProposalID != nil {
			audit.ProposalID = c.ProposalID.String()
		}

		t, err := o.Transitions.Create(ctx, services.CreateCommand{
			FromArea:     AreaLegal,
			ToArea:       area,
			ResourceType: EntityContract,
			ResourceID:   c.ID.String(),
			TriggerEvent: EventContractSigned,
			Status:       domain.StatusCompleted,
			Audit:        audit,
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"transition_id": t.ID.String()}, nil
	}
}

func (o *Orchestrator) notifyContractSigned(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	n, err := o.Notifier.Notify(ctx, notify.Message{
		Type:       notify.TypeContractSigned,
		ContractID: ex.contract.ID.String(),
		Text:       fmt.Sprintf("Contrato de %s assinado! Iniciar produção.", ex.contract.ClientCompany),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"recipients": n}, nil
}

func (o *Orchestrator) notifyInvoiceCreated(ctx context.Context, ex *execution) (map[string]interface{}, error) {
	n, err := o.Notifier.Notify(ctx, notify.Message{
		Type:       notify.TypeInvoiceCreated,
		ContractID: ex.contract.ID.String(),
		Text:       fmt.Sprintf("Fatura criada para %s - %s", ex.contract.ClientCompany, FormatBRL(ex.state.Billing.Installment)),
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"recipients": n}, nil
}

func firstServiceName(c *models.Contract) string {
	if len(c.Services) > 0 && c.Services[0].Name != "" {
		return c.Services[0].Name
	}
	return "Serviços"
}

func taskDescription(svc models.ContractService) string {
	deliverables := "Conforme briefing"
	if len(svc.Deliverables) > 0 {
		deliverables = strings.Join(svc.Deliverables, ", ")
	}
	value := "N/A"
	if svc.MonthlyValue > 0 {
		value = FormatBRL(svc.MonthlyValue)
	}
	return fmt.Sprintf("Iniciar serviço de %s conforme contrato.\n\nEntregas: %s\n\nValor mensal: %s", svc.Name, deliverables, value)
}
