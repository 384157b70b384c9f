package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// ContractRepository provides access to contracts
type ContractRepository struct {
	db *gorm.DB
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db *gorm.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Get loads a contract
func (r *ContractRepository) Get(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "failed to get contract")
	}
	return &c, nil
}

// Update applies a partial column update to a contract
func (r *ContractRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Contract{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update contract")
	}
	if result.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, "failed to update contract")
	}
	return nil
}

// BillingRepository writes invoices and recurring schedules
type BillingRepository struct {
	db *gorm.DB
}

// NewBillingRepository creates a new billing repository
func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// CreateInvoice inserts an invoice
func (r *BillingRepository) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		return errors.Wrap(err, "failed to create invoice")
	}
	return nil
}

// CountInvoices counts invoices issued for a contract
func (r *BillingRepository) CountInvoices(ctx context.Context, contractID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("contract_id = ?", contractID).Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count invoices")
	}
	return n, nil
}

// CreateSchedule inserts a recurring invoice schedule
func (r *BillingRepository) CreateSchedule(ctx context.Context, s *models.RecurringInvoiceSchedule) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return errors.Wrap(err, "failed to create recurring invoice schedule")
	}
	return nil
}

// ProductionTaskRepository provides access to production board cards
type ProductionTaskRepository struct {
	db *gorm.DB
}

// NewProductionTaskRepository creates a new production task repository
func NewProductionTaskRepository(db *gorm.DB) *ProductionTaskRepository {
	return &ProductionTaskRepository{db: db}
}

// Create inserts a production task
func (r *ProductionTaskRepository) Create(ctx context.Context, t *models.ProductionTask) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return errors.Wrap(err, "failed to create production task")
	}
	return nil
}

// FindByTransition returns the task created for a transition, if any
func (r *ProductionTaskRepository) FindByTransition(ctx context.Context, transitionID uuid.UUID) (*models.ProductionTask, error) {
	var t models.ProductionTask
	if err := r.db.WithContext(ctx).Where("transition_id = ?", transitionID).First(&t).Error; err != nil {
		return nil, notFound(err, "failed to find production task by transition")
	}
	return &t, nil
}

// CountForContractService counts the cards a contract already spawned for
// one of its services
func (r *ProductionTaskRepository) CountForContractService(ctx context.Context, contractID uuid.UUID, service string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductionTask{}).
		Where(datatypes.JSONQuery("metadata").Equals(contractID.String(), "contract_id")).
		Where(datatypes.JSONQuery("metadata").Equals(service, "service_name")).
		Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to count production tasks")
	}
	return n, nil
}

// WebhookLogRepository stores received webhooks
type WebhookLogRepository struct {
	db *gorm.DB
}

// NewWebhookLogRepository creates a new webhook log repository
func NewWebhookLogRepository(db *gorm.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// Create inserts a webhook log row
func (r *WebhookLogRepository) Create(ctx context.Context, l *models.WebhookLog) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return errors.Wrap(err, "failed to create webhook log")
	}
	return nil
}

// ClientRepository resolves the client behind billing records
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// ClientIDForInvoice returns the client of an invoice, nil when it has none
func (r *ClientRepository) ClientIDForInvoice(ctx context.Context, invoiceID uuid.UUID) (*uuid.UUID, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).Select("client_id").Where("id = ?", invoiceID).First(&inv).Error
	if err != nil {
		return nil, notFound(err, "failed to get invoice client")
	}
	return inv.ClientID, nil
}

// ClientIDForContract returns the client of a contract, nil when it has none
func (r *ClientRepository) ClientIDForContract(ctx context.Context, contractID uuid.UUID) (*uuid.UUID, error) {
	var c models.Contract
	err := r.db.WithContext(ctx).Select("client_id").Where("id = ?", contractID).First(&c).Error
	if err != nil {
		return nil, notFound(err, "failed to get contract client")
	}
	return c.ClientID, nil
}
