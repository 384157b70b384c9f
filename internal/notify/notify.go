// Package notify routes domain events to in-app notifications for the
// users whose role subscribes to them.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vallemarketing/valle360-teste-sub009/internal/messaging"
	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// Notification types
const (
	TypeContractSigned   = "contract_signed"
	TypeInvoiceCreated   = "invoice_created"
	TypeContractDeclined = "contract_declined"
)

// DefaultLink is where contract notifications point in the admin UI
const DefaultLink = "/admin/contratos"

// DefaultRoles receive every notification type without an override
var DefaultRoles = []string{"super_admin", "admin", "finance", "operations"}

// Registry maps notification types to subscribed roles
type Registry struct {
	subs map[string][]string
}

// NewRegistry creates a registry with the default subscriptions, replaced
// per type by overrides
func NewRegistry(overrides map[string][]string) *Registry {
	r := &Registry{subs: map[string][]string{
		TypeContractSigned:   DefaultRoles,
		TypeInvoiceCreated:   DefaultRoles,
		TypeContractDeclined: DefaultRoles,
	}}
	for t, roles := range overrides {
		if len(roles) > 0 {
			r.subs[t] = roles
		}
	}
	return r
}

// Roles returns the roles subscribed to a type
func (r *Registry) Roles(notificationType string) []string {
	if roles, ok := r.subs[notificationType]; ok {
		return roles
	}
	return DefaultRoles
}

// Store resolves recipients and persists notifications
type Store interface {
	UserIDsByRoles(ctx context.Context, roles []string) ([]uuid.UUID, error)
	CreateBatch(ctx context.Context, ns []models.Notification) error
}

// Message is one notification to fan out
type Message struct {
	Type       string
	ContractID string
	Text       string
	Link       string
}

// busMessage is published once per dispatch
type busMessage struct {
	Type       string    `json:"type"`
	ContractID string    `json:"contract_id"`
	Message    string    `json:"message"`
	Roles      []string  `json:"roles"`
	Recipients int       `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

// Notifier is what the saga depends on
type Notifier interface {
	Notify(ctx context.Context, m Message) (int, error)
}

// Dispatcher writes one notification per subscribed user and publishes
// the event to Service Bus
type Dispatcher struct {
	registry *Registry
	store    Store
	bus      messaging.ServiceBusClient
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(registry *Registry, store Store, bus messaging.ServiceBusClient, m *metrics.Metrics) *Dispatcher {
	if bus == nil {
		bus = messaging.NopClient{}
	}
	return &Dispatcher{
		registry: registry,
		store:    store,
		bus:      bus,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Notify returns how many notifications were stored. No recipients is not
// an error. The Service Bus publish is best-effort.
func (d *Dispatcher) Notify(ctx context.Context, m Message) (int, error) {
	roles := d.registry.Roles(m.Type)
	users, err := d.store.UserIDsByRoles(ctx, roles)
	if err != nil {
		d.metrics.IncrementCounter(metrics.NotificationFailures)
		return 0, err
	}
	if len(users) == 0 {
		log.Info().Str("type", m.Type).Strs("roles", roles).Msg("no recipients for notification")
		return 0, nil
	}

	link := m.Link
	if link == "" {
		link = DefaultLink
	}
	now := d.now()
	batch := make([]models.Notification, 0, len(users))
	for _, id := range users {
		batch = append(batch, models.Notification{
			ID:        uuid.New(),
			UserID:    id,
			Type:      m.Type,
			Title:     Title(m.Type),
			Message:   m.Text,
			Link:      link,
			CreatedAt: now,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.store.CreateBatch(gctx, batch)
	})
	g.Go(func() error {
		err := d.bus.SendMessage(gctx, m.Type, busMessage{
			Type:       m.Type,
			ContractID: m.ContractID,
			Message:    m.Text,
			Roles:      roles,
			Recipients: len(users),
			SentAt:     now,
		})
		if err != nil {
			log.Warn().Err(err).Str("type", m.Type).Msg("failed to publish notification event")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		d.metrics.IncrementCounter(metrics.NotificationFailures)
		return 0, err
	}

	d.metrics.IncrementCounterBy(metrics.NotificationsSent, int64(len(batch)))
	log.Info().Str("type", m.Type).Str("contract_id", m.ContractID).Int("recipients", len(batch)).Msg("notifications sent")
	return len(batch), nil
}

// Title turns a notification type into its display title,
// contract_signed → Contract Signed
func Title(notificationType string) string {
	words := strings.Fields(strings.ReplaceAll(notificationType, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
