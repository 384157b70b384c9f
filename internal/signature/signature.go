// Package signature normalizes digital-signature webhooks from several
// providers into one canonical event.
package signature

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Signature errors
var (
	ErrUnknownProvider  = errors.New("unknown signature provider")
	ErrInvalidPayload   = errors.New("invalid signature payload")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Kind groups provider event types by how they are handled
type Kind string

const (
	KindSigned   Kind = "signed"
	KindDeclined Kind = "declined"
	KindViewed   Kind = "viewed"
	KindOther    Kind = "other"
)

// CanonicalEvent is the provider-agnostic shape of a signature webhook
type CanonicalEvent struct {
	Provider    string     `json:"provider" validate:"required"`
	EventType   string     `json:"event_type" validate:"required"`
	ContractID  string     `json:"contract_id" validate:"required,uuid"`
	SignedBy    string     `json:"signed_by,omitempty"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	SignatureIP string     `json:"signature_ip,omitempty" validate:"omitempty,ip"`
	DocumentURL string     `json:"document_url,omitempty" validate:"omitempty,url"`
}

// Kind classifies the event. completed and signed are the same thing, as
// are declined and voided.
func (e CanonicalEvent) Kind() Kind {
	switch e.EventType {
	case "completed", "signed":
		return KindSigned
	case "declined", "voided":
		return KindDeclined
	case "viewed":
		return KindViewed
	}
	return KindOther
}

// Provider parses the webhook payloads of one signature platform
type Provider interface {
	Name() string
	// Matches reports whether a decoded payload has this provider's shape
	Matches(payload map[string]interface{}) bool
	Parse(raw []byte) (CanonicalEvent, error)
}

var validate = validator.New()

// Validate checks the fields every downstream handler relies on
func Validate(e CanonicalEvent) error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Wrapf(ErrInvalidPayload, "%s failed %s validation", fieldName(fe.Field()), fe.Tag())
		}
		return errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return nil
}

func fieldName(goName string) string {
	switch goName {
	case "ContractID":
		return "contractId"
	case "EventType":
		return "eventType"
	case "SignatureIP":
		return "signatureIp"
	case "DocumentURL":
		return "documentUrl"
	}
	return strings.ToLower(goName[:1]) + goName[1:]
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts the timestamp formats seen from providers. Anything
// else is dropped and the saga falls back to the processing time.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func normalizeEventType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// present reports whether v is a JSON value a provider would treat as set
func present(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	}
	return true
}

func nested(payload map[string]interface{}, key string) map[string]interface{} {
	m, _ := payload[key].(map[string]interface{})
	return m
}
