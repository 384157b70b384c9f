package signature

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type internalPayload struct {
	EventType   string `json:"event_type"`
	ContractID  string `json:"contract_id"`
	SignedBy    string `json:"signed_by"`
	SignedAt    string `json:"signed_at"`
	SignatureIP string `json:"signature_ip"`
}

// Internal parses events from the in-house magic-link signing page
type Internal struct{}

// Name returns the provider key
func (Internal) Name() string { return "internal" }

// Matches requires internal_event
func (Internal) Matches(payload map[string]interface{}) bool {
	return present(payload["internal_event"])
}

// Parse passes the fields through. Only this provider reports the signer IP.
func (p Internal) Parse(raw []byte) (CanonicalEvent, error) {
	var body internalPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return CanonicalEvent{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	return CanonicalEvent{
		Provider:    p.Name(),
		EventType:   normalizeEventType(body.EventType),
		ContractID:  body.ContractID,
		SignedBy:    body.SignedBy,
		SignedAt:    parseTime(body.SignedAt),
		SignatureIP: body.SignatureIP,
	}, nil
}
