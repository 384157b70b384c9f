package signature

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type clickSignPayload struct {
	Event struct {
		Name       string `json:"name"`
		OccurredAt string `json:"occurred_at"`
	} `json:"event"`
	Document struct {
		Key        string `json:"key"`
		ExternalID string `json:"external_id"`
		Downloads  struct {
			OriginalFileURL string `json:"original_file_url"`
		} `json:"downloads"`
	} `json:"document"`
	Signer struct {
		Email string `json:"email"`
	} `json:"signer"`
}

// ClickSign parses ClickSign webhooks
type ClickSign struct{}

// Name returns the provider key
func (ClickSign) Name() string { return "clicksign" }

// Matches requires document.key
func (ClickSign) Matches(payload map[string]interface{}) bool {
	return present(nested(payload, "document")["key"])
}

// Parse maps the close event to completed. The contract id is the
// document's external id.
func (p ClickSign) Parse(raw []byte) (CanonicalEvent, error) {
	var body clickSignPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return CanonicalEvent{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}

	eventType := normalizeEventType(body.Event.Name)
	if eventType == "close" {
		eventType = "completed"
	}
	return CanonicalEvent{
		Provider:    p.Name(),
		EventType:   eventType,
		ContractID:  body.Document.ExternalID,
		SignedBy:    body.Signer.Email,
		SignedAt:    parseTime(body.Event.OccurredAt),
		DocumentURL: body.Document.Downloads.OriginalFileURL,
	}, nil
}
