package signature

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type autentiquePayload struct {
	DocumentToken string `json:"document_token"`
	Status        string `json:"status"`
	Metadata      struct {
		ContractID string `json:"contract_id"`
	} `json:"metadata"`
	Signatories []struct {
		Email string `json:"email"`
	} `json:"signatories"`
	SignedAt string `json:"signed_at"`
	FileURL  string `json:"file_url"`
}

// Autentique parses Autentique webhooks
type Autentique struct{}

// Name returns the provider key
func (Autentique) Name() string { return "autentique" }

// Matches requires document_token
func (Autentique) Matches(payload map[string]interface{}) bool {
	return present(payload["document_token"])
}

// Parse maps the signed status to completed
func (p Autentique) Parse(raw []byte) (CanonicalEvent, error) {
	var body autentiquePayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return CanonicalEvent{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}

	eventType := normalizeEventType(body.Status)
	if eventType == "signed" {
		eventType = "completed"
	}
	ev := CanonicalEvent{
		Provider:    p.Name(),
		EventType:   eventType,
		ContractID:  body.Metadata.ContractID,
		SignedAt:    parseTime(body.SignedAt),
		DocumentURL: body.FileURL,
	}
	if len(body.Signatories) > 0 {
		ev.SignedBy = body.Signatories[0].Email
	}
	return ev, nil
}
