package signature

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type docuSignSummary struct {
	Status       string `json:"status"`
	CustomFields struct {
		TextCustomFields []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"textCustomFields"`
	} `json:"customFields"`
	Recipients struct {
		Signers []struct {
			Email string `json:"email"`
		} `json:"signers"`
	} `json:"recipients"`
	CompletedDateTime    string `json:"completedDateTime"`
	DocumentsCombinedURI string `json:"documentsCombinedUri"`
}

type docuSignPayload struct {
	EnvelopeSummary *docuSignSummary `json:"envelopeSummary"`
	// Connect v2.1 nests the summary under data
	Data struct {
		EnvelopeSummary *docuSignSummary `json:"envelopeSummary"`
	} `json:"data"`
}

// DocuSign parses DocuSign Connect notifications
type DocuSign struct{}

// Name returns the provider key
func (DocuSign) Name() string { return "docusign" }

// Matches requires both event and apiVersion
func (DocuSign) Matches(payload map[string]interface{}) bool {
	return present(payload["event"]) && present(payload["apiVersion"])
}

// Parse reads the envelope summary. The contract id travels in the
// contractId text custom field.
func (p DocuSign) Parse(raw []byte) (CanonicalEvent, error) {
	var body docuSignPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return CanonicalEvent{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	summary := body.EnvelopeSummary
	if summary == nil {
		summary = body.Data.EnvelopeSummary
	}
	if summary == nil {
		return CanonicalEvent{}, errors.Wrap(ErrInvalidPayload, "envelopeSummary is missing")
	}

	ev := CanonicalEvent{
		Provider:    p.Name(),
		EventType:   normalizeEventType(summary.Status),
		SignedAt:    parseTime(summary.CompletedDateTime),
		DocumentURL: summary.DocumentsCombinedURI,
	}
	for _, f := range summary.CustomFields.TextCustomFields {
		if f.Name == "contractId" {
			ev.ContractID = f.Value
			break
		}
	}
	if len(summary.Recipients.Signers) > 0 {
		ev.SignedBy = summary.Recipients.Signers[0].Email
	}
	return ev, nil
}
