package signature

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contractID = "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f"

func TestNormalizeProviders(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		body     string
		provider string
		event    string
		signedBy string
		kind     Kind
	}{
		{
			name: "docusign completed",
			body: `{"event":"envelope-completed","apiVersion":"v2.1","envelopeSummary":{"status":"completed",
				"customFields":{"textCustomFields":[{"name":"other","value":"x"},{"name":"contractId","value":"` + contractID + `"}]},
				"recipients":{"signers":[{"email":"ana@cliente.com"}]},
				"completedDateTime":"2025-03-10T14:00:00Z","documentsCombinedUri":"https://docusign.example/doc"}}`,
			provider: "docusign",
			event:    "completed",
			signedBy: "ana@cliente.com",
			kind:     KindSigned,
		},
		{
			name: "docusign nested under data",
			body: `{"event":"envelope-voided","apiVersion":"v2.1","data":{"envelopeSummary":{"status":"voided",
				"customFields":{"textCustomFields":[{"name":"contractId","value":"` + contractID + `"}]}}}}`,
			provider: "docusign",
			event:    "voided",
			kind:     KindDeclined,
		},
		{
			name: "clicksign close",
			body: `{"event":{"name":"close","occurred_at":"2025-03-10T14:00:00Z"},
				"document":{"key":"abc","external_id":"` + contractID + `"},"signer":{"email":"bia@cliente.com"}}`,
			provider: "clicksign",
			event:    "completed",
			signedBy: "bia@cliente.com",
			kind:     KindSigned,
		},
		{
			name:     "autentique signed",
			body:     `{"document_token":"tok","status":"signed","metadata":{"contract_id":"` + contractID + `"},"signatories":[{"email":"caio@cliente.com"}]}`,
			provider: "autentique",
			event:    "completed",
			signedBy: "caio@cliente.com",
			kind:     KindSigned,
		},
		{
			name:     "internal viewed",
			body:     `{"internal_event":true,"event_type":"viewed","contract_id":"` + contractID + `","signed_by":"dani@cliente.com"}`,
			provider: "internal",
			event:    "viewed",
			signedBy: "dani@cliente.com",
			kind:     KindViewed,
		},
		{
			name:     "header overrides sniffing",
			header:   "Internal",
			body:     `{"event_type":"declined","contract_id":"` + contractID + `","document_token":"looks-like-autentique"}`,
			provider: "internal",
			event:    "declined",
			kind:     KindDeclined,
		},
		{
			name:     "unhandled event kind",
			body:     `{"document_token":"tok","status":"created","metadata":{"contract_id":"` + contractID + `"}}`,
			provider: "autentique",
			event:    "created",
			kind:     KindOther,
		},
	}

	r := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := r.Normalize(tt.header, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.provider, ev.Provider)
			assert.Equal(t, tt.event, ev.EventType)
			assert.Equal(t, contractID, ev.ContractID)
			assert.Equal(t, tt.signedBy, ev.SignedBy)
			assert.Equal(t, tt.kind, ev.Kind())
		})
	}
}

func TestNormalizeCarriesOptionalFields(t *testing.T) {
	body := `{"internal_event":"yes","event_type":"signed","contract_id":"` + contractID + `",
		"signed_by":"ana@cliente.com","signed_at":"2025-03-10T14:00:00-03:00","signature_ip":"200.1.2.3"}`

	ev, err := DefaultRegistry().Normalize("", []byte(body))
	require.NoError(t, err)
	require.NotNil(t, ev.SignedAt)
	assert.True(t, time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC).Equal(*ev.SignedAt))
	assert.Equal(t, "200.1.2.3", ev.SignatureIP)
	assert.Equal(t, KindSigned, ev.Kind())
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   error
	}{
		{"not json", "", `not json`, ErrInvalidPayload},
		{"json array", "", `[1,2]`, ErrInvalidPayload},
		{"no provider shape", "", `{"hello":"world"}`, ErrUnknownProvider},
		{"unknown header", "adobe-sign", `{"event":"x"}`, ErrUnknownProvider},
		{"docusign without summary", "", `{"event":"x","apiVersion":"v2"}`, ErrInvalidPayload},
		{"missing contract id", "", `{"internal_event":true,"event_type":"signed"}`, ErrInvalidPayload},
		{"missing event type", "", `{"internal_event":true,"contract_id":"` + contractID + `"}`, ErrInvalidPayload},
		{"contract id not a uuid", "", `{"internal_event":true,"event_type":"signed","contract_id":"42"}`, ErrInvalidPayload},
		{"wrong field type", "clicksign", `{"event":{"name":3},"document":{"key":"k"}}`, ErrInvalidPayload},
	}

	r := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Normalize(tt.header, []byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidateNamesField(t *testing.T) {
	err := Validate(CanonicalEvent{Provider: "internal", EventType: "signed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contractId")
}

func TestParseTime(t *testing.T) {
	assert.Nil(t, parseTime(""))
	assert.Nil(t, parseTime("yesterday"))
	require.NotNil(t, parseTime("2025-03-10"))
	require.NotNil(t, parseTime("2025-03-10 08:30:00"))
}

func TestRegistryNames(t *testing.T) {
	assert.Equal(t, []string{"docusign", "clicksign", "autentique", "internal"}, DefaultRegistry().Names())
}

func TestNormalizeLowercasesContractID(t *testing.T) {
	body := `{"internal_event":true,"event_type":"signed","contract_id":" 6F1C2D3E-4A5B-4C6D-8E7F-9A0B1C2D3E4F "}`
	ev, err := DefaultRegistry().Normalize("", []byte(body))
	assert.NoError(t, err)
	assert.Equal(t, contractID, ev.ContractID)
}
