package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
)

const maxWebhookBody = 1 << 20

// SignatureWebhook handles POST /webhooks/digital-signature
func (h *Handler) SignatureWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		WriteError(c, NewValidationError("could not read request body"))
		return
	}

	ev, err := h.Registry.Normalize(c.GetHeader(signature.ProviderHeader), raw)
	if err == nil {
		err = h.Verifier.Verify(ev.Provider, c.GetHeader(signature.SignatureHeader), raw)
	}
	if err != nil {
		h.Metrics.IncrementLabeled(metrics.WebhooksRejected, providerLabel(ev.Provider))
		log.Warn().Err(err).Str("provider", ev.Provider).Msg("signature webhook rejected")
		h.logWebhook(c, ev, raw, err)
		WriteError(c, err)
		return
	}

	h.Metrics.IncrementLabeled(metrics.WebhooksReceived, ev.Provider)
	log.Info().
		Str("provider", ev.Provider).
		Str("event_type", ev.EventType).
		Str("contract_id", ev.ContractID).
		Msg("signature webhook received")

	res, err := h.Signatures.Handle(ctx, ev)
	h.logWebhook(c, ev, raw, err)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": res.Status})
}

// logWebhook writes the webhook_logs row. Failures are only logged.
func (h *Handler) logWebhook(c *gin.Context, ev signature.CanonicalEvent, raw []byte, handleErr error) {
	if h.WebhookLogs == nil {
		return
	}
	payload := raw
	if !json.Valid(raw) {
		payload, _ = json.Marshal(string(raw))
	}

	row := &models.WebhookLog{
		ID:         uuid.New(),
		Provider:   providerLabel(ev.Provider),
		EventType:  ev.EventType,
		ContractID: ev.ContractID,
		Payload:    datatypes.JSON(payload),
		Processed:  handleErr == nil,
	}
	if handleErr != nil {
		msg := handleErr.Error()
		row.Error = &msg
	}
	if row.Provider == "unknown" {
		if p := strings.ToLower(strings.TrimSpace(c.GetHeader(signature.ProviderHeader))); p != "" {
			row.Provider = p
		}
	}

	if err := h.WebhookLogs.Create(c.Request.Context(), row); err != nil {
		log.Warn().Err(err).Str("provider", row.Provider).Msg("failed to write webhook log")
	}
}

func providerLabel(p string) string {
	if p == "" {
		return "unknown"
	}
	return p
}
