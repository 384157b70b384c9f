package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
)

// ListEvents handles GET /event-log
func (h *Handler) ListEvents(c *gin.Context) {
	f := repositories.EventLogFilter{
		EventType:  c.Query("event_type"),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Limit:      services.ClampLimit(limitParam(c)),
	}
	if raw := strings.TrimSpace(c.Query("correlation_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			WriteError(c, NewValidationError("correlation_id must be a UUID"))
			return
		}
		f.CorrelationID = &id
	}

	events, err := h.Events.List(c.Request.Context(), f)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// SearchEvents handles GET /event-log/search
func (h *Handler) SearchEvents(c *gin.Context) {
	if h.Search == nil {
		WriteError(c, search.ErrDisabled)
		return
	}
	docs, err := h.Search.SearchEvents(c.Request.Context(), c.Query("q"), services.ClampLimit(limitParam(c)))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": docs})
}
