package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	for name, check := range h.HealthChecks {
		healthy := check(ctx) == nil
		h.Metrics.SetHealth(name, healthy)
		if !healthy {
			status = "degraded"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": h.Metrics.GetHealthChecks()})
}

// MetricsSnapshot handles GET /metrics
func (h *Handler) MetricsSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.Metrics.GetAllMetrics())
}
