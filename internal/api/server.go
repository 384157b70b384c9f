// Package api exposes the transition, webhook and event log endpoints over
// gin.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog/log"

	"github.com/vallemarketing/valle360-teste-sub009/config"
	"github.com/vallemarketing/valle360-teste-sub009/internal/auth"
)

// Server represents the HTTP server
type Server struct {
	router     *gin.Engine
	config     config.ServerConfig
	httpServer *http.Server
}

// NewServer creates a new HTTP server. nrApp may be nil.
func NewServer(cfg *config.Config, h *Handler, authn *auth.Authenticator, nrApp *newrelic.Application) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := NewRouter(cfg.Server, h, authn, nrApp)
	return &Server{
		router: router,
		config: cfg.Server,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			Handler:      router,
			ReadTimeout:  cfg.Server.Timeout,
			WriteTimeout: cfg.Server.Timeout,
		},
	}
}

// NewRouter wires middleware and routes
func NewRouter(cfg config.ServerConfig, h *Handler, authn *auth.Authenticator, nrApp *newrelic.Application) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware())
	if cfg.CorsEnabled {
		router.Use(CORSMiddleware(cfg.CorsOrigins))
	}
	if nrApp != nil {
		router.Use(NewRelicMiddleware(nrApp))
	}

	router.GET("/health", h.Health)
	router.GET("/metrics", h.MetricsSnapshot)

	router.POST("/webhooks/digital-signature", h.SignatureWebhook)

	admin := router.Group("/", AdminMiddleware(authn))
	{
		admin.GET("/workflow-transitions", h.ListTransitions)
		admin.PATCH("/workflow-transitions", h.UpdateTransition)
		admin.POST("/workflow-transitions/execute", h.ExecuteTransition)

		admin.GET("/event-log", h.ListEvents)
		admin.GET("/event-log/search", h.SearchEvents)
	}

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
