package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vallemarketing/valle360-teste-sub009/internal/api"
	"github.com/vallemarketing/valle360-teste-sub009/internal/auth"
	"github.com/vallemarketing/valle360-teste-sub009/internal/signature"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for workflow transitions, signature webhooks and the event log`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	a, err := newApp("workflow-engine-api")
	if err != nil {
		return err
	}
	defer a.close()

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	handler := &api.Handler{
		Transitions: a.transitions,
		Signatures:  a.orchestrator,
		Registry:    signature.DefaultRegistry(),
		Verifier:    signature.NewVerifier(a.cfg.Webhook.Secrets),
		WebhookLogs: a.webhookLogs,
		Events:      a.eventRepo,
		Metrics:     a.metrics,
		HealthChecks: map[string]api.HealthCheck{
			"database": a.conns.Ping,
		},
	}
	if a.search != nil {
		handler.Search = a.search
	}
	if a.cache.Enabled() {
		handler.HealthChecks["redis"] = a.cache.Ping
	}

	// Initialize and start the server
	server := api.NewServer(&a.cfg, handler, auth.NewAuthenticator(a.cfg.Auth), a.tracer.Application())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for termination signal or server failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
			return err
		}
	}

	log.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}
	return nil
}
