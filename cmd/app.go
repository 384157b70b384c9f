package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vallemarketing/valle360-teste-sub009/config"
	"github.com/vallemarketing/valle360-teste-sub009/internal/cache"
	"github.com/vallemarketing/valle360-teste-sub009/internal/database"
	"github.com/vallemarketing/valle360-teste-sub009/internal/eventlog"
	"github.com/vallemarketing/valle360-teste-sub009/internal/messaging"
	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/notify"
	"github.com/vallemarketing/valle360-teste-sub009/internal/repositories"
	"github.com/vallemarketing/valle360-teste-sub009/internal/saga"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
	"github.com/vallemarketing/valle360-teste-sub009/internal/services"
	"github.com/vallemarketing/valle360-teste-sub009/internal/tracing"
)

// app holds the collaborators shared by the api and worker commands
type app struct {
	cfg          config.Config
	conns        *database.Connections
	cache        *cache.RedisCache
	tracer       tracing.Tracer
	search       *search.ElasticClient
	bus          messaging.ServiceBusClient
	metrics      *metrics.Metrics
	eventRepo    *repositories.EventLogRepository
	webhookLogs  *repositories.WebhookLogRepository
	transitions  *services.TransitionService
	orchestrator *saga.Orchestrator
}

func newApp(source string) (*app, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Initialize database connections
	conns, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without saga locks")
		redisCache = cache.NewDisabledCache()
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.NewNoopTracer()
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		elasticClient = nil
	}

	// Initialize Azure Service Bus client
	bus, err := messaging.NewServiceBusClient(cfg.Azure, source)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Azure Service Bus, notifications stay in the database only")
		bus = messaging.NopClient{}
	}

	m := metrics.NewMetrics()

	// Initialize repositories
	db, readOnlyDB := conns.DB, conns.ReadOnlyDB
	transitionRepo := repositories.NewTransitionRepository(db, readOnlyDB)
	eventRepo := repositories.NewEventLogRepository(db, readOnlyDB)
	taskRepo := repositories.NewProductionTaskRepository(db)

	var indexer eventlog.Indexer
	if elasticClient != nil {
		indexer = elasticClient
	}
	events := eventlog.New(eventRepo, indexer, m)

	// Initialize services
	transitions := services.NewTransitionService(transitionRepo, taskRepo, repositories.NewClientRepository(db), events, m, tracer)
	notifier := notify.NewDispatcher(
		notify.NewRegistry(cfg.Notifications.Subscriptions),
		repositories.NewNotificationRepository(db, readOnlyDB),
		bus,
		m,
	)
	orchestrator := saga.NewOrchestrator(saga.Deps{
		Contracts:   repositories.NewContractRepository(db),
		Billing:     repositories.NewBillingRepository(db),
		Tasks:       taskRepo,
		Transitions: transitions,
		Finder:      transitionRepo,
		Ledger:      repositories.NewSagaRepository(db),
		Locks:       redisCache,
		Notifier:    notifier,
		Events:      events,
		Metrics:     m,
		Tracer:      tracer,
	}, cfg.Saga)

	return &app{
		cfg:          cfg,
		conns:        conns,
		cache:        redisCache,
		tracer:       tracer,
		search:       elasticClient,
		bus:          bus,
		metrics:      m,
		eventRepo:    eventRepo,
		webhookLogs:  repositories.NewWebhookLogRepository(db),
		transitions:  transitions,
		orchestrator: orchestrator,
	}, nil
}

func (a *app) close() {
	if err := a.bus.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Service Bus client")
	}
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis client")
	}
	a.tracer.Close()
	if err := a.conns.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database connections")
	}
}
