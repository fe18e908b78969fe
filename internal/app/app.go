// Package app wires the pipeline components together.
package app

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/attribution"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/botdetect"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/delivery"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/handlers"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/logger"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/queue"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/rabbitmq"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/ratelimit"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/secure"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/transform"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/worker"
)

// App holds all application dependencies. This eliminates global state
// and enables proper dependency injection.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Logger    *zap.Logger
	RMQ       *rabbitmq.Connection
	Scheduler *queue.Scheduler
	Worker    *worker.Worker

	Events *handlers.EventsHandler
	Queue  *handlers.QueueHandler
	Health *handlers.HealthHandler
}

// New constructs the full pipeline. rmq may be nil when the fast-path
// broker is disabled; delivery then runs on the scheduler sweep alone.
func New(cfg *config.Config, db *gorm.DB, rmq *rabbitmq.Connection, log *zap.Logger) (*App, error) {
	var envelope *secure.Envelope
	if len(cfg.Security.EncryptionSecrets) > 0 {
		var err error
		envelope, err = secure.NewEnvelope(cfg.Security.EncryptionSecrets, cfg.Security.EnvelopeValidity)
		if err != nil {
			return nil, err
		}
	}

	sessionStore := attribution.NewGormStore(db)
	resolver := attribution.NewResolver(
		sessionStore,
		cfg.Session.InactivityWindow,
		cfg.Security.InternalDomains,
		logger.Named("attribution"),
	)

	transformer := transform.New(logger.Named("transform"))
	queueStore := queue.NewStore(db)
	sender := delivery.NewClient(&cfg.Upstream, logger.Named("delivery"))
	processor := queue.NewProcessor(
		queueStore, transformer, sender,
		cfg.Queue.RetryCeiling,
		logger.Named("processor"),
	)
	scheduler := queue.NewScheduler(
		queueStore, processor, sessionStore,
		&cfg.Queue,
		logger.Named("scheduler"),
	)

	a := &App{
		Config:    cfg,
		DB:        db,
		Logger:    log,
		RMQ:       rmq,
		Scheduler: scheduler,
		Events: &handlers.EventsHandler{
			Security:    &cfg.Security,
			RabbitMQ:    &cfg.RabbitMQ,
			Envelope:    envelope,
			Limiter:     ratelimit.New(cfg.Security.RateLimitPerMinute),
			Gate:        botdetect.NewGate(&cfg.Security, logger.Named("botdetect")),
			Resolver:    resolver,
			Transformer: transformer,
			Store:       queueStore,
			BatchSize:   cfg.Queue.BatchSize,
			Logger:      logger.Named("intake"),
		},
		Queue:  handlers.NewQueueHandler(queueStore, logger.Named("queue")),
		Health: handlers.NewHealthHandler(db, rmq),
	}

	if rmq != nil {
		a.Events.Publisher = rmq
		a.Worker = worker.NewWorker(&cfg.RabbitMQ, rmq, queueStore, processor, logger.Named("worker"))
	}

	return a, nil
}

// Start launches the background loops.
func (a *App) Start() error {
	a.Scheduler.Start()
	if a.Worker != nil {
		if err := a.Worker.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts the background loops down, worker first so no new entries
// are claimed while the scheduler drains.
func (a *App) Stop() {
	if a.Worker != nil {
		if err := a.Worker.Stop(); err != nil {
			a.Logger.Error("error stopping worker", zap.Error(err))
		}
	}
	a.Scheduler.Stop()
}
