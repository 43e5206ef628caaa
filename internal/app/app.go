// Package app wires every orchestration-core component into one running
// process, grounded on the teacher's internal/app.App: a single New()
// constructor that loads config, opens the database, builds the repo set,
// and wires the domain components together, followed by Start/Run/Close
// lifecycle methods.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/taskforge/orchestrator/internal/config"
	"github.com/taskforge/orchestrator/internal/jobqueue"
	"github.com/taskforge/orchestrator/internal/jobqueue/amqpq"
	"github.com/taskforge/orchestrator/internal/jobqueue/inprocess"
	"github.com/taskforge/orchestrator/internal/jobqueue/temporalq"
	"github.com/taskforge/orchestrator/internal/orchestrator/api"
	"github.com/taskforge/orchestrator/internal/orchestrator/contextstore"
	"github.com/taskforge/orchestrator/internal/orchestrator/executor"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier"
	"github.com/taskforge/orchestrator/internal/orchestrator/notifier/channels"
	"github.com/taskforge/orchestrator/internal/orchestrator/recovery"
	"github.com/taskforge/orchestrator/internal/orchestrator/scheduler"
	"github.com/taskforge/orchestrator/internal/orchestrator/statemachine"
	"github.com/taskforge/orchestrator/internal/orchestrator/validator"
	"github.com/taskforge/orchestrator/internal/platform/logger"
	"github.com/taskforge/orchestrator/internal/platform/sendgrid"
	"github.com/taskforge/orchestrator/internal/repos"
	"github.com/taskforge/orchestrator/internal/temporalx"
)

// App bundles every wired component a cmd/ entrypoint needs, mirroring the
// teacher's App{Log, DB, Router, Cfg, Repos, Services, ...}.
type App struct {
	Log    *logger.Logger
	DB     *gorm.DB
	Cfg    config.Config
	Repos  repos.Set
	Hub    *channels.Hub
	API    *api.API
	Sched  *scheduler.Scheduler
	Router *gin.Engine

	queue         jobqueue.Queue
	cancel        context.CancelFunc
	shutdownTrace func(context.Context) error
}

// New loads configuration and wires every orchestrator component, the way
// the teacher's app.New sequences logger -> config -> db -> repos ->
// services -> handlers -> router.
func New() (*App, error) {
	log, err := logger.New(envLogMode())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := repos.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	repoSet := repos.New(db, log)

	valid := validator.New()
	state := statemachine.New(repoSet.State, valid, log)
	ctxStore := contextstore.New(repoSet.Context, log)
	state = state.WithContextCache(ctxStore)
	recov := recovery.New(repoSet.Recovery, log)
	if len(cfg.RecoveryOverrides) > 0 {
		recov = recov.WithPolicies(cfg.RecoveryOverrides)
	}
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		recov = recov.WithCounterStore(recovery.NewRedisCounters(redisClient, log))
	}
	registry := executor.NewRegistry() // production ships no built-in step executors; a caller registers its own

	queue, err := buildJobQueue(cfg, registry, log)
	if err != nil {
		return nil, err
	}

	hub := channels.NewHub(log)
	notify := wireNotifier(cfg, repoSet, hub, log)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.MaxConcurrentTasks = cfg.MaxConcurrentTasks
	if len(cfg.LongRunningSteps) > 0 {
		schedCfg.LongRunningSteps = cfg.LongRunningSteps
	}
	schedCfg.QueueCapacity = cfg.QueueCapacity
	sched := scheduler.New(state, ctxStore, recov, registry, queue, notify, schedCfg, log)

	orchestratorAPI := api.New(repoSet.Tasks, state, ctxStore, sched, log)

	a := &App{
		Log:           log,
		DB:            db,
		Cfg:           cfg,
		Repos:         repoSet,
		Hub:           hub,
		API:           orchestratorAPI,
		Sched:         sched,
		queue:         queue,
		shutdownTrace: initTracing("orchestratord", log),
	}
	a.Router = wireRouter(a)
	return a, nil
}

// buildJobQueue selects the jobqueue.Queue implementation named by
// cfg.JobQueueBackend (§6 jobQueue.backend).
func buildJobQueue(cfg config.Config, registry *executor.Registry, log *logger.Logger) (jobqueue.Queue, error) {
	switch cfg.JobQueueBackend {
	case "temporal":
		client, err := temporalx.NewClient(log)
		if err != nil {
			return nil, fmt.Errorf("temporal client: %w", err)
		}
		return temporalq.New(client, cfg.TemporalTaskQueue), nil
	case "amqp":
		return amqpq.New(cfg.AMQPURL, cfg.AMQPWorkQueue, cfg.AMQPReplyQueue, log)
	case "inprocess", "":
		return inprocess.New(registry, log), nil
	default:
		return nil, fmt.Errorf("unknown jobQueue.backend %q", cfg.JobQueueBackend)
	}
}

// wireNotifier registers the four §4.7 channels, skipping any whose
// upstream dependency (sendgrid API key, webhook URL) isn't configured.
func wireNotifier(cfg config.Config, repoSet repos.Set, hub *channels.Hub, log *logger.Logger) *notifier.Dispatcher {
	d := notifier.New(cfg.Notifications, repoSet.Subscribers, repoSet.Notifications, log)

	d.Register(channels.NewWebsocketChannel(hub, log))
	d.Register(channels.NewPersistedChannel(repoSet.Notifications))

	if cfg.Notifications.Webhook.Enabled && cfg.WebhookURL != "" {
		d.Register(channels.NewWebhookChannel(cfg.WebhookURL))
	}
	if cfg.Notifications.Email.Enabled {
		if client, err := sendgrid.NewFromEnv(log); err == nil {
			d.Register(channels.NewEmailChannel(client, unresolvedEmailRecipient))
		} else {
			log.Warn("Email channel enabled but sendgrid is not configured", "error", err)
		}
	}
	return d
}

// unresolvedEmailRecipient is the default EmailResolver: the orchestration
// core has no user-directory table of its own and App offers no way to
// supply another resolver, so email notifications have nowhere to go.
func unresolvedEmailRecipient(_ context.Context, _ uuid.UUID) (string, string, bool) {
	return "", "", false
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis.url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func envLogMode() string {
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		return mode
	}
	return "development"
}

// Start launches any background processing the App owns. The Scheduler
// itself is driven entirely by Orchestrator API calls (InitializeTask /
// ExecuteTask), so there is currently nothing else to start in-process;
// this hook exists for parity with the teacher's Start(runServer,
// runWorker) and for a future standalone worker process.
func (a *App) Start() {}

// Run starts the HTTP server on cfg.HTTPAddr (or addr if non-empty).
func (a *App) Run(addr string) error {
	if addr == "" {
		addr = a.Cfg.HTTPAddr
	}
	return a.Router.Run(addr)
}

// Close releases the database connection and flushes the logger, mirroring
// the teacher's App.Close.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.shutdownTrace != nil {
		if err := a.shutdownTrace(context.Background()); err != nil {
			a.Log.Warn("otel tracer provider shutdown failed", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	a.Log.Sync()
}
