package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-jobqueue/config"
	"github.com/target/mmk-jobqueue/internal/adapters/jobrunner"
	"github.com/target/mmk-jobqueue/internal/adapters/sweeper"
	"github.com/target/mmk-jobqueue/internal/core"
	"github.com/target/mmk-jobqueue/internal/data"
	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/observability/statsd"
	"github.com/target/mmk-jobqueue/internal/processor"
	"github.com/target/mmk-jobqueue/internal/service"
	"github.com/target/mmk-jobqueue/internal/taskqueue"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ErrShutdownTimeout is returned when background services do not stop within the grace period.
var ErrShutdownTimeout = errors.New("timed out waiting for services to stop")

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs        *service.JobService
	Limits      *service.ConfigCache
	Processors  *processor.Registry
	JobRepo     *data.JobRepo
	StatusCache *core.JobStatusCache
	// LocalQueue is set when the local-queue service is enabled. Embedding programs
	// enqueue into it; RunServices drives it.
	LocalQueue    *taskqueue.Queue
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Processors  *processor.Registry
	Logger      *slog.Logger
}

// NewServices wires repositories, caches and services. It starts nothing.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	if deps.Processors == nil {
		return ServiceContainer{}, errors.New("processor registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})

	limits, err := service.NewConfigCache(service.ConfigCacheOptions{
		Repo:   data.NewLimitsRepo(deps.DB, nil),
		TTL:    cfg.ConfigCache.TTL,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create config cache: %w", err)
	}

	statusCache := newStatusCache(deps.RedisClient, cfg)
	metrics := metricsSink(observability)

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:        jobRepo,
		StatusCache: statusCache,
		Logger:      logger,
		Metrics:     metrics,
	})

	container := ServiceContainer{
		Jobs:          jobs,
		Limits:        limits,
		Processors:    deps.Processors,
		JobRepo:       jobRepo,
		StatusCache:   statusCache,
		Observability: observability,
	}

	if cfg.IsLocalQueueEnabled() {
		queue, qErr := taskqueue.New(taskqueue.Options{
			Processors:      deps.Processors,
			Concurrency:     cfg.LocalQueue.Concurrency,
			Timeout:         cfg.LocalQueue.Timeout,
			CleanupInterval: cfg.LocalQueue.CleanupInterval,
			Logger:          logger,
			Metrics:         metrics,
			FailureNotifier: observability.FailureNotifier,
		})
		if qErr != nil {
			return ServiceContainer{}, fmt.Errorf("create local queue: %w", qErr)
		}
		container.LocalQueue = queue
	}

	return container, nil
}

// newStatusCache returns nil without Redis; JobService and the runner treat that as no cache.
func newStatusCache(client redis.UniversalClient, cfg *config.AppConfig) *core.JobStatusCache {
	if client == nil {
		return nil
	}
	return core.NewJobStatusCache(
		data.NewRedisCacheRepo(client, cfg.Redis.KeyPrefix),
		core.JobStatusCacheConfig{TTL: cfg.StatusCache.TTL},
	)
}

//nolint:ireturn // a typed nil *statsd.Client must not leak into the interface.
func metricsSink(o ObservabilityContainer) statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func newWorkerBackgroundService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			return RunWorker(ctx, WorkerDeps{
				Config:   cfg.Config,
				Services: cfg.Services,
				Logger:   logger,
			})
		},
	}
}

func newSweeperBackgroundService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "sweeper",
		start: func(ctx context.Context) error {
			runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
				DB:      cfg.DB,
				Config:  cfg.Config.Sweeper,
				Logger:  logger,
				Repo:    cfg.Services.JobRepo,
				Limits:  cfg.Services.Limits,
				Metrics: metricsSink(cfg.Services.Observability),
			})
			if err != nil {
				return fmt.Errorf("create sweeper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newLocalQueueBackgroundService(cfg *ServiceOrchestrationConfig) backgroundService {
	return backgroundService{
		mode: config.ServiceModeLocalQueue,
		name: "local queue",
		start: func(ctx context.Context) error {
			if cfg.Services.LocalQueue == nil {
				return errors.New("local queue was not built")
			}
			return cfg.Services.LocalQueue.Run(ctx)
		},
	}
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	return []backgroundService{
		newWorkerBackgroundService(cfg, logger),
		newSweeperBackgroundService(cfg, logger),
		newLocalQueueBackgroundService(cfg),
	}
}

// WorkerDeps groups what the durable worker needs.
type WorkerDeps struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunWorker runs the durable worker until ctx is cancelled. Stale processing rows are
// recovered before polling starts when WORKER_RECOVER_ON_START is set, and LISTEN
// wake-ups are used when WORKER_LISTEN_ENABLED is set.
func RunWorker(ctx context.Context, deps WorkerDeps) error {
	cfg := deps.Config.Worker
	svc := deps.Services
	metrics := metricsSink(svc.Observability)

	opts := jobrunner.RunnerOptions{
		Store:           svc.JobRepo,
		Processors:      svc.Processors,
		Limits:          svc.Limits,
		Logger:          deps.Logger,
		Metrics:         metrics,
		FailureNotifier: svc.Observability.FailureNotifier,
		StatusCache:     svc.StatusCache,
		PollInterval:    cfg.PollInterval,
		ErrorBackoff:    cfg.ErrorBackoff,
		JobTimeout:      cfg.JobTimeout,
		Concurrency:     cfg.Concurrency,
	}

	if cfg.RecoverOnStart {
		recoverer, err := service.NewSweeperService(service.SweeperServiceOptions{
			Repo:    svc.JobRepo,
			Limits:  svc.Limits,
			Config:  deps.Config.Sweeper,
			Logger:  deps.Logger,
			Metrics: metrics,
		})
		if err != nil {
			return fmt.Errorf("create start-up recoverer: %w", err)
		}
		opts.Recoverer = recoverer
	}

	if cfg.ListenEnabled {
		notifier, err := job.NewNotifier(job.NotifierOptions{Waiter: svc.JobRepo, Logger: deps.Logger})
		if err != nil {
			return fmt.Errorf("create job notifier: %w", err)
		}
		// Subscriber channels close on StopAll, so it must run after every loop has exited.
		defer notifier.StopAll()
		opts.Notifier = notifier
	}

	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create job runner: %w", err)
	}
	if runErr := runner.Run(ctx); runErr != nil {
		return fmt.Errorf("run job runner: %w", runErr)
	}
	return nil
}

// RunServicesWithShutdown starts all enabled services and blocks until SIGINT/SIGTERM
// or until one of them fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunServices(ctx, cfg)
}

// RunServices starts all enabled services and blocks until ctx is cancelled or one of
// them fails, which stops the rest.
func RunServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	var selected []backgroundService
	for _, svc := range buildBackgroundServices(cfg, logger) {
		if enabled[svc.mode] {
			selected = append(selected, svc)
		}
	}
	return runBackground(ctx, logger, selected, shutdownWaitTimeout)
}

// runBackground runs every service in one errgroup. The first failure cancels the others.
func runBackground(ctx context.Context, logger *slog.Logger, services []backgroundService, grace time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			if err := svc.start(gctx); err != nil {
				logger.ErrorContext(gctx, "service error", "service", svc.name, "error", err)
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		logger.Info("shutting down services...")
	}

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		logger.Warn("timeout waiting for services to stop", "timeout", grace)
		return ErrShutdownTimeout
	}
}
