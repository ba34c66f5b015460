package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/publora/publora/config"
	"github.com/publora/publora/internal/adapters/dispatchrunner"
	"github.com/publora/publora/internal/core"
	"github.com/publora/publora/internal/data"
	"github.com/publora/publora/internal/observability/notify/slack"
	"github.com/publora/publora/internal/observability/statsd"
	"github.com/publora/publora/internal/publish"
	"github.com/publora/publora/internal/service"
	"github.com/publora/publora/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *data.JobRepo
	Integrations  core.IntegrationSource
	Dispatcher    *service.Dispatcher
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "publora",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	var sinks []failurenotifier.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildIntegrationSource wires the Postgres integration repo, fronted by the
// Redis read-through cache when a Redis client is available.
func buildIntegrationSource(deps *ServiceDeps, logger *slog.Logger) core.IntegrationSource {
	repo := data.NewIntegrationRepo(deps.DB)
	if deps.RedisClient == nil {
		return repo
	}

	ttl := time.Duration(0)
	if deps.Config != nil {
		ttl = deps.Config.Cache.IntegrationTTL
	}

	cache, err := data.NewIntegrationCache(data.IntegrationCacheOptions{
		Source: repo,
		Client: deps.RedisClient,
		TTL:    ttl,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to initialise integration cache; using direct lookups", "error", err)
		return repo
	}
	return cache
}

// NewServices wires repositories, observability adapters, and the dispatcher.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	observability := buildObservability(logger, appCfg.Observability)

	backoff := service.BackoffPolicy{
		Cap:    appCfg.Dispatcher.BackoffCap,
		Jitter: appCfg.Dispatcher.BackoffJitter,
	}
	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{
		Backoff:            backoff.Delay,
		DefaultMaxAttempts: appCfg.Dispatcher.MaxAttempts,
		Logger:             logger,
	})

	integrations := buildIntegrationSource(deps, logger)

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Jobs:            jobRepo,
		Integrations:    integrations,
		Registry:        publish.DefaultRegistry(),
		Logger:          logger.With("component", "dispatcher"),
		Metrics:         observability.MetricsSink,
		FailureNotifier: observability.FailureNotifier,
		MaxBatch:        appCfg.Dispatcher.MaxBatch,
		UserConcurrency: appCfg.Dispatcher.UserConcurrency,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build dispatcher: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobRepo,
		Integrations:  integrations,
		Dispatcher:    dispatcher,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

func startDispatchRunner(ctx context.Context, cfg *ServiceOrchestrationConfig, errCh chan<- error) (*backgroundServiceHandle, error) {
	logger := cfg.Logger
	runner, err := dispatchrunner.NewRunner(dispatchrunner.RunnerOptions{
		Dispatcher: cfg.Services.Dispatcher,
		Interval:   cfg.Config.Dispatcher.Interval,
		RunOnStart: cfg.Config.Dispatcher.RunOnStart,
		Logger:     logger.With("component", "dispatch_runner"),
	})
	if err != nil {
		return nil, fmt.Errorf("build dispatch runner: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(ctx); runErr != nil {
			select {
			case errCh <- fmt.Errorf("dispatch runner failed: %w", runErr):
			case <-ctx.Done():
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", "dispatch runner")
	return &backgroundServiceHandle{name: "dispatch runner", done: done}, nil
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
		cfg.Logger = logger
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	errCh := make(chan error, len(enabledServices)+1)

	var httpServer *http.Server
	if enabledServices[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	var backgrounds []backgroundServiceHandle
	if enabledServices[config.ServiceModeDispatcher] {
		handle, startErr := startDispatchRunner(serviceCtx, cfg, errCh)
		if startErr != nil {
			return startErr
		}
		backgrounds = append(backgrounds, *handle)
	}

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
