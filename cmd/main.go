package main

import (
	"os"
	"os/signal"
	"syscall"

	"connectai/internal/adapters/config"
	"connectai/internal/adapters/errors/noop"
	"connectai/internal/adapters/errors/sentry"
	"connectai/internal/bootstrap"
	"connectai/internal/metrics"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Register Prometheus metrics
	metrics.Init()

	// Build the dependency container
	container := bootstrap.NewContainer()
	container.Config = cfg
	container.Log = log
	container.ErrorTracker = errorTracker
	container.MustInit()

	if err := container.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// The gateway blocks; run it aside so signals are handled here.
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- container.Gateway.Start()
	}()

	log.Info("System initialized successfully")

	// Wait for shutdown signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			log.Errorf("Gateway failed: %v", err)
		}
	}

	container.Shutdown()
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}
