// Package main provides the entry point for the decomposition server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ndemo/scalesep/internal/config"
	"github.com/ndemo/scalesep/internal/handler"
	"github.com/ndemo/scalesep/internal/health"
	"github.com/ndemo/scalesep/internal/metrics"
	"github.com/ndemo/scalesep/internal/release"
	"github.com/ndemo/scalesep/internal/server"
	"github.com/ndemo/scalesep/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}

	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			panic("failed to load configuration: " + err.Error())
		}
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("starting decomposition server",
		zap.String("addr", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("archive_dir", cfg.Archive.Dir),
	)

	hostname, _ := os.Hostname()
	m := metrics.NewMetrics(hostname, nil)

	svc, err := service.New(cfg, logger, m)
	if err != nil {
		logger.Fatal("failed to create service", zap.Error(err))
	}

	// Release tagging is optional; most deployments only enable it on the
	// instance that owns the repository checkout.
	var tagger *release.Tagger
	var scheduler *release.Scheduler
	if cfg.Release.Enabled {
		tagger = release.New(release.Options{
			RepoDir:      cfg.Release.RepoDir,
			Remote:       cfg.Release.Remote,
			RemoteURL:    cfg.Release.RemoteURL,
			TokenEnv:     cfg.Release.TokenEnv,
			CheckCommand: cfg.Release.CheckCommand,
			Logger:       logger,
			Metrics:      m,
		})
		scheduler, err = release.NewScheduler(tagger, cfg.Release.Schedule, logger)
		if err != nil {
			logger.Fatal("failed to create release scheduler", zap.Error(err))
		}
		scheduler.Start()
	}

	healthCheck := health.NewHealthCheck(logger)
	healthCheck.Register("service", svc.Ready)

	handlers := handler.NewHandlers(svc, tagger, logger, cfg.Server)
	httpServer := server.NewServer(cfg, handlers, healthCheck, m, logger)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(cfg.Metrics, logger)
		metricsServer.Start()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}
	if err := svc.Close(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("failed to stop service", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

// initLogger builds the zap logger from the logging config.
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	return logger
}
