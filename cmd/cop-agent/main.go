package main

import (
	"context"
	"fmt"
	"os"

	"github.com/target/cop-agent/config"
	"github.com/target/cop-agent/internal/bootstrap"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}

	logger, err := bootstrap.InitLogger(cfg.IsDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, logger, &cfg); err != nil {
		logger.Error("fatal error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.AppConfig) error {
	if err := bootstrap.ValidateServiceConfig(cfg); err != nil {
		return err
	}

	logStartupInfo(logger, cfg)

	infra, err := bootstrap.ConnectInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	services, err := bootstrap.NewServices(ctx, infra.ServiceDeps(cfg))
	if err != nil {
		return err
	}
	defer services.Close()

	return bootstrap.RunServicesWithShutdown(ctx, bootstrap.ServiceOrchestrationConfig{
		Config:   cfg,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(logger *zap.Logger, cfg *config.AppConfig) {
	logger.Info("starting cop agent",
		zap.Strings("enabled_services", bootstrap.GetEnabledServices(cfg)),
		zap.Bool("dev", cfg.IsDev),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.Bool("feed", cfg.Feed.Enabled()),
		zap.Bool("manifests", cfg.Manifest.Enabled),
		zap.Bool("audit", cfg.Audit.Enabled()),
	)
}
