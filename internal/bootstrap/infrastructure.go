package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/target/cop-agent/config"
	"github.com/target/cop-agent/internal/adapters/amqp"
	"github.com/target/cop-agent/internal/adapters/idp"
	"github.com/target/cop-agent/internal/adapters/postgres"
	"github.com/target/cop-agent/internal/clock"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/ports"
	"go.uber.org/zap"
)

// Infrastructure holds the external connections and adapters the services
// run on. Optional parts are nil when not configured.
type Infrastructure struct {
	Redis    redis.UniversalClient
	FeedPool *pgxpool.Pool
	Audit    *amqp.EventSink

	// HTTPClient is shared by the credential backends and the entitlement
	// client so the fault interceptor sees all of their traffic.
	HTTPClient   *http.Client
	Storage      ports.SessionStorage
	Backends     map[domainauth.BackendKind]ports.CredentialBackend
	Entitlements ports.EntitlementFetcher
	Manifests    ports.ManifestFetcher

	logger *zap.Logger
}

// ConnectInfrastructure connects every configured dependency. On error,
// anything already opened is closed.
func ConnectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Infrastructure, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	infra := &Infrastructure{HTTPClient: idp.DefaultHTTPClient(), logger: logger}

	ok := false
	defer func() {
		if !ok {
			infra.Close()
		}
	}()

	dbCfg := DatabaseConfig{RedisConfig: cfg.Redis, FeedConfig: cfg.Feed, Logger: logger}

	if cfg.Redis.Enabled() {
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = client
	}
	infra.Storage = NewSessionStorage(infra.Redis, cfg.Session, logger)

	if cfg.IsTrailPollerEnabled() {
		pool, err := ConnectFeed(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect feed: %w", err)
		}
		infra.FeedPool = pool
	}

	audit, err := NewAuditSink(cfg.Audit, logger)
	if err != nil {
		return nil, err
	}
	infra.Audit = audit

	if infra.Backends, err = NewCredentialBackends(ctx, cfg.Auth, infra.HTTPClient, logger); err != nil {
		return nil, err
	}
	if infra.Entitlements, err = NewEntitlementFetcher(cfg.Auth, infra.HTTPClient); err != nil {
		return nil, err
	}
	if infra.Manifests, err = NewManifestFetcher(ctx, cfg.Manifest); err != nil {
		return nil, err
	}

	ok = true
	return infra, nil
}

// ServiceDeps converts the infrastructure into service dependencies.
func (i *Infrastructure) ServiceDeps(cfg *config.AppConfig) ServiceDeps {
	deps := ServiceDeps{
		Config:       cfg,
		Storage:      i.Storage,
		Backends:     i.Backends,
		Entitlements: i.Entitlements,
		Manifests:    i.Manifests,
		HTTPClient:   i.HTTPClient,
		Logger:       i.logger,
	}
	if i.Audit != nil {
		deps.Events = i.Audit
	}
	if i.FeedPool != nil {
		deps.Feed = postgres.NewVehicleFeed(i.FeedPool, postgres.VehicleFeedOptions{
			SourceType: cfg.Feed.SourceType,
			Lookback:   cfg.Feed.Lookback,
			Clock:      clock.Real{},
			Logger:     i.logger.Named("feed"),
		})
	}
	return deps
}

// Close releases every open connection. Errors are logged.
func (i *Infrastructure) Close() {
	if i.Audit != nil {
		if err := i.Audit.Close(); err != nil {
			i.logger.Error("close audit sink failed", zap.Error(err))
		}
	}
	if i.FeedPool != nil {
		i.FeedPool.Close()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.logger.Error("close redis failed", zap.Error(err))
		}
	}
	i.HTTPClient.CloseIdleConnections()
}
