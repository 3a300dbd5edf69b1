package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"
	"github.com/target/cop-agent/config"
	"github.com/target/cop-agent/internal/adapters/amqp"
	"github.com/target/cop-agent/internal/adapters/entitlements"
	"github.com/target/cop-agent/internal/adapters/keycloak"
	"github.com/target/cop-agent/internal/adapters/memstore"
	"github.com/target/cop-agent/internal/adapters/oidc"
	redisstore "github.com/target/cop-agent/internal/adapters/redis"
	"github.com/target/cop-agent/internal/adapters/s4"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/ports"
	"go.uber.org/zap"
)

// NewSessionStorage returns Redis-backed storage when a client is available and
// in-process storage otherwise.
//
//nolint:ireturn // the backing store is chosen at runtime.
func NewSessionStorage(client redis.UniversalClient, cfg config.SessionConfig, logger *zap.Logger) ports.SessionStorage {
	if client == nil {
		logger.Info("session storage", zap.String("backend", "memory"))
		return memstore.New()
	}
	logger.Info("session storage", zap.String("backend", "redis"))
	return redisstore.NewSessionStorage(client, redisstore.SessionStorageOptions{
		Prefix: cfg.StoragePrefix,
		TTL:    cfg.StorageTTL,
	})
}

// NewCredentialBackends builds every configured credential backend on client.
// A backend left unconfigured makes its sign-in path unavailable.
func NewCredentialBackends(
	ctx context.Context,
	cfg config.AuthConfig,
	client *http.Client,
	logger *zap.Logger,
) (map[domainauth.BackendKind]ports.CredentialBackend, error) {
	backends := make(map[domainauth.BackendKind]ports.CredentialBackend, 2)

	if cfg.Keycloak.Enabled() {
		kc, err := keycloak.NewBackend(keycloak.Config{
			BaseURL:      cfg.Keycloak.BaseURL,
			Realm:        cfg.Keycloak.Realm,
			ClientID:     cfg.Keycloak.ClientID,
			ClientSecret: cfg.Keycloak.ClientSecret,
			Scope:        cfg.Keycloak.Scope,
			HTTPClient:   client,
		})
		if err != nil {
			return nil, fmt.Errorf("keycloak backend: %w", err)
		}
		backends[domainauth.BackendKeycloak] = kc
	}

	if cfg.OIDC.Enabled() {
		provider, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			Scope:        cfg.OIDC.Scope,
			DiscoveryURL: cfg.OIDC.DiscoveryURL,
			LogoutURL:    cfg.OIDC.LogoutURL,
			HTTPClient:   client,
		})
		if err != nil {
			return nil, fmt.Errorf("oidc backend: %w", err)
		}
		backends[domainauth.BackendOIDC] = provider
	}

	if len(backends) == 0 {
		logger.Warn("no credential backend configured; sign-in will be unavailable")
	}
	for kind := range backends {
		logger.Info("credential backend configured", zap.String("backend", string(kind)))
	}
	return backends, nil
}

// NewEntitlementFetcher returns nil when no entitlement service is configured.
//
//nolint:ireturn // nil interface signals a disabled fetcher.
func NewEntitlementFetcher(cfg config.AuthConfig, client *http.Client) (ports.EntitlementFetcher, error) {
	if cfg.EntitlementsURL == "" {
		return nil, nil
	}
	c, err := entitlements.NewClient(cfg.EntitlementsURL, client)
	if err != nil {
		return nil, fmt.Errorf("entitlements client: %w", err)
	}
	return c, nil
}

// NewManifestFetcher returns nil when manifest storage is disabled.
//
//nolint:ireturn // nil interface signals a disabled fetcher.
func NewManifestFetcher(ctx context.Context, cfg config.ManifestConfig) (ports.ManifestFetcher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		// Per-fetch credentials come from STS.
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s4.NewFetcher(awsCfg, s4.Options{
		Endpoint:        cfg.Endpoint,
		RoleARN:         cfg.RoleARN,
		SessionDuration: cfg.SessionDuration,
	}), nil
}

// NewAuditSink dials RabbitMQ when auditing is configured. The returned sink
// is nil when auditing is disabled.
func NewAuditSink(cfg config.AuditConfig, logger *zap.Logger) (*amqp.EventSink, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	sink, err := amqp.Dial(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}
	logger.Info("audit events enabled", zap.String("exchange", cfg.Exchange))
	return sink, nil
}
