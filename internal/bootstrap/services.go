package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/target/cop-agent/config"
	"github.com/target/cop-agent/internal/clock"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/domain/trail"
	httpx "github.com/target/cop-agent/internal/http"
	"github.com/target/cop-agent/internal/ports"
	"github.com/target/cop-agent/internal/service"
	"github.com/target/cop-agent/pkg/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ServiceDeps contains the dependencies for building the service container.
// Entitlements, Events, Feed, Manifests and HTTPClient are optional.
type ServiceDeps struct {
	Config       *config.AppConfig
	Storage      ports.SessionStorage
	Backends     map[domainauth.BackendKind]ports.CredentialBackend
	Entitlements ports.EntitlementFetcher
	Events       ports.SessionEventSink
	Feed         ports.VehicleFeed
	Manifests    ports.ManifestFetcher
	HTTPClient   *http.Client
	Clock        clock.Clock
	Logger       *zap.Logger
}

// ServiceContainer holds the running session lifecycle and its followers.
type ServiceContainer struct {
	Session     *service.SessionService
	Scheduler   *service.RefreshScheduler
	Inactivity  *service.InactivityMonitor
	Interceptor *service.FaultInterceptor
	Trails      *service.TrailService
	Manifests   *service.ManifestService
	Hub         *ws.Hub

	cleanup []func()
}

// HubSnapshot is sent to every websocket client when it connects.
type HubSnapshot struct {
	Session    httpx.SessionView        `json:"session"`
	Inactivity service.InactivityStatus `json:"inactivity"`
	Trails     trail.Snapshot           `json:"trails"`
}

// NewServices builds the session service, restores any persisted session and
// wires every follower to it.
func NewServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("service config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := clock.OrReal(deps.Clock)
	cfg := deps.Config

	session, err := service.NewSessionService(ctx, service.SessionServiceOptions{
		Backends:              deps.Backends,
		Entitlements:          deps.Entitlements,
		Storage:               deps.Storage,
		Events:                deps.Events,
		Clock:                 clk,
		Logger:                logger.Named("session"),
		BackendSignOutTimeout: cfg.Session.BackendSignOutTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("session service: %w", err)
	}

	c := &ServiceContainer{Session: session, Hub: ws.NewHub(logger.Named("ws"))}
	c.cleanup = append(c.cleanup, session.Close)

	if deps.HTTPClient != nil {
		fi, restore, installErr := service.Install(deps.HTTPClient, session, logger.Named("interceptor"))
		if installErr != nil {
			c.Close()
			return nil, fmt.Errorf("install fault interceptor: %w", installErr)
		}
		c.Interceptor = fi
		c.cleanup = append(c.cleanup, restore, session.Subscribe(fi.Observe))
	}

	c.Scheduler = service.NewRefreshScheduler(session, service.RefreshSchedulerOptions{
		Lead:     cfg.Session.RefreshLead,
		MinDelay: cfg.Session.RefreshMinDelay,
		Clock:    clk,
		Logger:   logger.Named("refresh"),
	})
	c.Scheduler.Start(session)
	c.cleanup = append(c.cleanup, c.Scheduler.Stop)

	c.Inactivity, err = service.NewInactivityMonitor(session, service.InactivityMonitorOptions{
		WarnAfter:    cfg.Session.InactivityWarning,
		SignOutAfter: cfg.Session.InactivitySignOut,
		Clock:        clk,
		Logger:       logger.Named("inactivity"),
		OnChange: func(st service.InactivityStatus) {
			c.Hub.BroadcastMessage(ws.MsgTypeInactivityWarning, st)
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("inactivity monitor: %w", err)
	}
	c.Inactivity.Start(session)
	c.cleanup = append(c.cleanup, c.Inactivity.Stop)

	c.Trails = service.NewTrailService(deps.Feed, session, service.TrailServiceOptions{
		Interval: cfg.Feed.PollInterval,
		Accumulator: trail.NewAccumulator(trail.Options{
			MaxPoints:   cfg.Feed.TrailMaxPoints,
			MinInterval: cfg.Feed.TrailMinInterval,
		}),
		Clock:  clk,
		Logger: logger.Named("trails"),
		OnSnapshot: func(snap trail.Snapshot) {
			c.Hub.BroadcastMessage(ws.MsgTypeTrails, snap)
		},
	})
	c.cleanup = append(c.cleanup, session.Subscribe(c.Trails.Observe))

	c.Manifests = service.NewManifestService(service.ManifestServiceOptions{
		Fetcher:  deps.Manifests,
		Session:  session,
		Vehicles: c.Trails,
		Logger:   logger.Named("manifest"),
	})

	c.cleanup = append(c.cleanup, session.Subscribe(func(st domainauth.State) {
		c.Hub.BroadcastMessage(ws.MsgTypeSessionState, httpx.NewSessionView(st))
	}))
	c.Hub.SetInitDataProvider(c.snapshot)
	c.Hub.SetMessageHandler(func(msg ws.InboundMessage) {
		if msg.Type != ws.MsgTypeActivity {
			logger.Debug("ignoring websocket message", zap.String("type", msg.Type))
			return
		}
		c.Inactivity.RecordActivity(msg.Event)
	})

	return c, nil
}

func (c *ServiceContainer) snapshot() any {
	return HubSnapshot{
		Session:    httpx.NewSessionView(c.Session.State()),
		Inactivity: c.Inactivity.Status(),
		Trails:     c.Trails.Snapshot(),
	}
}

// Close stops every follower, then the session service. It waits for
// in-flight background work.
func (c *ServiceContainer) Close() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil
}

// ServiceOrchestrationConfig contains dependencies for running the services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *zap.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(ctx context.Context, cfg ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunServices(ctx, cfg)
}

// RunServices runs the hub and every enabled service until ctx is done or one
// of them fails.
func RunServices(ctx context.Context, cfg ServiceOrchestrationConfig) error {
	if cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is incomplete")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cfg.Services.Hub.Run(gctx)
		return nil
	})

	switch {
	case cfg.Config.IsTrailPollerEnabled():
		g.Go(func() error {
			logger.Info("background service started", zap.String("service", "trail poller"))
			if runErr := cfg.Services.Trails.Run(gctx); runErr != nil {
				return fmt.Errorf("trail poller failed: %w", runErr)
			}
			logger.Info("trail poller stopped")
			return nil
		})
	case enabled[config.ServiceModeTrails]:
		logger.Warn("trail poller disabled: FEED_DATABASE_URL is not set")
	}

	if enabled[config.ServiceModeHTTP] {
		server := NewHTTPServer(HTTPServerConfig{
			Config:   cfg.Config.HTTP,
			Services: cfg.Services,
			Logger:   logger,
		})
		g.Go(func() error {
			if serveErr := ServeHTTP(gctx, server, ShutdownConfig{
				Timeout: cfg.Config.HTTP.ShutdownTimeout,
				Logger:  logger,
			}); serveErr != nil {
				return fmt.Errorf("http server failed: %w", serveErr)
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("services stopped")
	return err
}
