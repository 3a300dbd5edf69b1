package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/target/cop-agent/config"
	httpx "github.com/target/cop-agent/internal/http"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   config.HTTPConfig
	Services *ServiceContainer
	Logger   *zap.Logger
}

// NewHTTPServer builds the HTTP server around the agent router. The server is
// not started.
func NewHTTPServer(cfg HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Session:        cfg.Services.Session,
		Inactivity:     cfg.Services.Inactivity,
		Trails:         cfg.Services.Trails,
		Manifests:      cfg.Services.Manifests,
		Hub:            cfg.Services.Hub,
		AllowedOrigins: cfg.Config.AllowedOrigins,
		Logger:         logger,
	})

	addr := cfg.Config.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// No read/write timeouts: websocket connections are long-lived and the
	// hub sets its own deadlines.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Config.ReadHeaderTimeout,
		IdleTimeout:       cfg.Config.IdleTimeout,
		ErrorLog:          zap.NewStdLog(logger.Named("http")),
	}
}

// ServeHTTP runs server until ctx is done, then shuts it down gracefully.
func ServeHTTP(ctx context.Context, server *http.Server, shutdown ShutdownConfig) error {
	if shutdown.Logger == nil {
		shutdown.Logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	shutdown.Logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdown.Server = server
	if err := ShutdownHTTPServer(context.WithoutCancel(ctx), shutdown); err != nil {
		return err
	}
	return <-errCh
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Server  *http.Server
	Timeout time.Duration
	Logger  *zap.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
