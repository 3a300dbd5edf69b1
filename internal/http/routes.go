package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/target/cop-agent/pkg/ws"
	"go.uber.org/zap"
)

var errNotFound = errors.New("route not found")

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Session    SessionServiceInterface
	Inactivity InactivityServiceInterface
	Trails     TrailSource
	Manifests  ManifestSource
	// Hub is optional; without it /ws is not served.
	Hub            *ws.Hub
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates and configures the agent's HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	r.Use(CORS(DefaultCORSConfig(services.AllowedOrigins)))

	health := &HealthHandlers{Session: services.Session}
	if services.Hub != nil {
		health.Clients = services.Hub.ClientCount
	}
	r.Get("/healthz", health.Check)
	r.Head("/healthz", health.Check)

	if services.Hub != nil {
		r.Get("/ws", NewWSHandlers(services.Hub, services.AllowedOrigins, logger).Serve)
	}

	sessionHandlers := &SessionHandlers{Session: services.Session, Inactivity: services.Inactivity, Logger: logger}
	trailHandlers := &TrailHandlers{Trails: services.Trails, Manifests: services.Manifests, Logger: logger}

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandlers.Get)
			r.Post("/signin", sessionHandlers.SignIn)
			r.Post("/signout", sessionHandlers.SignOut)
			r.Post("/refresh", sessionHandlers.Refresh)
			r.Post("/activity", sessionHandlers.Activity)
			r.Post("/stay-signed-in", sessionHandlers.StaySignedIn)
			r.Post("/idle-signout", sessionHandlers.IdleSignOut)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(services.Session))
			r.Get("/trails", trailHandlers.List)
			r.Get("/vehicles/{id}/manifest", trailHandlers.Manifest)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
	})

	return r
}
