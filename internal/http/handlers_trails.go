package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/target/cop-agent/internal/domain/manifest"
	"github.com/target/cop-agent/internal/domain/trail"
	"go.uber.org/zap"
)

// TrailSource returns the latest trail snapshot.
type TrailSource interface {
	Snapshot() trail.Snapshot
}

// ManifestSource loads a vehicle's manifest.
type ManifestSource interface {
	ForVehicle(ctx context.Context, vehicleID string) (*manifest.Manifest, error)
}

// TrailHandlers serves trails and vehicle manifests.
type TrailHandlers struct {
	Trails    TrailSource
	Manifests ManifestSource
	Logger    *zap.Logger
}

// List returns the current trail snapshot.
// GET /api/trails.
func (h *TrailHandlers) List(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Trails.Snapshot())
}

// Manifest returns the manifest of the vehicle named in the path.
// GET /api/vehicles/{id}/manifest.
func (h *TrailHandlers) Manifest(w http.ResponseWriter, r *http.Request) {
	m, err := h.Manifests.ForVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}
