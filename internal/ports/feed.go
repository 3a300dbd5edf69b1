package ports

import (
	"context"

	"github.com/target/cop-agent/internal/domain/manifest"
	"github.com/target/cop-agent/internal/domain/trail"
)

// VehicleFeed returns the latest known position of every vehicle in view.
type VehicleFeed interface {
	Vehicles(ctx context.Context) ([]trail.Sighting, error)
}

// ManifestFetcher loads a vehicle manifest from object storage on behalf of the
// holder of accessToken. Entitlement denials are reported as manifest.ErrAccessDenied.
type ManifestFetcher interface {
	FetchManifest(ctx context.Context, accessToken, uri string) (*manifest.Manifest, error)
}
