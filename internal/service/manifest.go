package service

import (
	"context"
	"errors"

	"github.com/target/cop-agent/internal/domain/manifest"
	"github.com/target/cop-agent/internal/domain/trail"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/ports"
	"go.uber.org/zap"
)

// SightingLookup finds the latest sighting of a vehicle.
type SightingLookup interface {
	Sighting(id string) (trail.Sighting, bool)
}

// ManifestServiceOptions configures a ManifestService.
type ManifestServiceOptions struct {
	Fetcher  ports.ManifestFetcher
	Session  SessionReader
	Vehicles SightingLookup
	Logger   *zap.Logger
}

// ManifestService loads vehicle manifests with the signed-in operator's token.
type ManifestService struct {
	fetcher  ports.ManifestFetcher
	session  SessionReader
	vehicles SightingLookup
	logger   *zap.Logger
}

// NewManifestService creates a ManifestService.
func NewManifestService(opts ManifestServiceOptions) *ManifestService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ManifestService{
		fetcher:  opts.Fetcher,
		session:  opts.Session,
		vehicles: opts.Vehicles,
		logger:   opts.Logger,
	}
}

// ForVehicle fetches the manifest referenced by the vehicle's latest sighting.
func (s *ManifestService) ForVehicle(ctx context.Context, vehicleID string) (*manifest.Manifest, error) {
	if !s.session.State().Authenticated {
		return nil, errs.NotAuthenticated()
	}
	sighting, ok := s.vehicles.Sighting(vehicleID)
	if !ok {
		return nil, errs.NotFoundf("vehicle %q not found", vehicleID)
	}
	return s.Fetch(ctx, sighting.ManifestURI)
}

// Fetch loads the manifest at uri. Entitlement denials and invalid URIs keep
// their codes; every other failure is reported as a generic manifest failure.
func (s *ManifestService) Fetch(ctx context.Context, uri string) (*manifest.Manifest, error) {
	st := s.session.State()
	if !st.Authenticated {
		return nil, errs.NotAuthenticated()
	}
	if uri == "" {
		return nil, errs.NotFound("No manifest URI available")
	}
	if s.fetcher == nil {
		return nil, errs.New(errs.ErrCodeUnavailable, "Manifest storage is not configured")
	}

	m, err := s.fetcher.FetchManifest(ctx, st.AccessToken(), uri)
	switch {
	case err == nil:
		return m, nil
	case errs.IsManifestDenied(err) || errors.Is(err, manifest.ErrAccessDenied):
		s.logger.Info("manifest access denied", zap.String("uri", uri))
		if errs.IsManifestDenied(err) {
			return nil, err
		}
		return nil, errs.Wrap(err, errs.ErrCodeManifestDenied, "Access Denied: Insufficient entitlements")
	case errs.IsValidation(err):
		return nil, err
	default:
		s.logger.Warn("manifest fetch failed", zap.String("uri", uri), zap.Error(err))
		return nil, errs.Wrap(err, errs.ErrCodeManifestFailed, "Manifest fetch failed")
	}
}
