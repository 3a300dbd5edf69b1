// Package postgres reads vehicle sightings from the platform's tdf_objects table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/cop-agent/internal/clock"
	"github.com/target/cop-agent/internal/domain/trail"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/ports"
	"go.uber.org/zap"
)

var _ ports.VehicleFeed = (*VehicleFeed)(nil)

const (
	// DefaultSourceType is the src_type of vehicle rows.
	DefaultSourceType = "vehicles"
	// DefaultLookback bounds how far back sightings are read.
	DefaultLookback = 24 * time.Hour

	attrClassification = "attrClassification"
	attrManifest       = "manifest"
)

const vehiclesQuery = `
SELECT id::text, ts, ST_AsGeoJSON(geo), search::text, metadata::text
FROM tdf_objects
WHERE src_type = $1 AND ts >= $2 AND geo IS NOT NULL
ORDER BY ts DESC`

// Querier is the subset of pgxpool.Pool used by VehicleFeed.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// VehicleFeedOptions configures a VehicleFeed.
type VehicleFeedOptions struct {
	SourceType string
	Lookback   time.Duration
	Clock      clock.Clock
	Logger     *zap.Logger
}

// VehicleFeed implements ports.VehicleFeed over a Postgres/PostGIS database.
type VehicleFeed struct {
	db         Querier
	sourceType string
	lookback   time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

// NewVehicleFeed creates a VehicleFeed reading through db.
func NewVehicleFeed(db Querier, opts VehicleFeedOptions) *VehicleFeed {
	if opts.SourceType == "" {
		opts.SourceType = DefaultSourceType
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &VehicleFeed{
		db:         db,
		sourceType: opts.SourceType,
		lookback:   opts.Lookback,
		clock:      clock.OrReal(opts.Clock),
		logger:     opts.Logger,
	}
}

type vehicleRow struct {
	ID       string
	TS       time.Time
	Geo      *string
	Search   *string
	Metadata *string
}

// Vehicles returns one sighting per row, newest first. Rows whose geometry
// cannot be decoded are skipped; a vehicle id seen twice keeps its newest row.
func (f *VehicleFeed) Vehicles(ctx context.Context) ([]trail.Sighting, error) {
	since := f.clock.Now().Add(-f.lookback)

	rows, err := f.db.Query(ctx, vehiclesQuery, f.sourceType, since)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", errs.MapDBError(err))
	}
	defer rows.Close()

	out := make([]trail.Sighting, 0)
	seen := make(map[string]struct{})
	for rows.Next() {
		var r vehicleRow
		if err := rows.Scan(&r.ID, &r.TS, &r.Geo, &r.Search, &r.Metadata); err != nil {
			return nil, fmt.Errorf("scan vehicle row: %w", errs.MapDBError(err))
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		s, err := toSighting(r)
		if err != nil {
			f.logger.Debug("skipping vehicle row", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vehicle rows: %w", errs.MapDBError(err))
	}
	return out, nil
}

func toSighting(r vehicleRow) (trail.Sighting, error) {
	if r.Geo == nil {
		return trail.Sighting{}, errors.New("missing geometry")
	}
	lat, lng, err := ParsePoint(*r.Geo)
	if err != nil {
		return trail.Sighting{}, err
	}
	attrs := MergeAttributes(deref(r.Metadata), deref(r.Search))
	return trail.Sighting{
		ID:             r.ID,
		Lat:            lat,
		Lng:            lng,
		Classification: Classification(attrs),
		ManifestURI:    stringAttr(attrs, attrManifest),
		ObservedAt:     r.TS,
		Attributes:     attrs,
	}, nil
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// ParsePoint decodes a GeoJSON point. Coordinates are ordered [lng, lat].
func ParsePoint(geo string) (lat, lng float64, err error) {
	var p geoJSONPoint
	if err := json.Unmarshal([]byte(geo), &p); err != nil {
		return 0, 0, fmt.Errorf("decode geojson: %w", err)
	}
	if len(p.Coordinates) < 2 {
		return 0, 0, fmt.Errorf("geojson %q has %d coordinates", p.Type, len(p.Coordinates))
	}
	return p.Coordinates[1], p.Coordinates[0], nil
}

// MergeAttributes decodes the metadata and search JSON documents into one map.
// Keys in search win. Missing, "null" or malformed documents contribute nothing.
func MergeAttributes(metadata, search string) map[string]any {
	out := make(map[string]any)
	for _, doc := range []string{metadata, search} {
		if doc == "" || doc == "null" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			continue
		}
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Classification returns the attrClassification labels. The attribute may be a
// single string or an array; non-string elements are ignored.
func Classification(attrs map[string]any) []string {
	switch v := attrs[attrClassification].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		var out []string
		for _, el := range v {
			if s, ok := el.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
