package trail

// Package trail holds the vehicle trail domain: polled sightings, recorded
// points and the accumulator that turns one into the other.

import "time"

// Point is a recorded position. Immutable once appended.
type Point struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Trail is one vehicle's path as published in a snapshot.
type Trail struct {
	VehicleID string  `json:"vehicleId"`
	Points    []Point `json:"points"`
	Color     string  `json:"color"`
}

// Sighting is one polled vehicle position.
type Sighting struct {
	ID             string         `json:"id"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	Classification []string       `json:"classification,omitempty"`
	ManifestURI    string         `json:"manifestUri,omitempty"`
	ObservedAt     time.Time      `json:"observedAt"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// PrimaryClassification returns the first classification label, or "" when none.
func (s Sighting) PrimaryClassification() string {
	if len(s.Classification) == 0 {
		return ""
	}
	return s.Classification[0]
}

// Snapshot is the published view of all trails with at least two points.
// Version increases by one each time the accumulator publishes.
type Snapshot struct {
	Version uint64  `json:"version"`
	Trails  []Trail `json:"trails"`
}
