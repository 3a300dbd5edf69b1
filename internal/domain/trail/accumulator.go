package trail

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxPoints caps each trail; older points are evicted first.
	DefaultMaxPoints = 5000
	// DefaultMinInterval throttles how often a vehicle's position is recorded.
	DefaultMinInterval = 2 * time.Second
)

// Options configures an Accumulator. Zero values fall back to defaults.
type Options struct {
	MaxPoints   int
	MinInterval time.Duration
}

// Input is one vehicle position handed to Update.
type Input struct {
	ID    string
	Lat   float64
	Lng   float64
	Color string
}

type entry struct {
	points       []Point
	color        string
	lastRecorded time.Time
}

// Accumulator keeps a bounded, throttled trail per vehicle and publishes
// snapshots only when something changed. Safe for concurrent use.
type Accumulator struct {
	mu          sync.RWMutex
	maxPoints   int
	minInterval time.Duration
	entries     map[string]*entry
	snapshot    Snapshot
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator(opts Options) *Accumulator {
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = DefaultMaxPoints
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	return &Accumulator{
		maxPoints:   opts.MaxPoints,
		minInterval: opts.MinInterval,
		entries:     make(map[string]*entry),
		snapshot:    Snapshot{Trails: []Trail{}},
	}
}

// Update folds one batch into the store. It returns the current snapshot and
// whether a new one was published.
func (a *Accumulator) Update(batch []Input, now time.Time) (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := false
	seen := make(map[string]struct{}, len(batch))

	for _, in := range batch {
		seen[in.ID] = struct{}{}

		e, ok := a.entries[in.ID]
		if !ok {
			e = &entry{}
			a.entries[in.ID] = e
		}
		// Color follows the latest sighting but is not a change on its own.
		e.color = in.Color

		if now.Sub(e.lastRecorded) < a.minInterval {
			continue
		}
		if n := len(e.points); n > 0 && samePosition(e.points[n-1], in) {
			continue
		}

		e.points = append(e.points, Point{Lat: in.Lat, Lng: in.Lng, Timestamp: now})
		if over := len(e.points) - a.maxPoints; over > 0 {
			kept := copy(e.points, e.points[over:])
			e.points = e.points[:kept]
		}
		e.lastRecorded = now
		changed = true
	}

	for id := range a.entries {
		if _, ok := seen[id]; !ok {
			delete(a.entries, id)
			changed = true
		}
	}

	if changed {
		a.publish()
	}
	return a.snapshot, changed
}

// Snapshot returns the last published snapshot.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Len reports how many vehicles are tracked, including those with a single point.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Reset drops every trail and publishes an empty snapshot if anything was tracked.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return
	}
	a.entries = make(map[string]*entry)
	a.publish()
}

// publish must be called with mu held.
func (a *Accumulator) publish() {
	trails := make([]Trail, 0, len(a.entries))
	for id, e := range a.entries {
		if len(e.points) < 2 {
			continue
		}
		pts := make([]Point, len(e.points))
		copy(pts, e.points)
		trails = append(trails, Trail{VehicleID: id, Points: pts, Color: e.color})
	}
	sort.Slice(trails, func(i, j int) bool { return trails[i].VehicleID < trails[j].VehicleID })

	a.snapshot = Snapshot{Version: a.snapshot.Version + 1, Trails: trails}
}

// samePosition compares coordinates bit for bit.
func samePosition(p Point, in Input) bool {
	return math.Float64bits(p.Lat) == math.Float64bits(in.Lat) &&
		math.Float64bits(p.Lng) == math.Float64bits(in.Lng)
}

// ClassificationColor maps a classification label to a stable hex color.
// An empty label maps like "default".
func ClassificationColor(label string) string {
	if label == "" {
		label = "default"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	sum := h.Sum32()
	return fmt.Sprintf("#%02x%02x%02x", byte(sum>>16), byte(sum>>8), byte(sum))
}
