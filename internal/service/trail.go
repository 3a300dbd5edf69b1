package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/target/cop-agent/internal/clock"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/domain/trail"
	obserrors "github.com/target/cop-agent/internal/observability/errors"
	"github.com/target/cop-agent/internal/ports"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often the vehicle feed is polled.
const DefaultPollInterval = time.Second

// NoAccessEntitlement is the label the entitlement service returns when the
// caller has no specific grants. It disables filtering.
const NoAccessEntitlement = "NoAccess"

// SessionReader exposes the current session state.
type SessionReader interface {
	State() domainauth.State
}

// TrailServiceOptions configures a TrailService.
type TrailServiceOptions struct {
	Interval time.Duration
	// Accumulator defaults to one built with trail.Options{}.
	Accumulator *trail.Accumulator
	Clock       clock.Clock
	Logger      *zap.Logger
	// OnSnapshot is called with every newly published snapshot.
	OnSnapshot func(trail.Snapshot)
}

// TrailService polls the vehicle feed while a session is active and folds each
// batch into the trail accumulator.
type TrailService struct {
	feed       ports.VehicleFeed
	session    SessionReader
	acc        *trail.Accumulator
	clock      clock.Clock
	interval   time.Duration
	logger     *zap.Logger
	onSnapshot func(trail.Snapshot)

	mu     sync.Mutex
	latest map[string]trail.Sighting
	epoch  uint64
}

// NewTrailService creates a TrailService reading from feed.
func NewTrailService(feed ports.VehicleFeed, session SessionReader, opts TrailServiceOptions) *TrailService {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Accumulator == nil {
		opts.Accumulator = trail.NewAccumulator(trail.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &TrailService{
		feed:       feed,
		session:    session,
		acc:        opts.Accumulator,
		clock:      clock.OrReal(opts.Clock),
		interval:   opts.Interval,
		logger:     opts.Logger,
		onSnapshot: opts.OnSnapshot,
		latest:     make(map[string]trail.Sighting),
	}
}

// Run polls at the configured interval until ctx is cancelled.
func (t *TrailService) Run(ctx context.Context) error {
	t.logger.Info("starting trail poller", zap.Duration("interval", t.interval))

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("trail poller stopping", zap.Error(ctx.Err()))
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.Poll(ctx); err != nil {
				t.logger.Warn("vehicle poll failed", zap.String("error_class", obserrors.Classify(err)), zap.Error(err))
			}
		}
	}
}

// Poll runs one poll cycle and reports whether a new snapshot was published.
// It does nothing while signed out. A feed error or an empty batch leaves the
// trails untouched.
func (t *TrailService) Poll(ctx context.Context) (bool, error) {
	st := t.session.State()
	if !st.Authenticated || st.User == nil {
		return false, nil
	}

	t.mu.Lock()
	epoch := t.epoch
	t.mu.Unlock()

	sightings, err := t.feed.Vehicles(ctx)
	if err != nil {
		return false, err
	}
	visible := FilterByEntitlements(sightings, st.User.Entitlements)
	if len(visible) == 0 {
		return false, nil
	}

	batch := make([]trail.Input, 0, len(visible))
	latest := make(map[string]trail.Sighting, len(visible))
	for _, s := range visible {
		batch = append(batch, trail.Input{
			ID:    s.ID,
			Lat:   s.Lat,
			Lng:   s.Lng,
			Color: trail.ClassificationColor(s.PrimaryClassification()),
		})
		latest[s.ID] = s
	}

	t.mu.Lock()
	if epoch != t.epoch {
		// The session ended while the feed was being read.
		t.mu.Unlock()
		return false, nil
	}
	t.latest = latest
	snap, changed := t.acc.Update(batch, t.clock.Now())
	t.mu.Unlock()

	if changed {
		t.logger.Debug("trail snapshot published",
			zap.Uint64("version", snap.Version),
			zap.Int("trails", len(snap.Trails)))
		t.publish(snap)
	}
	return changed, nil
}

// Observe clears every trail when the session signs out.
func (t *TrailService) Observe(st domainauth.State) {
	if st.Authenticated {
		return
	}
	t.mu.Lock()
	t.epoch++
	before := t.acc.Snapshot().Version
	t.acc.Reset()
	snap := t.acc.Snapshot()
	t.latest = make(map[string]trail.Sighting)
	t.mu.Unlock()

	if snap.Version != before {
		t.publish(snap)
	}
}

// Snapshot returns the last published trail snapshot.
func (t *TrailService) Snapshot() trail.Snapshot {
	return t.acc.Snapshot()
}

// Sighting returns the most recent sighting of vehicle id.
func (t *TrailService) Sighting(id string) (trail.Sighting, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.latest[id]
	return s, ok
}

func (t *TrailService) publish(snap trail.Snapshot) {
	if t.onSnapshot != nil {
		t.onSnapshot(snap)
	}
}

// FilterByEntitlements keeps the sightings the holder of entitlements may see.
// An empty set or one containing NoAccessEntitlement passes everything;
// otherwise a sighting passes when it is unclassified or its first
// classification label is held.
func FilterByEntitlements(sightings []trail.Sighting, entitlements []string) []trail.Sighting {
	if len(entitlements) == 0 || slices.Contains(entitlements, NoAccessEntitlement) {
		return sightings
	}
	out := make([]trail.Sighting, 0, len(sightings))
	for _, s := range sightings {
		label := s.PrimaryClassification()
		if label == "" || slices.Contains(entitlements, label) {
			out = append(out, s)
		}
	}
	return out
}
