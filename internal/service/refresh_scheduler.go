package service

import (
	"context"
	"sync"
	"time"

	"github.com/target/cop-agent/internal/clock"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/tokens"
	"go.uber.org/zap"
)

const (
	// DefaultRefreshLead is how long before expiry a token is refreshed.
	DefaultRefreshLead = 60 * time.Second
	// DefaultRefreshMinDelay is the shortest delay ever scheduled.
	DefaultRefreshMinDelay = 10 * time.Second
)

// TokenRefresher refreshes the current session's tokens.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context) error
}

// SessionSubscriber delivers session states to fn until the returned cancel is called.
type SessionSubscriber interface {
	Subscribe(fn func(domainauth.State)) (cancel func())
}

// RefreshSchedulerOptions configures a RefreshScheduler.
type RefreshSchedulerOptions struct {
	Lead     time.Duration
	MinDelay time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
}

// RefreshScheduler keeps one timer that refreshes the access token shortly
// before it expires. The timer is re-armed whenever the token changes and
// cancelled on sign-out.
type RefreshScheduler struct {
	session  TokenRefresher
	clock    clock.Clock
	lead     time.Duration
	minDelay time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	token       string
	timer       clock.Timer
	due         time.Time
	seq         uint64
	stopped     bool
	unsubscribe func()
}

// NewRefreshScheduler creates a RefreshScheduler that calls session on expiry.
func NewRefreshScheduler(session TokenRefresher, opts RefreshSchedulerOptions) *RefreshScheduler {
	if opts.Lead <= 0 {
		opts.Lead = DefaultRefreshLead
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultRefreshMinDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RefreshScheduler{
		session:  session,
		clock:    clock.OrReal(opts.Clock),
		lead:     opts.Lead,
		minDelay: opts.MinDelay,
		logger:   opts.Logger,
	}
}

// Start follows src until Stop.
func (r *RefreshScheduler) Start(src SessionSubscriber) {
	cancel := src.Subscribe(r.Observe)
	r.mu.Lock()
	r.unsubscribe = cancel
	r.mu.Unlock()
}

// Observe reacts to a session state.
func (r *RefreshScheduler) Observe(st domainauth.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if !st.Authenticated {
		r.cancelLocked()
		r.token = ""
		return
	}
	token := st.AccessToken()
	if token == r.token {
		return
	}
	r.token = token
	r.armLocked(token)
}

func (r *RefreshScheduler) armLocked(token string) {
	r.cancelLocked()

	exp, err := tokens.Expiry(token)
	if err != nil {
		r.logger.Warn("could not decode token for refresh scheduling", zap.Error(err))
		return
	}
	now := r.clock.Now()
	delay := RefreshDelay(exp, now, r.lead, r.minDelay)

	r.seq++
	seq := r.seq
	r.due = now.Add(delay)
	r.timer = r.clock.AfterFunc(delay, func() { r.fire(seq) })
	r.logger.Info("token refresh scheduled",
		zap.Duration("expires_in", exp.Sub(now).Truncate(time.Second)),
		zap.Duration("refresh_in", delay))
}

func (r *RefreshScheduler) cancelLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.due = time.Time{}
	r.seq++
}

func (r *RefreshScheduler) fire(seq uint64) {
	r.mu.Lock()
	if r.stopped || seq != r.seq {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.due = time.Time{}
	r.mu.Unlock()

	if err := r.session.RefreshAccessToken(context.Background()); err != nil {
		r.logger.Info("scheduled token refresh failed", zap.Error(err))
	}
}

// nextRefresh returns when the pending refresh fires, if one is armed.
func (r *RefreshScheduler) nextRefresh() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.due, r.timer != nil
}

// Stop cancels the pending timer and stops following the session.
func (r *RefreshScheduler) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.cancelLocked()
	cancel := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// RefreshDelay computes max(exp - now - lead, minDelay) in whole seconds.
func RefreshDelay(exp, now time.Time, lead, minDelay time.Duration) time.Duration {
	secs := exp.Unix() - now.Unix() - int64(lead/time.Second)
	if floor := int64(minDelay / time.Second); secs < floor {
		secs = floor
	}
	return time.Duration(secs) * time.Second
}
