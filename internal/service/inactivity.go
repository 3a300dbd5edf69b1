package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/target/cop-agent/internal/clock"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	errs "github.com/target/cop-agent/internal/errors"
	"go.uber.org/zap"
)

const (
	// DefaultInactivityWarning is the idle time before the warning is shown.
	DefaultInactivityWarning = 5 * time.Second
	// DefaultInactivitySignOut is the idle time before the operator is signed out.
	DefaultInactivitySignOut = 120 * time.Second
)

// ActivityEvents are the UI events that count as operator activity.
var ActivityEvents = []string{"mousedown", "keydown", "scroll", "touchstart", "pointerdown"}

// IsActivityEvent reports whether name is one of ActivityEvents.
func IsActivityEvent(name string) bool {
	for _, e := range ActivityEvents {
		if e == name {
			return true
		}
	}
	return false
}

// InactivityStatus is the monitor's observable state.
type InactivityStatus struct {
	Active           bool `json:"active"`
	WarningVisible   bool `json:"warningVisible"`
	SecondsRemaining int  `json:"secondsRemaining"`
}

// IdleSignOuter ends the session for inactivity.
type IdleSignOuter interface {
	SignOutForInactivity(ctx context.Context) error
}

// InactivityMonitorOptions configures an InactivityMonitor.
type InactivityMonitorOptions struct {
	WarnAfter    time.Duration
	SignOutAfter time.Duration
	Clock        clock.Clock
	Logger       *zap.Logger
	// OnChange receives the status whenever the warning appears or clears.
	OnChange func(InactivityStatus)
}

// InactivityMonitor runs the two-stage idle policy while the session is
// authenticated: a warning after WarnAfter, then sign-out SignOutAfter-WarnAfter
// later unless the operator chooses to stay signed in.
type InactivityMonitor struct {
	session      IdleSignOuter
	clock        clock.Clock
	warnAfter    time.Duration
	signOutAfter time.Duration
	logger       *zap.Logger
	onChange     func(InactivityStatus)

	mu           sync.Mutex
	active       bool
	warning      bool
	deadline     time.Time
	warnTimer    clock.Timer
	signOutTimer clock.Timer
	epoch        uint64
	stopped      bool
	unsubscribe  func()
}

// NewInactivityMonitor creates an InactivityMonitor. SignOutAfter must exceed WarnAfter.
func NewInactivityMonitor(session IdleSignOuter, opts InactivityMonitorOptions) (*InactivityMonitor, error) {
	if opts.WarnAfter <= 0 {
		opts.WarnAfter = DefaultInactivityWarning
	}
	if opts.SignOutAfter <= 0 {
		opts.SignOutAfter = DefaultInactivitySignOut
	}
	if opts.SignOutAfter <= opts.WarnAfter {
		return nil, errors.New("inactivity sign-out must come after the warning")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &InactivityMonitor{
		session:      session,
		clock:        clock.OrReal(opts.Clock),
		warnAfter:    opts.WarnAfter,
		signOutAfter: opts.SignOutAfter,
		logger:       opts.Logger,
		onChange:     opts.OnChange,
	}, nil
}

// Start follows src until Stop.
func (m *InactivityMonitor) Start(src SessionSubscriber) {
	cancel := src.Subscribe(m.Observe)
	m.mu.Lock()
	m.unsubscribe = cancel
	m.mu.Unlock()
}

// Observe starts the policy on entering the authenticated state and cancels
// both stages on leaving it.
func (m *InactivityMonitor) Observe(st domainauth.State) {
	m.mu.Lock()
	if m.stopped || st.Authenticated == m.active {
		m.mu.Unlock()
		return
	}
	hadWarning := m.warning
	m.active = st.Authenticated
	if m.active {
		m.restartLocked()
	} else {
		m.clearLocked()
	}
	status := m.statusLocked()
	m.mu.Unlock()

	if hadWarning {
		m.emit(status)
	}
}

// RecordActivity resets the warning stage for a qualifying event. Activity is
// ignored while the warning is visible or no session is active.
func (m *InactivityMonitor) RecordActivity(event string) bool {
	if !IsActivityEvent(event) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active || m.warning {
		return false
	}
	m.restartLocked()
	return true
}

// StaySignedIn dismisses the warning and restarts the policy.
func (m *InactivityMonitor) StaySignedIn() error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return errs.NotAuthenticated()
	}
	hadWarning := m.warning
	m.restartLocked()
	status := m.statusLocked()
	m.mu.Unlock()

	if hadWarning {
		m.emit(status)
	}
	return nil
}

// SignOutNow signs the operator out for inactivity immediately.
func (m *InactivityMonitor) SignOutNow(ctx context.Context) error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return errs.NotAuthenticated()
	}
	m.active = false
	m.clearLocked()
	status := m.statusLocked()
	m.mu.Unlock()

	m.emit(status)
	return m.session.SignOutForInactivity(ctx)
}

// Status returns the current status. SecondsRemaining counts down to sign-out
// while the warning is visible and is zero otherwise.
func (m *InactivityMonitor) Status() InactivityStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Stop cancels both stages and stops following the session.
func (m *InactivityMonitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.active = false
	m.clearLocked()
	cancel := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *InactivityMonitor) restartLocked() {
	m.clearLocked()
	epoch := m.epoch
	m.warnTimer = m.clock.AfterFunc(m.warnAfter, func() { m.onWarn(epoch) })
}

// clearLocked stops both timers, hides the warning and invalidates pending callbacks.
func (m *InactivityMonitor) clearLocked() {
	if m.warnTimer != nil {
		m.warnTimer.Stop()
		m.warnTimer = nil
	}
	if m.signOutTimer != nil {
		m.signOutTimer.Stop()
		m.signOutTimer = nil
	}
	m.warning = false
	m.deadline = time.Time{}
	m.epoch++
}

func (m *InactivityMonitor) onWarn(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.active {
		m.mu.Unlock()
		return
	}
	m.warnTimer = nil
	m.warning = true
	grace := m.signOutAfter - m.warnAfter
	m.deadline = m.clock.Now().Add(grace)
	m.signOutTimer = m.clock.AfterFunc(grace, func() { m.onExpire(epoch) })
	status := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info("inactivity warning shown", zap.Int("seconds_remaining", status.SecondsRemaining))
	m.emit(status)
}

func (m *InactivityMonitor) onExpire(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || !m.active {
		m.mu.Unlock()
		return
	}
	m.signOutTimer = nil
	m.active = false
	m.clearLocked()
	status := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info("signing out for inactivity")
	m.emit(status)
	if err := m.session.SignOutForInactivity(context.Background()); err != nil {
		m.logger.Warn("inactivity sign-out failed", zap.Error(err))
	}
}

func (m *InactivityMonitor) statusLocked() InactivityStatus {
	st := InactivityStatus{Active: m.active, WarningVisible: m.warning}
	if m.warning {
		remaining := m.deadline.Sub(m.clock.Now())
		st.SecondsRemaining = max(int(math.Ceil(remaining.Seconds())), 0)
	}
	return st
}

func (m *InactivityMonitor) emit(st InactivityStatus) {
	if m.onChange != nil {
		m.onChange(st)
	}
}
