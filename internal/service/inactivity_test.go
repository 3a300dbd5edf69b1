package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/testutil"
)

type idleRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *idleRecorder) SignOutForInactivity(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *idleRecorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type statusRecorder struct {
	mu   sync.Mutex
	seen []InactivityStatus
}

func (r *statusRecorder) record(st InactivityStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, st)
}

func (r *statusRecorder) All() []InactivityStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InactivityStatus(nil), r.seen...)
}

var signedInState = domainauth.State{Authenticated: true, User: &domainauth.User{ID: "u1", AccessToken: "a"}}

func newTestMonitor(t *testing.T) (*InactivityMonitor, *idleRecorder, *statusRecorder, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	idle := &idleRecorder{}
	statuses := &statusRecorder{}
	m, err := NewInactivityMonitor(idle, InactivityMonitorOptions{
		Clock:    clk,
		OnChange: statuses.record,
	})
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, idle, statuses, clk
}

func TestNewInactivityMonitor_RejectsSignOutBeforeWarning(t *testing.T) {
	_, err := NewInactivityMonitor(&idleRecorder{}, InactivityMonitorOptions{
		WarnAfter:    10 * time.Second,
		SignOutAfter: 10 * time.Second,
	})
	assert.Error(t, err)
}

func TestInactivityMonitor_InactiveWhileSignedOut(t *testing.T) {
	m, _, _, clk := newTestMonitor(t)

	assert.Equal(t, InactivityStatus{}, m.Status())
	assert.Zero(t, clk.Pending())
	assert.False(t, m.RecordActivity("keydown"))
	assert.True(t, errs.IsNotAuthenticated(m.StaySignedIn()))
	assert.True(t, errs.IsNotAuthenticated(m.SignOutNow(context.Background())))
}

func TestInactivityMonitor_WarningThenSignOut(t *testing.T) {
	m, idle, statuses, clk := newTestMonitor(t)
	m.Observe(signedInState)

	assert.Equal(t, InactivityStatus{Active: true}, m.Status())
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(4 * time.Second)
	assert.False(t, m.Status().WarningVisible)

	clk.Advance(time.Second)
	st := m.Status()
	assert.True(t, st.WarningVisible)
	assert.Equal(t, 115, st.SecondsRemaining)
	require.Len(t, statuses.All(), 1)
	assert.Equal(t, InactivityStatus{Active: true, WarningVisible: true, SecondsRemaining: 115}, statuses.All()[0])

	clk.Advance(114 * time.Second)
	assert.Zero(t, idle.Calls())
	assert.Equal(t, 1, m.Status().SecondsRemaining)

	clk.Advance(time.Second)
	assert.Equal(t, 1, idle.Calls())
	assert.Equal(t, InactivityStatus{}, m.Status())
	assert.Zero(t, clk.Pending())
	assert.False(t, statuses.All()[len(statuses.All())-1].WarningVisible)
}

func TestInactivityMonitor_CountdownRoundsUp(t *testing.T) {
	m, _, _, clk := newTestMonitor(t)
	m.Observe(signedInState)
	clk.Advance(5 * time.Second)

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, 115, m.Status().SecondsRemaining)

	clk.Advance(10 * time.Second)
	assert.Equal(t, 105, m.Status().SecondsRemaining)
}

func TestInactivityMonitor_ActivityResetsWarningStage(t *testing.T) {
	m, _, _, clk := newTestMonitor(t)
	m.Observe(signedInState)

	clk.Advance(4 * time.Second)
	assert.True(t, m.RecordActivity("keydown"))

	clk.Advance(4 * time.Second)
	assert.False(t, m.Status().WarningVisible, "activity restarted the warning stage")
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(time.Second)
	assert.True(t, m.Status().WarningVisible)
}

func TestInactivityMonitor_ActivityIgnoredDuringWarning(t *testing.T) {
	m, idle, _, clk := newTestMonitor(t)
	m.Observe(signedInState)
	clk.Advance(5 * time.Second)
	require.True(t, m.Status().WarningVisible)

	for _, ev := range ActivityEvents {
		assert.False(t, m.RecordActivity(ev), ev)
	}
	assert.True(t, m.Status().WarningVisible)

	clk.Advance(115 * time.Second)
	assert.Equal(t, 1, idle.Calls())
}

func TestInactivityMonitor_UnknownEventsIgnored(t *testing.T) {
	m, _, _, clk := newTestMonitor(t)
	m.Observe(signedInState)

	clk.Advance(4 * time.Second)
	assert.False(t, m.RecordActivity("mousemove"))
	assert.False(t, m.RecordActivity(""))

	clk.Advance(time.Second)
	assert.True(t, m.Status().WarningVisible)
}

func TestInactivityMonitor_StaySignedIn(t *testing.T) {
	m, idle, statuses, clk := newTestMonitor(t)
	m.Observe(signedInState)
	clk.Advance(5 * time.Second)
	require.True(t, m.Status().WarningVisible)

	require.NoError(t, m.StaySignedIn())
	assert.Equal(t, InactivityStatus{Active: true}, m.Status())
	assert.Equal(t, 1, clk.Pending(), "only the warning stage is armed")

	all := statuses.All()
	require.Len(t, all, 2)
	assert.Equal(t, InactivityStatus{Active: true}, all[1])

	// The old sign-out deadline passes without effect.
	clk.Advance(115 * time.Second)
	assert.Zero(t, idle.Calls())
	assert.True(t, m.Status().WarningVisible, "warning stage restarted and expired again")
}

func TestInactivityMonitor_SignOutNow(t *testing.T) {
	m, idle, _, clk := newTestMonitor(t)
	m.Observe(signedInState)
	clk.Advance(5 * time.Second)

	require.NoError(t, m.SignOutNow(context.Background()))
	assert.Equal(t, 1, idle.Calls())
	assert.Equal(t, InactivityStatus{}, m.Status())
	assert.Zero(t, clk.Pending())

	clk.Advance(time.Hour)
	assert.Equal(t, 1, idle.Calls())
}

func TestInactivityMonitor_SignOutCancelsBothStages(t *testing.T) {
	m, idle, statuses, clk := newTestMonitor(t)
	m.Observe(signedInState)
	clk.Advance(5 * time.Second)
	require.Equal(t, 1, clk.Pending())

	m.Observe(domainauth.State{})
	assert.Zero(t, clk.Pending())
	assert.Equal(t, InactivityStatus{}, m.Status())
	all := statuses.All()
	assert.False(t, all[len(all)-1].WarningVisible, "warning cleared for listeners")

	clk.Advance(time.Hour)
	assert.Zero(t, idle.Calls())
}

func TestInactivityMonitor_RepeatedAuthenticatedStatesDoNotRestart(t *testing.T) {
	m, _, _, clk := newTestMonitor(t)
	m.Observe(signedInState)
	clk.Advance(4 * time.Second)

	// A token refresh publishes another authenticated state.
	m.Observe(domainauth.State{Authenticated: true, User: &domainauth.User{ID: "u1", AccessToken: "b"}})
	clk.Advance(time.Second)
	assert.True(t, m.Status().WarningVisible)
}

func TestInactivityMonitor_FollowsSession(t *testing.T) {
	f := newSessionFixture(t, func(o *SessionServiceOptions) { o.Entitlements = nil })
	m, err := NewInactivityMonitor(f.svc, InactivityMonitorOptions{Clock: f.clock})
	require.NoError(t, err)
	m.Start(f.svc)
	defer m.Stop()

	_, err = f.svc.SignIn(context.Background(), domainauth.Credentials{})
	require.NoError(t, err)
	assert.True(t, m.Status().Active)

	f.clock.Advance(DefaultInactivitySignOut)

	st := f.svc.State()
	assert.False(t, st.Authenticated)
	assert.Equal(t, domainauth.MsgInactivity, st.Error)
	assert.False(t, m.Status().Active)
}
