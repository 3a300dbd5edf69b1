package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-ops1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

func TestRefreshDelay(t *testing.T) {
	now := time.Unix(1_740_830_400, 0)
	tests := []struct {
		name string
		exp  time.Time
		want time.Duration
	}{
		{name: "five minutes left", exp: now.Add(5 * time.Minute), want: 240 * time.Second},
		{name: "seventy one seconds left", exp: now.Add(71 * time.Second), want: 11 * time.Second},
		{name: "seventy seconds left", exp: now.Add(70 * time.Second), want: 10 * time.Second},
		{name: "thirty seconds left", exp: now.Add(30 * time.Second), want: 10 * time.Second},
		{name: "already expired", exp: now.Add(-time.Hour), want: 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefreshDelay(tt.exp, now, DefaultRefreshLead, DefaultRefreshMinDelay))
		})
	}
}

func TestRefreshDelay_IgnoresSubSecondNow(t *testing.T) {
	exp := time.Unix(1_740_830_700, 0)
	now := time.Unix(1_740_830_400, 900_000_000)
	assert.Equal(t, 240*time.Second, RefreshDelay(exp, now, DefaultRefreshLead, DefaultRefreshMinDelay))
}

func TestRefreshScheduler_RefreshesBeforeExpiry(t *testing.T) {
	f := newSessionFixture(t, func(o *SessionServiceOptions) { o.Entitlements = nil })
	ctx := context.Background()
	ttl := 5 * time.Minute

	f.keycloak.SignInFunc = func(context.Context, domainauth.Credentials) (domainauth.User, error) {
		return domainauth.User{ID: "svc", AccessToken: signedToken(t, f.clock.Now().Add(ttl))}, nil
	}
	refreshed := 0
	f.keycloak.RefreshTokensFunc = func(context.Context, domainauth.User) (domainauth.TokenPair, error) {
		refreshed++
		// Distinct tokens even when issued in the same second.
		return domainauth.TokenPair{AccessToken: signedToken(t, f.clock.Now().Add(ttl+time.Duration(refreshed)*time.Second))}, nil
	}

	sched := NewRefreshScheduler(f.svc, RefreshSchedulerOptions{Clock: f.clock})
	sched.Start(f.svc)
	defer sched.Stop()

	_, ok := sched.nextRefresh()
	assert.False(t, ok, "nothing armed while signed out")

	start := f.clock.Now()
	_, err := f.svc.SignIn(ctx, domainauth.Credentials{})
	require.NoError(t, err)

	due, ok := sched.nextRefresh()
	require.True(t, ok)
	assert.Equal(t, start.Add(240*time.Second), due)

	f.clock.Advance(239 * time.Second)
	assert.Zero(t, refreshed)

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, refreshed)
	assert.True(t, f.svc.State().Authenticated)

	// The refreshed token re-arms the timer.
	due, ok = sched.nextRefresh()
	require.True(t, ok)
	assert.Equal(t, start.Add(240*time.Second+241*time.Second), due)
	assert.Equal(t, 1, f.clock.Pending())
}

func TestRefreshScheduler_SignOutCancels(t *testing.T) {
	f := newSessionFixture(t, func(o *SessionServiceOptions) { o.Entitlements = nil })
	ctx := context.Background()
	f.keycloak.SignInFunc = func(context.Context, domainauth.Credentials) (domainauth.User, error) {
		return domainauth.User{ID: "svc", AccessToken: signedToken(t, f.clock.Now().Add(time.Hour))}, nil
	}

	sched := NewRefreshScheduler(f.svc, RefreshSchedulerOptions{Clock: f.clock})
	sched.Start(f.svc)
	defer sched.Stop()

	_, err := f.svc.SignIn(ctx, domainauth.Credentials{})
	require.NoError(t, err)
	require.Equal(t, 1, f.clock.Pending())

	require.NoError(t, f.svc.SignOut(ctx))
	assert.Zero(t, f.clock.Pending())

	f.clock.Advance(2 * time.Hour)
	assert.Zero(t, f.keycloak.Refreshes())
}

func TestRefreshScheduler_UndecodableToken(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newSessionFixture(t, func(o *SessionServiceOptions) { o.Entitlements = nil })

	sched := NewRefreshScheduler(f.svc, RefreshSchedulerOptions{Clock: f.clock, Logger: zap.New(core)})
	sched.Start(f.svc)
	defer sched.Stop()

	// The default mock token is not a JWT.
	_, err := f.svc.SignIn(context.Background(), domainauth.Credentials{})
	require.NoError(t, err)

	assert.Zero(t, f.clock.Pending())
	assert.Equal(t, 1, logs.FilterMessage("could not decode token for refresh scheduling").Len())
}

func TestRefreshScheduler_TokenChangeReplacesTimer(t *testing.T) {
	f := newSessionFixture(t)
	sched := NewRefreshScheduler(f.svc, RefreshSchedulerOptions{Clock: f.clock})
	defer sched.Stop()

	now := f.clock.Now()
	user := domainauth.User{ID: "u", AccessToken: signedToken(t, now.Add(time.Hour))}
	sched.Observe(domainauth.State{Authenticated: true, User: &user})
	due1, ok := sched.nextRefresh()
	require.True(t, ok)

	user2 := user
	user2.AccessToken = signedToken(t, now.Add(2*time.Minute))
	sched.Observe(domainauth.State{Authenticated: true, User: &user2})
	due2, ok := sched.nextRefresh()
	require.True(t, ok)

	assert.Equal(t, now.Add(59*time.Minute), due1)
	assert.Equal(t, now.Add(60*time.Second), due2)
	assert.Equal(t, 1, f.clock.Pending(), "only one timer is ever armed")

	// Same token again is not a change.
	sched.Observe(domainauth.State{Authenticated: true, User: &user2})
	due3, _ := sched.nextRefresh()
	assert.Equal(t, due2, due3)
}

func TestRefreshScheduler_Stop(t *testing.T) {
	f := newSessionFixture(t)
	sched := NewRefreshScheduler(f.svc, RefreshSchedulerOptions{Clock: f.clock})

	user := domainauth.User{ID: "u", AccessToken: signedToken(t, f.clock.Now().Add(time.Hour))}
	sched.Observe(domainauth.State{Authenticated: true, User: &user})
	require.Equal(t, 1, f.clock.Pending())

	sched.Stop()
	assert.Zero(t, f.clock.Pending())

	sched.Observe(domainauth.State{Authenticated: true, User: &user})
	assert.Zero(t, f.clock.Pending(), "stopped scheduler ignores states")
}
