package auth

// Package auth contains simple hand-written test doubles for the session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"github.com/target/cop-agent/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialBackend  = (*MockCredentialBackend)(nil)
	_ ports.EntitlementFetcher = (*StaticEntitlements)(nil)
	_ ports.SessionEventSink   = (*RecordingEventSink)(nil)
)

// MockCredentialBackend simulates an identity provider with deterministic tokens.
// Set the Func fields to override behavior.
type MockCredentialBackend struct {
	SignInFunc        func(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error)
	SignOutFunc       func(ctx context.Context, user domainauth.User) error
	RefreshTokensFunc func(ctx context.Context, user domainauth.User) (domainauth.TokenPair, error)

	// AccessToken is returned by the default SignIn. Empty yields "access-1".
	AccessToken string

	mu       sync.Mutex
	signIns  int
	signOuts int
	refresh  int
}

// NewMockCredentialBackend creates a MockCredentialBackend issuing accessToken on sign-in.
func NewMockCredentialBackend(accessToken string) *MockCredentialBackend {
	return &MockCredentialBackend{AccessToken: accessToken}
}

func (m *MockCredentialBackend) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error) {
	m.mu.Lock()
	m.signIns++
	m.mu.Unlock()

	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, creds)
	}

	token := m.AccessToken
	if token == "" {
		token = "access-1"
	}
	username := creds.Username
	if username == "" {
		username = "service-account"
	}
	return domainauth.User{
		ID:           "user-" + username,
		Username:     username,
		AccessToken:  token,
		RefreshToken: "refresh-1",
	}, nil
}

func (m *MockCredentialBackend) SignOut(ctx context.Context, user domainauth.User) error {
	m.mu.Lock()
	m.signOuts++
	m.mu.Unlock()

	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx, user)
	}
	return nil
}

func (m *MockCredentialBackend) RefreshTokens(ctx context.Context, user domainauth.User) (domainauth.TokenPair, error) {
	m.mu.Lock()
	m.refresh++
	n := m.refresh
	m.mu.Unlock()

	if m.RefreshTokensFunc != nil {
		return m.RefreshTokensFunc(ctx, user)
	}
	return domainauth.TokenPair{
		AccessToken:  fmt.Sprintf("access-r%d", n),
		RefreshToken: fmt.Sprintf("refresh-r%d", n),
	}, nil
}

// SignIns returns how many times SignIn was called.
func (m *MockCredentialBackend) SignIns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signIns
}

// SignOuts returns how many times SignOut was called.
func (m *MockCredentialBackend) SignOuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOuts
}

// Refreshes returns how many times RefreshTokens was called.
func (m *MockCredentialBackend) Refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

// StaticEntitlements returns a fixed label set, or Err when set.
type StaticEntitlements struct {
	Labels []string
	Err    error

	mu      sync.Mutex
	headers []string
}

func (s *StaticEntitlements) GetEntitlements(_ context.Context, authHeader string) ([]string, error) {
	s.mu.Lock()
	s.headers = append(s.headers, authHeader)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return append([]string{}, s.Labels...), nil
}

// Headers returns the authorization headers seen so far.
func (s *StaticEntitlements) Headers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.headers...)
}

// RecordingEventSink keeps every published session event.
type RecordingEventSink struct {
	Err error

	mu     sync.Mutex
	events []domainauth.SessionEvent
}

func (r *RecordingEventSink) Publish(_ context.Context, ev domainauth.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns the published events in order.
func (r *RecordingEventSink) Events() []domainauth.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domainauth.SessionEvent{}, r.events...)
}

// Kinds returns the kinds of the published events in order.
func (r *RecordingEventSink) Kinds() []domainauth.SessionEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domainauth.SessionEventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// ErrRejected is a generic backend refusal for tests.
var ErrRejected = errors.New("credentials rejected")
