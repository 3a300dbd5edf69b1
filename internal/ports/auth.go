package ports

// Package ports defines interfaces (hexagonal ports) for session, feed and manifest behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/cop-agent/internal/domain/auth"
)

// CredentialBackend authenticates an operator against one identity provider.
type CredentialBackend interface {
	// SignIn exchanges credentials for a user carrying fresh tokens.
	SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error)

	// SignOut ends the provider-side session for user. Callers treat failure as non-fatal.
	SignOut(ctx context.Context, user domainauth.User) error

	// RefreshTokens obtains a new token pair for user.
	RefreshTokens(ctx context.Context, user domainauth.User) (domainauth.TokenPair, error)
}

// EntitlementFetcher returns the entitlement labels granted to the bearer of authHeader.
type EntitlementFetcher interface {
	GetEntitlements(ctx context.Context, authHeader string) ([]string, error)
}

// SessionStorage is the durable key/value mirror of the session.
type SessionStorage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// SessionEventSink receives audit events for session transitions.
type SessionEventSink interface {
	Publish(ctx context.Context, ev domainauth.SessionEvent) error
}
