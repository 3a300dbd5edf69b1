// Package mocks provides mock implementations for testing cop-agent.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockCredentialBackend(ctrl)
//	backend.EXPECT().SignIn(gomock.Any(), gomock.Any()).Return(user, nil)
package mocks

// Generate mock for CredentialBackend interface from internal/ports package.
// This creates MockCredentialBackend with methods for all CredentialBackend interface methods:
// SignIn, SignOut, RefreshTokens
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_backend_mock.go github.com/target/cop-agent/internal/ports CredentialBackend

// Generate mock for EntitlementFetcher interface from internal/ports package.
// This creates MockEntitlementFetcher with methods for all EntitlementFetcher interface methods:
// GetEntitlements
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=entitlement_fetcher_mock.go github.com/target/cop-agent/internal/ports EntitlementFetcher

// Generate mock for ManifestFetcher interface from internal/ports package.
// This creates MockManifestFetcher with methods for all ManifestFetcher interface methods:
// FetchManifest
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=manifest_fetcher_mock.go github.com/target/cop-agent/internal/ports ManifestFetcher
