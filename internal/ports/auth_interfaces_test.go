package ports_test

import (
	"testing"

	"github.com/target/cop-agent/internal/adapters/memstore"
	"github.com/target/cop-agent/internal/mocks"
	authmocks "github.com/target/cop-agent/internal/mocks/auth"
	"github.com/target/cop-agent/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.CredentialBackend = (*authmocks.MockCredentialBackend)(nil)
	var _ ports.EntitlementFetcher = (*authmocks.StaticEntitlements)(nil)
	var _ ports.SessionEventSink = (*authmocks.RecordingEventSink)(nil)
	var _ ports.SessionStorage = (*memstore.Storage)(nil)

	var _ ports.CredentialBackend = (*mocks.MockCredentialBackend)(nil)
	var _ ports.EntitlementFetcher = (*mocks.MockEntitlementFetcher)(nil)
	var _ ports.ManifestFetcher = (*mocks.MockManifestFetcher)(nil)
}
