package config

import "strings"

// KeycloakConfig configures the client-credentials backend used when the
// operator signs in without credentials.
type KeycloakConfig struct {
	BaseURL      string `env:"BASE_URL"`
	Realm        string `env:"REALM"         envDefault:"cop"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid"`
}

// Enabled reports whether enough is configured to build the backend.
func (c KeycloakConfig) Enabled() bool {
	return c.BaseURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// OIDCConfig configures the password-grant backend used when the operator
// supplies a username and password.
type OIDCConfig struct {
	DiscoveryURL string `env:"DISCOVERY_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	// LogoutURL overrides the discovered end_session_endpoint.
	LogoutURL string `env:"LOGOUT_URL"`
}

// Enabled reports whether discovery can run.
func (c OIDCConfig) Enabled() bool {
	return c.DiscoveryURL != "" && c.ClientID != ""
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Keycloak KeycloakConfig `envPrefix:"KEYCLOAK_"`
	OIDC     OIDCConfig     `envPrefix:"OIDC_"`

	// EntitlementsURL is the base URL of the entitlement service. Empty
	// disables entitlement lookups; users then see every vehicle.
	EntitlementsURL string `env:"ENTITLEMENTS_URL"`
}

// Sanitize trims URLs so later concatenation is predictable.
func (c *AuthConfig) Sanitize() {
	c.Keycloak.BaseURL = strings.TrimRight(strings.TrimSpace(c.Keycloak.BaseURL), "/")
	c.OIDC.DiscoveryURL = strings.TrimSpace(c.OIDC.DiscoveryURL)
	c.EntitlementsURL = strings.TrimRight(strings.TrimSpace(c.EntitlementsURL), "/")
}
