package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: credential backends and the entitlement service
//   - session.go: refresh and inactivity timing
//   - database.go: Redis session storage and the vehicle feed
//   - integrations.go: manifest storage and audit publishing
//   - http.go: HTTP server configuration
//   - services.go: which runtime components are enabled
type AppConfig struct {
	// IsDev controls development mode behavior (console logging, verbose levels).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	Auth    AuthConfig
	Session SessionConfig `envPrefix:"SESSION_"`

	Redis RedisConfig `envPrefix:"REDIS_"`
	Feed  FeedConfig  `envPrefix:"FEED_"`

	Manifest ManifestConfig `envPrefix:"S4_"`
	Audit    AuditConfig    `envPrefix:"AMQP_"`

	HTTP HTTPConfig

	// Services lists the enabled runtime components.
	Services string `env:"SERVICES" envDefault:"http,trails"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.Session.Sanitize()
	c.Redis.Sanitize()
	c.Feed.Sanitize()
	c.Manifest.Sanitize()
	c.Audit.Sanitize()
	c.HTTP.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsTrailPollerEnabled returns true when the trail poller is enabled and a
// feed database is configured.
func (c *AppConfig) IsTrailPollerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeTrails] && c.Feed.Enabled()
}
