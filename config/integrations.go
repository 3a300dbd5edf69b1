package config

import (
	"strings"
	"time"
)

// ManifestConfig configures the S3-compatible manifest store.
type ManifestConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// Endpoint is the S4 base URL. Empty uses the adapter default.
	Endpoint string `env:"ENDPOINT"`
	Region   string `env:"REGION"   envDefault:"us-east-1"`
	// RoleARN is assumed with the operator's access token.
	RoleARN         string        `env:"ROLE_ARN"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"1h"`
}

// Sanitize applies guardrails to manifest storage configuration.
func (c *ManifestConfig) Sanitize() {
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	// STS rejects web identity sessions shorter than 15 minutes.
	if c.SessionDuration < 15*time.Minute {
		c.SessionDuration = 15 * time.Minute
	}
}

// AuditConfig configures publishing of session audit events to RabbitMQ.
type AuditConfig struct {
	// URL is an amqp:// connection string. Empty disables auditing.
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"cop.session"`
}

// Sanitize trims the connection string.
func (c *AuditConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	c.Exchange = strings.TrimSpace(c.Exchange)
}

// Enabled reports whether audit publishing is configured.
func (c AuditConfig) Enabled() bool {
	return c.URL != ""
}
