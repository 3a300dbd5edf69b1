package config

import (
	"strings"
	"time"
)

// RedisConfig contains Redis configuration for durable session storage.
// Leaving URI empty with sentinel and cluster disabled keeps the session in
// process memory.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:""`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:""`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Sanitize trims the URI.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
}

// Enabled reports whether any Redis topology is configured.
func (c RedisConfig) Enabled() bool {
	return c.URI != "" || c.UseSentinel || c.UseCluster
}

const (
	defaultFeedSourceType   = "vehicles"
	defaultFeedLookback     = 24 * time.Hour
	defaultFeedPollInterval = time.Second
	defaultFeedMaxConns     = 4
)

// FeedConfig configures the PostGIS vehicle feed and the trails built from it.
type FeedConfig struct {
	// DatabaseURL is a pgx connection string. Empty disables the trail poller.
	DatabaseURL string        `env:"DATABASE_URL"`
	MaxConns    int32         `env:"MAX_CONNS"     envDefault:"4"`
	SourceType  string        `env:"SOURCE_TYPE"   envDefault:"vehicles"`
	Lookback    time.Duration `env:"LOOKBACK"      envDefault:"24h"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	// TrailMaxPoints caps the points kept per vehicle.
	TrailMaxPoints int `env:"TRAIL_MAX_POINTS" envDefault:"5000"`
	// TrailMinInterval is the minimum spacing between two points of a trail.
	TrailMinInterval time.Duration `env:"TRAIL_MIN_INTERVAL" envDefault:"2s"`
}

// Sanitize applies guardrails to feed configuration values.
func (c *FeedConfig) Sanitize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.SourceType = strings.TrimSpace(c.SourceType)
	if c.SourceType == "" {
		c.SourceType = defaultFeedSourceType
	}
	if c.Lookback <= 0 {
		c.Lookback = defaultFeedLookback
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultFeedPollInterval
	}
	if c.MaxConns < 1 {
		c.MaxConns = defaultFeedMaxConns
	}
	// Non-positive trail limits fall through to the accumulator defaults.
	if c.TrailMaxPoints < 0 {
		c.TrailMaxPoints = 0
	}
	if c.TrailMinInterval < 0 {
		c.TrailMinInterval = 0
	}
}

// Enabled reports whether a feed database is configured.
func (c FeedConfig) Enabled() bool {
	return c.DatabaseURL != ""
}
