package config

import "time"

const (
	defaultInactivityWarning     = 5 * time.Second
	defaultInactivitySignOut     = 120 * time.Second
	defaultRefreshLead           = 60 * time.Second
	defaultRefreshMinDelay       = 10 * time.Second
	defaultBackendSignOutTimeout = 5 * time.Second
)

// SessionConfig controls the session lifecycle timers.
type SessionConfig struct {
	// InactivityWarning is the idle time before the warning is shown.
	InactivityWarning time.Duration `env:"INACTIVITY_WARNING" envDefault:"5s"`
	// InactivitySignOut is the total idle time before the forced sign-out.
	InactivitySignOut time.Duration `env:"INACTIVITY_SIGNOUT" envDefault:"120s"`

	// RefreshLead is how long before token expiry the refresh fires.
	RefreshLead time.Duration `env:"REFRESH_LEAD" envDefault:"60s"`
	// RefreshMinDelay is the floor applied to every computed refresh delay.
	RefreshMinDelay time.Duration `env:"REFRESH_MIN_DELAY" envDefault:"10s"`

	BackendSignOutTimeout time.Duration `env:"BACKEND_SIGNOUT_TIMEOUT" envDefault:"5s"`

	// StoragePrefix namespaces persisted session keys in Redis.
	StoragePrefix string `env:"STORAGE_PREFIX" envDefault:""`
	// StorageTTL expires persisted session keys. Zero keeps them until sign-out.
	StorageTTL time.Duration `env:"STORAGE_TTL" envDefault:"0s"`
}

// Sanitize restores defaults for non-positive durations and keeps the
// sign-out stage after the warning stage.
func (c *SessionConfig) Sanitize() {
	if c.InactivityWarning <= 0 {
		c.InactivityWarning = defaultInactivityWarning
	}
	if c.InactivitySignOut <= 0 {
		c.InactivitySignOut = defaultInactivitySignOut
	}
	if c.InactivitySignOut <= c.InactivityWarning {
		c.InactivityWarning = defaultInactivityWarning
		c.InactivitySignOut = defaultInactivitySignOut
	}
	if c.RefreshLead <= 0 {
		c.RefreshLead = defaultRefreshLead
	}
	if c.RefreshMinDelay <= 0 {
		c.RefreshMinDelay = defaultRefreshMinDelay
	}
	if c.BackendSignOutTimeout <= 0 {
		c.BackendSignOutTimeout = defaultBackendSignOutTimeout
	}
	if c.StorageTTL < 0 {
		c.StorageTTL = 0
	}
}
