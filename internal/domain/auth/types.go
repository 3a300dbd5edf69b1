package auth

// Package auth contains domain-level types for the operator session.
// It is pure and free of framework/adapter concerns.

import "time"

// Storage keys for the durable session mirror.
const (
	StorageKeyUser    = "dsp:cop:user"
	StorageKeyBackend = "dsp:cop:authType"
)

// BackendKind names the credential backend that produced the current session.
// Persisted verbatim under StorageKeyBackend.
type BackendKind string

const (
	// BackendKeycloak is used for an empty credential set.
	BackendKeycloak BackendKind = "keycloak"
	// BackendOIDC is used when a username or password is supplied.
	BackendOIDC BackendKind = "oidc"
)

// ParseBackendKind resolves a persisted selector. ok is false for unknown values.
func ParseBackendKind(s string) (BackendKind, bool) {
	switch BackendKind(s) {
	case BackendKeycloak, BackendOIDC:
		return BackendKind(s), true
	default:
		return "", false
	}
}

// Credentials are what the operator typed into the sign-in form.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IsEmpty reports whether no credential field was supplied.
func (c Credentials) IsEmpty() bool {
	return c.Username == "" && c.Password == ""
}

// SelectBackend picks the backend for a credential set.
func SelectBackend(c Credentials) BackendKind {
	if c.IsEmpty() {
		return BackendKeycloak
	}
	return BackendOIDC
}

// TokenPair is the result of a successful token refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// User is the authenticated principal plus its current tokens.
// Profile fields are opaque to the session core.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	Entitlements []string `json:"entitlements,omitempty"`
}

// WithTokens returns a copy of u carrying the refreshed pair.
// An empty refresh token in the pair keeps the previous one.
func (u User) WithTokens(p TokenPair) User {
	out := u.clone()
	out.AccessToken = p.AccessToken
	if p.RefreshToken != "" {
		out.RefreshToken = p.RefreshToken
	}
	return out
}

// WithEntitlements returns a copy of u with the entitlement set replaced.
func (u User) WithEntitlements(labels []string) User {
	out := u.clone()
	out.Entitlements = append([]string{}, labels...)
	return out
}

func (u User) clone() User {
	out := u
	if u.Entitlements != nil {
		out.Entitlements = append([]string{}, u.Entitlements...)
	}
	return out
}

// SessionEventKind classifies audit events emitted on session transitions.
type SessionEventKind string

const (
	EventSignedIn     SessionEventKind = "signed_in"
	EventSignedOut    SessionEventKind = "signed_out"
	EventRefreshed    SessionEventKind = "refreshed"
	EventSessionEnded SessionEventKind = "session_ended"
)

// SessionEvent is an audit record of a session transition.
type SessionEvent struct {
	ID         string           `json:"id"`
	Kind       SessionEventKind `json:"kind"`
	UserID     string           `json:"user_id,omitempty"`
	Backend    BackendKind      `json:"backend,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
