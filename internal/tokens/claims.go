package tokens

// Package tokens decodes claims from bearer tokens without verifying them.
// Tokens reach this package straight from the identity provider's token
// endpoint; signature checks on id_tokens belong to the OIDC adapter.

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
)

// ErrNoExpiry is returned when a token carries no exp claim.
var ErrNoExpiry = errors.New("token has no exp claim")

var parser = jwt.NewParser()

// Claims is the subset of access-token claims mapped onto a user.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	ClientID          string `json:"client_id"`
	AuthorizedParty   string `json:"azp"`
}

// Parse decodes the claims of a compact JWT.
func Parse(raw string) (*Claims, error) {
	var c Claims
	if _, _, err := parser.ParseUnverified(raw, &c); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &c, nil
}

// Expiry returns the exp claim of a compact JWT.
func Expiry(raw string) (time.Time, error) {
	c, err := Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return c.ExpiresAt.Time, nil
}

// UserFromTokens builds a user from an access token's claims.
// Service-account tokens without a preferred_username fall back to the client id.
func UserFromTokens(access, refresh string) (domainauth.User, error) {
	c, err := Parse(access)
	if err != nil {
		return domainauth.User{}, err
	}
	username := firstNonEmpty(c.PreferredUsername, c.ClientID, c.AuthorizedParty, c.Subject)
	return domainauth.User{
		ID:           firstNonEmpty(c.Subject, username),
		Username:     username,
		Name:         c.Name,
		Email:        c.Email,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
