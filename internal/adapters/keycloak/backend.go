package keycloak

// Package keycloak provides the credential backend used when the operator
// signs in without credentials: the agent authenticates as its own Keycloak
// confidential client.

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/target/cop-agent/internal/adapters/idp"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/ports"
	"github.com/target/cop-agent/internal/tokens"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var _ ports.CredentialBackend = (*Backend)(nil)

// Config holds the realm and client settings.
type Config struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Scope        string
	HTTPClient   *http.Client
}

// Backend implements ports.CredentialBackend with the client-credentials grant.
type Backend struct {
	cc         *clientcredentials.Config
	refresh    *oauth2.Config
	logoutURL  string
	httpClient *http.Client
}

// NewBackend validates cfg and derives the realm endpoints.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("keycloak base URL is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("keycloak realm is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("keycloak client ID and secret are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = idp.DefaultHTTPClient()
	}

	realmURL := strings.TrimSuffix(cfg.BaseURL, "/") + "/realms/" + url.PathEscape(cfg.Realm)
	tokenURL := realmURL + "/protocol/openid-connect/token"
	scopes := strings.Fields(cfg.Scope)

	return &Backend{
		cc: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		refresh: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
		logoutURL:  realmURL + "/protocol/openid-connect/logout",
		httpClient: httpClient,
	}, nil
}

// SignIn ignores creds beyond checking they are empty; the identity is the client's.
func (b *Backend) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error) {
	if !creds.IsEmpty() {
		return domainauth.User{}, errs.Validation("keycloak backend takes no credentials")
	}

	tok, err := b.cc.Token(idp.WithHTTPClient(ctx, b.httpClient))
	if err != nil {
		return domainauth.User{}, idp.TokenError(err, errs.ErrCodeCredentialRejected, "keycloak sign-in rejected")
	}

	user, err := tokens.UserFromTokens(tok.AccessToken, tok.RefreshToken)
	if err != nil {
		return domainauth.User{}, errs.Wrap(err, errs.ErrCodeCredentialRejected, "keycloak returned an unreadable access token")
	}
	return user, nil
}

// RefreshTokens uses the refresh token when Keycloak issued one; otherwise it
// re-runs the client-credentials grant.
func (b *Backend) RefreshTokens(ctx context.Context, user domainauth.User) (domainauth.TokenPair, error) {
	ctx = idp.WithHTTPClient(ctx, b.httpClient)

	var (
		tok *oauth2.Token
		err error
	)
	if user.RefreshToken != "" {
		tok, err = b.refresh.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken}).Token()
	} else {
		tok, err = b.cc.Token(ctx)
	}
	if err != nil {
		return domainauth.TokenPair{}, idp.TokenError(err, errs.ErrCodeRefreshFailed, "keycloak refresh rejected")
	}
	return domainauth.TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// SignOut revokes the refresh token at the realm logout endpoint.
func (b *Backend) SignOut(ctx context.Context, user domainauth.User) error {
	if user.RefreshToken == "" {
		return nil
	}
	return idp.Logout(ctx, b.httpClient, b.logoutURL, url.Values{
		"client_id":     {b.cc.ClientID},
		"client_secret": {b.cc.ClientSecret},
		"refresh_token": {user.RefreshToken},
	})
}
