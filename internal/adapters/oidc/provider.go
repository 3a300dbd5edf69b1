package oidc

// Package oidc provides the username/password credential backend for the cop agent.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/target/cop-agent/internal/adapters/idp"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/ports"
	"github.com/target/cop-agent/internal/tokens"
	"golang.org/x/oauth2"
)

var _ ports.CredentialBackend = (*Provider)(nil)

// Provider implements ports.CredentialBackend with the OAuth2 resource-owner
// password grant against a discovered OIDC provider.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	logoutURL  string

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	// LogoutURL overrides the discovered end_session_endpoint.
	LogoutURL  string
	HTTPClient *http.Client // Optional, defaults to a 30s-timeout client
}

// NewProvider runs discovery and returns a ready Provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = idp.DefaultHTTPClient()
	}

	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(idp.WithHTTPClient(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	var meta struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if claimsErr := op.Claims(&meta); claimsErr != nil {
		return nil, fmt.Errorf("decode discovery document: %w", claimsErr)
	}

	logoutURL := config.LogoutURL
	if logoutURL == "" {
		logoutURL = meta.EndSessionEndpoint
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient:   httpClient,
		logoutURL:    logoutURL,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
	}, nil
}

func (p *Provider) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error) {
	if creds.Username == "" {
		return domainauth.User{}, errs.ValidationField("username", "username is required")
	}

	ctx = idp.WithHTTPClient(ctx, p.httpClient)
	tok, err := p.config.PasswordCredentialsToken(ctx, creds.Username, creds.Password)
	if err != nil {
		return domainauth.User{}, idp.TokenError(err, errs.ErrCodeCredentialRejected, "oidc sign-in rejected")
	}

	user, err := p.userFromToken(ctx, tok)
	if err != nil {
		return domainauth.User{}, err
	}
	if user.Username == "" {
		user.Username = creds.Username
	}
	if user.ID == "" {
		user.ID = creds.Username
	}
	return user, nil
}

func (p *Provider) RefreshTokens(ctx context.Context, user domainauth.User) (domainauth.TokenPair, error) {
	if user.RefreshToken == "" {
		return domainauth.TokenPair{}, errs.New(errs.ErrCodeRefreshFailed, "no refresh token")
	}

	ctx = idp.WithHTTPClient(ctx, p.httpClient)
	tok, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: user.RefreshToken}).Token()
	if err != nil {
		return domainauth.TokenPair{}, idp.TokenError(err, errs.ErrCodeRefreshFailed, "oidc refresh rejected")
	}
	return domainauth.TokenPair{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// SignOut ends the provider session when the provider advertises an
// end_session_endpoint. Without one there is nothing to call.
func (p *Provider) SignOut(ctx context.Context, user domainauth.User) error {
	if p.logoutURL == "" || user.RefreshToken == "" {
		return nil
	}
	form := url.Values{
		"client_id":     {p.config.ClientID},
		"refresh_token": {user.RefreshToken},
	}
	if p.config.ClientSecret != "" {
		form.Set("client_secret", p.config.ClientSecret)
	}
	return idp.Logout(ctx, p.httpClient, p.logoutURL, form)
}

// userFromToken maps the id_token (when present) and access token claims onto a user.
func (p *Provider) userFromToken(ctx context.Context, tok *oauth2.Token) (domainauth.User, error) {
	var user domainauth.User
	if fromAccess, err := tokens.UserFromTokens(tok.AccessToken, tok.RefreshToken); err == nil {
		user = fromAccess
	} else {
		// Opaque access tokens are allowed; identity then comes from the id_token.
		user = domainauth.User{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return user, nil
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.User{}, errs.Wrap(err, errs.ErrCodeCredentialRejected, "verify id_token")
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return domainauth.User{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	mergeIDTokenClaims(&user, claims)
	return user, nil
}

type idTokenClaims struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Email             string `json:"email"`
}

// mergeIDTokenClaims prefers id_token claims over access token claims.
func mergeIDTokenClaims(u *domainauth.User, c idTokenClaims) {
	u.ID = firstNonEmpty(c.Sub, u.ID)
	u.Username = firstNonEmpty(c.PreferredUsername, u.Username)
	u.Name = firstNonEmpty(c.Name, u.Name)
	u.Email = firstNonEmpty(c.Email, u.Email)
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
