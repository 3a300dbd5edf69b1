package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  BackendKind
	}{
		{name: "empty credentials", creds: Credentials{}, want: BackendKeycloak},
		{name: "username only", creds: Credentials{Username: "ops"}, want: BackendOIDC},
		{name: "password only", creds: Credentials{Password: "secret"}, want: BackendOIDC},
		{name: "full credentials", creds: Credentials{Username: "ops", Password: "secret"}, want: BackendOIDC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectBackend(tt.creds))
		})
	}
}

func TestParseBackendKind(t *testing.T) {
	k, ok := ParseBackendKind("keycloak")
	assert.True(t, ok)
	assert.Equal(t, BackendKeycloak, k)

	k, ok = ParseBackendKind("oidc")
	assert.True(t, ok)
	assert.Equal(t, BackendOIDC, k)

	_, ok = ParseBackendKind("saml")
	assert.False(t, ok)

	_, ok = ParseBackendKind("")
	assert.False(t, ok)
}

func TestUserWithTokens_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	u := User{ID: "u1", AccessToken: "a1", RefreshToken: "r1"}

	got := u.WithTokens(TokenPair{AccessToken: "a2"})
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)

	got = u.WithTokens(TokenPair{AccessToken: "a3", RefreshToken: "r3"})
	assert.Equal(t, "r3", got.RefreshToken)
	assert.Equal(t, "a1", u.AccessToken, "receiver must not change")
}

func TestReduce_SignIn(t *testing.T) {
	user := User{ID: "u1", AccessToken: "tok"}

	next := Reduce(State{Error: MsgInactivity}, SignInAction{User: user})

	assert.True(t, next.Authenticated)
	require.NotNil(t, next.User)
	assert.Equal(t, "u1", next.User.ID)
	assert.Empty(t, next.Error, "sign-in clears a previous error")
}

func TestReduce_SignOutCarriesReason(t *testing.T) {
	user := User{ID: "u1"}
	prev := State{Authenticated: true, User: &user}

	next := Reduce(prev, SignOutAction{Error: MsgSessionExpired})

	assert.False(t, next.Authenticated)
	assert.Nil(t, next.User)
	assert.Equal(t, MsgSessionExpired, next.Error)
	assert.True(t, prev.Authenticated, "previous state must not be mutated")
}

func TestReduce_SetEntitlementsMergesIntoCurrentUser(t *testing.T) {
	user := User{ID: "u1", AccessToken: "newer"}
	prev := State{Authenticated: true, User: &user}

	next := Reduce(prev, SetEntitlementsAction{Entitlements: []string{"SECRET", "NoAccess"}})

	require.NotNil(t, next.User)
	assert.Equal(t, "newer", next.User.AccessToken)
	assert.Equal(t, []string{"SECRET", "NoAccess"}, next.User.Entitlements)
	assert.Nil(t, user.Entitlements)
}

func TestReduce_SetEntitlementsSoftError(t *testing.T) {
	user := User{ID: "u1"}
	prev := State{Authenticated: true, User: &user}

	next := Reduce(prev, SetEntitlementsAction{Entitlements: []string{}, Error: MsgEntitlementsFailed})

	assert.True(t, next.Authenticated)
	require.NotNil(t, next.User)
	assert.Empty(t, next.User.Entitlements)
	assert.Equal(t, MsgEntitlementsFailed, next.Error)
}

func TestReduce_SetEntitlementsIgnoredWhenSignedOut(t *testing.T) {
	next := Reduce(State{}, SetEntitlementsAction{Entitlements: []string{"X"}})

	assert.False(t, next.Authenticated)
	assert.Nil(t, next.User)
}

func TestReduce_AuthenticatedImpliesUser(t *testing.T) {
	user := User{ID: "u1"}
	actions := []Action{
		SignInAction{User: user},
		SetEntitlementsAction{Entitlements: []string{"A"}},
		SignOutAction{},
		SetEntitlementsAction{Entitlements: []string{"B"}},
		SignInAction{User: user},
		SignOutAction{Error: MsgInactivity},
	}

	s := State{}
	for _, a := range actions {
		s = Reduce(s, a)
		if s.Authenticated {
			assert.NotNil(t, s.User)
		}
	}
}
