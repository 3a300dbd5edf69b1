package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FakeIdP is a Keycloak-shaped identity provider for adapter tests. It serves
// discovery, the token endpoint (password, client_credentials and
// refresh_token grants) and the logout endpoint for one realm.
type FakeIdP struct {
	Server       *httptest.Server
	Realm        string
	ClientID     string
	ClientSecret string
	TokenTTL     time.Duration

	mu       sync.Mutex
	users    map[string]string
	refresh  map[string]string // refresh token -> subject
	issued   int
	grants   map[string]int
	logouts  int
	failNext map[string]int
}

// NewFakeIdP starts a FakeIdP for realm "cop" with one client and one user.
func NewFakeIdP(t *testing.T) *FakeIdP {
	t.Helper()
	f := &FakeIdP{
		Realm:        "cop",
		ClientID:     "cop-agent",
		ClientSecret: "s3cret",
		TokenTTL:     5 * time.Minute,
		users:        map[string]string{"ops1": "hunter2"},
		refresh:      make(map[string]string),
		grants:       make(map[string]int),
		failNext:     make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /realms/cop/.well-known/openid-configuration", f.handleDiscovery)
	mux.HandleFunc("POST /realms/cop/protocol/openid-connect/token", f.handleToken)
	mux.HandleFunc("POST /realms/cop/protocol/openid-connect/logout", f.handleLogout)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the Keycloak base URL (without /realms).
func (f *FakeIdP) BaseURL() string { return f.Server.URL }

// IssuerURL is the realm issuer.
func (f *FakeIdP) IssuerURL() string { return f.Server.URL + "/realms/" + f.Realm }

// TokenURL is the realm token endpoint.
func (f *FakeIdP) TokenURL() string { return f.IssuerURL() + "/protocol/openid-connect/token" }

// AddUser registers a password user.
func (f *FakeIdP) AddUser(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = password
}

// RevokeAll invalidates every issued refresh token.
func (f *FakeIdP) RevokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = make(map[string]string)
}

// FailNext makes the next n requests for grant type fail with a 503.
func (f *FakeIdP) FailNext(grant string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[grant] = n
}

// Grants reports how many successful token responses were issued for grant type.
func (f *FakeIdP) Grants(grant string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[grant]
}

// Logouts reports how many logout calls succeeded.
func (f *FakeIdP) Logouts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

// AccessToken mints an access token the way the token endpoint does.
func (f *FakeIdP) AccessToken(subject, username string, exp time.Time) string {
	claims := jwt.MapClaims{
		"iss": f.IssuerURL(),
		"sub": subject,
		"azp": f.ClientID,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	}
	if username != "" {
		claims["preferred_username"] = username
		claims["email"] = username + "@example.mil"
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(f.ClientSecret))
	if err != nil {
		panic(err)
	}
	return s
}

func (f *FakeIdP) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	base := f.IssuerURL()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                 base,
		"authorization_endpoint": base + "/protocol/openid-connect/auth",
		"token_endpoint":         base + "/protocol/openid-connect/token",
		"userinfo_endpoint":      base + "/protocol/openid-connect/userinfo",
		"jwks_uri":               base + "/protocol/openid-connect/certs",
		"end_session_endpoint":   base + "/protocol/openid-connect/logout",
	})
}

func (f *FakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if !f.clientOK(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	grant := r.PostForm.Get("grant_type")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext[grant] > 0 {
		f.failNext[grant]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var subject, username string
	switch grant {
	case "password":
		username = r.PostForm.Get("username")
		if pw, ok := f.users[username]; !ok || pw != r.PostForm.Get("password") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "invalid_grant", "error_description": "Invalid user credentials",
			})
			return
		}
		subject = "user-" + username
	case "client_credentials":
		subject = "service-account-" + f.ClientID
	case "refresh_token":
		sub, ok := f.refresh[r.PostForm.Get("refresh_token")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid_grant", "error_description": "Token is not active",
			})
			return
		}
		delete(f.refresh, r.PostForm.Get("refresh_token"))
		subject = sub
		if len(sub) > len("user-") && sub[:len("user-")] == "user-" {
			username = sub[len("user-"):]
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	f.issued++
	f.grants[grant]++
	refresh := fmt.Sprintf("rt-%d", f.issued)
	f.refresh[refresh] = subject

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  f.AccessToken(subject, username, time.Now().Add(f.TokenTTL)),
		"token_type":    "Bearer",
		"expires_in":    int(f.TokenTTL.Seconds()),
		"refresh_token": refresh,
	})
}

func (f *FakeIdP) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || !f.clientOK(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rt := r.PostForm.Get("refresh_token")
	if _, ok := f.refresh[rt]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	delete(f.refresh, rt)
	f.logouts++
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeIdP) clientOK(r *http.Request) bool {
	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	return id == f.ClientID && secret == f.ClientSecret
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
