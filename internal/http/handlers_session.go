package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/target/cop-agent/internal/domain/auth"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/http/validation"
	"github.com/target/cop-agent/internal/service"
	"go.uber.org/zap"
)

// SessionReader exposes the current session state.
type SessionReader interface {
	State() domainauth.State
}

// SessionServiceInterface defines the session operations the HTTP layer drives.
type SessionServiceInterface interface {
	SessionReader
	SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error)
	SignOut(ctx context.Context) error
	RefreshAccessToken(ctx context.Context) error
}

// InactivityServiceInterface defines the inactivity monitor operations.
type InactivityServiceInterface interface {
	RecordActivity(event string) bool
	StaySignedIn() error
	SignOutNow(ctx context.Context) error
	Status() service.InactivityStatus
}

// UserView is the operator profile as exposed to the UI. Tokens stay in the agent.
type UserView struct {
	ID           string   `json:"id"`
	Username     string   `json:"username,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Entitlements []string `json:"entitlements"`
}

// SessionView is the session state as exposed to the UI.
type SessionView struct {
	IsAuthenticated bool      `json:"isAuthenticated"`
	User            *UserView `json:"user"`
	Error           string    `json:"error,omitempty"`
}

// NewSessionView strips credentials from st.
func NewSessionView(st domainauth.State) SessionView {
	v := SessionView{IsAuthenticated: st.Authenticated, Error: st.Error}
	if st.User != nil {
		ents := st.User.Entitlements
		if ents == nil {
			ents = []string{}
		}
		v.User = &UserView{
			ID:           st.User.ID,
			Username:     st.User.Username,
			Name:         st.User.Name,
			Email:        st.User.Email,
			Entitlements: ents,
		}
	}
	return v
}

// SessionResponse is returned by every session endpoint.
type SessionResponse struct {
	Session    SessionView              `json:"session"`
	Inactivity service.InactivityStatus `json:"inactivity"`
}

const maxCredentialLen = 1024

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type activityRequest struct {
	Event string `json:"event"`
}

// SessionHandlers provides HTTP handlers for the session lifecycle.
type SessionHandlers struct {
	Session    SessionServiceInterface
	Inactivity InactivityServiceInterface
	Logger     *zap.Logger
}

func (h *SessionHandlers) respond(w http.ResponseWriter, status int) {
	resp := SessionResponse{Session: NewSessionView(h.Session.State())}
	if h.Inactivity != nil {
		resp.Inactivity = h.Inactivity.Status()
	}
	WriteJSON(w, status, resp)
}

// Get returns the session state.
// GET /api/session.
func (h *SessionHandlers) Get(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK)
}

// SignIn authenticates the operator. An empty body or empty credentials select
// the service-account backend.
// POST /api/session/signin.
func (h *SessionHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	fv := validation.New().
		Validate("username", req.Username, validation.Optional("username", maxCredentialLen)).
		Validate("password", req.Password, validation.Optional("password", maxCredentialLen))
	if field, msg, invalid := fv.First(); invalid {
		RenderError(w, h.Logger, errs.ValidationField(field, msg))
		return
	}

	if _, err := h.Session.SignIn(r.Context(), domainauth.Credentials{Username: req.Username, Password: req.Password}); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	h.respond(w, http.StatusOK)
}

// SignOut ends the session. Idempotent.
// POST /api/session/signout.
func (h *SessionHandlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.SignOut(r.Context()); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	h.respond(w, http.StatusOK)
}

// Refresh refreshes the access token now.
// POST /api/session/refresh.
func (h *SessionHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.Session.State().Authenticated {
		RenderError(w, h.Logger, errs.NotAuthenticated())
		return
	}
	if err := h.Session.RefreshAccessToken(r.Context()); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	h.respond(w, http.StatusOK)
}

// Activity records an operator activity event.
// POST /api/session/activity.
func (h *SessionHandlers) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	fv := validation.New().Validate("event", req.Event, validation.OneOf("event", service.ActivityEvents))
	if field, msg, invalid := fv.First(); invalid {
		RenderError(w, h.Logger, errs.ValidationField(field, msg))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"recorded":   h.Inactivity.RecordActivity(req.Event),
		"inactivity": h.Inactivity.Status(),
	})
}

// StaySignedIn dismisses the inactivity warning.
// POST /api/session/stay-signed-in.
func (h *SessionHandlers) StaySignedIn(w http.ResponseWriter, _ *http.Request) {
	if err := h.Inactivity.StaySignedIn(); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	h.respond(w, http.StatusOK)
}

// IdleSignOut signs the operator out from the inactivity warning.
// POST /api/session/idle-signout.
func (h *SessionHandlers) IdleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Inactivity.SignOutNow(r.Context()); err != nil {
		RenderError(w, h.Logger, err)
		return
	}
	h.respond(w, http.StatusOK)
}
