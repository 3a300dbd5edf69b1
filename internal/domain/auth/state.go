package auth

// User-visible session messages.
const (
	MsgSessionExpired     = "Your session has expired. Please sign in again."
	MsgInactivity         = "You were signed out due to inactivity."
	MsgEntitlementsFailed = "entitlements fetch error"
)

// State is the observable session state.
// Authenticated implies User is non-nil.
type State struct {
	Authenticated bool   `json:"isAuthenticated"`
	User          *User  `json:"user"`
	Error         string `json:"error,omitempty"`
}

// Action is the closed set of session transitions.
// Only types in this package implement it.
type Action interface {
	action()
}

// SignInAction installs a user as the signed-in principal. It is also used to
// apply refreshed tokens to the current user.
type SignInAction struct {
	User User
}

// SignOutAction clears the session. Error is the reason shown to the operator,
// empty for a voluntary sign-out.
type SignOutAction struct {
	Error string
}

// SetEntitlementsAction replaces the current user's entitlement set.
// Error carries the soft failure message when the fetch failed.
type SetEntitlementsAction struct {
	Entitlements []string
	Error        string
}

func (SignInAction) action()          {}
func (SignOutAction) action()         {}
func (SetEntitlementsAction) action() {}

// Reduce computes the next state. It never mutates s.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case SignInAction:
		u := act.User.clone()
		return State{Authenticated: true, User: &u}
	case SignOutAction:
		return State{Error: act.Error}
	case SetEntitlementsAction:
		if s.User == nil {
			return s
		}
		u := s.User.WithEntitlements(act.Entitlements)
		return State{Authenticated: s.Authenticated, User: &u, Error: act.Error}
	default:
		return s
	}
}

// AccessToken returns the current user's access token, or "" when signed out.
func (s State) AccessToken() string {
	if s.User == nil {
		return ""
	}
	return s.User.AccessToken
}
