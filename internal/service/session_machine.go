package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Session phases.
const (
	PhaseSignedOut = "signed_out"
	PhaseSignedIn  = "signed_in"
)

// Session events. Each dispatch fires exactly one.
const (
	eventSignIn          = "sign_in"
	eventRefresh         = "refresh"
	eventSetEntitlements = "set_entitlements"
	eventSignOut         = "sign_out"
)

// sessionMachine decides which session transitions are legal. A new sign-in
// may replace the current session; refresh, entitlements and sign-out only
// apply to a signed-in session. Callers serialize access.
type sessionMachine struct {
	fsm    *fsm.FSM
	logger *zap.Logger
}

func newSessionMachine(authenticated bool, logger *zap.Logger) *sessionMachine {
	initial := PhaseSignedOut
	if authenticated {
		initial = PhaseSignedIn
	}

	m := &sessionMachine{logger: logger}
	m.fsm = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: eventSignIn, Src: []string{PhaseSignedOut, PhaseSignedIn}, Dst: PhaseSignedIn},
			{Name: eventRefresh, Src: []string{PhaseSignedIn}, Dst: PhaseSignedIn},
			{Name: eventSetEntitlements, Src: []string{PhaseSignedIn}, Dst: PhaseSignedIn},
			{Name: eventSignOut, Src: []string{PhaseSignedIn}, Dst: PhaseSignedOut},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if e.Src != e.Dst {
					m.logger.Info("session phase changed",
						zap.String("event", e.Event),
						zap.String("from", e.Src),
						zap.String("to", e.Dst))
				}
			},
		},
	)
	return m
}

// current returns the current phase.
func (m *sessionMachine) current() string {
	return m.fsm.Current()
}

// can reports whether event is legal in the current phase.
func (m *sessionMachine) can(event string) bool {
	return m.fsm.Can(event)
}

// fire applies event. Staying in the same phase is not an error.
func (m *sessionMachine) fire(event string) error {
	err := m.fsm.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("session %s in phase %s: %w", event, m.fsm.Current(), err)
	}
	return nil
}
