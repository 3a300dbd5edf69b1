package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/cop-agent/internal/clock"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
	errs "github.com/target/cop-agent/internal/errors"
	obserrors "github.com/target/cop-agent/internal/observability/errors"
	"github.com/target/cop-agent/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultBackendSignOutTimeout bounds the provider-side logout performed on sign-out.
const DefaultBackendSignOutTimeout = 5 * time.Second

const auditTimeout = 5 * time.Second

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	// Backends maps each selector to its adapter. A missing entry makes that
	// sign-in path unavailable.
	Backends     map[domainauth.BackendKind]ports.CredentialBackend
	Entitlements ports.EntitlementFetcher
	Storage      ports.SessionStorage
	// Events is optional.
	Events                ports.SessionEventSink
	Clock                 clock.Clock
	Logger                *zap.Logger
	BackendSignOutTimeout time.Duration
}

// SessionService owns the operator session. Every transition goes through
// dispatch; listeners observe states in dispatch order.
type SessionService struct {
	backends         map[domainauth.BackendKind]ports.CredentialBackend
	entitlements     ports.EntitlementFetcher
	storage          ports.SessionStorage
	events           ports.SessionEventSink
	clock            clock.Clock
	logger           *zap.Logger
	signOutTimeout   time.Duration
	refreshCoalescer singleflight.Group

	// notifyMu orders dispatches end to end: state change, storage mirror, listeners.
	notifyMu sync.Mutex

	mu      sync.Mutex
	state   domainauth.State
	machine *sessionMachine
	kind    domainauth.BackendKind
	backend ports.CredentialBackend
	gen     uint64
	closed  bool

	subsMu  sync.Mutex
	subs    map[int]func(domainauth.State)
	nextSub int

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewSessionService creates a SessionService and restores any persisted session.
// A persisted user without a resolvable backend selector is discarded.
func NewSessionService(ctx context.Context, opts SessionServiceOptions) (*SessionService, error) {
	if opts.Storage == nil {
		return nil, errors.New("session storage is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BackendSignOutTimeout <= 0 {
		opts.BackendSignOutTimeout = DefaultBackendSignOutTimeout
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s := &SessionService{
		backends:       opts.Backends,
		entitlements:   opts.Entitlements,
		storage:        opts.Storage,
		events:         opts.Events,
		clock:          clock.OrReal(opts.Clock),
		logger:         opts.Logger,
		signOutTimeout: opts.BackendSignOutTimeout,
		subs:           make(map[int]func(domainauth.State)),
		bgCtx:          bgCtx,
		bgCancel:       cancel,
	}

	if err := s.restore(ctx); err != nil {
		cancel()
		return nil, err
	}
	s.machine = newSessionMachine(s.state.Authenticated, s.logger)
	return s, nil
}

func (s *SessionService) restore(ctx context.Context) error {
	raw, ok, err := s.storage.Get(ctx, domainauth.StorageKeyUser)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeUnavailable, "read persisted session")
	}
	if !ok {
		return nil
	}

	selector, _, err := s.storage.Get(ctx, domainauth.StorageKeyBackend)
	if err != nil {
		return errs.Wrap(err, errs.ErrCodeUnavailable, "read persisted session backend")
	}
	kind, valid := domainauth.ParseBackendKind(selector)
	backend := s.backends[kind]

	var user domainauth.User
	decodeErr := json.Unmarshal([]byte(raw), &user)

	if !valid || backend == nil || decodeErr != nil {
		s.logger.Warn("discarding persisted session",
			zap.String("selector", selector),
			zap.Bool("backend_configured", backend != nil),
			zap.NamedError("decode_error", decodeErr))
		if err := s.storage.Remove(ctx, domainauth.StorageKeyUser); err != nil {
			return errs.Wrap(err, errs.ErrCodeUnavailable, "remove orphan session")
		}
		if err := s.storage.Remove(ctx, domainauth.StorageKeyBackend); err != nil {
			return errs.Wrap(err, errs.ErrCodeUnavailable, "remove orphan session backend")
		}
		return nil
	}

	s.state = domainauth.Reduce(s.state, domainauth.SignInAction{User: user})
	s.kind = kind
	s.backend = backend
	s.gen++
	s.logger.Info("session restored",
		zap.String("user_id", user.ID),
		zap.String("backend", string(kind)))
	return nil
}

// State returns the current session state.
func (s *SessionService) State() domainauth.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SessionService) boundBackend() domainauth.BackendKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

func (s *SessionService) phase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.current()
}

// Subscribe registers fn for every dispatched state. fn is first called with the
// current state before Subscribe returns. fn runs while dispatch is in progress
// and must not call back into a dispatching method synchronously.
func (s *SessionService) Subscribe(fn func(domainauth.State)) (cancel func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	fn(s.State())

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// SignIn authenticates with the backend selected by creds. On failure the
// session, binding and storage are left untouched.
func (s *SessionService) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.User, error) {
	kind := domainauth.SelectBackend(creds)
	backend := s.backends[kind]
	if backend == nil {
		return domainauth.User{}, errs.New(errs.ErrCodeUnavailable,
			fmt.Sprintf("%s sign-in is not configured", kind))
	}

	user, err := backend.SignIn(withoutFaultHandling(ctx), creds)
	if err != nil {
		s.logger.Warn("sign-in failed", zap.String("backend", string(kind)), zap.Error(err))
		if errs.GetCode(err) == "" {
			err = errs.Wrap(err, errs.ErrCodeCredentialRejected, "Sign-in failed")
		}
		return domainauth.User{}, err
	}

	if err := s.storage.Set(ctx, domainauth.StorageKeyBackend, string(kind)); err != nil {
		return domainauth.User{}, errs.Wrap(err, errs.ErrCodeUnavailable, "persist session backend")
	}

	var gen uint64
	next, _ := s.dispatch(ctx, eventSignIn, func() (domainauth.Action, bool) {
		s.kind = kind
		s.backend = backend
		s.gen++
		gen = s.gen
		return domainauth.SignInAction{User: user}, true
	})

	s.audit(domainauth.EventSignedIn, user.ID, kind, "")
	s.loadEntitlements(gen, user)
	return *next.User, nil
}

// SignOut ends the session voluntarily. Idempotent.
func (s *SessionService) SignOut(ctx context.Context) error {
	s.endSession(ctx, "", true, domainauth.EventSignedOut)
	return nil
}

// SignOutForInactivity ends the session because the operator was idle.
func (s *SessionService) SignOutForInactivity(ctx context.Context) error {
	s.endSession(ctx, domainauth.MsgInactivity, true, domainauth.EventSessionEnded)
	return nil
}

// ExpireSession ends the session after the identity provider reported it dead.
// The provider is not contacted.
func (s *SessionService) ExpireSession(ctx context.Context) error {
	s.endSession(ctx, domainauth.MsgSessionExpired, false, domainauth.EventSessionEnded)
	return nil
}

// endSession dispatches SignOutAction{Error: msg}. Nothing happens when no
// session is active, so an earlier reason stays visible.
func (s *SessionService) endSession(ctx context.Context, msg string, callBackend bool, kind domainauth.SessionEventKind) {
	var (
		backend ports.CredentialBackend
		user    *domainauth.User
		sel     domainauth.BackendKind
	)
	_, applied := s.dispatch(ctx, eventSignOut, func() (domainauth.Action, bool) {
		backend, sel = s.backend, s.kind
		if s.state.User != nil {
			u := *s.state.User
			user = &u
		}
		s.backend = nil
		s.kind = ""
		s.gen++
		return domainauth.SignOutAction{Error: msg}, true
	})
	if !applied || user == nil {
		return
	}

	s.audit(kind, user.ID, sel, msg)
	if callBackend && backend != nil {
		s.backendSignOut(backend, *user, sel)
	}
}

// backendSignOut runs the provider logout in the background, bounded by the
// configured timeout. Failures are logged and otherwise ignored.
func (s *SessionService) backendSignOut(backend ports.CredentialBackend, user domainauth.User, kind domainauth.BackendKind) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.signOutTimeout)
		defer cancel()
		if err := backend.SignOut(ctx, user); err != nil {
			s.logger.Warn("credential backend sign-out failed",
				zap.String("backend", string(kind)),
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	})
}

// RefreshAccessToken obtains a new token pair from the bound backend.
// Concurrent calls share one backend request. On failure the session is
// ended with the expired message. No-op when signed out.
func (s *SessionService) RefreshAccessToken(ctx context.Context) error {
	s.mu.Lock()
	backend, kind, gen := s.backend, s.kind, s.gen
	var user domainauth.User
	active := s.machine.can(eventRefresh) && backend != nil
	if active {
		user = *s.state.User
	}
	s.mu.Unlock()

	if !active {
		return nil
	}

	_, err, _ := s.refreshCoalescer.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, s.refresh(ctx, gen, backend, kind, user)
	})
	return err
}

func (s *SessionService) refresh(ctx context.Context, gen uint64, backend ports.CredentialBackend, kind domainauth.BackendKind, user domainauth.User) error {
	pair, err := backend.RefreshTokens(ctx, user)
	if err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(ctx.Err(), errs.ErrCodeCanceled, "token refresh canceled")
		}
		s.logger.Warn("token refresh failed, signing out",
			zap.String("backend", string(kind)),
			zap.String("user_id", user.ID),
			zap.Error(err))

		_, applied := s.dispatch(ctx, eventSignOut, func() (domainauth.Action, bool) {
			if s.gen != gen {
				return nil, false
			}
			s.backend = nil
			s.kind = ""
			s.gen++
			return domainauth.SignOutAction{Error: domainauth.MsgSessionExpired}, true
		})
		if applied {
			s.audit(domainauth.EventSessionEnded, user.ID, kind, domainauth.MsgSessionExpired)
		}
		if errs.GetCode(err) == "" {
			err = errs.Wrap(err, errs.ErrCodeRefreshFailed, "token refresh failed")
		}
		return err
	}

	_, applied := s.dispatch(ctx, eventRefresh, func() (domainauth.Action, bool) {
		if s.gen != gen {
			return nil, false
		}
		return domainauth.SignInAction{User: s.state.User.WithTokens(pair)}, true
	})
	if !applied {
		s.logger.Debug("dropping stale token refresh", zap.String("user_id", user.ID))
		return nil
	}
	s.logger.Info("token refreshed", zap.String("user_id", user.ID))
	s.audit(domainauth.EventRefreshed, user.ID, kind, "")
	return nil
}

// loadEntitlements fetches the user's entitlements in the background and
// merges them into the session if it is still the same session.
func (s *SessionService) loadEntitlements(gen uint64, user domainauth.User) {
	if s.entitlements == nil {
		return
	}
	s.spawn(func() {
		labels, err := s.entitlements.GetEntitlements(s.bgCtx, user.AccessToken)
		act := domainauth.SetEntitlementsAction{Entitlements: labels}
		if err != nil {
			s.logger.Warn("error fetching entitlements",
				zap.String("user_id", user.ID),
				zap.String("error_class", obserrors.Classify(err)),
				zap.Error(err))
			act = domainauth.SetEntitlementsAction{Entitlements: []string{}, Error: domainauth.MsgEntitlementsFailed}
		}

		_, applied := s.dispatch(s.bgCtx, eventSetEntitlements, func() (domainauth.Action, bool) {
			if s.closed || s.gen != gen {
				return nil, false
			}
			return act, true
		})
		if !applied {
			s.logger.Debug("dropping stale entitlements", zap.String("user_id", user.ID))
		}
	})
}

// dispatch is the single transition point. Events the session machine does
// not allow in the current phase are skipped without calling build. build runs
// under the state lock and returns the action to apply, or false to skip. The
// storage mirror and listeners run after the lock is released, in dispatch order.
func (s *SessionService) dispatch(ctx context.Context, event string, build func() (domainauth.Action, bool)) (domainauth.State, bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !s.machine.can(event) {
		cur := s.state
		s.mu.Unlock()
		return cur, false
	}
	act, ok := build()
	if !ok {
		cur := s.state
		s.mu.Unlock()
		return cur, false
	}
	if err := s.machine.fire(event); err != nil {
		s.mu.Unlock()
		s.logger.Error("session transition rejected", zap.Error(err))
		return s.State(), false
	}
	s.state = domainauth.Reduce(s.state, act)
	next := s.state
	s.mu.Unlock()

	s.mirror(ctx, act, next)
	s.notify(next)
	return next, true
}

// mirror writes the dispatched state to storage.
func (s *SessionService) mirror(ctx context.Context, act domainauth.Action, next domainauth.State) {
	ctx = context.WithoutCancel(ctx)
	switch act.(type) {
	case domainauth.SignInAction, domainauth.SetEntitlementsAction:
		if next.User == nil {
			return
		}
		raw, err := json.Marshal(next.User)
		if err != nil {
			s.logger.Error("encode session user", zap.Error(err))
			return
		}
		if err := s.storage.Set(ctx, domainauth.StorageKeyUser, string(raw)); err != nil {
			s.logger.Error("persist session user", zap.Error(err))
		}
	case domainauth.SignOutAction:
		if err := s.storage.Remove(ctx, domainauth.StorageKeyUser); err != nil {
			s.logger.Error("remove session user", zap.Error(err))
		}
		if err := s.storage.Remove(ctx, domainauth.StorageKeyBackend); err != nil {
			s.logger.Error("remove session backend", zap.Error(err))
		}
	}
}

func (s *SessionService) notify(st domainauth.State) {
	s.subsMu.Lock()
	fns := make([]func(domainauth.State), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// audit publishes a session event in the background when a sink is configured.
func (s *SessionService) audit(kind domainauth.SessionEventKind, userID string, backend domainauth.BackendKind, reason string) {
	if s.events == nil {
		return
	}
	ev := domainauth.SessionEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		UserID:     userID,
		Backend:    backend,
		Reason:     reason,
		OccurredAt: s.clock.Now().UTC(),
	}
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish session event failed",
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
		}
	})
}

// spawn runs fn on a tracked goroutine. After Close nothing new is started.
func (s *SessionService) spawn(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Close stops accepting background results and waits for in-flight work.
func (s *SessionService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bgCancel()
	s.wg.Wait()
}

// Wait blocks until background work started so far has finished.
func (s *SessionService) Wait() {
	s.wg.Wait()
}
