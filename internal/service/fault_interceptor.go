package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	domainauth "github.com/target/cop-agent/internal/domain/auth"
	"go.uber.org/zap"
)

const maxFaultBody = 64 << 10

// SessionRecovery is what the interceptor calls back into.
type SessionRecovery interface {
	ExpireSession(ctx context.Context) error
	RefreshAccessToken(ctx context.Context) error
}

// ErrAlreadyIntercepted is returned by Install when the client is already wrapped.
var ErrAlreadyIntercepted = errors.New("http client already has a fault interceptor")

type faultHandlingKey struct{}

// withoutFaultHandling marks ctx so the interceptor passes its responses
// through. Sign-in attempts carry it: a rejected attempt leaves the current
// session alone.
func withoutFaultHandling(ctx context.Context) context.Context {
	return context.WithValue(ctx, faultHandlingKey{}, true)
}

func faultHandlingSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(faultHandlingKey{}).(bool)
	return skip
}

// FaultInterceptor is an http.RoundTripper that turns identity-provider
// failures seen on outbound calls into session transitions:
//   - 400 from a token endpoint with error=invalid_grant expires the session;
//   - 401 from any other endpoint triggers a token refresh.
//
// It only acts while the session is authenticated and never on sign-in
// traffic; otherwise it passes responses through untouched.
type FaultInterceptor struct {
	next    http.RoundTripper
	session SessionRecovery
	logger  *zap.Logger
	active  atomic.Bool
}

// NewFaultInterceptor wraps next. A nil next uses http.DefaultTransport.
func NewFaultInterceptor(next http.RoundTripper, session SessionRecovery, logger *zap.Logger) *FaultInterceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FaultInterceptor{next: next, session: session, logger: logger}
}

// Install wraps client's transport. restore reinstates the original transport.
func Install(client *http.Client, session SessionRecovery, logger *zap.Logger) (fi *FaultInterceptor, restore func(), err error) {
	if _, ok := client.Transport.(*FaultInterceptor); ok {
		return nil, nil, ErrAlreadyIntercepted
	}
	original := client.Transport
	fi = NewFaultInterceptor(original, session, logger)
	client.Transport = fi
	return fi, func() { client.Transport = original }, nil
}

// Observe enables the interceptor while st is authenticated.
func (f *FaultInterceptor) Observe(st domainauth.State) {
	f.active.Store(st.Authenticated)
}

// Active reports whether the interceptor is acting on responses.
func (f *FaultInterceptor) Active() bool {
	return f.active.Load()
}

// RoundTrip implements http.RoundTripper.
func (f *FaultInterceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := f.next.RoundTrip(req)
	if err != nil || !f.active.Load() || faultHandlingSkipped(req.Context()) {
		return resp, err
	}

	path := req.URL.Path
	if resp.Request != nil && resp.Request.URL != nil {
		path = resp.Request.URL.Path
	}
	tokenEndpoint := strings.HasSuffix(path, "token")

	switch {
	case resp.StatusCode == http.StatusBadRequest && tokenEndpoint:
		if f.invalidGrant(resp) {
			f.logger.Warn("identity provider rejected grant, expiring session", zap.String("path", path))
			if serr := f.session.ExpireSession(context.WithoutCancel(req.Context())); serr != nil {
				f.logger.Warn("expire session failed", zap.Error(serr))
			}
		}
	case resp.StatusCode == http.StatusUnauthorized && !tokenEndpoint:
		f.logger.Warn("received 401, attempting token refresh", zap.String("path", path))
		if rerr := f.session.RefreshAccessToken(req.Context()); rerr != nil {
			f.logger.Debug("token refresh after 401 failed", zap.Error(rerr))
		}
	}
	return resp, nil
}

// invalidGrant reads the response body, puts it back for the caller and
// reports whether it is an OAuth2 invalid_grant error.
func (f *FaultInterceptor) invalidGrant(resp *http.Response) bool {
	if resp.Body == nil {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFaultBody))
	rest := resp.Body
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil {
		return false
	}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return false
	}
	return payload.Error == "invalid_grant"
}
