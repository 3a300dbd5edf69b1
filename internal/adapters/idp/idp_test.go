package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "github.com/target/cop-agent/internal/errors"
	"golang.org/x/oauth2"
)

func retrieveErr(status int, code string) error {
	return &oauth2.RetrieveError{
		Response:  &http.Response{StatusCode: status, Status: fmt.Sprintf("%d", status)},
		ErrorCode: code,
	}
}

func TestTokenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrorCode
	}{
		{name: "invalid grant", err: retrieveErr(http.StatusBadRequest, "invalid_grant"), want: errs.ErrCodeCredentialRejected},
		{name: "unauthorized", err: retrieveErr(http.StatusUnauthorized, ""), want: errs.ErrCodeCredentialRejected},
		{name: "server error", err: retrieveErr(http.StatusBadGateway, ""), want: errs.ErrCodeUnavailable},
		{name: "transport", err: errors.New("dial tcp: refused"), want: errs.ErrCodeUnavailable},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: errs.ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, want: errs.ErrCodeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenError(tt.err, errs.ErrCodeCredentialRejected, "sign-in")
			assert.Equal(t, tt.want, errs.GetCode(got))
			assert.True(t, errors.Is(got, tt.err))
		})
	}

	assert.NoError(t, TokenError(nil, errs.ErrCodeRefreshFailed, "x"))
}

func TestLogout(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		if r.PostForm.Get("refresh_token") == "dead" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := Logout(context.Background(), srv.Client(), srv.URL, url.Values{"refresh_token": {"rt-1"}})
	require.NoError(t, err)
	assert.Equal(t, "rt-1", got.Get("refresh_token"))

	err = Logout(context.Background(), srv.Client(), srv.URL, url.Values{"refresh_token": {"dead"}})
	require.Error(t, err)
}
