package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "github.com/target/cop-agent/internal/errors"
	"go.uber.org/zap"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.Validation("bad"), http.StatusBadRequest},
		{errs.NotAuthenticated(), http.StatusUnauthorized},
		{errs.New(errs.ErrCodeCredentialRejected, "Sign-in failed"), http.StatusUnauthorized},
		{errs.New(errs.ErrCodeSessionExpired, "expired"), http.StatusUnauthorized},
		{errs.New(errs.ErrCodeManifestDenied, "denied"), http.StatusForbidden},
		{errs.NotFound("missing"), http.StatusNotFound},
		{errs.New(errs.ErrCodeManifestFailed, "failed"), http.StatusBadGateway},
		{errs.New(errs.ErrCodeEntitlements, "down"), http.StatusBadGateway},
		{errs.New(errs.ErrCodeUnavailable, "down"), http.StatusServiceUnavailable},
		{errs.New(errs.ErrCodeTimeout, "slow"), http.StatusGatewayTimeout},
		{errs.New(errs.ErrCodeCanceled, "gone"), http.StatusRequestTimeout},
		{fmt.Errorf("wrapped: %w", errs.NotFound("missing")), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestRenderError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderError(rec, zap.NewNop(), errors.New("dial tcp 10.0.0.1:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
	assert.Equal(t, ErrorResponse{Error: "internal", Message: "Internal Server Error"}, decodeBody[ErrorResponse](t, rec))
}

func TestRenderError_KeepsField(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderError(rec, nil, errs.ValidationField("uri", "invalid S3 URI"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrorResponse{Error: "validation", Message: "invalid S3 URI", Field: "uri"}, decodeBody[ErrorResponse](t, rec))
}

func TestRecover(t *testing.T) {
	h := Recover(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
