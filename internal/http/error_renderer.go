package httpx

import (
	"context"
	"errors"
	"net/http"

	errs "github.com/target/cop-agent/internal/errors"
	"go.uber.org/zap"
)

// StatusForError maps an error to its HTTP status. Errors without an
// application code are internal errors.
func StatusForError(err error) int {
	switch errs.GetCode(err) {
	case errs.ErrCodeValidation:
		return http.StatusBadRequest
	case errs.ErrCodeNotAuthenticated, errs.ErrCodeCredentialRejected,
		errs.ErrCodeRefreshFailed, errs.ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case errs.ErrCodeManifestDenied:
		return http.StatusForbidden
	case errs.ErrCodeNotFound:
		return http.StatusNotFound
	case errs.ErrCodeManifestFailed, errs.ErrCodeEntitlements:
		return http.StatusBadGateway
	case errs.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case errs.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrCodeCanceled:
		return http.StatusRequestTimeout
	}

	// Distinguish between timeout and cancellation for better UX
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// RenderError writes err as a JSON error response. Application errors keep
// their code and message; anything else is reported without detail.
func RenderError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusForError(err)
	code := string(errs.GetCode(err))
	if code == "" {
		code = string(errs.ErrCodeInternal)
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}

	WriteJSON(w, status, ErrorResponse{
		Error:   code,
		Message: errs.GetMessage(err, http.StatusText(status)),
		Field:   errs.GetField(err),
	})
}
