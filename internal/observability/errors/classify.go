package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	errs "github.com/target/cop-agent/internal/errors"
)

// Classify returns a short, stable label for err suitable for log fields.
// Application errors report their code, context errors report "timeout" or
// "canceled", and anything else reports its innermost concrete type in
// snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var appErr *errs.AppError
	if goerrors.As(err, &appErr) {
		return string(appErr.Code)
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return string(errs.ErrCodeTimeout)
	case goerrors.Is(err, context.Canceled):
		return string(errs.ErrCodeCanceled)
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
