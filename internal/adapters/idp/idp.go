package idp

// Package idp holds helpers shared by the credential backend adapters.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "github.com/target/cop-agent/internal/errors"
	"golang.org/x/oauth2"
)

// DefaultHTTPClient is used when an adapter is configured without a client.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// WithHTTPClient makes oauth2 calls on ctx use client.
func WithHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// TokenError maps a token endpoint failure onto an AppError. A 4xx response
// means the provider refused; 5xx and transport errors mean it could not be
// reached.
func TokenError(err error, refused errs.ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && (re.Response == nil || re.Response.StatusCode < http.StatusInternalServerError) {
		detail := re.ErrorCode
		if detail == "" && re.Response != nil {
			detail = re.Response.Status
		}
		return errs.Wrapf(err, refused, "%s (%s)", message, detail)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(err, errs.ErrCodeTimeout, message)
	}
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(err, errs.ErrCodeCanceled, message)
	}
	return errs.Wrap(err, errs.ErrCodeUnavailable, message)
}

// Logout posts an RP-initiated logout form to endpoint and expects a 2xx.
func Logout(ctx context.Context, client *http.Client, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("logout: unexpected status %d", resp.StatusCode)
	}
	return nil
}
