package entitlements

// Package entitlements calls the platform's GetEntitlements RPC over the
// Connect JSON protocol.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/ports"
)

var _ ports.EntitlementFetcher = (*Client)(nil)

// Path is the Connect procedure path appended to the service base URL.
const Path = "/tdf_object.v1.TdfObjectService/GetEntitlements"

const maxBody = 1 << 20

// Client implements ports.EntitlementFetcher.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("entitlements base URL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimSuffix(baseURL, "/") + Path,
		httpClient: httpClient,
	}, nil
}

type getEntitlementsResponse struct {
	Entitlements map[string]json.RawMessage `json:"entitlements"`
}

type connectError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetEntitlements returns the sorted entitlement labels for the bearer of authHeader.
// authHeader is sent verbatim as the Authorization header.
func (c *Client) GetEntitlements(ctx context.Context, authHeader string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("build entitlements request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connect-Protocol-Version", "1")
	req.Header.Set("Authorization", authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeEntitlements, "entitlements request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeEntitlements, "read entitlements response")
	}

	if resp.StatusCode != http.StatusOK {
		var ce connectError
		if jsonErr := json.Unmarshal(body, &ce); jsonErr == nil && ce.Code != "" {
			return nil, errs.Wrapf(fmt.Errorf("%s: %s", ce.Code, ce.Message), errs.ErrCodeEntitlements,
				"entitlements status %d", resp.StatusCode)
		}
		return nil, errs.New(errs.ErrCodeEntitlements, fmt.Sprintf("entitlements status %d", resp.StatusCode))
	}

	var out getEntitlementsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeEntitlements, "decode entitlements response")
	}

	labels := make([]string, 0, len(out.Entitlements))
	for label := range out.Entitlements {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, nil
}
