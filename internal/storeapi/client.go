package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
)

// Health probes /v1/sys/health. The endpoint reports node state through the
// status code and carries the same JSON body for each, so every documented
// code counts as a successful probe.
func (c *HTTPClient) Health(ctx context.Context) (*HealthStatus, error) {
	const op = "health"

	resp, err := c.request(ctx, op, http.MethodGet, "sys/health", nil, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case 200, 429, 472, 473, 501, 503:
	default:
		return nil, c.apiError(op, resp)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, dserrors.StoreError{Operation: op, Message: "malformed response body", Err: err}
	}

	return &status, nil
}

// SealStatus fetches /v1/sys/seal-status. The endpoint answers without a
// token even while the store is sealed.
func (c *HTTPClient) SealStatus(ctx context.Context) (*StoreStatus, error) {
	const op = "seal-status"

	resp, err := c.request(ctx, op, http.MethodGet, "sys/seal-status", nil, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return nil, c.apiError(op, resp)
	}

	var status StoreStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, dserrors.StoreError{Operation: op, Message: "malformed response body", Err: err}
	}

	return &status, nil
}

// Unseal submits one key share and returns the store's updated seal status.
// A still-sealed response is not an error at this layer: with a share
// threshold above one the caller decides whether more shares are expected.
func (c *HTTPClient) Unseal(ctx context.Context, share string) (*StoreStatus, error) {
	const op = "unseal"

	payload := map[string]string{"key": share}
	resp, err := c.request(ctx, op, http.MethodPut, "sys/unseal", payload, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return nil, c.apiError(op, resp)
	}

	var status StoreStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, dserrors.StoreError{Operation: op, Message: "malformed response body", Err: err}
	}

	return &status, nil
}

// RoleID fetches the stable role ID for an AppRole role.
func (c *HTTPClient) RoleID(ctx context.Context, role string) (string, error) {
	const op = "role-id"
	if err := c.requireToken(op); err != nil {
		return "", err
	}

	resp, err := c.request(ctx, op, http.MethodGet, "auth/approle/role/"+role+"/role-id", nil, true)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return "", c.apiError(op, resp)
	}

	var response struct {
		Data struct {
			RoleID string `json:"role_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", dserrors.StoreError{Operation: op, Message: "malformed response body", Err: err}
	}

	return response.Data.RoleID, nil
}

// IssueSecretID mints a fresh secret ID for the role. The previous
// generation stays valid until its TTL lapses; nothing is revoked here.
func (c *HTTPClient) IssueSecretID(ctx context.Context, role string) (*CredentialLease, error) {
	const op = "secret-id"
	if err := c.requireToken(op); err != nil {
		return nil, err
	}

	resp, err := c.request(ctx, op, http.MethodPost, "auth/approle/role/"+role+"/secret-id", nil, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return nil, c.apiError(op, resp)
	}

	var response struct {
		Data struct {
			SecretID   string `json:"secret_id"`
			Accessor   string `json:"secret_id_accessor"`
			TTLSeconds int    `json:"secret_id_ttl"`
			NumUses    int    `json:"secret_id_num_uses"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, dserrors.StoreError{Operation: op, Message: "malformed response body", Err: err}
	}

	return &CredentialLease{
		SecretID: logging.Secret(response.Data.SecretID),
		Accessor: response.Data.Accessor,
		TTL:      time.Duration(response.Data.TTLSeconds) * time.Second,
		NumUses:  response.Data.NumUses,
	}, nil
}

// RoleExists reports whether the AppRole role is already configured.
func (c *HTTPClient) RoleExists(ctx context.Context, role string) (bool, error) {
	const op = "role-read"
	if err := c.requireToken(op); err != nil {
		return false, err
	}

	resp, err := c.request(ctx, op, http.MethodGet, "auth/approle/role/"+role, nil, true)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, c.apiError(op, resp)
	}
}

// CreateRole writes an AppRole role definition.
func (c *HTTPClient) CreateRole(ctx context.Context, role string, opts RoleOptions) error {
	const op = "role-create"
	if err := c.requireToken(op); err != nil {
		return err
	}

	payload := map[string]interface{}{}
	if len(opts.Policies) > 0 {
		payload["token_policies"] = strings.Join(opts.Policies, ",")
	}
	if opts.SecretIDTTL > 0 {
		payload["secret_id_ttl"] = fmt.Sprintf("%ds", int(opts.SecretIDTTL.Seconds()))
	}
	if opts.SecretIDUses > 0 {
		payload["secret_id_num_uses"] = opts.SecretIDUses
	}

	resp, err := c.request(ctx, op, http.MethodPost, "auth/approle/role/"+role, payload, true)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 && resp.StatusCode != 204 {
		return c.apiError(op, resp)
	}

	return nil
}

// PolicyExists reports whether an ACL policy is installed on the store.
func (c *HTTPClient) PolicyExists(ctx context.Context, name string) (bool, error) {
	const op = "policy-read"
	if err := c.requireToken(op); err != nil {
		return false, err
	}

	resp, err := c.request(ctx, op, http.MethodGet, "sys/policies/acl/"+name, nil, true)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, c.apiError(op, resp)
	}
}

// WriteKV stores one KV v2 secret under the default mount. The path is
// relative to the mount, so "shared/analytics" lands at
// /v1/secret/data/shared/analytics.
func (c *HTTPClient) WriteKV(ctx context.Context, path string, data map[string]string) error {
	const op = "kv-write"
	if err := c.requireToken(op); err != nil {
		return err
	}

	payload := map[string]interface{}{"data": data}
	resp, err := c.request(ctx, op, http.MethodPost, "secret/data/"+strings.TrimPrefix(path, "/"), payload, true)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 && resp.StatusCode != 204 {
		return c.apiError(op, resp)
	}

	return nil
}

// requireToken guards the authenticated endpoints. Status and unseal calls
// work without a token; everything touching roles, policies, or KV does not.
func (c *HTTPClient) requireToken(op string) error {
	if c.config.Token == "" {
		return dserrors.StoreError{
			Operation:  op,
			Message:    "no store token configured",
			Suggestion: "Set the VAULT_TOKEN environment variable or 'store.token' in vaultops.yaml",
		}
	}
	return nil
}

// request builds and executes one API call. Transport failures come back as
// StoreError so callers inherit the unreachable-store suggestion. Request
// bodies may carry key material; only the method and URL are ever logged.
func (c *HTTPClient) request(ctx context.Context, op, method, path string, payload interface{}, authed bool) (*http.Response, error) {
	url := strings.TrimSuffix(c.config.Address, "/") + "/v1/" + strings.TrimPrefix(path, "/")

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-Vault-Token", c.config.Token)
	}

	c.logger.Debug("Store API call: %s %s", method, url)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dserrors.StoreError{Operation: op, Err: err}
	}

	return resp, nil
}

// apiError drains an error response and shapes it into a StoreError. The
// store reports failures as {"errors": [...]}; anything else passes through
// as plain text.
func (c *HTTPClient) apiError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(body))

	var wire struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && len(wire.Errors) > 0 {
		message = strings.Join(wire.Errors, "; ")
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return dserrors.StoreError{
		Operation:  op,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}
