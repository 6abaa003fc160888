// Package storeapi is a thin typed client for the secret store's HTTP API.
//
// It covers the endpoints the lifecycle tooling needs: health and seal-status
// probes, unseal share submission, AppRole identity and credential issuance,
// policy lookups, and KV writes. Responses decode into small typed structs and
// failures come back as errors.StoreError so callers can branch on status
// codes without touching the wire format.
package storeapi

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"strings"
	"time"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
)

const (
	// DefaultAddress matches a store process supervised on the local host.
	DefaultAddress = "http://127.0.0.1:8200"
	DefaultTimeout = 30 * time.Second
)

// Config holds connection settings for the store API.
type Config struct {
	Address string `yaml:"address"`  // Store server address
	Token   string `yaml:"token"`    // API token (discouraged, use VAULT_TOKEN)
	TLSSkip bool   `yaml:"tls_skip"` // Skip TLS verification (not recommended)
}

// ApplyEnvironment overrides config fields from the conventional environment
// variables so the CLI honors the same settings as the store's own tooling.
func (c *Config) ApplyEnvironment() {
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		c.Address = addr
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		c.Token = token
	}
	if skip := os.Getenv("VAULT_SKIP_VERIFY"); skip == "1" || strings.ToLower(skip) == "true" {
		c.TLSSkip = true
	}
}

// Validate checks that the config can produce a usable client.
func (c Config) Validate() error {
	if c.Address == "" {
		return dserrors.ConfigError{
			Field:      "store.address",
			Message:    "store address is required",
			Suggestion: "Set 'store.address' in vaultops.yaml or the VAULT_ADDR environment variable",
		}
	}
	return nil
}

// StoreStatus is the decoded seal status of the store. Threshold carries the
// number of key shares required to unseal and Progress how many the store has
// accepted so far in the current attempt.
type StoreStatus struct {
	Initialized bool   `json:"initialized"`
	Sealed      bool   `json:"sealed"`
	Threshold   int    `json:"t"`
	Progress    int    `json:"progress"`
	Version     string `json:"version"`
}

// HealthStatus is the store's liveness report from /v1/sys/health.
type HealthStatus struct {
	Initialized bool   `json:"initialized"`
	Sealed      bool   `json:"sealed"`
	Standby     bool   `json:"standby"`
	Version     string `json:"version"`
}

// CredentialLease is one freshly issued secret ID with its validity limits.
// The store retires the previous generation by letting its TTL lapse, so a
// lease carries no revocation handle.
type CredentialLease struct {
	SecretID logging.Secret
	Accessor string
	TTL      time.Duration
	NumUses  int
}

// RoleOptions configures an AppRole role created during provisioning.
type RoleOptions struct {
	Policies     []string
	SecretIDTTL  time.Duration
	SecretIDUses int
}

// Client is the store API surface the lifecycle commands depend on. The
// unseal orchestrator and rotation manager take this interface so tests can
// substitute a scripted store.
type Client interface {
	Health(ctx context.Context) (*HealthStatus, error)
	SealStatus(ctx context.Context) (*StoreStatus, error)
	Unseal(ctx context.Context, share string) (*StoreStatus, error)
	RoleID(ctx context.Context, role string) (string, error)
	IssueSecretID(ctx context.Context, role string) (*CredentialLease, error)
	RoleExists(ctx context.Context, role string) (bool, error)
	CreateRole(ctx context.Context, role string, opts RoleOptions) error
	PolicyExists(ctx context.Context, name string) (bool, error)
	WriteKV(ctx context.Context, path string, data map[string]string) error
}

// HTTPClient implements Client against a live store over HTTP.
type HTTPClient struct {
	config Config
	http   *http.Client
	logger *logging.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewClient builds an HTTP client for the configured store. Environment
// variables take precedence over file configuration, matching the store's
// own CLI conventions.
func NewClient(config Config, logger *logging.Logger) *HTTPClient {
	config.ApplyEnvironment()
	if config.Address == "" {
		config.Address = DefaultAddress
	}

	httpClient := &http.Client{Timeout: DefaultTimeout}
	if config.TLSSkip {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &HTTPClient{
		config: config,
		http:   httpClient,
		logger: logger,
	}
}

// Address reports the effective store address after environment overrides.
func (c *HTTPClient) Address() string {
	return c.config.Address
}
