package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
)

// Config holds the runtime configuration shared by every command.
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the vaultops.yaml structure.
type Definition struct {
	Version  int             `yaml:"version"`
	Store    StoreSection    `yaml:"store"`
	Keys     KeysSection     `yaml:"keys"`
	Rotation RotationSection `yaml:"rotation"`
	Metrics  MetricsSection  `yaml:"metrics"`
	Database DatabaseSection `yaml:"database"`
}

// StoreSection configures how the secret store is reached and, when
// supervised, how its server process is launched.
type StoreSection struct {
	Address              string   `yaml:"address"`
	Token                string   `yaml:"token"`
	TLSSkip              bool     `yaml:"tls_skip"`
	Command              []string `yaml:"command"`
	ReadyAttempts        int      `yaml:"ready_attempts"`
	ReadyIntervalSeconds int      `yaml:"ready_interval_seconds"`
}

// ReadyInterval returns the readiness poll delay as a duration.
func (s StoreSection) ReadyInterval() time.Duration {
	return time.Duration(s.ReadyIntervalSeconds) * time.Second
}

// KeysSection selects where the master password and encrypted unseal key
// artifacts live.
type KeysSection struct {
	Backend        string `yaml:"backend"` // file or keyring
	Dir            string `yaml:"dir"`
	KeyringService string `yaml:"keyring_service"`
}

// RotationSection configures the credential rotation targets and outputs.
type RotationSection struct {
	Services     []ServiceEntry      `yaml:"services"`
	Output       string              `yaml:"output"`
	SecretIDTTL  string              `yaml:"secret_id_ttl"`
	SecretIDUses int                 `yaml:"secret_id_uses"`
	LedgerDir    string              `yaml:"ledger_dir"`
	SharedSecret SharedSecretSection `yaml:"shared_secret"`
}

// TTL parses the configured secret ID lifetime.
func (r RotationSection) TTL() (time.Duration, error) {
	if r.SecretIDTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.SecretIDTTL)
	if err != nil {
		return 0, dserrors.ConfigError{
			Field:      "rotation.secret_id_ttl",
			Value:      r.SecretIDTTL,
			Message:    "invalid duration",
			Suggestion: "Use Go duration syntax, e.g. '24h' or '90m'",
		}
	}
	return d, nil
}

// ServiceEntry is one registered platform service whose store credentials
// this tool provisions and rotates.
type ServiceEntry struct {
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
	Policy string `yaml:"policy"`
}

// SharedSecretSection locates the fleet-wide shared secret in the store's KV
// backend.
type SharedSecretSection struct {
	Path string `yaml:"path"`
	Key  string `yaml:"key"`
}

// MetricsSection gates the supervisor's Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// DatabaseSection points the doctor probe at the platform database. Optional;
// the probe is skipped when no driver is set.
type DatabaseSection struct {
	Driver string `yaml:"driver"` // postgres or mysql
	DSN    string `yaml:"dsn"`
}

// Load reads, validates, and normalizes the vaultops.yaml file.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a vaultops.yaml with at least a 'version: 1' line and a 'store:' section",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	// Decode once into a plain document for schema validation, so typos and
	// wrong types are reported against what the user actually wrote.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if err := validateSchema(raw); err != nil {
		return err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid configuration structure",
			Suggestion: "Compare your vaultops.yaml against the documented format",
		}
	}

	if def.Version != 1 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 1' at the top of your vaultops.yaml file",
		}
	}

	def.applyDefaults()

	if _, err := def.Rotation.TTL(); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

// applyDefaults fills the zero values a minimal vaultops.yaml leaves open.
func (d *Definition) applyDefaults() {
	if d.Store.ReadyAttempts <= 0 {
		d.Store.ReadyAttempts = 30
	}
	if d.Store.ReadyIntervalSeconds <= 0 {
		d.Store.ReadyIntervalSeconds = 2
	}

	if d.Keys.Backend == "" {
		d.Keys.Backend = "file"
	}
	if d.Keys.Dir == "" {
		d.Keys.Dir = DefaultKeysDir()
	}
	if d.Keys.KeyringService == "" {
		d.Keys.KeyringService = "vaultops"
	}

	if d.Rotation.Output == "" {
		d.Rotation.Output = "vaultops-credentials.jsonl"
	}
	if d.Rotation.SecretIDTTL == "" {
		d.Rotation.SecretIDTTL = "24h"
	}
	if d.Rotation.LedgerDir == "" {
		d.Rotation.LedgerDir = DefaultLedgerDir()
	}
	if d.Rotation.SharedSecret.Key == "" {
		d.Rotation.SharedSecret.Key = "value"
	}
	for i := range d.Rotation.Services {
		if d.Rotation.Services[i].Role == "" {
			d.Rotation.Services[i].Role = d.Rotation.Services[i].Name
		}
	}

	if d.Metrics.Port <= 0 {
		d.Metrics.Port = 9090
	}
	if d.Metrics.Path == "" {
		d.Metrics.Path = "/metrics"
	}
}

// Service returns the registered service entry by name.
func (c *Config) Service(name string) (ServiceEntry, error) {
	if c.Definition == nil {
		return ServiceEntry{}, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	for _, svc := range c.Definition.Rotation.Services {
		if svc.Name == name {
			return svc, nil
		}
	}

	suggestion := "Add the service to the 'rotation.services:' section of your vaultops.yaml"
	if available := c.Definition.ServiceNames(); len(available) > 0 {
		suggestion = fmt.Sprintf("Registered services: %s", strings.Join(available, ", "))
	}

	return ServiceEntry{}, dserrors.ConfigError{
		Field:      "service",
		Value:      name,
		Message:    "service not registered",
		Suggestion: suggestion,
	}
}

// ServiceNames returns the registered service names, sorted.
func (d *Definition) ServiceNames() []string {
	names := make([]string, 0, len(d.Rotation.Services))
	for _, svc := range d.Rotation.Services {
		names = append(names, svc.Name)
	}
	sort.Strings(names)
	return names
}

// DefaultKeysDir returns where key material artifacts live when the file
// backend has no explicit directory configured.
func DefaultKeysDir() string {
	if dir := os.Getenv("VAULTOPS_KEYS_DIR"); dir != "" {
		return dir
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "vaultops", "keys")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "vaultops", "keys")
	}
	return filepath.Join(os.TempDir(), "vaultops", "keys")
}

// DefaultLedgerDir returns where rotation ledger entries live when not
// configured explicitly.
func DefaultLedgerDir() string {
	if dir := os.Getenv("VAULTOPS_LEDGER_DIR"); dir != "" {
		return dir
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "vaultops", "ledger")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "vaultops", "ledger")
	}
	return filepath.Join(os.TempDir(), "vaultops", "ledger")
}
