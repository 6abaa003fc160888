package rotation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/health"
	"github.com/tendersight/vaultops/internal/logging"
	"github.com/tendersight/vaultops/internal/prompt"
	"github.com/tendersight/vaultops/internal/storeapi"
)

const (
	// sharedSecretBytes is the entropy of a newly minted shared secret.
	sharedSecretBytes = 32

	// SharedServiceName labels shared secret cutovers in results, metrics,
	// and the ledger.
	SharedServiceName = "shared-secret"

	// secretPrefixLen is how much of a secret ID the ledger and results may
	// carry for correlation.
	secretPrefixLen = 8
)

// Options configures a Manager from the rotation section of the config file.
type Options struct {
	Targets          []Target
	OutputPath       string        // credentials file; empty disables the file
	SecretIDTTL      time.Duration // validity of issued secret IDs
	SecretIDUses     int           // use-count limit, 0 = unlimited
	SharedSecretPath string        // KV path of the fleet-wide shared secret
	SharedSecretKey  string        // key within the KV entry, defaults to "value"
}

// Manager drives credential rotation and role provisioning against the
// store. One Manager handles one run; it is not safe for concurrent use.
type Manager struct {
	store   storeapi.Client
	ledger  Ledger
	logger  *logging.Logger
	metrics *health.Recorder
	opts    Options
}

// NewManager builds a rotation manager.
func NewManager(store storeapi.Client, ledger Ledger, logger *logging.Logger, opts Options) *Manager {
	return &Manager{
		store:   store,
		ledger:  ledger,
		logger:  logger,
		metrics: health.NewRecorder(),
		opts:    opts,
	}
}

// Rotate issues a fresh secret ID for the named service, or for every
// registered service when serviceName is empty. Targets are independent: a
// failed or skipped target is recorded in the Result and the batch moves on.
// The previous secret ID of each rotated service is never revoked; it
// expires on its own TTL, which is what gives consumers an overlap window to
// pick up the new credential.
func (m *Manager) Rotate(ctx context.Context, serviceName string) (*Result, error) {
	targets, err := m.selectTargets(serviceName)
	if err != nil {
		return nil, err
	}

	var writer *CredentialsWriter
	if m.opts.OutputPath != "" {
		writer, err = NewCredentialsWriter(m.opts.OutputPath)
		if err != nil {
			return nil, err
		}
		defer writer.Close()
	}

	result := &Result{}
	for _, target := range targets {
		result.add(m.rotateOne(ctx, target, writer))
	}

	m.logger.Info("Rotation finished: %d rotated, %d skipped, %d failed",
		result.Rotated, result.Skipped, result.Failed)
	return result, nil
}

func (m *Manager) rotateOne(ctx context.Context, target Target, writer *CredentialsWriter) ServiceResult {
	start := time.Now()
	m.metrics.RecordRotationStarted(target.Service)
	m.logger.Debug("Rotating credentials for %s (role %s)", target.Service, target.Role)

	outcome := m.issue(ctx, target, writer)
	m.metrics.RecordRotationCompleted(target.Service, string(outcome.Status), time.Since(start).Seconds())

	switch outcome.Status {
	case StatusRotated:
		m.logger.Info("Rotated %s: secret ID %s… issued for role ID %s", target.Service, outcome.SecretIDPrefix, outcome.RoleID)
	case StatusSkipped:
		m.logger.Warn("Skipped %s: %s", target.Service, outcome.Message)
	case StatusFailed:
		m.logger.Error("Failed to rotate %s: %s", target.Service, outcome.Message)
	}
	return outcome
}

func (m *Manager) issue(ctx context.Context, target Target, writer *CredentialsWriter) ServiceResult {
	outcome := ServiceResult{Service: target.Service}

	exists, err := m.store.RoleExists(ctx, target.Role)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		return outcome
	}
	if !exists {
		outcome.Status = StatusSkipped
		outcome.Message = fmt.Sprintf("role '%s' does not exist; run 'vaultops provision' first", target.Role)
		return outcome
	}

	// The role ID is stable across rotations; it is read here, never
	// regenerated.
	roleID, err := m.store.RoleID(ctx, target.Role)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		return outcome
	}
	outcome.RoleID = roleID

	lease, err := m.store.IssueSecretID(ctx, target.Role)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		return outcome
	}
	outcome.SecretIDPrefix = lease.SecretID.Prefix(secretPrefixLen)

	if writer != nil {
		cred := Credential{
			Service:    target.Service,
			RoleID:     roleID,
			SecretID:   lease.SecretID.Reveal(),
			TTLSeconds: int(lease.TTL.Seconds()),
			IssuedAt:   time.Now().UTC(),
		}
		if err := writer.Write(cred); err != nil {
			outcome.Status = StatusFailed
			outcome.Message = err.Error()
			return outcome
		}
	}

	entry := &Entry{
		Service:        target.Service,
		RoleID:         roleID,
		SecretIDPrefix: outcome.SecretIDPrefix,
		Kind:           KindEphemeral,
	}
	if err := m.ledger.Append(entry); err != nil {
		// The credential is already issued and delivered at this point, so a
		// ledger miss degrades the audit trail but does not fail the target.
		m.logger.Warn("Could not record ledger entry for %s: %v", target.Service, err)
	}

	outcome.Status = StatusRotated
	outcome.Message = fmt.Sprintf("secret ID %s… issued", outcome.SecretIDPrefix)
	return outcome
}

// RotateShared replaces the fleet-wide shared secret at the configured KV
// path with 32 fresh random bytes, base64-encoded. Unlike per-service
// credentials there is no overlap window: every session derived from the old
// value dies with the write. The operation therefore refuses to proceed
// without approval through confirm; declining is a successful no-op with a
// skipped outcome.
func (m *Manager) RotateShared(ctx context.Context, confirm prompt.Confirmer) (*Result, error) {
	if m.opts.SharedSecretPath == "" {
		return nil, dserrors.ConfigError{
			Field:      "rotation.shared_secret.path",
			Message:    "no shared secret path configured",
			Suggestion: "Set 'rotation.shared_secret.path' in vaultops.yaml to the KV path of the shared secret",
		}
	}

	result := &Result{}

	message := fmt.Sprintf(
		"Rotating the shared secret at '%s' immediately invalidates every session signed with the current value. Continue?",
		m.opts.SharedSecretPath)
	approved, err := confirm.Confirm(message)
	if err != nil {
		return nil, err
	}
	if !approved {
		m.logger.Warn("Shared secret rotation declined; nothing changed")
		result.add(ServiceResult{
			Service: SharedServiceName,
			Status:  StatusSkipped,
			Message: "declined by operator",
		})
		return result, nil
	}

	start := time.Now()
	m.metrics.RecordRotationStarted(SharedServiceName)

	value, err := newSharedSecret()
	if err != nil {
		m.metrics.RecordRotationCompleted(SharedServiceName, string(StatusFailed), time.Since(start).Seconds())
		return nil, err
	}

	key := m.opts.SharedSecretKey
	if key == "" {
		key = "value"
	}
	if err := m.store.WriteKV(ctx, m.opts.SharedSecretPath, map[string]string{key: value.Reveal()}); err != nil {
		m.metrics.RecordRotationCompleted(SharedServiceName, string(StatusFailed), time.Since(start).Seconds())
		return nil, err
	}
	m.metrics.RecordRotationCompleted(SharedServiceName, string(StatusRotated), time.Since(start).Seconds())

	if err := m.ledger.Append(&Entry{Service: SharedServiceName, Kind: KindShared}); err != nil {
		m.logger.Warn("Could not record ledger entry for shared secret: %v", err)
	}

	m.logger.Info("Shared secret rotated at %s", m.opts.SharedSecretPath)
	result.add(ServiceResult{
		Service: SharedServiceName,
		Status:  StatusRotated,
		Message: fmt.Sprintf("new value written to %s", m.opts.SharedSecretPath),
	})
	return result, nil
}

// Provision creates the role for each registered service that lacks one.
// The bound policy must already exist on the store; provisioning reads
// policies for existence only and never authors their content. Existing
// roles are left untouched.
func (m *Manager) Provision(ctx context.Context) (*Result, error) {
	if len(m.opts.Targets) == 0 {
		return nil, dserrors.ConfigError{
			Field:      "rotation.services",
			Message:    "no services registered",
			Suggestion: "Add services under 'rotation.services' in vaultops.yaml",
		}
	}

	result := &Result{}
	for _, target := range m.opts.Targets {
		result.add(m.provisionOne(ctx, target))
	}

	m.logger.Info("Provisioning finished: %d created, %d skipped, %d failed",
		result.Provisioned, result.Skipped, result.Failed)
	return result, nil
}

func (m *Manager) provisionOne(ctx context.Context, target Target) ServiceResult {
	outcome := ServiceResult{Service: target.Service}

	exists, err := m.store.RoleExists(ctx, target.Role)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		m.logger.Error("Failed to provision %s: %s", target.Service, outcome.Message)
		return outcome
	}
	if exists {
		outcome.Status = StatusSkipped
		outcome.Message = fmt.Sprintf("role '%s' already provisioned", target.Role)
		m.logger.Debug("Skipped %s: %s", target.Service, outcome.Message)
		return outcome
	}

	ok, err := m.store.PolicyExists(ctx, target.Policy)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		m.logger.Error("Failed to provision %s: %s", target.Service, outcome.Message)
		return outcome
	}
	if !ok {
		outcome.Status = StatusFailed
		outcome.Message = fmt.Sprintf("policy '%s' is not installed on the store", target.Policy)
		m.logger.Error("Failed to provision %s: %s", target.Service, outcome.Message)
		return outcome
	}

	opts := storeapi.RoleOptions{
		Policies:     []string{target.Policy},
		SecretIDTTL:  m.opts.SecretIDTTL,
		SecretIDUses: m.opts.SecretIDUses,
	}
	if err := m.store.CreateRole(ctx, target.Role, opts); err != nil {
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		m.logger.Error("Failed to provision %s: %s", target.Service, outcome.Message)
		return outcome
	}

	outcome.Status = StatusProvisioned
	outcome.Message = fmt.Sprintf("role '%s' created with policy '%s'", target.Role, target.Policy)
	m.logger.Info("Provisioned %s: %s", target.Service, outcome.Message)
	return outcome
}

// selectTargets resolves the rotation set for one run.
func (m *Manager) selectTargets(serviceName string) ([]Target, error) {
	if len(m.opts.Targets) == 0 {
		return nil, dserrors.ConfigError{
			Field:      "rotation.services",
			Message:    "no services registered",
			Suggestion: "Add services under 'rotation.services' in vaultops.yaml",
		}
	}
	if serviceName == "" {
		return m.opts.Targets, nil
	}

	var names []string
	for _, t := range m.opts.Targets {
		if t.Service == serviceName {
			return []Target{t}, nil
		}
		names = append(names, t.Service)
	}
	sort.Strings(names)

	return nil, dserrors.ConfigError{
		Field:      "rotation.services",
		Value:      serviceName,
		Message:    "service is not registered",
		Suggestion: fmt.Sprintf("Registered services: %s", strings.Join(names, ", ")),
	}
}

// newSharedSecret draws fresh random bytes and base64-encodes them so the
// value survives transport through JSON, env files, and shell quoting.
func newSharedSecret() (logging.Secret, error) {
	buf := make([]byte, sharedSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate shared secret: %w", err)
	}
	return logging.Secret(base64.StdEncoding.EncodeToString(buf)), nil
}
