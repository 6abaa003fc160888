package rotation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
	"github.com/tendersight/vaultops/internal/prompt"
	"github.com/tendersight/vaultops/internal/storeapi"
)

// scriptedStore is an in-memory storeapi.Client with per-role failure hooks.
type scriptedStore struct {
	roles     map[string]string // role name -> role ID
	policies  map[string]bool
	kv        map[string]map[string]string
	created   map[string]storeapi.RoleOptions
	secretSeq int

	failIssue  map[string]error
	rolesErr   error
	writeKVErr error
}

var _ storeapi.Client = (*scriptedStore)(nil)

func newScriptedStore() *scriptedStore {
	return &scriptedStore{
		roles:     map[string]string{},
		policies:  map[string]bool{},
		kv:        map[string]map[string]string{},
		created:   map[string]storeapi.RoleOptions{},
		failIssue: map[string]error{},
	}
}

func (s *scriptedStore) Health(ctx context.Context) (*storeapi.HealthStatus, error) {
	return &storeapi.HealthStatus{Initialized: true}, nil
}

func (s *scriptedStore) SealStatus(ctx context.Context) (*storeapi.StoreStatus, error) {
	return &storeapi.StoreStatus{Initialized: true}, nil
}

func (s *scriptedStore) Unseal(ctx context.Context, share string) (*storeapi.StoreStatus, error) {
	return &storeapi.StoreStatus{Initialized: true}, nil
}

func (s *scriptedStore) RoleExists(ctx context.Context, role string) (bool, error) {
	if s.rolesErr != nil {
		return false, s.rolesErr
	}
	_, ok := s.roles[role]
	return ok, nil
}

func (s *scriptedStore) RoleID(ctx context.Context, role string) (string, error) {
	id, ok := s.roles[role]
	if !ok {
		return "", dserrors.StoreError{Operation: "role-id", StatusCode: 404, Message: "role not found"}
	}
	return id, nil
}

func (s *scriptedStore) IssueSecretID(ctx context.Context, role string) (*storeapi.CredentialLease, error) {
	if err := s.failIssue[role]; err != nil {
		return nil, err
	}
	s.secretSeq++
	return &storeapi.CredentialLease{
		SecretID: logging.Secret(fmt.Sprintf("%04d-%s-secret", s.secretSeq, role)),
		TTL:      time.Hour,
	}, nil
}

func (s *scriptedStore) CreateRole(ctx context.Context, role string, opts storeapi.RoleOptions) error {
	s.created[role] = opts
	s.roles[role] = "rid-" + role
	return nil
}

func (s *scriptedStore) PolicyExists(ctx context.Context, name string) (bool, error) {
	return s.policies[name], nil
}

func (s *scriptedStore) WriteKV(ctx context.Context, path string, data map[string]string) error {
	if s.writeKVErr != nil {
		return s.writeKVErr
	}
	s.kv[path] = data
	return nil
}

func testManager(t *testing.T, store *scriptedStore, opts Options) (*Manager, *FileLedger, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	logger := logging.NewWithWriter(&logs, false, true)
	ledger := NewFileLedger(t.TempDir())
	return NewManager(store, ledger, logger, opts), ledger, &logs
}

func TestManager_RotateSingleService(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["tender-ingest"] = "rid-tender-ingest"

	outPath := filepath.Join(t.TempDir(), "creds.jsonl")
	mgr, ledger, _ := testManager(t, store, Options{
		Targets:    []Target{{Service: "tender-ingest", Role: "tender-ingest", Policy: "tender-ingest-ro"}},
		OutputPath: outPath,
	})

	result, err := mgr.Rotate(context.Background(), "tender-ingest")
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, 1, result.Rotated)
	assert.True(t, result.Ok())

	outcome := result.Outcomes[0]
	assert.Equal(t, StatusRotated, outcome.Status)
	assert.Equal(t, "rid-tender-ingest", outcome.RoleID)
	assert.Len(t, outcome.SecretIDPrefix, secretPrefixLen)

	creds := readCredentials(t, outPath)
	require.Len(t, creds, 1)
	assert.Equal(t, "rid-tender-ingest", creds[0].RoleID)
	assert.Equal(t, "0001-tender-ingest-secret", creds[0].SecretID)
	assert.Equal(t, 3600, creds[0].TTLSeconds)

	entries, err := ledger.History("tender-ingest", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindEphemeral, entries[0].Kind)
	assert.Equal(t, "rid-tender-ingest", entries[0].RoleID)
}

func TestManager_RotateKeepsRoleIDStable(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["bid-scoring"] = "rid-bid-scoring"

	mgr, _, _ := testManager(t, store, Options{
		Targets: []Target{{Service: "bid-scoring", Role: "bid-scoring", Policy: "bid-scoring-ro"}},
	})

	first, err := mgr.Rotate(context.Background(), "bid-scoring")
	require.NoError(t, err)
	second, err := mgr.Rotate(context.Background(), "bid-scoring")
	require.NoError(t, err)

	assert.Equal(t, first.Outcomes[0].RoleID, second.Outcomes[0].RoleID)
	assert.NotEqual(t, first.Outcomes[0].SecretIDPrefix, second.Outcomes[0].SecretIDPrefix)
}

func TestManager_RotateAllSkipsMissingRole(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["tender-ingest"] = "rid-a"
	store.roles["bid-scoring"] = "rid-b"
	// "notify-relay" was never provisioned

	mgr, _, logs := testManager(t, store, Options{
		Targets: []Target{
			{Service: "tender-ingest", Role: "tender-ingest"},
			{Service: "notify-relay", Role: "notify-relay"},
			{Service: "bid-scoring", Role: "bid-scoring"},
		},
	})

	result, err := mgr.Rotate(context.Background(), "")
	require.NoError(t, err, "a missing role must not fail the batch")
	assert.Equal(t, 2, result.Rotated)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.True(t, result.Ok())
	assert.Contains(t, logs.String(), "vaultops provision")
}

func TestManager_RotateFailureContinuesBatch(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["tender-ingest"] = "rid-a"
	store.roles["bid-scoring"] = "rid-b"
	store.failIssue["tender-ingest"] = dserrors.StoreError{Operation: "secret-id", StatusCode: 403}

	mgr, _, _ := testManager(t, store, Options{
		Targets: []Target{
			{Service: "tender-ingest", Role: "tender-ingest"},
			{Service: "bid-scoring", Role: "bid-scoring"},
		},
	})

	result, err := mgr.Rotate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rotated)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Ok())
}

func TestManager_RotateUnknownService(t *testing.T) {
	t.Parallel()

	mgr, _, _ := testManager(t, newScriptedStore(), Options{
		Targets: []Target{
			{Service: "tender-ingest"},
			{Service: "bid-scoring"},
		},
	})

	_, err := mgr.Rotate(context.Background(), "no-such-service")
	require.Error(t, err)

	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Suggestion, "bid-scoring, tender-ingest")
}

func TestManager_RotateNoServicesRegistered(t *testing.T) {
	t.Parallel()

	mgr, _, _ := testManager(t, newScriptedStore(), Options{})

	_, err := mgr.Rotate(context.Background(), "")
	require.Error(t, err)

	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "rotation.services", cfgErr.Field)
}

func TestManager_RotateWithoutOutputFile(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["tender-ingest"] = "rid-a"

	dir := t.TempDir()
	mgr, _, _ := testManager(t, store, Options{
		Targets: []Target{{Service: "tender-ingest", Role: "tender-ingest"}},
	})

	result, err := mgr.Rotate(context.Background(), "tender-ingest")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rotated)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files, "no credentials file expected without an output path")
}

func TestManager_RotateSharedDeclined(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	mgr, ledger, _ := testManager(t, store, Options{
		SharedSecretPath: "secret/data/platform/session",
		SharedSecretKey:  "signing_key",
	})

	confirm := &prompt.Preset{Answer: false}
	result, err := mgr.RotateShared(context.Background(), confirm)
	require.NoError(t, err, "declining must be a successful no-op")

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusSkipped, result.Outcomes[0].Status)
	assert.Empty(t, store.kv, "no KV write after decline")

	entries, err := ledger.AllHistory(0)
	require.NoError(t, err)
	assert.Empty(t, entries, "no ledger entry after decline")
}

func TestManager_RotateSharedApproved(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	mgr, ledger, _ := testManager(t, store, Options{
		SharedSecretPath: "secret/data/platform/session",
		SharedSecretKey:  "signing_key",
	})

	confirm := &prompt.Preset{Answer: true}
	result, err := mgr.RotateShared(context.Background(), confirm)
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, StatusRotated, result.Outcomes[0].Status)
	assert.Equal(t, 1, result.Rotated)

	require.Len(t, confirm.Asked, 1)
	assert.Contains(t, confirm.Asked[0], "secret/data/platform/session")

	data, ok := store.kv["secret/data/platform/session"]
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(data["signing_key"])
	require.NoError(t, err)
	assert.Len(t, raw, sharedSecretBytes)

	entries, err := ledger.History(SharedServiceName, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindShared, entries[0].Kind)
	assert.Empty(t, entries[0].SecretIDPrefix, "shared rotations leave no secret trace")
}

func TestManager_RotateSharedDefaultsKeyName(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	mgr, _, _ := testManager(t, store, Options{
		SharedSecretPath: "secret/data/platform/session",
	})

	_, err := mgr.RotateShared(context.Background(), &prompt.Preset{Answer: true})
	require.NoError(t, err)

	data := store.kv["secret/data/platform/session"]
	assert.NotEmpty(t, data["value"])
}

func TestManager_RotateSharedPathNotConfigured(t *testing.T) {
	t.Parallel()

	mgr, _, _ := testManager(t, newScriptedStore(), Options{})

	_, err := mgr.RotateShared(context.Background(), &prompt.Preset{Answer: true})
	require.Error(t, err)

	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "rotation.shared_secret.path", cfgErr.Field)
}

func TestManager_RotateSharedWriteFailure(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.writeKVErr = dserrors.StoreError{Operation: "kv-write", StatusCode: 503}

	mgr, ledger, _ := testManager(t, store, Options{
		SharedSecretPath: "secret/data/platform/session",
	})

	_, err := mgr.RotateShared(context.Background(), &prompt.Preset{Answer: true})
	require.Error(t, err)

	entries, lerr := ledger.AllHistory(0)
	require.NoError(t, lerr)
	assert.Empty(t, entries, "failed rotation leaves no ledger entry")
}

func TestManager_Provision(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["tender-ingest"] = "rid-existing"
	store.policies["bid-scoring-ro"] = true
	// notify-relay's policy is missing on purpose

	mgr, _, _ := testManager(t, store, Options{
		Targets: []Target{
			{Service: "tender-ingest", Role: "tender-ingest", Policy: "tender-ingest-ro"},
			{Service: "bid-scoring", Role: "bid-scoring", Policy: "bid-scoring-ro"},
			{Service: "notify-relay", Role: "notify-relay", Policy: "notify-relay-ro"},
		},
		SecretIDTTL:  90 * time.Minute,
		SecretIDUses: 5,
	})

	result, err := mgr.Provision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Provisioned)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Ok())

	created, ok := store.created["bid-scoring"]
	require.True(t, ok)
	assert.Equal(t, []string{"bid-scoring-ro"}, created.Policies)
	assert.Equal(t, 90*time.Minute, created.SecretIDTTL)
	assert.Equal(t, 5, created.SecretIDUses)

	_, touchedExisting := store.created["tender-ingest"]
	assert.False(t, touchedExisting, "existing role must not be recreated")
	assert.Equal(t, "rid-existing", store.roles["tender-ingest"])
}

func TestManager_ProvisionNoServices(t *testing.T) {
	t.Parallel()

	mgr, _, _ := testManager(t, newScriptedStore(), Options{})
	_, err := mgr.Provision(context.Background())
	require.Error(t, err)
}

func TestManager_LedgerHoldsPrefixOnly(t *testing.T) {
	t.Parallel()

	store := newScriptedStore()
	store.roles["tender-ingest"] = "rid-a"

	mgr, ledger, _ := testManager(t, store, Options{
		Targets: []Target{{Service: "tender-ingest", Role: "tender-ingest"}},
	})

	_, err := mgr.Rotate(context.Background(), "tender-ingest")
	require.NoError(t, err)

	entries, err := ledger.History("tender-ingest", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fullSecret := "0001-tender-ingest-secret"
	assert.Equal(t, fullSecret[:secretPrefixLen], entries[0].SecretIDPrefix)
	assert.NotEqual(t, fullSecret, entries[0].SecretIDPrefix)
}
