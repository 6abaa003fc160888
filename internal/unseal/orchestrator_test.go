package unseal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/keyvault"
	"github.com/tendersight/vaultops/internal/logging"
	"github.com/tendersight/vaultops/internal/storeapi"
	"github.com/tendersight/vaultops/pkg/artifact"
)

// sealClient scripts the store's status and unseal endpoints.
type sealClient struct {
	mu          sync.Mutex
	initialized bool
	sealed      bool
	threshold   int
	progress    int

	failStatus  int // SealStatus errors for the first N calls
	statusCalls int
	acceptShare bool // submitting a share flips sealed to false
	unsealErr   error
	submitted   []string
}

var _ storeapi.Client = (*sealClient)(nil)

func (c *sealClient) SealStatus(ctx context.Context) (*storeapi.StoreStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statusCalls++
	if c.statusCalls <= c.failStatus {
		return nil, dserrors.StoreError{Operation: "seal-status", Err: errors.New("connection refused")}
	}
	return &storeapi.StoreStatus{
		Initialized: c.initialized,
		Sealed:      c.sealed,
		Threshold:   c.threshold,
		Progress:    c.progress,
		Version:     "1.16.2",
	}, nil
}

func (c *sealClient) Unseal(ctx context.Context, share string) (*storeapi.StoreStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsealErr != nil {
		return nil, c.unsealErr
	}
	c.submitted = append(c.submitted, share)
	if c.acceptShare {
		c.sealed = false
		return &storeapi.StoreStatus{Initialized: true, Sealed: false, Threshold: c.threshold}, nil
	}
	c.progress++
	return &storeapi.StoreStatus{
		Initialized: true,
		Sealed:      true,
		Threshold:   c.threshold,
		Progress:    c.progress,
	}, nil
}

func (c *sealClient) Health(ctx context.Context) (*storeapi.HealthStatus, error) {
	return &storeapi.HealthStatus{Initialized: c.initialized, Sealed: c.sealed}, nil
}

func (c *sealClient) RoleID(ctx context.Context, role string) (string, error) {
	return "", errors.New("not scripted")
}

func (c *sealClient) IssueSecretID(ctx context.Context, role string) (*storeapi.CredentialLease, error) {
	return nil, errors.New("not scripted")
}

func (c *sealClient) RoleExists(ctx context.Context, role string) (bool, error) {
	return false, errors.New("not scripted")
}

func (c *sealClient) CreateRole(ctx context.Context, role string, opts storeapi.RoleOptions) error {
	return errors.New("not scripted")
}

func (c *sealClient) PolicyExists(ctx context.Context, name string) (bool, error) {
	return false, errors.New("not scripted")
}

func (c *sealClient) WriteKV(ctx context.Context, path string, data map[string]string) error {
	return errors.New("not scripted")
}

// testVault returns a vault whose artifacts hold the given share, plus the
// backing store for tests that need to corrupt it.
func testVault(t *testing.T, share string) (*keyvault.Vault, *artifact.MemStore) {
	t.Helper()

	store := artifact.NewMemStore()
	vault := keyvault.New(store, logging.NewWithWriter(io.Discard, false, true))

	password, err := vault.DerivePassword(false)
	require.NoError(t, err)
	_, err = vault.Encrypt([]byte(share), password)
	require.NoError(t, err)

	return vault, store
}

// emptyVault returns a vault with no key material installed.
func emptyVault() *keyvault.Vault {
	return keyvault.New(artifact.NewMemStore(), logging.NewWithWriter(io.Discard, false, true))
}

func testOrchestrator(client storeapi.Client, vault *keyvault.Vault, logs *bytes.Buffer, opts Options) *Orchestrator {
	var out io.Writer = io.Discard
	if logs != nil {
		out = logs
	}
	return New(client, vault, nil, logging.NewWithWriter(out, false, true), opts)
}

func TestOrchestrator_UnsealSubmitsStoredShare(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: true, sealed: true, threshold: 1, acceptShare: true}
	vault, _ := testVault(t, "share-one")
	orch := testOrchestrator(client, vault, nil, Options{})

	err := orch.Unseal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnsealed, orch.State())
	assert.Equal(t, []string{"share-one"}, client.submitted)
}

func TestOrchestrator_UnsealAlreadyUnsealedIsNoOp(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: true, sealed: false}
	vault, _ := testVault(t, "share-one")
	orch := testOrchestrator(client, vault, nil, Options{})

	err := orch.Unseal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateUnsealed, orch.State())
	assert.Empty(t, client.submitted, "no share may be submitted to an unsealed store")
}

func TestOrchestrator_UnsealUninitializedStore(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: false, sealed: true}
	vault, _ := testVault(t, "share-one")

	var logs bytes.Buffer
	orch := testOrchestrator(client, vault, &logs, Options{})

	err := orch.Unseal(context.Background())
	require.NoError(t, err, "an uninitialized store is an operator condition, not a failure")
	assert.Equal(t, StateReadyUninitialized, orch.State())
	assert.Empty(t, client.submitted)
	assert.Contains(t, logs.String(), "not initialized")
}

func TestOrchestrator_UnsealMissingKeyMaterial(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: true, sealed: true, threshold: 1}

	var logs bytes.Buffer
	orch := testOrchestrator(client, emptyVault(), &logs, Options{})

	err := orch.Unseal(context.Background())
	require.NoError(t, err, "missing key material must leave the store supervised, not crash")
	assert.Equal(t, StateReadySealed, orch.State())
	assert.Empty(t, client.submitted)
	assert.Contains(t, logs.String(), "vaultops keygen")
}

func TestOrchestrator_UnsealThresholdNotMet(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: true, sealed: true, threshold: 3, acceptShare: false}
	vault, _ := testVault(t, "share-one")
	orch := testOrchestrator(client, vault, nil, Options{})

	err := orch.Unseal(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThresholdNotMet)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Equal(t, StateReadySealed, orch.State())
	assert.Len(t, client.submitted, 1, "the same share is never resubmitted")
}

func TestOrchestrator_UnsealWrongPassword(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: true, sealed: true, threshold: 1, acceptShare: true}
	vault, store := testVault(t, "share-one")

	// Corrupt the password after the envelope was written.
	require.NoError(t, store.Put(keyvault.PasswordArtifact, []byte("bm90LXRoZS1wYXNzd29yZA==")))

	orch := testOrchestrator(client, vault, nil, Options{})

	err := orch.Unseal(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, keyvault.ErrDecryptFailed)
	assert.Empty(t, client.submitted, "nothing may reach the store after a decrypt failure")
	assert.Equal(t, StateReadySealed, orch.State())
}

func TestOrchestrator_UnsealSubmissionError(t *testing.T) {
	t.Parallel()

	client := &sealClient{
		initialized: true,
		sealed:      true,
		unsealErr:   dserrors.StoreError{Operation: "unseal", StatusCode: 400},
	}
	vault, _ := testVault(t, "share-one")
	orch := testOrchestrator(client, vault, nil, Options{})

	err := orch.Unseal(context.Background())
	require.Error(t, err)

	var storeErr dserrors.StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, StateReadySealed, orch.State())
}

func TestOrchestrator_AwaitReadyRecovers(t *testing.T) {
	t.Parallel()

	client := &sealClient{initialized: true, sealed: true, failStatus: 2}
	orch := testOrchestrator(client, emptyVault(), nil, Options{
		ReadyAttempts: 5,
		ReadyInterval: time.Millisecond,
	})

	status, err := orch.AwaitReady(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Sealed)
	assert.Equal(t, 3, client.statusCalls)
}

func TestOrchestrator_AwaitReadyExhaustsAttempts(t *testing.T) {
	t.Parallel()

	client := &sealClient{failStatus: 100}
	orch := testOrchestrator(client, emptyVault(), nil, Options{
		ReadyAttempts: 3,
		ReadyInterval: time.Millisecond,
	})

	_, err := orch.AwaitReady(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Equal(t, 3, client.statusCalls, "ReadyAttempts is a hard bound")
}

func TestOrchestrator_AwaitReadyHonorsContext(t *testing.T) {
	t.Parallel()

	client := &sealClient{failStatus: 100}
	orch := testOrchestrator(client, emptyVault(), nil, Options{
		ReadyAttempts: 50,
		ReadyInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := orch.AwaitReady(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOrchestrator_DefaultOptions(t *testing.T) {
	t.Parallel()

	orch := testOrchestrator(&sealClient{}, emptyVault(), nil, Options{})
	assert.Equal(t, DefaultReadyAttempts, orch.readyAttempts)
	assert.Equal(t, DefaultReadyInterval, orch.readyInterval)
	assert.Equal(t, StateStopped, orch.State())
}

func TestState_String(t *testing.T) {
	t.Parallel()

	cases := map[State]string{
		StateStopped:            "stopped",
		StateStarting:           "starting",
		StateReadySealed:        "ready-sealed",
		StateReadyUninitialized: "ready-uninitialized",
		StateUnsealing:          "unsealing",
		StateUnsealed:           "unsealed",
		StateFailed:             "failed",
		State(99):               "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
