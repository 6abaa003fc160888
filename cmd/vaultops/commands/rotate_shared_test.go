package commands

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendersight/vaultops/internal/rotation"
)

func sharedSecretConfig(addr, ledgerDir string) string {
	return fmt.Sprintf(`version: 1
store:
  address: %s
  token: test-token
rotation:
  ledger_dir: %s
  shared_secret:
    path: shared/session-hmac
    key: hmac
`, addr, ledgerDir)
}

func TestRotateSharedCommand_YesWritesNewValue(t *testing.T) {
	pinStoreEnv(t)

	store := newFakeStore()
	addr := store.start(t)

	ledgerDir := t.TempDir()
	cfg, logs := testConfig(t, sharedSecretConfig(addr, ledgerDir))

	cmd := NewRotateSharedCommand(cfg)
	cmd.SetArgs([]string{"--yes"})
	require.NoError(t, cmd.Execute())

	value := store.kv["shared/session-hmac"]["hmac"]
	require.NotEmpty(t, value)
	raw, err := base64.StdEncoding.DecodeString(value)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	entries, err := rotation.NewFileLedger(ledgerDir).History(rotation.SharedServiceName, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rotation.KindShared, entries[0].Kind)

	assert.Contains(t, logs.String(), "Shared secret rotated")
}

func TestRotateSharedCommand_NonInteractiveDeclines(t *testing.T) {
	pinStoreEnv(t)

	store := newFakeStore()
	addr := store.start(t)

	cfg, logs := testConfig(t, sharedSecretConfig(addr, t.TempDir()))
	cfg.NonInteractive = true

	cmd := NewRotateSharedCommand(cfg)
	cmd.SetArgs([]string{})

	// A declined cutover is a successful no-op, not a failure.
	require.NoError(t, cmd.Execute())
	assert.Empty(t, store.kv)
	assert.Contains(t, logs.String(), "declined")
}

func TestRotateSharedCommand_NoPathConfigured(t *testing.T) {
	pinStoreEnv(t)

	store := newFakeStore()
	addr := store.start(t)

	cfg, _ := testConfig(t, fmt.Sprintf("version: 1\nstore:\n  address: %s\n  token: test-token\n", addr))

	cmd := NewRotateSharedCommand(cfg)
	cmd.SetArgs([]string{"--yes"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared secret path")
}
