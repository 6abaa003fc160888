package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore_RoundTrip(t *testing.T) {
	// MockInit swaps the process-global keyring provider; no t.Parallel()
	keyring.MockInit()

	store := NewKeyringStore("vaultops-test")

	require.NoError(t, store.Put("master.key", []byte("YmFzZTY0LXBhc3N3b3Jk")))
	assert.True(t, store.Exists("master.key"))

	data, err := store.Get("master.key")
	require.NoError(t, err)
	assert.Equal(t, []byte("YmFzZTY0LXBhc3N3b3Jk"), data)

	require.NoError(t, store.Erase("master.key"))
	assert.False(t, store.Exists("master.key"))
}

func TestKeyringStore_MissingEntry(t *testing.T) {
	keyring.MockInit()

	store := NewKeyringStore("vaultops-test")

	_, err := store.Get("absent")
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(store.Erase("absent")))
}

func TestKeyringStore_Location(t *testing.T) {
	keyring.MockInit()

	store := NewKeyringStore("vaultops")
	assert.Equal(t, "keyring://vaultops/master.key", store.Location("master.key"))
}
