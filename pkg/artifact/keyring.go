package artifact

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// KeyringStore keeps artifacts in the operating system keyring (Secret
// Service on Linux, Keychain on macOS, Credential Manager on Windows).
//
// Keyring entries are strings with tight size limits on some platforms, so
// this backend suits the base64-encoded master password, not large binary
// envelopes. Erase removes the entry; overwrite-before-delete is the
// keyring daemon's concern, not ours.
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed store. The service string
// namespaces entries per application ("vaultops").
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

// Get returns the artifact's contents from the keyring.
func (s *KeyringStore) Get(name string) ([]byte, error) {
	value, err := keyring.Get(s.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, NotFoundError{Name: name, Location: s.Location(name)}
		}
		return nil, fmt.Errorf("reading keyring entry %s: %w", name, err)
	}
	return []byte(value), nil
}

// Put stores the artifact in the keyring.
func (s *KeyringStore) Put(name string, data []byte) error {
	if err := keyring.Set(s.service, name, string(data)); err != nil {
		return fmt.Errorf("writing keyring entry %s: %w", name, err)
	}
	return nil
}

// Erase removes the artifact from the keyring.
func (s *KeyringStore) Erase(name string) error {
	if err := keyring.Delete(s.service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return NotFoundError{Name: name, Location: s.Location(name)}
		}
		return fmt.Errorf("deleting keyring entry %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the keyring holds the artifact.
func (s *KeyringStore) Exists(name string) bool {
	_, err := keyring.Get(s.service, name)
	return err == nil
}

// Location returns a keyring-style locator for error messages.
func (s *KeyringStore) Location(name string) string {
	return "keyring://" + s.service + "/" + name
}
