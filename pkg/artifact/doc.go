// Package artifact persists the small set of named secret artifacts owned
// by the lifecycle tooling: the master password and the encrypted unseal
// key envelope.
//
// Artifacts are reached only through the Store interface, never through
// fixed paths, so the callers stay testable and the backend stays swappable:
//
//   - FileStore: production backend. Every artifact is created with
//     owner-only permissions at open time, never loosened and tightened
//     afterwards, and erased by overwriting with random bytes before unlink.
//   - MemStore: test backend with no filesystem contact.
//   - KeyringStore: OS keyring backend (Secret Service, macOS Keychain,
//     Windows Credential Manager) for small text artifacts such as the
//     master password.
//
// # Usage
//
//	store := artifact.NewFileStore("/var/lib/vaultops")
//	if err := store.Put("master.key", password); err != nil {
//	    return err
//	}
//
//	data, err := store.Get("unseal.json")
//	var notFound artifact.NotFoundError
//	if errors.As(err, &notFound) {
//	    // artifact missing: warn and leave the store sealed
//	}
//
// # Security Considerations
//
// Store implementations must never log artifact contents, must apply
// owner-only access at creation time (no window of wider readability), and
// must treat Erase as destruction, not deletion: file-backed artifacts are
// overwritten before removal.
package artifact
