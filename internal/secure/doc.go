// Package secure provides memory-safe handling of unseal key material.
//
// The package wraps memguard so that the decrypted unseal credential and the
// master password live in protected memory for the shortest possible window:
//
//   - Encrypted at rest in memory (XSalsa20Poly1305)
//   - Protected from swapping via mlock
//   - Wiped when no longer needed
//   - Guard pages detect buffer overflows
//
// # Usage
//
// Create a buffer from sensitive bytes and consume it in a bounded scope:
//
//	buf, err := secure.NewBuffer(plainKey)
//	if err != nil {
//	    // Handle error - may indicate mlock unavailable
//	}
//	defer buf.Destroy()
//
//	err = buf.WithBytes(func(b []byte) error {
//	    return client.Unseal(ctx, string(b))
//	})
//
// WithBytes opens the enclave, hands the plaintext to the callback, and
// wipes the opened copy before returning, so plaintext never outlives the
// call.
//
// # Platform Behavior
//
// Memory locking varies by platform: Linux needs an adequate
// RLIMIT_MEMLOCK, macOS works out of the box, Windows uses VirtualLock.
// When mlock is unavailable the library degrades to standard allocation.
//
// This package does NOT defend against attackers with root access to the
// running process or hardware-level attacks (cold boot, DMA).
package secure
