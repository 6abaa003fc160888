package keyvault

import "github.com/tendersight/vaultops/pkg/artifact"

// erasePasses is the overwrite pass count for plaintext key files. A single
// pass already defeats casual recovery; more passes cost little on the tiny
// files involved.
const erasePasses = 3

// SecureErase overwrites the file at path with random bytes and unlinks it.
// Used on plaintext unseal key files once their ciphertext has passed
// round-trip verification.
func SecureErase(path string) error {
	return artifact.Shred(path, erasePasses)
}
