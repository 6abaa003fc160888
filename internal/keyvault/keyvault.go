// Package keyvault protects the secret store's unseal credential at rest.
//
// The credential is encrypted under a key derived from a high-entropy
// master password with PBKDF2-HMAC-SHA256 and a fixed, documented iteration
// count, then sealed with AES-256-GCM. The password itself is generated
// once and persisted through the artifact store with owner-only access.
// Plaintext key material never reaches persistent storage after use.
package keyvault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tendersight/vaultops/internal/logging"
	"github.com/tendersight/vaultops/internal/secure"
	"github.com/tendersight/vaultops/pkg/artifact"
)

const (
	// PasswordArtifact is the artifact name holding the master password.
	PasswordArtifact = "master.key"

	// UnsealKeyArtifact is the artifact name holding the encrypted unseal
	// credential envelope.
	UnsealKeyArtifact = "unseal.json"

	// KDFIterations is the fixed PBKDF2 iteration count for newly written
	// envelopes. Decryption honors the count recorded in the envelope, so
	// raising this does not strand old ciphertexts.
	KDFIterations = 600000

	// passwordBytes is the raw entropy of a generated master password
	// before base64 encoding.
	passwordBytes = 32

	saltBytes     = 16
	derivedKeyLen = 32

	envelopeVersion = 1
)

var (
	// ErrDecryptFailed marks an authentication failure: wrong password or
	// corrupted ciphertext. Deterministic, never worth retrying with the
	// same inputs, and distinct from I/O errors.
	ErrDecryptFailed = errors.New("unseal key decryption failed: ciphertext authentication error")

	// ErrEncryptFailed marks a failure to produce or persist a ciphertext
	// envelope.
	ErrEncryptFailed = errors.New("unseal key encryption failed")
)

// envelope is the persisted ciphertext format. KDF parameters ride along
// with the ciphertext so decryption never guesses them.
type envelope struct {
	Version    int    `json:"v"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ct"`
}

// Vault manages the master password and encrypted unseal key artifacts.
type Vault struct {
	store  artifact.Store
	logger *logging.Logger
}

// New creates a Vault over the given artifact store.
func New(store artifact.Store, logger *logging.Logger) *Vault {
	return &Vault{store: store, logger: logger}
}

// DerivePassword returns the master password, generating and persisting a
// fresh one when none exists or regenerate is set. Regeneration makes every
// ciphertext written under the old password unrecoverable; callers must
// re-encrypt before discarding the old value.
func (v *Vault) DerivePassword(regenerate bool) (logging.Secret, error) {
	if !regenerate {
		if existing, err := v.store.Get(PasswordArtifact); err == nil {
			return logging.Secret(existing), nil
		} else if !artifact.IsNotFound(err) {
			return "", fmt.Errorf("reading master password: %w", err)
		}
	}

	raw := make([]byte, passwordBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating master password: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	secure.Wipe(raw)

	if err := v.store.Put(PasswordArtifact, []byte(encoded)); err != nil {
		return "", fmt.Errorf("persisting master password: %w", err)
	}

	if regenerate {
		v.logger.Warn("Master password regenerated. Existing ciphertexts are now unrecoverable until re-encrypted")
	}
	v.logger.Debug("Master password stored at %s", v.store.Location(PasswordArtifact))

	return logging.Secret(encoded), nil
}

// ImportPassword persists an externally supplied master password in place
// of a generated one. Overwriting an existing password makes its ciphertexts
// unrecoverable, same as regeneration.
func (v *Vault) ImportPassword(password logging.Secret) error {
	if password.Reveal() == "" {
		return fmt.Errorf("empty master password")
	}

	existed := v.store.Exists(PasswordArtifact)
	if err := v.store.Put(PasswordArtifact, []byte(password.Reveal())); err != nil {
		return fmt.Errorf("persisting master password: %w", err)
	}

	if existed {
		v.logger.Warn("Master password replaced. Existing ciphertexts are now unrecoverable until re-encrypted")
	}
	v.logger.Debug("Master password stored at %s", v.store.Location(PasswordArtifact))
	return nil
}

// LoadPassword returns the stored master password. A missing artifact keeps
// its NotFoundError typing so callers can treat absence as a configuration
// condition rather than an I/O failure.
func (v *Vault) LoadPassword() (logging.Secret, error) {
	data, err := v.store.Get(PasswordArtifact)
	if err != nil {
		return "", fmt.Errorf("master password unavailable: %w", err)
	}
	return logging.Secret(bytes.TrimSpace(data)), nil
}

// Encrypt seals plainKey under the password and persists the resulting
// envelope as the unseal key artifact. The envelope bytes are also
// returned for round-trip verification.
func (v *Vault) Encrypt(plainKey []byte, password logging.Secret) ([]byte, error) {
	if len(plainKey) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext key", ErrEncryptFailed)
	}

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: salt generation: %v", ErrEncryptFailed, err)
	}

	key := deriveKey(password, salt, KDFIterations)
	defer secure.Wipe(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", ErrEncryptFailed, err)
	}

	sealed := aead.Seal(nil, nonce, plainKey, nil)

	env := envelope{
		Version:    envelopeVersion,
		Iterations: KDFIterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}

	blob, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: envelope encoding: %v", ErrEncryptFailed, err)
	}

	if err := v.store.Put(UnsealKeyArtifact, blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	v.logger.Debug("Encrypted unseal key written to %s (%d KDF iterations)",
		v.store.Location(UnsealKeyArtifact), KDFIterations)

	return blob, nil
}

// Decrypt opens an envelope with the password and returns the plaintext
// credential. Authentication failures return ErrDecryptFailed; malformed
// envelopes and I/O problems return ordinary errors.
func (v *Vault) Decrypt(envelopeJSON []byte, password logging.Secret) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(envelopeJSON, &env); err != nil {
		return nil, fmt.Errorf("parsing unseal key envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.Iterations < 1 {
		return nil, fmt.Errorf("invalid envelope: iteration count %d", env.Iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope: salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope: nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope: ciphertext: %w", err)
	}

	key := deriveKey(password, salt, env.Iterations)
	defer secure.Wipe(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid envelope: nonce length %d", len(nonce))
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// GCM reports every tamper and wrong-password case the same way
		return nil, ErrDecryptFailed
	}

	return plain, nil
}

// LoadEncryptedKey returns the persisted envelope bytes.
func (v *Vault) LoadEncryptedKey() ([]byte, error) {
	data, err := v.store.Get(UnsealKeyArtifact)
	if err != nil {
		return nil, fmt.Errorf("encrypted unseal key unavailable: %w", err)
	}
	return data, nil
}

// DecryptUnsealKey loads the password and envelope artifacts, decrypts the
// credential, and seals it into protected memory. The transient plaintext
// copy is wiped before returning.
func (v *Vault) DecryptUnsealKey() (*secure.Buffer, error) {
	password, err := v.LoadPassword()
	if err != nil {
		return nil, err
	}

	blob, err := v.LoadEncryptedKey()
	if err != nil {
		return nil, err
	}

	plain, err := v.Decrypt(blob, password)
	if err != nil {
		return nil, err
	}
	defer secure.Wipe(plain)

	return secure.NewBuffer(plain)
}

// VerifyRoundTrip decrypts the envelope and compares the result to the
// original plaintext byte-for-byte. Run once at encryption time, before the
// plaintext source is destroyed, to catch a silent corrupt write.
func (v *Vault) VerifyRoundTrip(plainKey, envelopeJSON []byte, password logging.Secret) bool {
	got, err := v.Decrypt(envelopeJSON, password)
	if err != nil {
		v.logger.Debug("Round-trip verification failed: %v", err)
		return false
	}
	defer secure.Wipe(got)

	return bytes.Equal(got, plainKey)
}

// PasswordLocation returns where the master password artifact lives.
func (v *Vault) PasswordLocation() string {
	return v.store.Location(PasswordArtifact)
}

// UnsealKeyLocation returns where the encrypted unseal key artifact lives.
func (v *Vault) UnsealKeyLocation() string {
	return v.store.Location(UnsealKeyArtifact)
}

func deriveKey(password logging.Secret, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password.Reveal()), salt, iterations, derivedKeyLen, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	return aead, nil
}
