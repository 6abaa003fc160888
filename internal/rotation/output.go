package rotation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credential is one freshly issued role/secret pair as delivered to the
// consumer that will authenticate with it. This is the only place the full
// secret ID appears outside the store.
type Credential struct {
	Service    string    `json:"service"`
	RoleID     string    `json:"role_id"`
	SecretID   string    `json:"secret_id"`
	TTLSeconds int       `json:"ttl_seconds,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// CredentialsWriter streams issued credentials to a restricted file, one
// JSON object per line. The file is created with owner-only permissions and
// truncated before any pair is written, and each pair is written as it is
// issued, so a run interrupted partway leaves a restricted file holding only
// complete records.
type CredentialsWriter struct {
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewCredentialsWriter opens the output file for a rotation run, replacing
// any previous run's contents.
func NewCredentialsWriter(path string) (*CredentialsWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Same discipline as the artifact store: 0600 applies at creation, and
	// a file surviving from an earlier run is re-tightened before truncation.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials file: %w", err)
	}
	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to restrict credentials file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to truncate credentials file: %w", err)
	}

	return &CredentialsWriter{path: path, f: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one credential record.
func (w *CredentialsWriter) Write(cred Credential) error {
	if err := w.enc.Encode(cred); err != nil {
		return fmt.Errorf("failed to write credential for %s: %w", cred.Service, err)
	}
	return nil
}

// Close flushes the file to disk.
func (w *CredentialsWriter) Close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return fmt.Errorf("failed to sync credentials file: %w", err)
	}
	return w.f.Close()
}

// Path reports where the credentials were written.
func (w *CredentialsWriter) Path() string {
	return w.path
}
