package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/keyvault"
	"github.com/tendersight/vaultops/internal/secure"
)

func NewEncryptCommand(cfg *config.Config) *cobra.Command {
	var shred bool

	cmd := &cobra.Command{
		Use:   "encrypt <keyfile>",
		Short: "Encrypt a plaintext unseal key under the master password",
		Long: `Read a plaintext unseal key share from a file, encrypt it under the
master password, and persist the ciphertext envelope in the key material
backend. The written envelope is verified by an immediate decrypt round
trip before the command reports success.

With --shred the plaintext input file is securely erased once the round
trip verifies, leaving the envelope as the only copy on this host.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runEncrypt(cfg, args[0], shred)
		},
	}

	cmd.Flags().BoolVar(&shred, "shred", false, "Securely erase the plaintext file after a verified encrypt")

	return cmd
}

func runEncrypt(cfg *config.Config, path string, shred bool) error {
	vault, err := buildVault(cfg)
	if err != nil {
		return err
	}
	logger := cfg.Logger

	raw, err := os.ReadFile(path)
	if err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Cannot read key file '%s'", path),
			Details:    err.Error(),
			Suggestion: "Check the path and file permissions",
			Err:        err,
		}
	}

	// TrimSpace aliases the original slice, so copy before wiping it.
	plain := append([]byte(nil), bytes.TrimSpace(raw)...)
	secure.Wipe(raw)
	defer secure.Wipe(plain)

	if len(plain) == 0 {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Key file '%s' is empty", path),
			Suggestion: "Provide the unseal key share produced during store initialization",
		}
	}

	password, err := vault.LoadPassword()
	if err != nil {
		return dserrors.UserError{
			Message:    "Master password is not available",
			Details:    err.Error(),
			Suggestion: "Run 'vaultops keygen' first",
			Err:        err,
		}
	}

	envelope, err := vault.Encrypt(plain, password)
	if err != nil {
		return err
	}

	if !vault.VerifyRoundTrip(plain, envelope, password) {
		return fmt.Errorf("round-trip verification failed: the written envelope does not decrypt back to the input; the plaintext file was not touched")
	}

	logger.Info("Unseal key encrypted and verified")
	logger.Info("Location: %s", vault.UnsealKeyLocation())

	if shred {
		if err := keyvault.SecureErase(path); err != nil {
			return dserrors.UserError{
				Message:    fmt.Sprintf("Envelope written, but shredding '%s' failed", path),
				Details:    err.Error(),
				Suggestion: "Remove the plaintext file manually",
				Err:        err,
			}
		}
		logger.Info("Plaintext key file shredded: %s", path)
		return nil
	}

	logger.Warn("Plaintext key still on disk at %s. Re-run with --shred or remove it manually", path)
	return nil
}
