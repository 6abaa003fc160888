package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/keyvault"
	"github.com/tendersight/vaultops/internal/prompt"
)

func NewKeygenCommand(cfg *config.Config) *cobra.Command {
	var (
		regenerate bool
		importPass bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the master password that encrypts the unseal key",
		Long: `Generate a random master password and store it in the configured key
material backend. The password encrypts the unseal key written by
'vaultops encrypt'; only its storage location is ever printed.

Use --import to supply your own password through a hidden prompt instead
of generating one. Replacing an existing password requires --regenerate,
and makes every envelope encrypted under the old password unrecoverable
until re-encrypted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runKeygen(cfg, regenerate, importPass, prompt.NewTerminal())
		},
	}

	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Replace an existing master password")
	cmd.Flags().BoolVar(&importPass, "import", false, "Prompt for a password instead of generating one")

	return cmd
}

func runKeygen(cfg *config.Config, regenerate, importPass bool, reader prompt.PasswordReader) error {
	store, err := buildArtifactStore(cfg)
	if err != nil {
		return err
	}
	vault := keyvault.New(store, cfg.Logger)
	logger := cfg.Logger

	if store.Exists(keyvault.PasswordArtifact) && !regenerate {
		return dserrors.UserError{
			Message:    "A master password already exists",
			Details:    fmt.Sprintf("Location: %s", vault.PasswordLocation()),
			Suggestion: "Pass --regenerate to replace it. Envelopes encrypted under the current password become unrecoverable",
		}
	}

	if importPass {
		password, err := reader.ReadPassword("Master password")
		if err != nil {
			return err
		}
		if err := vault.ImportPassword(password); err != nil {
			return err
		}
		logger.Info("Master password imported")
	} else {
		if _, err := vault.DerivePassword(regenerate); err != nil {
			return err
		}
		logger.Info("Master password generated")
	}

	logger.Info("Location: %s", vault.PasswordLocation())
	logger.Info("Next: encrypt the unseal key with 'vaultops encrypt <keyfile>'")
	return nil
}
