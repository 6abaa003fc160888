package commands

import (
	"fmt"

	"github.com/tendersight/vaultops/internal/config"
	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/keyvault"
	"github.com/tendersight/vaultops/internal/prompt"
	"github.com/tendersight/vaultops/internal/rotation"
	"github.com/tendersight/vaultops/internal/storeapi"
	"github.com/tendersight/vaultops/internal/unseal"
	"github.com/tendersight/vaultops/pkg/artifact"
)

// buildArtifactStore selects the key material backend from config.
func buildArtifactStore(cfg *config.Config) (artifact.Store, error) {
	keys := cfg.Definition.Keys
	switch keys.Backend {
	case "file":
		return artifact.NewFileStore(keys.Dir), nil
	case "keyring":
		return artifact.NewKeyringStore(keys.KeyringService), nil
	default:
		return nil, dserrors.ConfigError{
			Field:      "keys.backend",
			Value:      keys.Backend,
			Message:    "unknown key material backend",
			Suggestion: "Use 'file' or 'keyring'",
		}
	}
}

// buildVault returns the key material vault over the configured backend.
func buildVault(cfg *config.Config) (*keyvault.Vault, error) {
	store, err := buildArtifactStore(cfg)
	if err != nil {
		return nil, err
	}
	return keyvault.New(store, cfg.Logger), nil
}

// buildStoreClient returns the store API client. Environment variables
// (VAULT_ADDR, VAULT_TOKEN, VAULT_SKIP_VERIFY) override the file settings
// inside NewClient.
func buildStoreClient(cfg *config.Config) *storeapi.HTTPClient {
	return storeapi.NewClient(storeapi.Config{
		Address: cfg.Definition.Store.Address,
		Token:   cfg.Definition.Store.Token,
		TLSSkip: cfg.Definition.Store.TLSSkip,
	}, cfg.Logger)
}

// readyOptions maps the store section onto the orchestrator's readiness poll.
func readyOptions(cfg *config.Config) unseal.Options {
	return unseal.Options{
		ReadyAttempts: cfg.Definition.Store.ReadyAttempts,
		ReadyInterval: cfg.Definition.Store.ReadyInterval(),
	}
}

// buildManager assembles the rotation manager. outputOverride, when set,
// wins over the configured credentials output path.
func buildManager(cfg *config.Config, client storeapi.Client, outputOverride string) (*rotation.Manager, error) {
	rot := cfg.Definition.Rotation

	ttl, err := rot.TTL()
	if err != nil {
		return nil, err
	}

	targets := make([]rotation.Target, 0, len(rot.Services))
	for _, svc := range rot.Services {
		targets = append(targets, rotation.Target{
			Service: svc.Name,
			Role:    svc.Role,
			Policy:  svc.Policy,
		})
	}

	output := rot.Output
	if outputOverride != "" {
		output = outputOverride
	}

	ledger := rotation.NewFileLedger(rot.LedgerDir)
	return rotation.NewManager(client, ledger, cfg.Logger, rotation.Options{
		Targets:          targets,
		OutputPath:       output,
		SecretIDTTL:      ttl,
		SecretIDUses:     rot.SecretIDUses,
		SharedSecretPath: rot.SharedSecret.Path,
		SharedSecretKey:  rot.SharedSecret.Key,
	}), nil
}

// confirmer picks the confirmation port for the current mode: --yes
// auto-approves, non-interactive mode declines whatever would have prompted,
// everything else asks the terminal.
func confirmer(cfg *config.Config, yes bool) prompt.Confirmer {
	if yes {
		return &prompt.Preset{Answer: true}
	}
	if cfg.NonInteractive {
		return &prompt.Preset{Answer: false}
	}
	return prompt.NewTerminal()
}

// failedErr converts failed outcomes into a command error so the process
// exits non-zero while partial successes stay reported.
func failedErr(result *rotation.Result, verb string) error {
	if result.Ok() {
		return nil
	}
	return fmt.Errorf("%d service(s) failed to %s", result.Failed, verb)
}
