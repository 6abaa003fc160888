package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
	"github.com/tendersight/vaultops/internal/health"
	"github.com/tendersight/vaultops/internal/unseal"
)

func NewUnsealCommand(cfg *config.Config) *cobra.Command {
	var supervise bool

	cmd := &cobra.Command{
		Use:   "unseal",
		Short: "Decrypt the stored key share and unseal the store",
		Long: `Decrypt the unseal key share held in the key material backend and submit
it to the store. An already-unsealed store is a no-op. A store that is
reachable but uninitialized, or that has no key material installed yet, is
reported and left sealed rather than treated as a failure.

With --supervise the configured store server process (store.command) is
launched first, brought toward unsealed, and supervised until it exits;
the store's own exit code becomes this command's exit code. The metrics
endpoint (metrics: section) is served only in supervise mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runUnseal(cfg, supervise)
		},
	}

	cmd.Flags().BoolVar(&supervise, "supervise", false, "Launch and supervise the store server process")

	return cmd
}

func runUnseal(cfg *config.Config, supervise bool) error {
	vault, err := buildVault(cfg)
	if err != nil {
		return err
	}
	client := buildStoreClient(cfg)

	if !supervise {
		orch := unseal.New(client, vault, nil, cfg.Logger, readyOptions(cfg))
		return orch.Unseal(context.Background())
	}

	server := health.NewServer(metricsConfig(cfg), cfg.Logger)
	if err := server.Start(); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	supervisor := unseal.NewSupervisor(cfg.Definition.Store.Command, cfg.Logger)
	orch := unseal.New(client, vault, supervisor, cfg.Logger, readyOptions(cfg))

	code, err := orch.Run(context.Background())
	if err != nil {
		return err
	}
	if code != 0 {
		// The supervised store already exited; report its code as ours.
		os.Exit(code)
	}
	return nil
}

// metricsConfig maps the metrics section onto the server defaults.
func metricsConfig(cfg *config.Config) health.ServerConfig {
	sc := health.DefaultServerConfig()
	m := cfg.Definition.Metrics
	sc.Enabled = m.Enabled
	if m.Port > 0 {
		sc.Port = m.Port
	}
	if m.Path != "" {
		sc.Path = m.Path
	}
	return sc
}
