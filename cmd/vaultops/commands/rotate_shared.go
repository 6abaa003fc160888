package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
)

func NewRotateSharedCommand(cfg *config.Config) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rotate-shared",
		Short: "Replace the fleet-wide shared secret (immediate cutover)",
		Long: `Write a fresh random value to the shared secret's KV path. Unlike
per-service credentials there is no overlap window: every session signed
with the old value becomes invalid the moment the write lands.

Because of that blast radius the command asks for confirmation first.
Declining leaves the store untouched and exits zero. In --non-interactive
mode the prompt is auto-declined; pass --yes to rotate unattended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runRotateShared(cfg, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")

	return cmd
}

func runRotateShared(cfg *config.Config, yes bool) error {
	manager, err := buildManager(cfg, buildStoreClient(cfg), "")
	if err != nil {
		return err
	}

	result, err := manager.RotateShared(context.Background(), confirmer(cfg, yes))
	if err != nil {
		return err
	}

	return failedErr(result, "rotate")
}
