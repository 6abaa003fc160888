package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
)

func NewRotateCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "rotate [service]",
		Short: "Issue fresh credentials for registered services",
		Long: `Issue a fresh secret ID for the named service, or for every registered
service when none is given. Each service's role ID stays stable; only the
secret ID changes. The previous secret ID is not revoked; it expires on
its own TTL, giving consumers an overlap window to pick up the new value.

New credentials are streamed to the configured output file (owner-only
permissions, one JSON object per line). Targets are independent: a failure
on one service does not stop the rest of the batch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			service := ""
			if len(args) == 1 {
				service = args[0]
			}
			return runRotate(cfg, service, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Credentials file (overrides rotation.output)")

	return cmd
}

func runRotate(cfg *config.Config, service, output string) error {
	manager, err := buildManager(cfg, buildStoreClient(cfg), output)
	if err != nil {
		return err
	}

	result, err := manager.Rotate(context.Background(), service)
	if err != nil {
		return err
	}

	if result.Rotated > 0 {
		path := output
		if path == "" {
			path = cfg.Definition.Rotation.Output
		}
		cfg.Logger.Info("Credentials written to %s", path)
	}

	return failedErr(result, "rotate")
}
