package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
)

func NewProvisionCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create missing store roles for the registered services",
		Long: `Create an AppRole-style role, bound to its configured policy, for every
registered service that does not have one yet. Existing roles are left
untouched; a service whose policy is not installed on the store is
reported as failed. Provisioning issues no credentials; run
'vaultops rotate' afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runProvision(cfg)
		},
	}

	return cmd
}

func runProvision(cfg *config.Config) error {
	manager, err := buildManager(cfg, buildStoreClient(cfg), "")
	if err != nil {
		return err
	}

	result, err := manager.Provision(context.Background())
	if err != nil {
		return err
	}

	return failedErr(result, "provision")
}
