package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
)

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the store's initialization and seal status",
		Long: `Query the store's status endpoint and print the result as a table. The
endpoint is unauthenticated, so this works against a sealed store too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runStatus(cfg)
		},
	}

	return cmd
}

func runStatus(cfg *config.Config) error {
	client := buildStoreClient(cfg)

	status, err := client.SealStatus(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "FIELD\tVALUE")
	fmt.Fprintln(w, "-----\t-----")
	fmt.Fprintf(w, "Address\t%s\n", client.Address())
	fmt.Fprintf(w, "Initialized\t%s\n", yesNo(status.Initialized))
	fmt.Fprintf(w, "Sealed\t%s\n", yesNo(status.Sealed))
	fmt.Fprintf(w, "Version\t%s\n", status.Version)
	if status.Sealed {
		fmt.Fprintf(w, "Unseal progress\t%d of %d shares\n", status.Progress, status.Threshold)
	}

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
