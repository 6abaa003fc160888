package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
	"github.com/tendersight/vaultops/internal/rotation"
)

func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "history [service]",
		Short: "List past rotation events",
		Long: `List rotation ledger entries, newest first, for one service or for all
of them. Entries carry a secret ID prefix so an event can be correlated
with the store's own audit log; full secret material is never written to
the ledger. Shared secret cutovers appear under the 'shared-secret' name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			service := ""
			if len(args) == 1 {
				service = args[0]
			}
			if all {
				limit = 0
			}
			return runHistory(cfg, service, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	cmd.Flags().BoolVar(&all, "all", false, "Show every entry, ignoring --limit")

	return cmd
}

func runHistory(cfg *config.Config, service string, limit int) error {
	ledger := rotation.NewFileLedger(cfg.Definition.Rotation.LedgerDir)

	var (
		entries []rotation.Entry
		err     error
	)
	if service != "" {
		// The shared secret is not a registered service but still keeps
		// ledger history under its fixed name.
		if service != rotation.SharedServiceName {
			if _, err := cfg.Service(service); err != nil {
				return err
			}
		}
		entries, err = ledger.History(service, limit)
	} else {
		entries, err = ledger.AllHistory(limit)
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No rotation history yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "TIMESTAMP\tSERVICE\tKIND\tROLE ID\tSECRET ID")
	fmt.Fprintln(w, "---------\t-------\t----\t-------\t---------")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.Service,
			entry.Kind,
			orDash(entry.RoleID),
			orDash(secretPrefixColumn(entry.SecretIDPrefix)),
		)
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// secretPrefixColumn marks the prefix as truncated so nobody mistakes it for
// a whole secret ID.
func secretPrefixColumn(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "…"
}
