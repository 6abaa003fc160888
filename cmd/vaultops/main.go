package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendersight/vaultops/cmd/vaultops/commands"
	"github.com/tendersight/vaultops/internal/config"
	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "vaultops",
		Short: "Secret store lifecycle operations - unseal, provision, rotate",
		Long: `vaultops keeps a self-hosted secret store usable: it guards the unseal
credential at rest, supervises the store server through startup and unseal,
and rotates per-service credentials with overlapping validity.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "vaultops.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Never prompt; confirmation-gated actions are declined")

	// Add commands
	rootCmd.AddCommand(
		commands.NewKeygenCommand(cfg),
		commands.NewEncryptCommand(cfg),
		commands.NewUnsealCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewProvisionCommand(cfg),
		commands.NewRotateCommand(cfg),
		commands.NewRotateSharedCommand(cfg),
		commands.NewHistoryCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewShredCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
