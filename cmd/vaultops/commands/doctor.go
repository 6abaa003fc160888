package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
	"github.com/tendersight/vaultops/internal/dbcheck"
	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/keyvault"
)

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, key material, store, and database health",
		Long: `Run the preflight checks an unseal or rotation depends on:

- the configuration file parses and validates
- key material is installed in the configured backend
- the store answers its health endpoint
- the platform database accepts connections (when configured)

A sealed store is reported but does not fail the check; sealed is the
state this tool exists to fix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cfg)
		},
	}

	return cmd
}

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
	checkSkip = "skipped"
)

type checkResult struct {
	Name       string
	Status     string
	Message    string
	Suggestion string
}

func runDoctor(cfg *config.Config) error {
	logger := cfg.Logger

	logger.Info("Checking vaultops configuration...")
	if err := cfg.Load(); err != nil {
		logger.Error("%v", dserrors.SimplifyError(err))
		return fmt.Errorf("configuration check failed")
	}

	ctx := context.Background()
	results := []checkResult{
		{
			Name:    "config",
			Status:  checkOK,
			Message: fmt.Sprintf("%s valid, %d service(s) registered", cfg.Path, len(cfg.Definition.Rotation.Services)),
		},
		checkKeyMaterial(cfg),
		checkStore(ctx, cfg),
		checkDatabase(ctx, cfg),
	}

	renderChecks(results)

	passed, failed, total := 0, 0, 0
	for _, result := range results {
		if result.Status == checkSkip {
			continue
		}
		total++
		if result.Status == checkFail {
			failed++
		} else {
			passed++
		}
	}

	fmt.Printf("\nSummary: %d/%d checks passed\n", passed, total)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func checkKeyMaterial(cfg *config.Config) checkResult {
	result := checkResult{Name: "key material"}

	store, err := buildArtifactStore(cfg)
	if err != nil {
		result.Status = checkFail
		result.Message = "backend unavailable"
		result.Suggestion = suggestionOf(err)
		return result
	}
	vault := keyvault.New(store, cfg.Logger)

	switch {
	case !store.Exists(keyvault.PasswordArtifact):
		result.Status = checkFail
		result.Message = "master password missing"
		result.Suggestion = "Run 'vaultops keygen'"
	case !store.Exists(keyvault.UnsealKeyArtifact):
		// Unseal treats this as sealed-but-running, so the doctor warns
		// rather than fails.
		result.Status = checkWarn
		result.Message = "master password present, encrypted unseal key missing"
		result.Suggestion = "Run 'vaultops encrypt <keyfile>'"
	default:
		result.Status = checkOK
		result.Message = fmt.Sprintf("password and unseal key at %s", vault.UnsealKeyLocation())
	}
	return result
}

func checkStore(ctx context.Context, cfg *config.Config) checkResult {
	result := checkResult{Name: "store"}
	client := buildStoreClient(cfg)

	status, err := client.Health(ctx)
	if err != nil {
		result.Status = checkFail
		result.Message = fmt.Sprintf("unreachable at %s", client.Address())
		result.Suggestion = suggestionOf(err)
		return result
	}

	switch {
	case !status.Initialized:
		result.Status = checkWarn
		result.Message = fmt.Sprintf("reachable at %s, not initialized", client.Address())
		result.Suggestion = "Initialize the store with its own tooling"
	case status.Sealed:
		result.Status = checkWarn
		result.Message = fmt.Sprintf("reachable at %s, sealed (version %s)", client.Address(), status.Version)
		result.Suggestion = "Run 'vaultops unseal'"
	default:
		result.Status = checkOK
		result.Message = fmt.Sprintf("unsealed at %s (version %s)", client.Address(), status.Version)
	}
	return result
}

func checkDatabase(ctx context.Context, cfg *config.Config) checkResult {
	result := checkResult{Name: "database"}
	db := cfg.Definition.Database

	if db.Driver == "" {
		result.Status = checkSkip
		result.Message = "not configured"
		return result
	}

	probe, err := dbcheck.New(db.Driver, db.DSN)
	if err != nil {
		result.Status = checkFail
		result.Message = "invalid database configuration"
		result.Suggestion = suggestionOf(err)
		return result
	}

	if err := probe.Ping(ctx); err != nil {
		result.Status = checkFail
		result.Message = fmt.Sprintf("%s does not answer", probe.Driver())
		result.Suggestion = suggestionOf(err)
		return result
	}

	result.Status = checkOK
	result.Message = fmt.Sprintf("%s answers", probe.Driver())
	return result
}

func renderChecks(results []checkResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
	fmt.Fprintln(w, "-----\t------\t-------")
	for _, result := range results {
		glyph := "?"
		switch result.Status {
		case checkOK:
			glyph = "✓"
		case checkWarn:
			glyph = "⚠"
		case checkFail:
			glyph = "✗"
		case checkSkip:
			glyph = "○"
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s\n", result.Name, glyph, result.Status, result.Message)
	}
	_ = w.Flush()

	for _, result := range results {
		if result.Suggestion != "" && result.Status != checkOK {
			fmt.Printf("\n%s:\n  • %s\n", result.Name, result.Suggestion)
		}
	}
}

// suggestionOf pulls the remedial hint out of a typed error so the check
// table can show a short message and keep the hint separate.
func suggestionOf(err error) string {
	var userErr dserrors.UserError
	if errors.As(err, &userErr) {
		return userErr.Suggestion
	}
	var configErr dserrors.ConfigError
	if errors.As(err, &configErr) {
		return configErr.Suggestion
	}
	var storeErr dserrors.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Hint()
	}
	return ""
}
