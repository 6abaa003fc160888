package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tendersight/vaultops/internal/config"
	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/keyvault"
)

func NewShredCommand(cfg *config.Config) *cobra.Command {
	var (
		force     bool
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "shred <path>...",
		Short: "Securely erase files",
		Long: `Overwrite files with random data before unlinking them, so plaintext key
material does not survive on disk. The operation is irreversible and asks
for confirmation unless --force is given.

Modern SSDs with wear leveling may retain stale blocks regardless. Treat
shredding as one layer and keep full disk encryption underneath.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShred(cfg, args, force, recursive)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Erase without confirmation")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into directories")

	return cmd
}

func runShred(cfg *config.Config, paths []string, force, recursive bool) error {
	logger := cfg.Logger

	var files []string
	for _, path := range paths {
		collected, err := collectShredTargets(path, recursive)
		if err != nil {
			return err
		}
		files = append(files, collected...)
	}

	if len(files) == 0 {
		logger.Warn("No files to shred")
		return nil
	}

	fmt.Println("Files to be securely erased:")
	for _, file := range files {
		fmt.Printf("  %s\n", file)
	}

	approved, err := confirmer(cfg, force).Confirm(
		fmt.Sprintf("Erasing %d file(s) is irreversible. Continue?", len(files)))
	if err != nil {
		return err
	}
	if !approved {
		logger.Warn("Shred cancelled; nothing erased")
		return nil
	}

	failed := 0
	for _, file := range files {
		if err := keyvault.SecureErase(file); err != nil {
			failed++
			logger.Error("Could not erase %s: %v", file, err)
			continue
		}
		logger.Info("Erased %s", file)
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be erased", failed)
	}
	return nil
}

// collectShredTargets expands one argument into the files it names.
// Directories require --recursive; their subdirectory skeletons are left in
// place, only file content is destroyed.
func collectShredTargets(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    fmt.Sprintf("Cannot access '%s'", path),
			Details:    err.Error(),
			Suggestion: "Check that the path exists and is readable",
			Err:        err,
		}
	}

	if !info.IsDir() {
		return []string{path}, nil
	}
	if !recursive {
		return nil, dserrors.UserError{
			Message:    fmt.Sprintf("'%s' is a directory", path),
			Suggestion: "Pass --recursive to erase directories",
		}
	}

	var files []string
	err = filepath.Walk(path, func(walkPath string, walkInfo os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !walkInfo.IsDir() {
			files = append(files, walkPath)
		}
		return nil
	})
	if err != nil {
		return nil, dserrors.UserError{
			Message: fmt.Sprintf("Error walking directory '%s'", path),
			Details: err.Error(),
			Err:     err,
		}
	}
	return files, nil
}
