package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trellis-io/trellis/internal/config"
	"github.com/trellis-io/trellis/internal/db"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize trellis in the current directory",
		Long: `Initialize trellis in the work directory.

Creates the .trellis directory with a default config, the tasks
directory, and the index database.

Examples:
  trellis init
  trellis init --force        # Reinitialize, keeping existing task files`,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			if isInitialized(workDir) && !force {
				return fmt.Errorf("trellis already initialized. Use --force to rewrite the config")
			}

			cfg := config.Default(workDir)
			if err := cfg.Save(workDir); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.TasksRoot, 0755); err != nil {
				return fmt.Errorf("create tasks directory: %w", err)
			}

			// Opening runs the migrations.
			idx, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initialize index: %w", err)
			}
			if err := idx.Close(); err != nil {
				return err
			}

			fmt.Println("Initialized trellis in", config.Path(workDir))
			fmt.Println("Create your first task with: trellis add \"Your task\"")
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "reinitialize an existing directory")
	return cmd
}
