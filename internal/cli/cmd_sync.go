package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSyncCmd creates the sync command
func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the index with the task files on disk",
		Long: `Walk every task file under the tasks root and reconcile the index
with what the files say. Files are the source of truth: edited files
update their rows, unknown files are promoted into the hierarchy, and
rows whose files are gone are removed. Files that cannot be placed
(malformed, or claiming a parent that does not exist) are left alone
and reported.

Run this after editing task files while the server was not watching.

Example:
  trellis sync`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			stats, err := eng.mgr.Reconcile()
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(stats)
			}
			fmt.Printf("Scanned %d files: %d applied, %d quarantined, %d rows removed\n",
				stats.Seen, stats.Applied, stats.Quarantined, stats.Removed)
			if stats.Quarantined > 0 {
				fmt.Println("Run with --verbose to see why files were quarantined.")
			}
			return nil
		},
	}
}
