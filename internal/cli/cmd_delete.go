package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDeleteCmd creates the delete command
func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Long: `Delete a task, removing both its file and its index row.

A task with children is rejected unless --cascade is given; --cascade
removes the whole subtree. Children are never silently re-parented.

Examples:
  trellis delete 2f4a...
  trellis delete 2f4a... --cascade`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cascade, _ := cmd.Flags().GetBool("cascade")

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.mgr.DeleteTask(args[0], cascade); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().Bool("cascade", false, "delete the whole subtree")
	return cmd
}
