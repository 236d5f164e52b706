package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMoveCmd creates the move command
func newMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a task under a new parent",
		Long: `Move a task (and its whole subtree) under a new parent. The task's
tier follows its new depth: an epic moved under an epic becomes a task,
and its children shift a tier down with it.

Moves into the task's own subtree are rejected.

Examples:
  trellis move 2f4a... --to 9c1b...
  trellis move 2f4a... --root        # promote to master`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			toRoot, _ := cmd.Flags().GetBool("root")

			if to == "" && !toRoot {
				return fmt.Errorf("specify --to <parent-id> or --root")
			}
			if to != "" && toRoot {
				return fmt.Errorf("--to and --root are mutually exclusive")
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			t, err := eng.mgr.MoveTask(args[0], to)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(t)
			}
			fmt.Printf("Moved %s to %s (%s)\n", t.ID, t.Path, t.Level)
			return nil
		},
	}

	cmd.Flags().String("to", "", "new parent task id")
	cmd.Flags().Bool("root", false, "promote the task to a master at the root")
	return cmd
}
