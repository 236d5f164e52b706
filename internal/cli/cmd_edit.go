package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellis-io/trellis/internal/manager"
	"github.com/trellis-io/trellis/internal/task"
)

// newEditCmd creates the edit command
func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task's metadata or body",
		Long: `Edit a task's metadata or body. Only the given flags change; the
task's place in the hierarchy never does (use 'trellis move' for that).

Examples:
  trellis edit 2f4a... --status done
  trellis edit 2f4a... --title "Better title" --priority high`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in manager.UpdateInput
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				in.Title = &v
			}
			if cmd.Flags().Changed("body") {
				v, _ := cmd.Flags().GetString("body")
				in.Description = &v
			}
			if cmd.Flags().Changed("status") {
				v, _ := cmd.Flags().GetString("status")
				st := task.Status(v)
				in.Status = &st
			}
			if cmd.Flags().Changed("priority") {
				v, _ := cmd.Flags().GetString("priority")
				pr := task.Priority(v)
				in.Priority = &pr
			}
			if in.Title == nil && in.Description == nil && in.Status == nil && in.Priority == nil {
				return fmt.Errorf("nothing to change; pass --title, --body, --status, or --priority")
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			t, err := eng.mgr.UpdateTask(args[0], in)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(t)
			}
			fmt.Printf("Updated %s\n", t.ID)
			return nil
		},
	}

	cmd.Flags().String("title", "", "new title")
	cmd.Flags().String("body", "", "new free-text body")
	cmd.Flags().String("status", "", "new status: todo, in_progress, blocked, done")
	cmd.Flags().String("priority", "", "new priority: high, medium, low")
	return cmd
}
