package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellis-io/trellis/internal/manager"
	"github.com/trellis-io/trellis/internal/task"
)

// newAddCmd creates the add command
func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add <title>",
		Aliases: []string{"new"},
		Short:   "Create a task",
		Long: `Create a task. Without --parent the task becomes a master; with
--parent its tier is derived from the parent (epic under a master, task
under an epic, subtask under a task).

Examples:
  trellis add "Ship the feature"
  trellis add "Design the schema" --parent 2f4a... --priority high
  trellis add "Write docs" --parent 2f4a... --body "Cover the API too."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, _ := cmd.Flags().GetString("parent")
			project, _ := cmd.Flags().GetString("project")
			body, _ := cmd.Flags().GetString("body")
			status, _ := cmd.Flags().GetString("status")
			priority, _ := cmd.Flags().GetString("priority")

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			t, err := eng.mgr.CreateTask(manager.CreateInput{
				Title:       args[0],
				Description: body,
				ParentID:    parent,
				Project:     project,
				Status:      task.Status(status),
				Priority:    task.Priority(priority),
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(t)
			}
			fmt.Printf("Created %s %s at %s\n", t.Level, t.ID, t.Path)
			return nil
		},
	}

	cmd.Flags().StringP("parent", "p", "", "parent task id")
	cmd.Flags().String("project", "", "project directory (default from config)")
	cmd.Flags().String("body", "", "free-text body")
	cmd.Flags().String("status", "", "initial status (default todo)")
	cmd.Flags().String("priority", "", "priority: high, medium, low (default medium)")
	return cmd
}
