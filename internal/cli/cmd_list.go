package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newListCmd creates the list command
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks in path order",
		Long: `List a project's tasks in path order.

Example:
  trellis list
  trellis list --project webapp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if project == "" {
				project = eng.cfg.DefaultProject
			}
			tasks, err := eng.mgr.ListByProject(project)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(tasks)
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks found. Create one with: trellis add \"Your task\"")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPATH\tLEVEL\tSTATUS\tPRIORITY\tTITLE")
			fmt.Fprintln(w, "──\t────\t─────\t──────\t────────\t─────")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(t.ID), t.Path, t.Level, statusIcon(t.Status), t.Priority, truncate(t.Title, 40))
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("project", "", "project to list (default from config)")
	return cmd
}
