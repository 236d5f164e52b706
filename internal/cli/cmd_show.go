package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newShowCmd creates the show command
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its body and memory links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			t, err := eng.mgr.GetTask(args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(t)
			}

			fmt.Printf("%s  %s\n", t.ID, t.Title)
			fmt.Printf("  level:    %s\n", t.Level)
			fmt.Printf("  path:     %s\n", t.Path)
			if t.ParentID != "" {
				fmt.Printf("  parent:   %s\n", t.ParentID)
			}
			fmt.Printf("  status:   %s\n", statusIcon(t.Status))
			fmt.Printf("  priority: %s\n", t.Priority)
			fmt.Printf("  project:  %s\n", t.Project)
			fmt.Printf("  created:  %s\n", t.Created.Format("2006-01-02 15:04"))
			fmt.Printf("  updated:  %s\n", t.Updated.Format("2006-01-02 15:04"))

			if len(t.MemoryConnections) > 0 {
				fmt.Println("  memories:")
				for _, c := range t.MemoryConnections {
					fmt.Printf("    %s (%.2f %s)\n", c.MemoryID, c.Relevance, c.MatchType)
				}
			}
			if t.Description != "" {
				fmt.Println()
				fmt.Println(t.Description)
			}
			return nil
		},
	}
}
