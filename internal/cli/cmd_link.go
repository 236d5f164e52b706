package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newLinkCmd creates the link command group for memory connections
func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage a task's memory links",
		Long: `Manage the memory links attached to a task. Links are opaque
references into an external memory system, scored by relevance.

Examples:
  trellis link add 2f4a... mem-abc --relevance 0.8 --match semantic
  trellis link list 2f4a...
  trellis link remove 2f4a... mem-abc`,
	}

	cmd.AddCommand(newLinkAddCmd())
	cmd.AddCommand(newLinkRemoveCmd())
	cmd.AddCommand(newLinkListCmd())
	return cmd
}

func newLinkAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <task-id> <memory-id>",
		Short: "Attach a memory link to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			relevance, _ := cmd.Flags().GetFloat64("relevance")
			matchType, _ := cmd.Flags().GetString("match")

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.mgr.LinkMemory(args[0], args[1], relevance, matchType); err != nil {
				return err
			}
			fmt.Printf("Linked %s to %s\n", args[1], args[0])
			return nil
		},
	}

	cmd.Flags().Float64("relevance", 1.0, "relevance score between 0 and 1")
	cmd.Flags().String("match", "manual", "how the link was found (manual, semantic, keyword)")
	return cmd
}

func newLinkRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <task-id> <memory-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a memory link from a task",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if err := eng.mgr.UnlinkMemory(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Unlinked %s from %s\n", args[1], args[0])
			return nil
		},
	}
}

func newLinkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list <task-id>",
		Aliases: []string{"ls"},
		Short:   "List a task's memory links",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			conns, err := eng.mgr.MemoryConnections(args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(conns)
			}
			if len(conns) == 0 {
				fmt.Println("No memory links.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MEMORY\tRELEVANCE\tMATCH")
			for _, c := range conns {
				fmt.Fprintf(w, "%s\t%.2f\t%s\n", c.MemoryID, c.Relevance, c.MatchType)
			}
			return w.Flush()
		},
	}
}
