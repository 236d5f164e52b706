package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellis-io/trellis/internal/db"
)

// newTreeCmd creates the tree command
func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [id]",
		Short: "Show the task hierarchy",
		Long: `Show the nested hierarchy, either the whole forest or the subtree
rooted at a task.

Example:
  trellis tree
  trellis tree 2f4a...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rootID := ""
			if len(args) == 1 {
				rootID = args[0]
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			nodes, err := eng.mgr.GetTaskTree(rootID)
			if err != nil {
				return err
			}

			if jsonOut {
				return printJSON(nodes)
			}
			if len(nodes) == 0 {
				fmt.Println("No tasks found. Create one with: trellis add \"Your task\"")
				return nil
			}

			for _, n := range nodes {
				printTree(n, "", true, len(nodes) == 1)
			}
			return nil
		},
	}
}

// printTree renders one node and its children with box-drawing guides.
func printTree(n *db.TreeNode, prefix string, last, root bool) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if last {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	if root && prefix == "" {
		connector = ""
		childPrefix = ""
	}

	fmt.Printf("%s%s%s  %s [%s]\n", prefix, connector, n.Task.Path, truncate(n.Task.Title, 60), statusIcon(n.Task.Status))
	for i, c := range n.Children {
		printTree(c, childPrefix, i == len(n.Children)-1, false)
	}
}
