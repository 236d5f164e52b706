package db

import (
	"sort"

	"github.com/trellis-io/trellis/internal/pathindex"
	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

// TreeNode is a task with its children nested, ordered by path_order.
type TreeNode struct {
	Task     *task.Task  `json:"task"`
	Children []*TreeNode `json:"children,omitempty"`
}

// GetTaskTree assembles the nested subtree rooted at rootID, or the
// whole forest when rootID is empty. Assembly is linear in the result
// size: rows arrive in path order, so every node's parent has already
// been seen.
func (i *Index) GetTaskTree(rootID string) ([]*TreeNode, error) {
	var rows []*task.Task
	var err error

	if rootID == "" {
		rows, err = i.QueryByPathPrefix("")
	} else {
		root, gerr := i.GetTask(rootID)
		if gerr != nil {
			return nil, gerr
		}
		rows, err = i.Subtree(root.Path)
	}
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*TreeNode, len(rows))
	var roots []*TreeNode
	for _, t := range rows {
		node := &TreeNode{Task: t}
		byPath[t.Path] = node

		parent, ok := byPath[pathindex.ParentPath(t.Path)]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, n := range byPath {
		sortNodesByOrder(n.Children)
	}
	sortNodesByOrder(roots)

	if rootID != "" && len(roots) != 1 {
		return nil, trellerr.Conflict("subtree has no single root",
			"index rows disagree with the requested root path")
	}
	return roots, nil
}

func sortNodesByOrder(nodes []*TreeNode) {
	sort.Slice(nodes, func(a, b int) bool {
		return nodes[a].Task.PathOrder < nodes[b].Task.PathOrder
	})
}

// Walk visits the node and every descendant depth-first.
func (n *TreeNode) Walk(fn func(*task.Task)) {
	fn(n.Task)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Count returns the number of tasks in the subtree including the root.
func (n *TreeNode) Count() int {
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}
