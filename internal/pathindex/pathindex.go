// Package pathindex computes materialized paths for the task hierarchy.
//
// A path is a dot-separated sequence of zero-padded numeric segments, one
// per ancestor plus the node itself: a root is "001", the first child of
// the second child of that root is "001.002.001". The encoding gives
// prefix-based subtree queries and lexicographic sibling ordering for
// free. Everything in this package is pure: no I/O, no clock, no state.
package pathindex

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Separator joins path segments.
	Separator = "."
	// SegmentWidth is the zero-padded width of a single segment.
	SegmentWidth = 3
	// MaxDepth is the maximum hierarchy depth (master > epic > task > subtask).
	MaxDepth = 4
)

// FormatSegment renders a sibling order as a zero-padded path segment.
func FormatSegment(order int) string {
	return fmt.Sprintf("%0*d", SegmentWidth, order)
}

// ComputePath returns the materialized path for a node given its parent's
// path and its order among siblings. An empty parentPath produces a root
// path.
func ComputePath(parentPath string, order int) string {
	if parentPath == "" {
		return FormatSegment(order)
	}
	return parentPath + Separator + FormatSegment(order)
}

// NextSiblingOrder returns the order for a new child given the orders of
// existing siblings: max+1, or 1 when there are none. Freed orders are
// never reused within a batch; the manager serializes callers so two
// concurrent creates cannot observe the same sibling set.
func NextSiblingOrder(existing []int) int {
	max := 0
	for _, o := range existing {
		if o > max {
			max = o
		}
	}
	return max + 1
}

// Depth returns the number of segments in a path. An empty path has
// depth zero.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, Separator) + 1
}

// ParentPath returns the path with its last segment removed, or empty for
// a root path.
func ParentPath(path string) string {
	idx := strings.LastIndex(path, Separator)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// LastSegmentOrder parses the final segment of a path as an integer.
func LastSegmentOrder(path string) (int, error) {
	seg := path
	if idx := strings.LastIndex(path, Separator); idx >= 0 {
		seg = path[idx+1:]
	}
	order, err := strconv.Atoi(seg)
	if err != nil {
		return 0, fmt.Errorf("parse path segment %q: %w", seg, err)
	}
	return order, nil
}

// ChildPrefix returns the prefix shared by all direct and indirect
// children of the given path. For an empty path it returns the empty
// prefix matching every root.
func ChildPrefix(path string) string {
	if path == "" {
		return ""
	}
	return path + Separator
}

// IsDescendant reports whether path lies strictly inside the subtree
// rooted at ancestorPath. A path is not its own descendant.
func IsDescendant(ancestorPath, path string) bool {
	if ancestorPath == "" || path == ancestorPath {
		return false
	}
	return strings.HasPrefix(path, ancestorPath+Separator)
}

// IsSelfOrDescendant reports whether path equals ancestorPath or lies in
// its subtree. This is the cycle test for moves: a node may not be moved
// under itself or any of its descendants.
func IsSelfOrDescendant(ancestorPath, path string) bool {
	return path == ancestorPath || IsDescendant(ancestorPath, path)
}

// Rebase rewrites a descendant path from the old subtree root to the new
// one. path must equal oldRoot or start with oldRoot's child prefix.
func Rebase(oldRoot, newRoot, path string) (string, error) {
	if path == oldRoot {
		return newRoot, nil
	}
	prefix := ChildPrefix(oldRoot)
	if oldRoot != "" && !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path %q is not under %q", path, oldRoot)
	}
	return newRoot + Separator + strings.TrimPrefix(path, prefix), nil
}

// Validate checks that a path is well-formed: non-empty, within MaxDepth,
// and made of positive zero-padded segments.
func Validate(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	segments := strings.Split(path, Separator)
	if len(segments) > MaxDepth {
		return fmt.Errorf("path %q exceeds max depth %d", path, MaxDepth)
	}
	for _, seg := range segments {
		if len(seg) < SegmentWidth {
			return fmt.Errorf("path segment %q shorter than %d digits", seg, SegmentWidth)
		}
		n, err := strconv.Atoi(seg)
		if err != nil {
			return fmt.Errorf("path segment %q is not numeric", seg)
		}
		if n < 1 {
			return fmt.Errorf("path segment %q must be positive", seg)
		}
	}
	return nil
}
