package cli

import (
	"encoding/json"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/trellis-io/trellis/internal/task"
)

// printJSON writes a value as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// useColor reports whether stdout is a terminal worth coloring.
func useColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiDim    = "\033[2m"
)

// statusIcon renders a status with a colored marker on a TTY.
func statusIcon(s task.Status) string {
	if !useColor() {
		return string(s)
	}
	switch s {
	case task.StatusDone:
		return ansiGreen + "✓ " + string(s) + ansiReset
	case task.StatusInProgress:
		return ansiYellow + "▶ " + string(s) + ansiReset
	case task.StatusBlocked:
		return ansiRed + "✗ " + string(s) + ansiReset
	default:
		return ansiDim + "· " + string(s) + ansiReset
	}
}

// truncate shortens a string to max runes with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// shortID renders the first 8 characters of an id for table output.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
