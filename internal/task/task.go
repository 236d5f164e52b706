// Package task defines the task entity and its classification enums.
package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level is the hierarchy tier of a task. The hierarchy is strictly four
// tiers deep: a node's level is always exactly one tier below its
// parent's, masters have no parent, and subtasks are always leaves.
type Level string

const (
	LevelMaster  Level = "master"
	LevelEpic    Level = "epic"
	LevelTask    Level = "task"
	LevelSubtask Level = "subtask"
)

// ValidLevels returns all valid level values, root first.
func ValidLevels() []Level {
	return []Level{LevelMaster, LevelEpic, LevelTask, LevelSubtask}
}

// IsValidLevel returns true if the level is a valid level value.
func IsValidLevel(l Level) bool {
	switch l {
	case LevelMaster, LevelEpic, LevelTask, LevelSubtask:
		return true
	default:
		return false
	}
}

// Depth returns the 1-based depth of a level (master=1 .. subtask=4),
// or 0 for an unknown level.
func (l Level) Depth() int {
	switch l {
	case LevelMaster:
		return 1
	case LevelEpic:
		return 2
	case LevelTask:
		return 3
	case LevelSubtask:
		return 4
	default:
		return 0
	}
}

// ChildLevel returns the level one tier below, or false for subtask.
func (l Level) ChildLevel() (Level, bool) {
	switch l {
	case LevelMaster:
		return LevelEpic, true
	case LevelEpic:
		return LevelTask, true
	case LevelTask:
		return LevelSubtask, true
	default:
		return "", false
	}
}

// LevelAtDepth returns the level for a 1-based depth.
func LevelAtDepth(depth int) (Level, bool) {
	switch depth {
	case 1:
		return LevelMaster, true
	case 2:
		return LevelEpic, true
	case 3:
		return LevelTask, true
	case 4:
		return LevelSubtask, true
	default:
		return "", false
	}
}

// Status represents the workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusBlocked, StatusDone}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone:
		return true
	default:
		return false
	}
}

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriorities returns all valid priority values.
func ValidPriorities() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}

// IsValidPriority returns true if the priority is a valid priority value.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// MemoryConnection links a task to a record in the external memory store.
// The engine owns only the linkage, never the memory content.
type MemoryConnection struct {
	MemoryID  string  `yaml:"memory_id" json:"memory_id"`
	Relevance float64 `yaml:"relevance" json:"relevance"`
	MatchType string  `yaml:"match_type,omitempty" json:"match_type,omitempty"`
}

// Task is the core entity of the storage engine. The canonical copy lives
// as a file; the relational index mirrors every field except Body.
type Task struct {
	// ID is globally unique, assigned at creation, never reused.
	ID string `yaml:"id" json:"id"`

	// Title is a short description of the task.
	Title string `yaml:"title" json:"title"`

	// Description is the free-text body of the task file. It is not
	// mirrored into the index.
	Description string `yaml:"-" json:"description,omitempty"`

	// Level is the hierarchy tier (master, epic, task, subtask).
	Level Level `yaml:"level" json:"level"`

	// ParentID references the parent task; empty only for masters.
	ParentID string `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`

	// Path is the materialized path: zero-padded segments, one per
	// ancestor plus self (e.g. "001.002.001").
	Path string `yaml:"path" json:"path"`

	// PathOrder is the position among siblings, equal to the last path
	// segment as an integer. Unique within a sibling group.
	PathOrder int `yaml:"path_order" json:"path_order"`

	// Status is the workflow state.
	Status Status `yaml:"status" json:"status"`

	// Priority is the urgency classification.
	Priority Priority `yaml:"priority" json:"priority"`

	// Project names the per-project directory the task file lives in.
	Project string `yaml:"project" json:"project"`

	// Created and Updated are maintained by the engine.
	Created time.Time `yaml:"created" json:"created"`
	Updated time.Time `yaml:"updated" json:"updated"`

	// MemoryConnections are junction rows into the external memory
	// store. Loaded from the index, never stored in the file.
	MemoryConnections []MemoryConnection `yaml:"-" json:"memory_connections,omitempty"`
}

// New creates a task with a fresh id and engine defaults. Path and order
// are assigned by the manager at create time.
func New(title, project string, level Level) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:       uuid.NewString(),
		Title:    title,
		Level:    level,
		Status:   StatusTodo,
		Priority: PriorityMedium,
		Project:  project,
		Created:  now,
		Updated:  now,
	}
}

// IsRoot returns true for master-level tasks.
func (t *Task) IsRoot() bool {
	return t.Level == LevelMaster
}

// Validate checks the task's own fields for consistency. Hierarchy
// checks against other tasks (parent level, path agreement) belong to
// the manager.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("task title is required")
	}
	if t.Project == "" {
		return fmt.Errorf("task project is required")
	}
	if !IsValidLevel(t.Level) {
		return fmt.Errorf("invalid level %q", t.Level)
	}
	if !IsValidStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if !IsValidPriority(t.Priority) {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.Level == LevelMaster && t.ParentID != "" {
		return fmt.Errorf("master task cannot have a parent")
	}
	if t.Level != LevelMaster && t.ParentID == "" {
		return fmt.Errorf("%s task requires a parent", t.Level)
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.MemoryConnections != nil {
		c.MemoryConnections = append([]MemoryConnection(nil), t.MemoryConnections...)
	}
	return &c
}
