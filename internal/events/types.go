// Package events provides event types and publishing infrastructure for
// trellis. The manager and the sync watcher publish here; the dashboard
// websocket layer and tests subscribe.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventTaskCreated indicates a new task was committed, whether
	// through the manager or discovered from a new file.
	EventTaskCreated EventType = "task_created"
	// EventTaskUpdated indicates a task's metadata changed.
	EventTaskUpdated EventType = "task_updated"
	// EventTaskMoved indicates a task changed parent; path rewrites
	// cascaded to its descendants.
	EventTaskMoved EventType = "task_moved"
	// EventTaskDeleted indicates a task was removed.
	EventTaskDeleted EventType = "task_deleted"
	// EventSyncApplied indicates the watcher reconciled an external
	// file change into the index.
	EventSyncApplied EventType = "sync_applied"
	// EventSyncQuarantined indicates a malformed file was logged and
	// skipped during reconciliation.
	EventSyncQuarantined EventType = "sync_quarantined"
)

// Event represents a published event.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"task_id"`
	Data   any       `json:"data,omitempty"`
	Time   time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, taskID string, data any) Event {
	return Event{
		Type:   eventType,
		TaskID: taskID,
		Data:   data,
		Time:   time.Now(),
	}
}

// MoveData describes a committed move for subscribers.
type MoveData struct {
	OldParentID string `json:"old_parent_id,omitempty"`
	NewParentID string `json:"new_parent_id,omitempty"`
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Descendants int    `json:"descendants"`
}

// QuarantineData names the file skipped during reconciliation.
type QuarantineData struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}
