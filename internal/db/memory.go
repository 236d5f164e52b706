package db

import (
	"strings"

	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

// LinkMemory records a (task, memory, relevance) link in the junction
// table. Linking the same pair again updates the annotation.
func (i *Index) LinkMemory(taskID, memoryID string, relevance float64, matchType string) error {
	_, err := i.db.Exec(`
		INSERT INTO task_memory (task_id, memory_id, relevance, match_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id, memory_id) DO UPDATE SET
			relevance = excluded.relevance,
			match_type = excluded.match_type`,
		taskID, memoryID, relevance, matchType)
	if err != nil {
		if isForeignKeyViolation(err) {
			return trellerr.NotFound(taskID)
		}
		return trellerr.Transient("link memory", err)
	}
	return nil
}

// UnlinkMemory removes a link. Removing an absent link is a no-op.
func (i *Index) UnlinkMemory(taskID, memoryID string) error {
	_, err := i.db.Exec(
		"DELETE FROM task_memory WHERE task_id = ? AND memory_id = ?", taskID, memoryID)
	if err != nil {
		return trellerr.Transient("unlink memory", err)
	}
	return nil
}

// MemoryConnections returns a task's memory links ordered by relevance,
// strongest first.
func (i *Index) MemoryConnections(taskID string) ([]task.MemoryConnection, error) {
	rows, err := i.db.Query(`
		SELECT memory_id, relevance, match_type
		FROM task_memory WHERE task_id = ?
		ORDER BY relevance DESC, memory_id`, taskID)
	if err != nil {
		return nil, trellerr.Transient("query memory connections", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []task.MemoryConnection
	for rows.Next() {
		var c task.MemoryConnection
		if err := rows.Scan(&c.MemoryID, &c.Relevance, &c.MatchType); err != nil {
			return nil, trellerr.Transient("scan memory connection", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, trellerr.Transient("iterate memory connections", err)
	}
	return conns, nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
