package db

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/trellis-io/trellis/internal/pathindex"
	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

const taskColumns = "id, title, level, parent_id, path, path_order, status, priority, project, created_at, updated_at"

// scanTask reads one task row. The body never lives in the index, so
// Description stays empty.
func scanTask(row interface{ Scan(...any) error }) (*task.Task, error) {
	var t task.Task
	var parentID sql.NullString
	var created, updated string

	err := row.Scan(&t.ID, &t.Title, &t.Level, &parentID, &t.Path, &t.PathOrder,
		&t.Status, &t.Priority, &t.Project, &created, &updated)
	if err != nil {
		return nil, err
	}

	t.ParentID = parentID.String
	if ts, err := time.Parse(time.RFC3339, created); err == nil {
		t.Created = ts
	}
	if ts, err := time.Parse(time.RFC3339, updated); err == nil {
		t.Updated = ts
	}
	return &t, nil
}

func taskArgs(t *task.Task) []any {
	var parentID any
	if t.ParentID != "" {
		parentID = t.ParentID
	}
	return []any{
		t.ID, t.Title, string(t.Level), parentID, t.Path, t.PathOrder,
		string(t.Status), string(t.Priority), t.Project,
		t.Created.UTC().Format(time.RFC3339), t.Updated.UTC().Format(time.RFC3339),
	}
}

// InsertTask inserts a new row. A duplicate id, path, or sibling-order
// slot surfaces as a ConflictError for the caller to retry with fresh
// state.
func (i *Index) InsertTask(t *task.Task) error {
	_, err := i.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskArgs(t)...)
	if err != nil {
		if isUniqueViolation(err) {
			return trellerr.Conflict(
				fmt.Sprintf("task %s collides with an existing row", t.ID),
				"duplicate id, path, or sibling order").WithCause(err)
		}
		return trellerr.Transient("insert task row", err)
	}
	return nil
}

// UpsertTask inserts or replaces the row keyed by id, in one statement.
// Path collisions with a different task still surface as ConflictError.
func (i *Index) UpsertTask(t *task.Task) error {
	_, err := i.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			level = excluded.level,
			parent_id = excluded.parent_id,
			path = excluded.path,
			path_order = excluded.path_order,
			status = excluded.status,
			priority = excluded.priority,
			project = excluded.project,
			updated_at = excluded.updated_at`,
		taskArgs(t)...)
	if err != nil {
		if isUniqueViolation(err) {
			return trellerr.Conflict(
				fmt.Sprintf("task %s collides with an existing row", t.ID),
				"path or sibling order already taken by another task").WithCause(err)
		}
		return trellerr.Transient("upsert task row", err)
	}
	return nil
}

// GetTask returns the row for an id.
func (i *Index) GetTask(id string) (*task.Task, error) {
	row := i.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, trellerr.NotFound(id)
	}
	if err != nil {
		return nil, trellerr.Transient("read task row", err)
	}
	return t, nil
}

// HasTask reports whether a row exists for the id.
func (i *Index) HasTask(id string) (bool, error) {
	var n int
	err := i.db.QueryRow("SELECT COUNT(1) FROM tasks WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, trellerr.Transient("count task row", err)
	}
	return n > 0, nil
}

// QueryByPathPrefix returns all rows whose path starts with prefix,
// ordered by path. This is the core primitive for both "get children"
// (prefix = parent path plus one segment) and "get full subtree". An
// empty prefix returns every task in path order.
func (i *Index) QueryByPathPrefix(prefix string) ([]*task.Task, error) {
	rows, err := i.db.Query(
		"SELECT "+taskColumns+" FROM tasks WHERE path LIKE ? ESCAPE '\\' ORDER BY path",
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, trellerr.Transient("query by path prefix", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, trellerr.Transient("scan task row", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, trellerr.Transient("iterate task rows", err)
	}
	return tasks, nil
}

// Subtree returns the task with the given path and every descendant,
// ordered by path.
func (i *Index) Subtree(rootPath string) ([]*task.Task, error) {
	all, err := i.QueryByPathPrefix(rootPath)
	if err != nil {
		return nil, err
	}
	// Prefix matching on the raw string would also catch "0012" for root
	// "001"; keep only the root itself and true descendants.
	var out []*task.Task
	for _, t := range all {
		if t.Path == rootPath || pathindex.IsDescendant(rootPath, t.Path) {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetChildren resolves the parent's path and returns its direct children
// sorted by path_order. An empty parentID returns the root (master)
// tasks.
func (i *Index) GetChildren(parentID string) ([]*task.Task, error) {
	parentPath := ""
	parentDepth := 0
	if parentID != "" {
		parent, err := i.GetTask(parentID)
		if err != nil {
			return nil, err
		}
		parentPath = parent.Path
		parentDepth = pathindex.Depth(parent.Path)
	}

	rows, err := i.QueryByPathPrefix(pathindex.ChildPrefix(parentPath))
	if err != nil {
		return nil, err
	}

	var children []*task.Task
	for _, t := range rows {
		if pathindex.Depth(t.Path) == parentDepth+1 &&
			(parentPath == "" || pathindex.IsDescendant(parentPath, t.Path)) {
			children = append(children, t)
		}
	}
	// Prefix order and path_order agree for same-width segments; sort
	// explicitly so wide segments (>999 siblings) stay dense-ordered.
	sortByPathOrder(children)
	return children, nil
}

func sortByPathOrder(tasks []*task.Task) {
	sort.Slice(tasks, func(a, b int) bool {
		return tasks[a].PathOrder < tasks[b].PathOrder
	})
}

// SiblingOrders returns the path_order values of the children of a
// parent (empty parentID for roots). Used to assign the next free slot.
func (i *Index) SiblingOrders(parentID string) ([]int, error) {
	var rows *sql.Rows
	var err error
	if parentID == "" {
		rows, err = i.db.Query("SELECT path_order FROM tasks WHERE parent_id IS NULL")
	} else {
		rows, err = i.db.Query("SELECT path_order FROM tasks WHERE parent_id = ?", parentID)
	}
	if err != nil {
		return nil, trellerr.Transient("query sibling orders", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			return nil, trellerr.Transient("scan sibling order", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, trellerr.Transient("iterate sibling orders", err)
	}
	return orders, nil
}

// ListByProject returns all rows for a project ordered by path.
func (i *Index) ListByProject(project string) ([]*task.Task, error) {
	rows, err := i.db.Query(
		"SELECT "+taskColumns+" FROM tasks WHERE project = ? ORDER BY path", project)
	if err != nil {
		return nil, trellerr.Transient("list by project", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, trellerr.Transient("scan task row", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, trellerr.Transient("iterate task rows", err)
	}
	return tasks, nil
}

// DeleteTask removes the row for an id. Removing an unknown id is a
// no-op: the watcher replays delete notifications and must stay
// idempotent. Cascading to descendants is the manager's responsibility.
func (i *Index) DeleteTask(id string) error {
	_, err := i.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return trellerr.Transient("delete task row", err)
	}
	return nil
}

// PathUpdate rewrites the structural columns of one task inside a move
// cascade. Level moves with depth: a task moved one tier deeper becomes
// a subtask, and so on down its subtree.
type PathUpdate struct {
	ID        string
	ParentID  string
	Path      string
	PathOrder int
	Level     task.Level
	Updated   time.Time
}

// ApplyPathUpdates rewrites paths for a moved subtree in one transaction.
// Either every update commits or none do.
func (i *Index) ApplyPathUpdates(updates []PathUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := i.db.Begin()
	if err != nil {
		return trellerr.Transient("begin move transaction", err)
	}

	// Park every row on a placeholder first. The unique path index is
	// checked per statement, so rows that shift or swap slots within one
	// batch would otherwise collide transiently. Real paths are digits
	// and dots, so an id-based placeholder can never clash with one.
	for _, u := range updates {
		if _, err := tx.Exec(`UPDATE tasks SET path = ? WHERE id = ?`, "#"+u.ID, u.ID); err != nil {
			_ = tx.Rollback()
			return trellerr.Transient("park path update", err)
		}
	}

	for _, u := range updates {
		var parentID any
		if u.ParentID != "" {
			parentID = u.ParentID
		}
		_, err := tx.Exec(`
			UPDATE tasks
			SET parent_id = ?, path = ?, path_order = ?, level = ?, updated_at = ?
			WHERE id = ?`,
			parentID, u.Path, u.PathOrder, string(u.Level), u.Updated.UTC().Format(time.RFC3339), u.ID)
		if err != nil {
			_ = tx.Rollback()
			if isUniqueViolation(err) {
				return trellerr.Conflict(
					fmt.Sprintf("move collides on path %s", u.Path),
					"another task already holds the target slot").WithCause(err)
			}
			return trellerr.Transient("apply path update", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return trellerr.Transient("commit move transaction", err)
	}
	return nil
}

// DeleteTasks removes a batch of rows in one transaction. Callers order
// ids leaf-first so the parent foreign key holds at every step.
func (i *Index) DeleteTasks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := i.db.Begin()
	if err != nil {
		return trellerr.Transient("begin delete transaction", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
			_ = tx.Rollback()
			return trellerr.Transient("delete task row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return trellerr.Transient("commit delete transaction", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in a path prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
