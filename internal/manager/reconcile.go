package manager

import (
	"os"
	"sort"
	"time"

	"github.com/trellis-io/trellis/internal/events"
	"github.com/trellis-io/trellis/internal/pathindex"
	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Seen        int `json:"seen"`
	Applied     int `json:"applied"`
	Quarantined int `json:"quarantined"`
	Removed     int `json:"removed"`
}

// ReconcileFile syncs one task file into the index. This is the
// watcher's entry point: the file is re-read here, so whatever is on
// disk when the debounce window closes wins. Replays are idempotent.
func (m *Manager) ReconcileFile(path string) error {
	ft, err := m.files.ReadPath(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Gone before the event settled; the delete path handles it.
			return nil
		}
		if trellerr.HasCode(err, trellerr.CodeParse) {
			m.quarantine(path, err)
			return nil
		}
		return err
	}

	if project := m.files.ProjectFromPath(path); project != "" {
		// The directory a file sits in outranks its front matter.
		ft.Project = project
	}

	m.mu.Lock()
	applied, err := m.reconcileTask(ft, path)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if applied {
		m.pub.Publish(events.NewEvent(events.EventSyncApplied, ft.ID, map[string]any{"path": path}))
	}
	return nil
}

// ReconcileDelete removes the index rows for a task whose file is
// confirmed gone. Rows of descendants go too: the parent foreign key
// does not allow orphans, and any descendant file still on disk is
// re-promoted by the next reconcile pass. Unknown ids are a no-op.
func (m *Manager) ReconcileDelete(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.idx.GetTask(taskID)
	if err != nil {
		if trellerr.HasCode(err, trellerr.CodeNotFound) {
			return nil
		}
		return err
	}

	subtree, err := m.idx.Subtree(t.Path)
	if err != nil {
		return err
	}
	for _, node := range subtree {
		if node.ID != taskID && m.files.Exists(node.Project, node.ID) {
			m.logger.Warn("descendant file survives its parent, will be re-promoted on next sync",
				"taskID", node.ID, "deletedParent", taskID)
		}
	}

	ordered := append([]*task.Task(nil), subtree...)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Path > ordered[b].Path })
	ids := make([]string, len(ordered))
	for i, node := range ordered {
		ids[i] = node.ID
	}
	if err := m.idx.DeleteTasks(ids); err != nil {
		return err
	}

	m.logger.Info("externally deleted task removed from index", "taskID", taskID, "removed", len(subtree))
	m.pub.Publish(events.NewEvent(events.EventTaskDeleted, taskID, map[string]any{
		"task_id": taskID,
		"removed": len(subtree),
	}))
	return nil
}

// Reconcile runs a full scan: every file on disk is synced into the
// index, and rows whose files have vanished are swept. Used at startup
// and on demand; safe to run at any time. The mutex is held from the
// file listing through the sweep, so a task created while the scan runs
// can never be mistaken for a vanished file.
func (m *Manager) Reconcile() (ReconcileStats, error) {
	var stats ReconcileStats

	m.mu.Lock()
	defer m.mu.Unlock()

	paths, err := m.files.List("")
	if err != nil {
		return stats, trellerr.Transient("list task files", err)
	}

	type entry struct {
		path string
		t    *task.Task
	}
	var entries []entry
	onDisk := make(map[string]bool)
	for _, path := range paths {
		stats.Seen++
		ft, err := m.files.ReadPath(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			stats.Quarantined++
			m.quarantine(path, err)
			continue
		}
		if project := m.files.ProjectFromPath(path); project != "" {
			ft.Project = project
		}
		onDisk[ft.ID] = true
		entries = append(entries, entry{path: path, t: ft})
	}

	// Shallow paths first so parents are promoted before their children.
	// Files with no usable path sort last and get fresh slots.
	sort.SliceStable(entries, func(a, b int) bool {
		da, dbt := pathindex.Depth(entries[a].t.Path), pathindex.Depth(entries[b].t.Path)
		if da != dbt {
			if da == 0 {
				return false
			}
			if dbt == 0 {
				return true
			}
			return da < dbt
		}
		return entries[a].t.Path < entries[b].t.Path
	})

	for _, e := range entries {
		applied, err := m.reconcileTask(e.t, e.path)
		if err != nil {
			m.logger.Warn("reconcile failed for file", "path", e.path, "error", err)
			stats.Quarantined++
			continue
		}
		if applied {
			stats.Applied++
		}
	}

	// Sweep rows whose files are gone, deepest first.
	rows, err := m.idx.QueryByPathPrefix("")
	if err != nil {
		return stats, err
	}
	var stale []*task.Task
	for _, row := range rows {
		if !onDisk[row.ID] {
			stale = append(stale, row)
		}
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].Path > stale[b].Path })
	ids := make([]string, len(stale))
	for i, row := range stale {
		ids[i] = row.ID
	}
	if err := m.idx.DeleteTasks(ids); err != nil {
		return stats, err
	}
	for _, row := range stale {
		stats.Removed++
		m.pub.Publish(events.NewEvent(events.EventTaskDeleted, row.ID, map[string]any{"task_id": row.ID}))
	}

	m.logger.Info("reconcile pass complete",
		"seen", stats.Seen, "applied", stats.Applied,
		"quarantined", stats.Quarantined, "removed", stats.Removed)
	return stats, nil
}

// reconcileTask merges one parsed file into the index. For a known id
// only metadata moves; path, order, parent, and level stay whatever the
// index says, so external edits cannot smuggle in structural changes.
// An unknown id is promoted into the hierarchy, keeping the file's
// claimed slot when it is consistent and free, otherwise taking a fresh
// tail slot under its parent. Callers hold m.mu.
func (m *Manager) reconcileTask(ft *task.Task, path string) (bool, error) {
	existing, err := m.idx.GetTask(ft.ID)
	if err != nil && !trellerr.HasCode(err, trellerr.CodeNotFound) {
		return false, err
	}

	if existing != nil {
		merged := existing.Clone()
		if ft.Title != "" {
			merged.Title = ft.Title
		}
		if task.IsValidStatus(ft.Status) {
			merged.Status = ft.Status
		}
		if task.IsValidPriority(ft.Priority) {
			merged.Priority = ft.Priority
		}
		merged.Project = ft.Project
		merged.Updated = time.Now().UTC()
		if err := m.idx.UpsertTask(merged); err != nil {
			return false, err
		}
		m.logger.Debug("external edit reconciled", "taskID", ft.ID, "path", path)
		m.pub.Publish(events.NewEvent(events.EventTaskUpdated, ft.ID, map[string]any{"task": merged}))
		return true, nil
	}

	// Promotion of a file the index has never seen.
	parentPath := ""
	level := task.LevelMaster
	if ft.ParentID != "" {
		parent, perr := m.idx.GetTask(ft.ParentID)
		if perr != nil {
			if trellerr.HasCode(perr, trellerr.CodeNotFound) {
				m.quarantine(path, trellerr.Validation(
					"task file references an unknown parent "+ft.ParentID,
					"the parent may not have been synced yet"))
				return false, nil
			}
			return false, perr
		}
		child, ok := parent.Level.ChildLevel()
		if !ok {
			m.quarantine(path, trellerr.Validation(
				"task file nests under a subtask",
				"subtasks are leaves; the hierarchy is four tiers deep"))
			return false, nil
		}
		parentPath = parent.Path
		level = child
	}

	orders, err := m.idx.SiblingOrders(ft.ParentID)
	if err != nil {
		return false, err
	}

	nt := ft.Clone()
	nt.Level = level
	if keepClaimedSlot(ft, parentPath, orders) {
		// Slot already consistent and free.
	} else {
		nt.PathOrder = pathindex.NextSiblingOrder(orders)
		nt.Path = pathindex.ComputePath(parentPath, nt.PathOrder)
	}
	if nt.Title == "" {
		nt.Title = "(untitled)"
	}
	if !task.IsValidStatus(nt.Status) {
		nt.Status = task.StatusTodo
	}
	if !task.IsValidPriority(nt.Priority) {
		nt.Priority = task.PriorityMedium
	}
	now := time.Now().UTC()
	if nt.Created.IsZero() {
		nt.Created = now
	}
	nt.Updated = now

	if err := m.idx.InsertTask(nt); err != nil {
		return false, err
	}

	// Converge the file when promotion had to assign a different slot.
	if nt.Path != ft.Path || nt.Level != ft.Level {
		if werr := m.files.Write(nt); werr != nil {
			m.logger.Warn("file rewrite after promotion failed", "taskID", nt.ID, "error", werr)
		}
	}

	m.logger.Info("external file promoted into hierarchy", "taskID", nt.ID, "path", nt.Path)
	m.pub.Publish(events.NewEvent(events.EventTaskCreated, nt.ID, map[string]any{"task": nt}))
	return true, nil
}

// keepClaimedSlot reports whether a promoted file's own path and order
// can be honored: well formed, agreeing with the parent, and not taken
// by a sibling.
func keepClaimedSlot(ft *task.Task, parentPath string, orders []int) bool {
	if ft.Path == "" || pathindex.Validate(ft.Path) != nil {
		return false
	}
	if pathindex.ParentPath(ft.Path) != parentPath {
		return false
	}
	order, err := pathindex.LastSegmentOrder(ft.Path)
	if err != nil || order != ft.PathOrder {
		return false
	}
	for _, o := range orders {
		if o == order {
			return false
		}
	}
	return true
}

func (m *Manager) quarantine(path string, cause error) {
	m.logger.Warn("task file quarantined", "path", path, "error", cause)
	m.pub.Publish(events.NewEvent(events.EventSyncQuarantined, "", events.QuarantineData{
		Path:   path,
		Reason: cause.Error(),
	}))
}
