// Package manager is the hybrid storage engine: every mutation goes
// through here so the task files and the relational index stay in
// lockstep. Files are canonical; the index is a queryable mirror that
// can always be rebuilt from disk.
package manager

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/trellis-io/trellis/internal/config"
	"github.com/trellis-io/trellis/internal/db"
	"github.com/trellis-io/trellis/internal/events"
	"github.com/trellis-io/trellis/internal/filestore"
	"github.com/trellis-io/trellis/internal/pathindex"
	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

// Manager coordinates the file store and the index. Structural
// mutations (create, move, delete, reconcile) are serialized under one
// mutex; reads go straight to the index.
type Manager struct {
	idx    *db.Index
	files  *filestore.Store
	cfg    *config.Config
	pub    events.Publisher
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithPublisher sets the event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(m *Manager) { m.pub = pub }
}

// New creates a manager over an open index and file store.
func New(idx *db.Index, files *filestore.Store, cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		idx:    idx,
		files:  files,
		cfg:    cfg,
		pub:    events.NewNopPublisher(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateInput describes a new task. Level is optional: when empty it is
// derived from the parent (master for a task without a parent).
type CreateInput struct {
	Title       string
	Description string
	ParentID    string
	Project     string
	Level       task.Level
	Status      task.Status
	Priority    task.Priority
}

// CreateTask validates the tier placement, assigns the next sibling
// slot, writes the file, then commits the index row. If the index
// commit fails the file write is rolled back so the two representations
// never diverge.
func (m *Manager) CreateTask(in CreateInput) (*task.Task, error) {
	if in.Title == "" {
		return nil, trellerr.Validation("task title is required", "a task cannot be created without a title")
	}

	project := in.Project
	if project == "" {
		project = m.cfg.DefaultProject
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parentPath := ""
	level := task.LevelMaster
	if in.ParentID != "" {
		parent, err := m.idx.GetTask(in.ParentID)
		if err != nil {
			return nil, err
		}
		child, ok := parent.Level.ChildLevel()
		if !ok {
			return nil, trellerr.Validation(
				fmt.Sprintf("cannot nest under %s %s", parent.Level, parent.ID),
				"subtasks are leaves; the hierarchy is four tiers deep")
		}
		parentPath = parent.Path
		level = child
	}
	if in.Level != "" && in.Level != level {
		return nil, trellerr.Validation(
			fmt.Sprintf("level %s does not fit under this parent", in.Level),
			fmt.Sprintf("a child here must be a %s", level))
	}

	orders, err := m.idx.SiblingOrders(in.ParentID)
	if err != nil {
		return nil, err
	}
	order := pathindex.NextSiblingOrder(orders)

	t := task.New(in.Title, project, level)
	t.Description = in.Description
	t.ParentID = in.ParentID
	t.Path = pathindex.ComputePath(parentPath, order)
	t.PathOrder = order
	if in.Status != "" {
		if !task.IsValidStatus(in.Status) {
			return nil, trellerr.Validation(fmt.Sprintf("invalid status %q", in.Status), "status must be one of todo, in_progress, blocked, done")
		}
		t.Status = in.Status
	}
	if in.Priority != "" {
		if !task.IsValidPriority(in.Priority) {
			return nil, trellerr.Validation(fmt.Sprintf("invalid priority %q", in.Priority), "priority must be one of high, medium, low")
		}
		t.Priority = in.Priority
	}
	if err := t.Validate(); err != nil {
		return nil, trellerr.Validation(err.Error(), "task fields failed validation")
	}

	// File first. The file is the canonical copy; an index row without a
	// file would be a lie, a file without a row is healed by the watcher.
	if err := m.files.Write(t); err != nil {
		return nil, err
	}
	if err := m.idx.InsertTask(t); err != nil {
		if derr := m.files.Delete(t.Project, t.ID); derr != nil {
			m.logger.Error("rollback of task file failed", "taskID", t.ID, "error", derr)
		}
		return nil, err
	}

	m.logger.Info("task created", "taskID", t.ID, "level", t.Level, "path", t.Path, "project", t.Project)
	m.pub.Publish(events.NewEvent(events.EventTaskCreated, t.ID, map[string]any{"task": t}))
	return t, nil
}

// GetTask returns the task with its body and memory connections.
func (m *Manager) GetTask(id string) (*task.Task, error) {
	t, err := m.idx.GetTask(id)
	if err != nil {
		return nil, err
	}
	if ft, ferr := m.files.Read(t.Project, t.ID); ferr == nil {
		t.Description = ft.Description
	} else {
		m.logger.Debug("task file unreadable, returning index row only", "taskID", id, "error", ferr)
	}
	conns, err := m.idx.MemoryConnections(id)
	if err != nil {
		return nil, err
	}
	t.MemoryConnections = conns
	return t, nil
}

// GetChildren returns the direct children of a task in sibling order.
// An empty id returns the master tasks.
func (m *Manager) GetChildren(id string) ([]*task.Task, error) {
	return m.idx.GetChildren(id)
}

// GetTaskTree returns the nested subtree rooted at id, or the whole
// forest for an empty id.
func (m *Manager) GetTaskTree(id string) ([]*db.TreeNode, error) {
	return m.idx.GetTaskTree(id)
}

// ListByProject returns a project's tasks in path order.
func (m *Manager) ListByProject(project string) ([]*task.Task, error) {
	return m.idx.ListByProject(project)
}

// UpdateInput carries metadata changes. Nil fields are left untouched.
// Structural fields (parent, path, level) are only changed by MoveTask.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *task.Status
	Priority    *task.Priority
}

// UpdateTask applies metadata changes to both representations. On an
// index failure the previous file content is restored.
func (m *Manager) UpdateTask(id string, in UpdateInput) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.idx.GetTask(id)
	if err != nil {
		return nil, err
	}

	// Pull the current body so a metadata-only update does not blank it.
	var prev *task.Task
	if ft, ferr := m.files.Read(t.Project, t.ID); ferr == nil {
		prev = ft
		t.Description = ft.Description
	} else {
		m.logger.Warn("task file unreadable before update", "taskID", id, "error", ferr)
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, trellerr.Validation("task title is required", "a title cannot be cleared")
		}
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Status != nil {
		if !task.IsValidStatus(*in.Status) {
			return nil, trellerr.Validation(fmt.Sprintf("invalid status %q", *in.Status), "status must be one of todo, in_progress, blocked, done")
		}
		t.Status = *in.Status
	}
	if in.Priority != nil {
		if !task.IsValidPriority(*in.Priority) {
			return nil, trellerr.Validation(fmt.Sprintf("invalid priority %q", *in.Priority), "priority must be one of high, medium, low")
		}
		t.Priority = *in.Priority
	}
	t.Updated = time.Now().UTC()

	if err := m.files.Write(t); err != nil {
		return nil, err
	}
	if err := m.idx.UpsertTask(t); err != nil {
		if prev != nil {
			if werr := m.files.Write(prev); werr != nil {
				m.logger.Error("rollback of task file failed", "taskID", id, "error", werr)
			}
		}
		return nil, err
	}

	m.logger.Info("task updated", "taskID", id)
	m.pub.Publish(events.NewEvent(events.EventTaskUpdated, id, map[string]any{"task": t}))
	return t, nil
}

// MoveTask reparents a task and rebases every descendant path. The
// cycle check runs before any write: a task cannot move under itself or
// into its own subtree. Levels follow depth, so the whole subtree must
// still fit within the four tiers at its new position. Index rows move
// in one transaction; file rewrites are best effort and the watcher
// heals any that fail.
func (m *Manager) MoveTask(id, newParentID string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.idx.GetTask(id)
	if err != nil {
		return nil, err
	}
	if newParentID == t.ParentID {
		return t, nil
	}
	if newParentID == id {
		return nil, trellerr.Cycle(id, newParentID)
	}

	newParentPath := ""
	if newParentID != "" {
		np, err := m.idx.GetTask(newParentID)
		if err != nil {
			return nil, err
		}
		if pathindex.IsSelfOrDescendant(t.Path, np.Path) {
			return nil, trellerr.Cycle(id, newParentID)
		}
		newParentPath = np.Path
	}

	subtree, err := m.idx.Subtree(t.Path)
	if err != nil {
		return nil, err
	}

	// Depth of the deepest descendant relative to the moved root decides
	// whether the subtree still fits under the new parent.
	maxRel := 0
	for _, node := range subtree {
		if rel := pathindex.Depth(node.Path) - pathindex.Depth(t.Path); rel > maxRel {
			maxRel = rel
		}
	}
	newDepth := pathindex.Depth(newParentPath) + 1
	if newDepth+maxRel > pathindex.MaxDepth {
		return nil, trellerr.Validation(
			fmt.Sprintf("moving %s here would push its subtree past %d tiers", id, pathindex.MaxDepth),
			"the hierarchy is master > epic > task > subtask, nothing deeper")
	}

	if len(subtree) > m.cfg.MaxSubtreeWarn {
		m.logger.Warn("moving a large subtree", "taskID", id, "size", len(subtree))
	}

	now := time.Now().UTC()
	oldPath := t.Path

	// Compact the vacated sibling group so the move leaves no permanent
	// order gap. Shifting a sibling drags its whole subtree along, and
	// when the new parent sits inside a shifted subtree its path must be
	// rebased before the moved node's slot is computed.
	oldParentPath := pathindex.ParentPath(oldPath)
	siblings, err := m.idx.GetChildren(t.ParentID)
	if err != nil {
		return nil, err
	}
	var compacted []db.PathUpdate
	want := 0
	for _, sib := range siblings {
		if sib.ID == id {
			continue
		}
		want++
		if sib.PathOrder == want {
			continue
		}
		target := pathindex.ComputePath(oldParentPath, want)
		if newParentID != "" && pathindex.IsSelfOrDescendant(sib.Path, newParentPath) {
			rebasedParent, rerr := pathindex.Rebase(sib.Path, target, newParentPath)
			if rerr != nil {
				return nil, trellerr.Wrap(rerr, "rebase new parent path")
			}
			newParentPath = rebasedParent
		}
		sibSubtree, serr := m.idx.Subtree(sib.Path)
		if serr != nil {
			return nil, serr
		}
		for _, node := range sibSubtree {
			rebased, rerr := pathindex.Rebase(sib.Path, target, node.Path)
			if rerr != nil {
				return nil, trellerr.Wrap(rerr, "compact sibling path")
			}
			u := db.PathUpdate{
				ID:        node.ID,
				ParentID:  node.ParentID,
				Path:      rebased,
				PathOrder: node.PathOrder,
				Level:     node.Level,
				Updated:   now,
			}
			if node.ID == sib.ID {
				u.PathOrder = want
			}
			compacted = append(compacted, u)
		}
	}

	orders, err := m.idx.SiblingOrders(newParentID)
	if err != nil {
		return nil, err
	}
	order := pathindex.NextSiblingOrder(orders)
	newPath := pathindex.ComputePath(newParentPath, order)

	updates := make([]db.PathUpdate, 0, len(subtree)+len(compacted))
	for _, node := range subtree {
		rebased, err := pathindex.Rebase(oldPath, newPath, node.Path)
		if err != nil {
			return nil, trellerr.Wrap(err, "rebase subtree path")
		}
		level, ok := task.LevelAtDepth(pathindex.Depth(rebased))
		if !ok {
			return nil, trellerr.Validation(
				fmt.Sprintf("no level exists at depth %d", pathindex.Depth(rebased)),
				"the hierarchy is four tiers deep")
		}
		u := db.PathUpdate{
			ID:        node.ID,
			ParentID:  node.ParentID,
			Path:      rebased,
			PathOrder: node.PathOrder,
			Level:     level,
			Updated:   now,
		}
		if node.ID == id {
			u.ParentID = newParentID
			u.PathOrder = order
		}
		updates = append(updates, u)
	}
	updates = append(updates, compacted...)

	if err := m.idx.ApplyPathUpdates(updates); err != nil {
		return nil, err
	}

	// Mirror the committed rows back to disk. A failed rewrite leaves a
	// stale file that the next reconcile pass converges.
	for _, u := range updates {
		m.rewriteMovedFile(u)
	}

	m.logger.Info("task moved", "taskID", id, "newParentID", newParentID,
		"oldPath", oldPath, "newPath", newPath, "descendants", len(subtree)-1)
	m.pub.Publish(events.NewEvent(events.EventTaskMoved, id, events.MoveData{
		OldParentID: t.ParentID,
		NewParentID: newParentID,
		OldPath:     oldPath,
		NewPath:     newPath,
		Descendants: len(subtree) - 1,
	}))

	return m.idx.GetTask(id)
}

// rewriteMovedFile re-encodes one subtree member's file after a move.
func (m *Manager) rewriteMovedFile(u db.PathUpdate) {
	t, err := m.idx.GetTask(u.ID)
	if err != nil {
		m.logger.Warn("moved task vanished before file rewrite", "taskID", u.ID, "error", err)
		return
	}
	if ft, ferr := m.files.Read(t.Project, t.ID); ferr == nil {
		t.Description = ft.Description
	}
	if err := m.files.Write(t); err != nil {
		m.logger.Warn("file rewrite after move failed", "taskID", u.ID, "error", err)
	}
}

// DeleteTask removes a task. A task with children is rejected unless
// cascade is set; cascade removes the whole subtree, files and rows.
// Children are never silently re-parented.
func (m *Manager) DeleteTask(id string, cascade bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.idx.GetTask(id)
	if err != nil {
		return err
	}

	subtree, err := m.idx.Subtree(t.Path)
	if err != nil {
		return err
	}
	if len(subtree) > 1 && !cascade {
		return trellerr.Conflict(
			fmt.Sprintf("task %s has %d descendants", id, len(subtree)-1),
			"delete with cascade, or move the children out first")
	}

	// Files first: a row without a file is swept by reconciliation, a
	// file without a row would be re-promoted into the hierarchy.
	for _, node := range subtree {
		if err := m.files.Delete(node.Project, node.ID); err != nil {
			m.logger.Warn("task file delete failed", "taskID", node.ID, "error", err)
		}
	}

	// Leaf-first so the parent foreign key holds at every step.
	ordered := append([]*task.Task(nil), subtree...)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Path > ordered[b].Path })
	ids := make([]string, len(ordered))
	for i, node := range ordered {
		ids[i] = node.ID
	}
	if err := m.idx.DeleteTasks(ids); err != nil {
		return err
	}

	m.logger.Info("task deleted", "taskID", id, "removed", len(subtree))
	m.pub.Publish(events.NewEvent(events.EventTaskDeleted, id, map[string]any{
		"task_id": id,
		"removed": len(subtree),
	}))
	return nil
}

// LinkMemory attaches a memory record to a task.
func (m *Manager) LinkMemory(taskID, memoryID string, relevance float64, matchType string) error {
	if memoryID == "" {
		return trellerr.Validation("memory id is required", "a link needs a memory record to point at")
	}
	if relevance < 0 || relevance > 1 {
		return trellerr.Validation(
			fmt.Sprintf("relevance %v is out of range", relevance),
			"relevance is a score between 0 and 1")
	}
	if err := m.idx.LinkMemory(taskID, memoryID, relevance, matchType); err != nil {
		return err
	}
	m.pub.Publish(events.NewEvent(events.EventTaskUpdated, taskID, map[string]any{"memory_id": memoryID}))
	return nil
}

// UnlinkMemory removes a memory link. Unknown links are a no-op.
func (m *Manager) UnlinkMemory(taskID, memoryID string) error {
	return m.idx.UnlinkMemory(taskID, memoryID)
}

// MemoryConnections lists a task's memory links by descending relevance.
func (m *Manager) MemoryConnections(taskID string) ([]task.MemoryConnection, error) {
	if _, err := m.idx.GetTask(taskID); err != nil {
		return nil, err
	}
	return m.idx.MemoryConnections(taskID)
}
