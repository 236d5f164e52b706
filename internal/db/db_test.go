package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-io/trellis/internal/pathindex"
	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

// seedTask builds an index row without going through the manager.
func seedTask(id, title string, level task.Level, parentID, path string) *task.Task {
	order, _ := pathindex.LastSegmentOrder(path)
	now := time.Now().UTC()
	return &task.Task{
		ID:        id,
		Title:     title,
		Level:     level,
		ParentID:  parentID,
		Path:      path,
		PathOrder: order,
		Status:    task.StatusTodo,
		Priority:  task.PriorityMedium,
		Project:   "proj",
		Created:   now,
		Updated:   now,
	}
}

// seedTree inserts master 001 with epics 001.001 and 001.002, and a task
// 001.001.001 under the first epic, plus a second master 002.
func seedTree(t *testing.T, idx *Index) {
	t.Helper()
	for _, tk := range []*task.Task{
		seedTask("m1", "Master 1", task.LevelMaster, "", "001"),
		seedTask("e1", "Epic 1", task.LevelEpic, "m1", "001.001"),
		seedTask("e2", "Epic 2", task.LevelEpic, "m1", "001.002"),
		seedTask("t1", "Task 1", task.LevelTask, "e1", "001.001.001"),
		seedTask("m2", "Master 2", task.LevelMaster, "", "002"),
	} {
		require.NoError(t, idx.InsertTask(tk))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	idx := NewTestIndex(t)
	// Open already migrated; running again must be a no-op.
	require.NoError(t, idx.migrate())
}

func TestInsertAndGet(t *testing.T) {
	idx := NewTestIndex(t)
	tk := seedTask("a", "A", task.LevelMaster, "", "001")
	require.NoError(t, idx.InsertTask(tk))

	got, err := idx.GetTask("a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, "001", got.Path)
	assert.Equal(t, 1, got.PathOrder)
	assert.Equal(t, "", got.ParentID)
	assert.Empty(t, got.Description, "body is never mirrored into the index")
}

func TestGet_NotFound(t *testing.T) {
	idx := NewTestIndex(t)
	_, err := idx.GetTask("missing")
	assert.True(t, trellerr.HasCode(err, trellerr.CodeNotFound))
}

func TestInsert_DuplicateIDIsConflict(t *testing.T) {
	idx := NewTestIndex(t)
	require.NoError(t, idx.InsertTask(seedTask("a", "A", task.LevelMaster, "", "001")))

	err := idx.InsertTask(seedTask("a", "A again", task.LevelMaster, "", "002"))
	assert.True(t, trellerr.HasCode(err, trellerr.CodeConflict))
}

func TestInsert_SiblingOrderCollisionIsConflict(t *testing.T) {
	idx := NewTestIndex(t)
	require.NoError(t, idx.InsertTask(seedTask("a", "A", task.LevelMaster, "", "001")))

	// Same root slot, different id.
	err := idx.InsertTask(seedTask("b", "B", task.LevelMaster, "", "001"))
	assert.True(t, trellerr.HasCode(err, trellerr.CodeConflict))
}

func TestUpsert_IdempotentAndUpdates(t *testing.T) {
	idx := NewTestIndex(t)
	tk := seedTask("a", "A", task.LevelMaster, "", "001")
	require.NoError(t, idx.UpsertTask(tk))
	require.NoError(t, idx.UpsertTask(tk), "replay must be a no-op")

	tk.Title = "A renamed"
	tk.Status = task.StatusDone
	require.NoError(t, idx.UpsertTask(tk))

	got, err := idx.GetTask("a")
	require.NoError(t, err)
	assert.Equal(t, "A renamed", got.Title)
	assert.Equal(t, task.StatusDone, got.Status)
}

func TestQueryByPathPrefix_OrderedByPath(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	rows, err := idx.QueryByPathPrefix("001.")
	require.NoError(t, err)

	paths := make([]string, len(rows))
	for i, r := range rows {
		paths[i] = r.Path
	}
	assert.Equal(t, []string{"001.001", "001.001.001", "001.002"}, paths)
}

func TestSubtree_ExcludesPrefixLookalikes(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)
	// "0012" shares the raw string prefix of "001" but is not a child.
	require.NoError(t, idx.InsertTask(seedTask("m12", "M12", task.LevelMaster, "", "0012")))

	rows, err := idx.Subtree("001")
	require.NoError(t, err)

	for _, r := range rows {
		assert.NotEqual(t, "0012", r.Path)
	}
	assert.Len(t, rows, 4)
}

func TestGetChildren(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	roots, err := idx.GetChildren("")
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "m1", roots[0].ID)
	assert.Equal(t, "m2", roots[1].ID)

	epics, err := idx.GetChildren("m1")
	require.NoError(t, err)
	require.Len(t, epics, 2)
	assert.Equal(t, []int{1, 2}, []int{epics[0].PathOrder, epics[1].PathOrder})

	leaves, err := idx.GetChildren("t1")
	require.NoError(t, err)
	assert.Empty(t, leaves)

	_, err = idx.GetChildren("ghost")
	assert.True(t, trellerr.HasCode(err, trellerr.CodeNotFound))
}

func TestSiblingOrders(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	roots, err := idx.SiblingOrders("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, roots)

	epics, err := idx.SiblingOrders("m1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, epics)
}

func TestGetTaskTree_Forest(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	forest, err := idx.GetTaskTree("")
	require.NoError(t, err)
	require.Len(t, forest, 2)

	m1 := forest[0]
	assert.Equal(t, "m1", m1.Task.ID)
	require.Len(t, m1.Children, 2)
	assert.Equal(t, "e1", m1.Children[0].Task.ID)
	require.Len(t, m1.Children[0].Children, 1)
	assert.Equal(t, "t1", m1.Children[0].Children[0].Task.ID)
	assert.Equal(t, 4, m1.Count())
}

func TestGetTaskTree_SingleRoot(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	tree, err := idx.GetTaskTree("e1")
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "e1", tree[0].Task.ID)
	assert.Equal(t, 2, tree[0].Count())
}

func TestApplyPathUpdates_Transactional(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	// Move epic e2 two tiers down into e1's namespace; its level
	// follows its new depth.
	now := time.Now().UTC()
	err := idx.ApplyPathUpdates([]PathUpdate{
		{ID: "e2", ParentID: "e1", Path: "001.001.002", PathOrder: 2, Level: task.LevelTask, Updated: now},
	})
	require.NoError(t, err)

	got, err := idx.GetTask("e2")
	require.NoError(t, err)
	assert.Equal(t, "001.001.002", got.Path)
	assert.Equal(t, "e1", got.ParentID)
	assert.Equal(t, task.LevelTask, got.Level)
}

func TestApplyPathUpdates_SlotSwapWithinBatch(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	// e1 and e2 trade slots in one batch; the unique path index must
	// not see the transient overlap.
	now := time.Now().UTC()
	err := idx.ApplyPathUpdates([]PathUpdate{
		{ID: "e1", ParentID: "m1", Path: "001.002", PathOrder: 2, Level: task.LevelEpic, Updated: now},
		{ID: "e2", ParentID: "m1", Path: "001.001", PathOrder: 1, Level: task.LevelEpic, Updated: now},
		{ID: "t1", ParentID: "e1", Path: "001.002.001", PathOrder: 1, Level: task.LevelTask, Updated: now},
	})
	require.NoError(t, err)

	got, err := idx.GetTask("e1")
	require.NoError(t, err)
	assert.Equal(t, "001.002", got.Path)
	assert.Equal(t, 2, got.PathOrder)

	got, err = idx.GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, "001.002.001", got.Path)
}

func TestApplyPathUpdates_CollisionRollsBack(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	now := time.Now().UTC()
	err := idx.ApplyPathUpdates([]PathUpdate{
		{ID: "m2", ParentID: "", Path: "003", PathOrder: 3, Level: task.LevelMaster, Updated: now},
		// Collides with m1's path.
		{ID: "e2", ParentID: "", Path: "001", PathOrder: 1, Level: task.LevelMaster, Updated: now},
	})
	require.Error(t, err)
	assert.True(t, trellerr.HasCode(err, trellerr.CodeConflict))

	// First update must have been rolled back with the failed one.
	got, err := idx.GetTask("m2")
	require.NoError(t, err)
	assert.Equal(t, "002", got.Path)
}

func TestDeleteTasks_LeafFirst(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	require.NoError(t, idx.DeleteTasks([]string{"t1", "e1", "e2", "m1"}))

	has, err := idx.HasTask("m1")
	require.NoError(t, err)
	assert.False(t, has)

	has, err = idx.HasTask("m2")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeleteTask_UnknownIsNoOp(t *testing.T) {
	idx := NewTestIndex(t)
	assert.NoError(t, idx.DeleteTask("ghost"))
}

func TestMemoryLinks(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)

	require.NoError(t, idx.LinkMemory("t1", "mem-1", 0.4, "keyword"))
	require.NoError(t, idx.LinkMemory("t1", "mem-2", 0.9, "semantic"))
	// Relinking updates the annotation instead of duplicating.
	require.NoError(t, idx.LinkMemory("t1", "mem-1", 0.5, "keyword"))

	conns, err := idx.MemoryConnections("t1")
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "mem-2", conns[0].MemoryID, "strongest first")
	assert.InDelta(t, 0.5, conns[1].Relevance, 1e-9)

	require.NoError(t, idx.UnlinkMemory("t1", "mem-2"))
	conns, err = idx.MemoryConnections("t1")
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestLinkMemory_UnknownTask(t *testing.T) {
	idx := NewTestIndex(t)
	err := idx.LinkMemory("ghost", "mem-1", 0.5, "")
	assert.True(t, trellerr.HasCode(err, trellerr.CodeNotFound))
}

func TestMemoryLinks_CascadeOnTaskDelete(t *testing.T) {
	idx := NewTestIndex(t)
	seedTree(t, idx)
	require.NoError(t, idx.LinkMemory("t1", "mem-1", 0.4, ""))

	require.NoError(t, idx.DeleteTask("t1"))

	conns, err := idx.MemoryConnections("t1")
	require.NoError(t, err)
	assert.Empty(t, conns)
}
