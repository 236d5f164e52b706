package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReconciler records reconcile calls.
type fakeReconciler struct {
	mu      sync.Mutex
	files   []string
	deletes []string
}

func (r *fakeReconciler) ReconcileFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, path)
	return nil
}

func (r *fakeReconciler) ReconcileDelete(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, taskID)
	return nil
}

func (r *fakeReconciler) fileCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

func (r *fakeReconciler) deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deletes...)
}

func startWatcher(t *testing.T, root string, rec *fakeReconciler) {
	t.Helper()
	w, err := New(&Config{
		TasksRoot:  root,
		Reconciler: rec,
		DebounceMs: 50,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx) }()

	// Give the watch list time to register before the test writes files.
	time.Sleep(100 * time.Millisecond)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatcher_ReconcilesNewFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "webapp"), 0755))

	rec := &fakeReconciler{}
	startWatcher(t, root, rec)

	path := filepath.Join(root, "webapp", "task-abc.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nid: abc\n---\n"), 0644))

	eventually(t, func() bool { return rec.fileCount() == 1 }, "file was not reconciled")
}

func TestWatcher_CoalescesRapidWrites(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "webapp"), 0755))

	rec := &fakeReconciler{}
	startWatcher(t, root, rec)

	path := filepath.Join(root, "webapp", "task-abc.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("---\nid: abc\n---\nrev\n"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, func() bool { return rec.fileCount() >= 1 }, "file was not reconciled")
	// The quiet period coalesces the burst into one reconcile.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.fileCount())
}

func TestWatcher_SuppressesNoopRewrite(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "webapp"), 0755))

	rec := &fakeReconciler{}
	startWatcher(t, root, rec)

	path := filepath.Join(root, "webapp", "task-abc.md")
	content := []byte("---\nid: abc\n---\n")
	require.NoError(t, os.WriteFile(path, content, 0644))
	eventually(t, func() bool { return rec.fileCount() == 1 }, "first write not reconciled")

	// Same bytes again: the content hash is unchanged, no reconcile.
	require.NoError(t, os.WriteFile(path, content, 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.fileCount())
}

func TestWatcher_ConfirmedDelete(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "webapp"), 0755))

	rec := &fakeReconciler{}
	startWatcher(t, root, rec)

	path := filepath.Join(root, "webapp", "task-abc.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nid: abc\n---\n"), 0644))
	eventually(t, func() bool { return rec.fileCount() == 1 }, "file was not reconciled")

	require.NoError(t, os.Remove(path))
	eventually(t, func() bool { return len(rec.deleted()) == 1 }, "delete was not reconciled")
	assert.Equal(t, []string{"abc"}, rec.deleted())
}

func TestWatcher_AtomicSaveIsNotADelete(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "webapp"), 0755))

	rec := &fakeReconciler{}
	startWatcher(t, root, rec)

	path := filepath.Join(root, "webapp", "task-abc.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nid: abc\n---\n"), 0644))
	eventually(t, func() bool { return rec.fileCount() == 1 }, "file was not reconciled")

	// Editor-style atomic save: remove then immediately recreate.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("---\nid: abc\n---\nedited\n"), 0644))

	eventually(t, func() bool { return rec.fileCount() == 2 }, "rewrite was not reconciled")
	assert.Empty(t, rec.deleted())
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tasks")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "webapp"), 0755))

	rec := &fakeReconciler{}
	startWatcher(t, root, rec)

	require.NoError(t, os.WriteFile(filepath.Join(root, "webapp", "notes.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, rec.fileCount())
}

func TestDebouncer_TriggerCoalesces(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	d := NewDebouncer(30, func(taskID, path string) {
		mu.Lock()
		fired = append(fired, taskID)
		mu.Unlock()
	})
	defer d.Stop()

	d.Trigger("a", "/tmp/a")
	d.Trigger("a", "/tmp/a")
	d.Trigger("a", "/tmp/a")
	assert.Equal(t, 1, d.PendingCount())

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, "debounced event never fired")
	assert.Equal(t, 0, d.PendingCount())
}

func TestDebouncer_CancelDelete(t *testing.T) {
	var mu sync.Mutex
	deleted := false
	d := NewDebouncer(30, func(string, string) {})
	d.SetDeleteCallback(func(taskID, path string) {
		mu.Lock()
		deleted = true
		mu.Unlock()
	})
	defer d.Stop()

	d.TriggerDelete("a", filepath.Join(t.TempDir(), "gone.md"))
	d.CancelDelete("a")

	time.Sleep(250 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, deleted)
}

func TestDebouncer_DeleteVerifiesFileIsGone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "task-a.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	var mu sync.Mutex
	deleted := false
	d := NewDebouncer(30, func(string, string) {})
	d.SetDeleteCallback(func(taskID, p string) {
		mu.Lock()
		deleted = true
		mu.Unlock()
	})
	defer d.Stop()

	// File still exists at verification time: no delete fires.
	d.TriggerDelete("a", path)
	time.Sleep(250 * time.Millisecond)
	mu.Lock()
	stillThere := deleted
	mu.Unlock()
	assert.False(t, stillThere)

	// Once the file is really gone the delete goes through.
	require.NoError(t, os.Remove(path))
	d.TriggerDelete("a", path)
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deleted
	}, "verified delete never fired")
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	d := NewDebouncer(30, func(string, string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	d.Trigger("a", "/tmp/a")
	d.Stop()

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, fired)
}
