package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
)

func newTestTask() *task.Task {
	t := task.New("Ship the feature", "webapp", task.LevelMaster)
	t.Path = "001"
	t.PathOrder = 1
	t.Description = "Some longer body text.\n\nWith two paragraphs."
	return t
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	orig := newTestTask()

	require.NoError(t, store.Write(orig))

	got, err := store.Read(orig.Project, orig.ID)
	require.NoError(t, err)

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Title, got.Title)
	assert.Equal(t, orig.Level, got.Level)
	assert.Equal(t, orig.Path, got.Path)
	assert.Equal(t, orig.PathOrder, got.PathOrder)
	assert.Equal(t, orig.Status, got.Status)
	assert.Equal(t, orig.Priority, got.Priority)
	assert.Equal(t, orig.Project, got.Project)
	assert.Equal(t, orig.Description, got.Description)
	// Timestamps normalize to the same instant through YAML.
	assert.WithinDuration(t, orig.Created, got.Created, time.Second)
}

func TestEncodeDecode_BodyLeadingBlankLinesSurvive(t *testing.T) {
	orig := newTestTask()
	orig.Description = "\n\nStarts after two blank lines.\n\nAnd keeps interior ones."

	data, err := Encode(orig)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, orig.Description, got.Description)
}

func TestRead_NotFound(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Read("webapp", "nope")
	require.Error(t, err)
	assert.True(t, trellerr.HasCode(err, trellerr.CodeNotFound))
}

func TestReadPath_MalformedFrontMatter(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	path := filepath.Join(dir, "webapp", "task-bad.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("not front matter at all"), 0644))

	_, err := store.ReadPath(path)
	require.Error(t, err)
	assert.True(t, trellerr.HasCode(err, trellerr.CodeParse))
}

func TestReadPath_UnterminatedFrontMatter(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	path := filepath.Join(dir, "webapp", "task-bad.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("---\nid: x\ntitle: y\n"), 0644))

	_, err := store.ReadPath(path)
	assert.True(t, trellerr.HasCode(err, trellerr.CodeParse))
}

func TestReadPath_MissingFileIsOSError(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.ReadPath(filepath.Join(store.Root(), "webapp", "task-x.md"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, errors.As(err, new(*trellerr.Error)))
}

func TestDelete_Idempotent(t *testing.T) {
	store := New(t.TempDir())
	orig := newTestTask()
	require.NoError(t, store.Write(orig))

	require.NoError(t, store.Delete(orig.Project, orig.ID))
	assert.False(t, store.Exists(orig.Project, orig.ID))

	// Second delete is a no-op, not an error.
	require.NoError(t, store.Delete(orig.Project, orig.ID))
}

func TestList(t *testing.T) {
	store := New(t.TempDir())

	a := newTestTask()
	b := newTestTask()
	b.Project = "backend"
	require.NoError(t, store.Write(a))
	require.NoError(t, store.Write(b))

	// Stray non-task files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "webapp", "notes.md"), []byte("x"), 0644))

	all, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	webapp, err := store.List("webapp")
	require.NoError(t, err)
	require.Len(t, webapp, 1)
	assert.Equal(t, a.ID, IDFromPath(webapp[0]))
}

func TestIDFromPath(t *testing.T) {
	assert.Equal(t, "abc-123", IDFromPath("/tasks/webapp/task-abc-123.md"))
	assert.Equal(t, "", IDFromPath("/tasks/webapp/notes.md"))
	assert.Equal(t, "", IDFromPath("/tasks/webapp/task-abc.txt"))
}

func TestProjectFromPath(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	assert.Equal(t, "webapp", store.ProjectFromPath(filepath.Join(root, "webapp", "task-1.md")))
	assert.Equal(t, "", store.ProjectFromPath(filepath.Join(root, "task-1.md")))
	assert.Equal(t, "", store.ProjectFromPath(filepath.Join(root, "a", "b", "task-1.md")))
	assert.Equal(t, "", store.ProjectFromPath("/elsewhere/webapp/task-1.md"))
}

func TestEncode_NoBodyOmitsTrailingBlank(t *testing.T) {
	tk := newTestTask()
	tk.Description = ""

	data, err := Encode(tk)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "", got.Description)
}
