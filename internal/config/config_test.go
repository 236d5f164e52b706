package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, TrellisDir, TasksDirName), cfg.TasksRoot)
	assert.Equal(t, filepath.Join(dir, TrellisDir, IndexFileName), cfg.DBPath)
	assert.Equal(t, "default", cfg.DefaultProject)
	assert.Equal(t, 500, cfg.Watcher.DebounceMs)
	assert.True(t, cfg.Watcher.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default(dir)
	cfg.DefaultProject = "webapp"
	cfg.Watcher.DebounceMs = 250
	require.NoError(t, cfg.Save(dir))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "webapp", got.DefaultProject)
	assert.Equal(t, 250, got.Watcher.DebounceMs)
}

func TestLoad_PartialFileBackfillsDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TrellisDir), 0755))
	require.NoError(t, os.WriteFile(Path(dir), []byte("default_project: api\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.DefaultProject)
	assert.NotEmpty(t, cfg.TasksRoot)
	assert.Equal(t, 500, cfg.Watcher.DebounceMs)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TrellisDir), 0755))
	require.NoError(t, os.WriteFile(Path(dir), []byte(":\tnot yaml"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
