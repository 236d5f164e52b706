// Package filestore is the canonical on-disk representation of tasks.
//
// Each task is one markdown file: a YAML front section delimited by "---"
// lines holding the metadata, then the free-text body. Files live under
// <root>/<project>/task-<id>.md. Writes are atomic (temp-then-rename) so
// an external reader or the watcher never sees a half-written file.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/trellis-io/trellis/internal/task"
	"github.com/trellis-io/trellis/internal/trellerr"
	"github.com/trellis-io/trellis/internal/util"
)

const (
	// FilePrefix and FileExt frame every task filename: task-<id>.md.
	FilePrefix = "task-"
	FileExt    = ".md"

	frontMatterDelim = "---"
)

// Store reads and writes task files under a root directory.
type Store struct {
	root string
}

// New creates a file store rooted at the given directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the tasks root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the file path for a task.
func (s *Store) Path(project, id string) string {
	return filepath.Join(s.root, project, FilePrefix+id+FileExt)
}

// IDFromPath extracts the task id from a task file path, or empty string
// if the filename does not follow the task-<id>.md convention.
func IDFromPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, FilePrefix) || !strings.HasSuffix(base, FileExt) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, FilePrefix), FileExt)
}

// ProjectFromPath extracts the project directory name from a task file
// path under this store's root, or empty string if the path is elsewhere.
func (s *Store) ProjectFromPath(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		return ""
	}
	// Only single-level project directories are valid.
	if strings.Contains(dir, string(filepath.Separator)) {
		return ""
	}
	return dir
}

// Write serializes the task and writes it atomically.
func (s *Store) Write(t *task.Task) error {
	data, err := Encode(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	if err := util.AtomicWriteFile(s.Path(t.Project, t.ID), data, 0644); err != nil {
		return trellerr.Transient(fmt.Sprintf("write task file for %s", t.ID), err)
	}
	return nil
}

// Read loads and parses a task file.
func (s *Store) Read(project, id string) (*task.Task, error) {
	t, err := s.ReadPath(s.Path(project, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, trellerr.NotFound(id)
		}
		return nil, err
	}
	return t, nil
}

// ReadPath loads and parses the task file at an explicit path. A missing
// file surfaces the raw os error so callers can distinguish it from a
// parse failure.
func (s *Store) ReadPath(path string) (*task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Decode(data)
	if err != nil {
		return nil, trellerr.Parse(path, err)
	}
	return t, nil
}

// Delete removes a task file. Deleting a missing file is a no-op.
func (s *Store) Delete(project, id string) error {
	err := os.Remove(s.Path(project, id))
	if err != nil && !os.IsNotExist(err) {
		return trellerr.Transient(fmt.Sprintf("delete task file for %s", id), err)
	}
	return nil
}

// Exists reports whether the task file is present.
func (s *Store) Exists(project, id string) bool {
	_, err := os.Stat(s.Path(project, id))
	return err == nil
}

// List enumerates task file paths. With a project it lists that project's
// directory; with an empty project it globs every project directory under
// the root. Used by reconciliation scans.
func (s *Store) List(project string) ([]string, error) {
	pattern := filepath.Join(s.root, "*", FilePrefix+"*"+FileExt)
	if project != "" {
		pattern = filepath.Join(s.root, project, FilePrefix+"*"+FileExt)
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob task files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Encode renders a task as front matter plus body.
func Encode(t *task.Task) ([]byte, error) {
	meta, err := yaml.Marshal(t)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim)
	b.WriteString("\n")
	b.Write(meta)
	b.WriteString(frontMatterDelim)
	b.WriteString("\n")
	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(t.Description)
		if !strings.HasSuffix(t.Description, "\n") {
			b.WriteString("\n")
		}
	}
	return []byte(b.String()), nil
}

// Decode parses front matter plus body back into a task.
func Decode(data []byte) (*task.Task, error) {
	content := string(data)
	if !strings.HasPrefix(content, frontMatterDelim+"\n") {
		return nil, fmt.Errorf("missing front matter delimiter")
	}
	rest := content[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}
	front := rest[:end+1]
	body := rest[end+1+len(frontMatterDelim):]

	var t task.Task
	if err := yaml.Unmarshal([]byte(front), &t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, fmt.Errorf("front matter has no id")
	}

	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")
	t.Description = strings.TrimSuffix(body, "\n")
	return &t, nil
}
